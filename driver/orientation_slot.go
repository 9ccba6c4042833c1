package driver

import (
	"sync"

	"go.uber.org/atomic"

	"go.viam.com/markercam/spatialmath"
)

// OrientationSlot holds the latest pose. A store replaces whatever the consumer has not read yet.
type OrientationSlot struct {
	mu     sync.Mutex
	pose   spatialmath.Pose
	isNew  atomic.Bool
	stores atomic.Uint64
}

// NewOrientationSlot returns a slot holding the zero pose.
func NewOrientationSlot() *OrientationSlot {
	return &OrientationSlot{pose: spatialmath.NewZeroPose()}
}

// Store replaces the held pose.
func (s *OrientationSlot) Store(pose spatialmath.Pose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pose = pose
	s.isNew.Store(true)
	s.stores.Inc()
}

// Load returns the held pose and marks it read.
func (s *OrientationSlot) Load() spatialmath.Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isNew.Store(false)
	return s.pose
}

// IsNew reports whether a pose was stored since the last load, without locking.
func (s *OrientationSlot) IsNew() bool {
	return s.isNew.Load()
}

// Reset puts the zero pose back and clears the flag.
func (s *OrientationSlot) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pose = spatialmath.NewZeroPose()
	s.isNew.Store(false)
}

// Stores is the number of poses stored since the slot was created.
func (s *OrientationSlot) Stores() uint64 {
	return s.stores.Load()
}
