package fiducial

import (
	"sync"

	"go.viam.com/markercam/spatialmath"
)

// SmoothingFilter blends successive pose measurements to suppress jitter. Position is blended
// linearly and orientation by slerp.
type SmoothingFilter struct {
	mu      sync.Mutex
	keep    float64
	maxJump float64
	last    spatialmath.Pose
}

// NewSmoothingFilter returns a filter keeping the given weight of the previous estimate. A
// measurement further than maxJump from the estimate replaces it outright; zero disables that check.
func NewSmoothingFilter(keep, maxJump float64) *SmoothingFilter {
	return &SmoothingFilter{keep: keep, maxJump: maxJump}
}

// Apply folds measurement into the estimate and returns the new estimate.
func (f *SmoothingFilter) Apply(measurement spatialmath.Pose) spatialmath.Pose {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil || f.keep == 0 {
		f.last = measurement
		return measurement
	}
	if f.maxJump > 0 && measurement.Point().Sub(f.last.Point()).Norm() > f.maxJump {
		f.last = measurement
		return measurement
	}
	f.last = spatialmath.Interpolate(f.last, measurement, 1-f.keep)
	return f.last
}

// Reset forgets the estimate.
func (f *SmoothingFilter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = nil
}
