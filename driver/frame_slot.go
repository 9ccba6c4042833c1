package driver

import (
	"sync"

	"go.uber.org/atomic"

	"go.viam.com/markercam/rimage"
)

// buffer roles
const (
	roleWorker = iota
	roleAvailable
	rolePublished
	numRoles
)

// TripleFrameSlot hands frames from one producer to one consumer through three buffers. The
// producer fills the worker buffer, publishing swaps it with the available one, and claiming
// swaps the available buffer with the published one. Roles change by index only, so pixels are
// never copied under the lock and neither side waits on the other.
type TripleFrameSlot struct {
	mu      sync.Mutex
	buffers [numRoles]*rimage.FrameBuffer
	// roles maps a role to the index of the buffer serving it.
	roles [numRoles]int
	res   rimage.Resolution

	newFrame atomic.Bool

	published   atomic.Uint64
	claimed     atomic.Uint64
	overwritten atomic.Uint64
}

// FrameSlotStats counts the traffic through a TripleFrameSlot.
type FrameSlotStats struct {
	Published uint64 `json:"published"`
	Claimed   uint64 `json:"claimed"`
	// Overwritten frames were replaced by a newer one before the consumer claimed them.
	Overwritten uint64 `json:"overwritten"`
}

// NewTripleFrameSlot returns a slot of placeholder frames of the given resolution.
func NewTripleFrameSlot(res rimage.Resolution) *TripleFrameSlot {
	s := &TripleFrameSlot{}
	s.allocate(res)
	return s
}

func (s *TripleFrameSlot) allocate(res rimage.Resolution) {
	for i := range s.buffers {
		s.buffers[i] = rimage.NewFrameBuffer(res)
		s.roles[i] = i
	}
	s.res = res
	s.newFrame.Store(false)
}

// WorkerBuffer returns the buffer the producer may fill. Only the producer calls it, and only
// the producer changes which buffer serves the worker role.
func (s *TripleFrameSlot) WorkerBuffer() *rimage.FrameBuffer {
	return s.buffers[s.roles[roleWorker]]
}

// Publish makes the worker buffer the latest available frame. An available frame nobody claimed
// is recycled as the next worker buffer.
func (s *TripleFrameSlot) Publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[roleWorker], s.roles[roleAvailable] = s.roles[roleAvailable], s.roles[roleWorker]
	if s.newFrame.Load() {
		s.overwritten.Inc()
	}
	s.newFrame.Store(true)
	s.published.Inc()
}

// ClaimLatest returns the newest published frame. Without a new frame it returns the same
// buffer as the previous claim.
func (s *TripleFrameSlot) ClaimLatest() *rimage.FrameBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.newFrame.Load() {
		s.roles[roleAvailable], s.roles[rolePublished] = s.roles[rolePublished], s.roles[roleAvailable]
		s.newFrame.Store(false)
		s.claimed.Inc()
	}
	return s.buffers[s.roles[rolePublished]]
}

// HasNewFrame reports whether a frame was published since the last claim. It does not lock;
// ClaimLatest is safe to call regardless of the answer.
func (s *TripleFrameSlot) HasNewFrame() bool {
	return s.newFrame.Load()
}

// Resize replaces all three buffers with fresh placeholders of res. A buffer the consumer still
// holds from before is left untouched.
func (s *TripleFrameSlot) Resize(res rimage.Resolution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocate(res)
}

// Resolution is the size of every buffer in the slot.
func (s *TripleFrameSlot) Resolution() rimage.Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.res
}

// Stats returns the slot's counters.
func (s *TripleFrameSlot) Stats() FrameSlotStats {
	return FrameSlotStats{
		Published:   s.published.Load(),
		Claimed:     s.claimed.Load(),
		Overwritten: s.overwritten.Load(),
	}
}
