// Package tracking runs ball detection on a worker decoupled from the frame
// receive loop and reports the tracked position back to the sender.
package tracking

import (
	"sync"

	"github.com/dkeye/bounce/internal/domain"
)

// SharedPositionState is the tracked (x, y, timestamp) triple. Every read
// and write covers all three fields under one lock, so a reader never pairs
// a timestamp with a position from another cycle.
type SharedPositionState struct {
	mu     sync.Mutex
	pos    domain.TrackedPosition
	cycles int64
}

func NewSharedPositionState(initial domain.TrackedPosition) *SharedPositionState {
	return &SharedPositionState{pos: initial}
}

// Snapshot returns the current triple and whether at least one detection
// cycle has completed.
func (s *SharedPositionState) Snapshot() (domain.TrackedPosition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos, s.cycles > 0
}

// Apply records one detection cycle for the frame at ts. A detection moves
// the estimate by its delta against the previous estimate; a miss leaves it
// in place. The timestamp advances either way.
func (s *SharedPositionState) Apply(ts int64, detected domain.Position, ok bool) domain.TrackedPosition {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dx, dy int
	if ok {
		dx = detected.X - s.pos.X
		dy = detected.Y - s.pos.Y
	}
	s.pos.Timestamp = ts
	s.pos.X += dx
	s.pos.Y += dy
	s.cycles++
	return s.pos
}
