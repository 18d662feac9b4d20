// Package accuracy scores position reports against the recorded ground
// truth of the frames they refer to.
package accuracy

import (
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/bounce/internal/domain"
)

type record struct {
	pos domain.Position
	at  time.Time
}

// GroundTruthStore maps frame timestamps to true ball positions. One store
// belongs to one session and is dropped with it.
type GroundTruthStore struct {
	mu      sync.Mutex
	records map[int64]record
	now     func() time.Time
}

func NewGroundTruthStore() *GroundTruthStore {
	return &GroundTruthStore{records: make(map[int64]record), now: time.Now}
}

// Put records p for pts. A timestamp is recorded at most once; later puts
// for the same pts are ignored.
func (s *GroundTruthStore) Put(pts int64, p domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[pts]; ok {
		log.Warn().Str("module", "accuracy").Int64("pts", pts).Msg("duplicate ground truth ignored")
		return
	}
	s.records[pts] = record{pos: p, at: s.now()}
}

// Pop removes and returns the record for pts.
func (s *GroundTruthStore) Pop(pts int64) (domain.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[pts]
	if !ok {
		return domain.Position{}, false
	}
	delete(s.records, pts)
	return r.pos, true
}

func (s *GroundTruthStore) Contains(pts int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[pts]
	return ok
}

func (s *GroundTruthStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Orphans lists the timestamps still waiting for a report, ascending.
func (s *GroundTruthStore) Orphans() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.records))
	for pts := range s.records {
		out = append(out, pts)
	}
	slices.Sort(out)
	return out
}

// EvictOlderThan drops records stored more than age ago and returns how
// many were removed.
func (s *GroundTruthStore) EvictOlderThan(age time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-age)
	n := 0
	for pts, r := range s.records {
		if r.at.Before(cutoff) {
			delete(s.records, pts)
			n++
		}
	}
	return n
}

// Clear empties the store and returns how many records were left.
func (s *GroundTruthStore) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.records)
	s.records = make(map[int64]record)
	return n
}
