package accuracy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dkeye/bounce/internal/domain"
)

func TestStorePutOncePopOnce(t *testing.T) {
	s := NewGroundTruthStore()
	s.Put(3000, domain.Position{X: 1, Y: 2})
	s.Put(3000, domain.Position{X: 9, Y: 9})
	assert.Equal(t, 1, s.Len())

	p, ok := s.Pop(3000)
	assert.True(t, ok)
	assert.Equal(t, domain.Position{X: 1, Y: 2}, p)

	_, ok = s.Pop(3000)
	assert.False(t, ok)
	assert.Zero(t, s.Len())
}

func TestStoreEvictOlderThan(t *testing.T) {
	now := time.Unix(1000, 0)
	s := NewGroundTruthStore()
	s.now = func() time.Time { return now }

	s.Put(0, domain.Position{})
	now = now.Add(5 * time.Second)
	s.Put(3000, domain.Position{})
	now = now.Add(5 * time.Second)
	s.Put(6000, domain.Position{})

	assert.Equal(t, 1, s.EvictOlderThan(7*time.Second))
	assert.Equal(t, []int64{3000, 6000}, s.Orphans())
	assert.Equal(t, 2, s.Clear())
	assert.Empty(t, s.Orphans())
}
