package sim

import (
	"image"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/bounce/internal/domain"
	"github.com/dkeye/bounce/internal/vision"
)

type mapRecorder map[int64]domain.Position

func (m mapRecorder) Put(pts int64, p domain.Position) { m[pts] = p }

func TestAdvanceReflectsBelowLowerBound(t *testing.T) {
	const r = 20
	s := New(960, 480, r, nil, WithState(r, 240, -1, 0))

	s.Advance()
	vx, _ := s.Velocity()
	assert.Equal(t, -1, vx, "p == r is inside the band")
	assert.Equal(t, r-1, s.Position().X)

	s.Advance()
	vx, _ = s.Velocity()
	assert.Equal(t, 1, vx, "p < r flips before the move")
	assert.Equal(t, r, s.Position().X)
}

func TestAdvanceOvershootsUpperBound(t *testing.T) {
	const w, h, r = 960, 480, 20
	s := New(w, h, r, nil, WithState(w-r-1, h-r+2, 3, 4))

	s.Advance()
	assert.Equal(t, domain.Position{X: w - r + 2, Y: h - r - 2}, s.Position())
	vx, vy := s.Velocity()
	assert.Equal(t, 3, vx)
	assert.Equal(t, -4, vy)

	s.Advance()
	assert.Equal(t, domain.Position{X: w - r - 1, Y: h - r - 6}, s.Position())
	vx, _ = s.Velocity()
	assert.Equal(t, -3, vx)
}

func TestRandomInitWithinRanges(t *testing.T) {
	const w, h, r = 960, 480, 20
	for seed := uint64(0); seed < 200; seed++ {
		s := New(w, h, r, nil, WithRand(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))))
		p := s.Position()
		vx, vy := s.Velocity()
		require.GreaterOrEqual(t, p.X, r)
		require.LessOrEqual(t, p.X, w-r)
		require.GreaterOrEqual(t, p.Y, r)
		require.LessOrEqual(t, p.Y, h-r)
		require.GreaterOrEqual(t, vx, 1)
		require.LessOrEqual(t, vx, w/100)
		require.GreaterOrEqual(t, vy, 1)
		require.LessOrEqual(t, vy, h/100)
	}
}

func TestSeededSimulatorsAgree(t *testing.T) {
	a := New(960, 480, 20, nil, WithRand(rand.New(rand.NewPCG(7, 11))))
	b := New(960, 480, 20, nil, WithRand(rand.New(rand.NewPCG(7, 11))))
	for range 50 {
		a.Advance()
		b.Advance()
	}
	assert.Equal(t, a.Position(), b.Position())
}

func TestRenderFrameRecordsGroundTruth(t *testing.T) {
	rec := mapRecorder{}
	s := New(960, 480, 20, rec, WithState(100, 100, 5, -3), WithClock(NewMediaClock(90000, 30)))

	var last image.Image
	for i := range 3 {
		img, pts := s.NextFrame()
		assert.Equal(t, int64(i)*3000, pts)
		last = img
	}

	assert.Equal(t, mapRecorder{
		0:    {X: 105, Y: 97},
		3000: {X: 110, Y: 94},
		6000: {X: 115, Y: 91},
	}, rec)
	assert.Equal(t, int64(3), s.Frames())

	g := vision.ToGray(last)
	assert.Equal(t, uint8(0xff), g.GrayAt(115, 91).Y)
	assert.Equal(t, uint8(0), g.GrayAt(115+21, 91).Y)
}

func TestMediaClock(t *testing.T) {
	c := NewMediaClock(90000, 30)
	assert.Equal(t, int64(0), c.Next())
	assert.Equal(t, int64(3000), c.Next())
	assert.Equal(t, int64(3000), c.Step())
	assert.Equal(t, "33.333333ms", c.FrameInterval().String())
}
