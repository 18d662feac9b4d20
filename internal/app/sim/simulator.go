// Package sim generates the synthetic bouncing-ball stream and records the
// true ball position for every frame it produces.
package sim

import (
	"image"
	"math/rand/v2"
	"sync"

	"github.com/dkeye/bounce/internal/core"
	"github.com/dkeye/bounce/internal/domain"
	"github.com/dkeye/bounce/internal/vision"
)

// Recorder stores the ground truth of each generated frame.
type Recorder interface {
	Put(pts int64, p domain.Position)
}

type Simulator struct {
	mu     sync.Mutex
	w, h   int
	r      int
	x, y   int
	vx, vy int
	clock  *MediaClock
	store  Recorder
	rng    *rand.Rand
	fixed  bool
	frames int64
}

var _ core.FrameSource = (*Simulator)(nil)

type Option func(*Simulator)

// WithRand draws the initial state from rng instead of the global source.
func WithRand(rng *rand.Rand) Option {
	return func(s *Simulator) { s.rng = rng }
}

// WithState overrides the random initial position and velocity.
func WithState(x, y, vx, vy int) Option {
	return func(s *Simulator) {
		s.x, s.y, s.vx, s.vy = x, y, vx, vy
		s.fixed = true
	}
}

func WithClock(c *MediaClock) Option {
	return func(s *Simulator) { s.clock = c }
}

// New builds a simulator for a w x h frame and a ball of radius r. The
// initial position is uniform in [r, dim-r] and the speed uniform in
// [1, dim/100] on each axis.
func New(w, h, r int, store Recorder, opts ...Option) *Simulator {
	s := &Simulator{
		w:     w,
		h:     h,
		r:     r,
		store: store,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		clock: NewMediaClock(90000, 30),
	}
	for _, opt := range opts {
		opt(s)
	}
	if !s.fixed {
		s.x = randInt(s.rng, r, w-r)
		s.vx = randInt(s.rng, 1, max(w/100, 1))
		s.y = randInt(s.rng, r, h-r)
		s.vy = randInt(s.rng, 1, max(h/100, 1))
	}
	return s
}

// randInt is uniform over the closed range [lo, hi].
func randInt(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.IntN(hi-lo+1)
}

// Advance runs one tick. An axis whose coordinate is outside [r, dim-r]
// reverses before the move, so the ball may overshoot by one step before it
// turns around.
func (s *Simulator) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
}

func (s *Simulator) advance() {
	if s.x < s.r || s.x > s.w-s.r {
		s.vx = -s.vx
	}
	s.x += s.vx

	if s.y < s.r || s.y > s.h-s.r {
		s.vy = -s.vy
	}
	s.y += s.vy
}

// RenderFrame advances the ball, draws it, stamps the frame with the next
// media clock timestamp and records the ground truth under that timestamp.
func (s *Simulator) RenderFrame() (image.Image, int64) {
	s.mu.Lock()
	s.advance()
	x, y := s.x, s.y
	pts := s.clock.Next()
	s.frames++
	s.mu.Unlock()

	img := vision.RenderBall(s.w, s.h, x, y, s.r)
	if s.store != nil {
		s.store.Put(pts, domain.Position{X: x, Y: y})
	}
	return img, pts
}

func (s *Simulator) NextFrame() (image.Image, int64) { return s.RenderFrame() }

func (s *Simulator) Position() domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Position{X: s.x, Y: s.y}
}

func (s *Simulator) Velocity() (vx, vy int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vx, s.vy
}

func (s *Simulator) Frames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *Simulator) Clock() *MediaClock { return s.clock }
