package tracking

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/bounce/internal/core"
	"github.com/dkeye/bounce/internal/domain"
)

type scriptedDetector struct {
	mu    sync.Mutex
	steps []*domain.Position
}

func (d *scriptedDetector) Detect(*image.Gray, core.DetectorConfig) (domain.Position, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.steps) == 0 {
		return domain.Position{}, false
	}
	next := d.steps[0]
	d.steps = d.steps[1:]
	if next == nil {
		return domain.Position{}, false
	}
	return *next, true
}

type capturePublisher struct {
	mu  sync.Mutex
	got []domain.TrackedPosition
	err error
}

func (c *capturePublisher) Publish(p domain.TrackedPosition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, p)
	return c.err
}

func frame(ts int64) domain.FrameRecord {
	return domain.FrameRecord{Timestamp: ts, Pixels: image.NewRGBA(image.Rect(0, 0, 8, 8))}
}

func TestProcessDeltaUpdate(t *testing.T) {
	state := NewSharedPositionState(domain.TrackedPosition{Position: domain.Position{X: 50, Y: 50}})
	det := &scriptedDetector{steps: []*domain.Position{{X: 55, Y: 48}, nil}}
	pub := &capturePublisher{err: errors.New("display gone")}
	p := NewPipeline(NewFrameQueue(1, DropOldest), state, det, core.DetectorConfig{}, pub)

	p.Process(frame(3000))
	p.Process(frame(6000))

	assert.Equal(t, []domain.TrackedPosition{
		{Position: domain.Position{X: 55, Y: 48}, Timestamp: 3000},
		{Position: domain.Position{X: 55, Y: 48}, Timestamp: 6000},
	}, pub.got)
	assert.Equal(t, int64(2), p.Processed())
	assert.Equal(t, int64(1), p.Misses())
}

func TestRunStopsAndDiscards(t *testing.T) {
	q := NewFrameQueue(4, Block)
	state := NewSharedPositionState(domain.TrackedPosition{})
	p := NewPipeline(q, state, &scriptedDetector{}, core.DetectorConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.NoError(t, q.Offer(ctx, frame(3000)))
	require.Eventually(t, func() bool { return p.Processed() == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	for ts := int64(1); ts <= 3; ts++ {
		require.NoError(t, q.Offer(context.Background(), frame(ts)))
	}
	assert.Equal(t, int64(1), p.Processed())
}
