package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dkeye/bounce/internal/domain"
)

var ErrQueueFull = errors.New("frame queue full")

type DropPolicy int

const (
	// DropOldest evicts the oldest queued frame to make room.
	DropOldest DropPolicy = iota
	// DropNewest discards the incoming frame.
	DropNewest
	// Block waits for room until ctx ends.
	Block
)

func ParseDropPolicy(s string) (DropPolicy, error) {
	switch s {
	case "", "drop_oldest":
		return DropOldest, nil
	case "drop_newest":
		return DropNewest, nil
	case "block":
		return Block, nil
	}
	return 0, fmt.Errorf("unknown drop policy %q", s)
}

func (p DropPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	case Block:
		return "block"
	}
	return "unknown"
}

// FrameQueue is the bounded hand-off between the receive loop (the only
// producer) and the tracking worker.
type FrameQueue struct {
	ch      chan domain.FrameRecord
	policy  DropPolicy
	dropped atomic.Int64
}

func NewFrameQueue(size int, policy DropPolicy) *FrameQueue {
	if size < 1 {
		size = 1
	}
	return &FrameQueue{ch: make(chan domain.FrameRecord, size), policy: policy}
}

// Offer hands rec to the worker. Under the drop policies it never blocks;
// DropNewest returns ErrQueueFull for a discarded frame. Under Block it
// returns ctx's error if ctx ends first.
func (q *FrameQueue) Offer(ctx context.Context, rec domain.FrameRecord) error {
	switch q.policy {
	case Block:
		select {
		case q.ch <- rec:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}

	case DropNewest:
		select {
		case q.ch <- rec:
			return nil
		default:
			q.dropped.Add(1)
			return ErrQueueFull
		}

	default:
		for {
			select {
			case q.ch <- rec:
				return nil
			default:
			}
			select {
			case <-q.ch:
				q.dropped.Add(1)
			default:
			}
		}
	}
}

// Next blocks until a frame is available or ctx ends.
func (q *FrameQueue) Next(ctx context.Context) (domain.FrameRecord, error) {
	select {
	case rec := <-q.ch:
		return rec, nil
	case <-ctx.Done():
		return domain.FrameRecord{}, ctx.Err()
	}
}

// Discard empties the queue and returns how many frames were thrown away.
func (q *FrameQueue) Discard() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

func (q *FrameQueue) Len() int       { return len(q.ch) }
func (q *FrameQueue) Cap() int       { return cap(q.ch) }
func (q *FrameQueue) Dropped() int64 { return q.dropped.Load() }
