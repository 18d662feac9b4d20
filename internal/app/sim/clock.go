package sim

import "time"

// MediaClock hands out frame timestamps in clock-rate units, starting at 0
// and advancing by clockRate/fps per frame.
type MediaClock struct {
	step int64
	fps  int
	next int64
}

func NewMediaClock(clockRate uint32, fps int) *MediaClock {
	if fps <= 0 {
		fps = 1
	}
	return &MediaClock{step: int64(clockRate) / int64(fps), fps: fps}
}

// Next returns the timestamp for the next frame.
func (c *MediaClock) Next() int64 {
	pts := c.next
	c.next += c.step
	return pts
}

// Step is the timestamp increment between frames.
func (c *MediaClock) Step() int64 { return c.step }

// FrameInterval is the wall-clock spacing between frames.
func (c *MediaClock) FrameInterval() time.Duration { return time.Second / time.Duration(c.fps) }
