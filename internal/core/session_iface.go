package core

import (
	"image"

	"github.com/dkeye/bounce/internal/domain"
)

type SessionID string

// FrameSource produces a lazy, infinite sequence of frames. It restarts only
// by constructing a new source.
type FrameSource interface {
	NextFrame() (frame image.Image, pts int64)
}

// DetectorConfig tunes an ObjectDetector.
type DetectorConfig struct {
	// AccumulatorResolutionRatio is the cell size of the search grid in pixels.
	AccumulatorResolutionRatio int
	// MinCenterDistance suppresses centers closer than this to a stronger one.
	MinCenterDistance int
	MinRadius         int
	MaxRadius         int
	// VoteThreshold is the minimum accumulator score for a candidate; 0 picks
	// a default.
	VoteThreshold int
}

// ObjectDetector proposes the center of the tracked object, if any.
type ObjectDetector interface {
	Detect(frame *image.Gray, cfg DetectorConfig) (domain.Position, bool)
}
