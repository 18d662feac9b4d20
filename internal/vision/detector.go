package vision

import (
	"fmt"

	"github.com/dkeye/bounce/internal/core"
)

// NewDetector returns the detector registered under name.
func NewDetector(name string) (core.ObjectDetector, error) {
	switch name {
	case "", "hough":
		return HoughDetector{}, nil
	case "centroid":
		return CentroidDetector{}, nil
	}
	return nil, fmt.Errorf("unknown detector %q", name)
}

// ConfigFor builds a detector configuration for a ball of the given radius.
func ConfigFor(radius, ratio, minCenterDistance int) core.DetectorConfig {
	return core.DetectorConfig{
		AccumulatorResolutionRatio: ratio,
		MinCenterDistance:          minCenterDistance,
		MinRadius:                  max(radius/2, 1),
		MaxRadius:                  radius * 2,
	}
}
