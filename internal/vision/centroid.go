package vision

import (
	"image"
	"math"

	"github.com/dkeye/bounce/internal/core"
	"github.com/dkeye/bounce/internal/domain"
)

// brightThreshold separates ball pixels from background.
const brightThreshold = 128

// CentroidDetector returns the mean position of bright pixels. It is exact
// for a single disk that lies fully inside the frame.
type CentroidDetector struct{}

var _ core.ObjectDetector = CentroidDetector{}

func (CentroidDetector) Detect(img *image.Gray, _ core.DetectorConfig) (domain.Position, bool) {
	b := img.Bounds()
	var sx, sy, n int
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()]
		for x, v := range row {
			if v >= brightThreshold {
				sx += x
				sy += y
				n++
			}
		}
	}
	if n == 0 {
		return domain.Position{}, false
	}
	return domain.Position{
		X: b.Min.X + int(math.Round(float64(sx)/float64(n))),
		Y: b.Min.Y + int(math.Round(float64(sy)/float64(n))),
	}, true
}
