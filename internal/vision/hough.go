package vision

import (
	"image"
	"math"
	"sort"

	"github.com/dkeye/bounce/internal/core"
	"github.com/dkeye/bounce/internal/domain"
)

const (
	// edgeThreshold is the minimum Sobel magnitude of an edge pixel.
	edgeThreshold = 128
	// defaultVotes applies when DetectorConfig.VoteThreshold is zero.
	defaultVotes = 30
)

// Circle is one candidate center found by the Hough transform.
type Circle struct {
	Center domain.Position
	Votes  int
}

// HoughDetector finds circle centers with the gradient Hough transform: each
// edge pixel votes along its gradient line for every radius in range, into
// an accumulator whose cells are AccumulatorResolutionRatio pixels wide.
type HoughDetector struct{}

var _ core.ObjectDetector = HoughDetector{}

func (d HoughDetector) Detect(img *image.Gray, cfg core.DetectorConfig) (domain.Position, bool) {
	circles := d.Circles(img, cfg)
	if len(circles) == 0 {
		return domain.Position{}, false
	}
	return circles[0].Center, true
}

// Circles returns candidate centers ordered by decreasing votes, with
// centers closer than MinCenterDistance to a stronger one removed.
func (HoughDetector) Circles(img *image.Gray, cfg core.DetectorConfig) []Circle {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return nil
	}

	dp := max(cfg.AccumulatorResolutionRatio, 1)
	minR := max(cfg.MinRadius, 1)
	maxR := cfg.MaxRadius
	if maxR <= 0 {
		maxR = min(w, h) / 2
	}
	if maxR < minR {
		return nil
	}
	threshold := cfg.VoteThreshold
	if threshold <= 0 {
		threshold = defaultVotes
	}

	aw, ah := (w+dp-1)/dp, (h+dp-1)/dp
	acc := make([]int, aw*ah)

	at := func(x, y int) int { return int(img.Pix[(y)*img.Stride+x]) }
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			mag := math.Hypot(float64(gx), float64(gy))
			if mag < edgeThreshold {
				continue
			}
			ux, uy := float64(gx)/mag, float64(gy)/mag
			for r := minR; r <= maxR; r++ {
				for _, sign := range [2]float64{1, -1} {
					cx := int(math.Round(float64(x) + sign*float64(r)*ux))
					cy := int(math.Round(float64(y) + sign*float64(r)*uy))
					if cx < 0 || cy < 0 || cx >= w || cy >= h {
						continue
					}
					acc[(cy/dp)*aw+cx/dp]++
				}
			}
		}
	}

	var peaks []Circle
	for ay := 0; ay < ah; ay++ {
		for ax := 0; ax < aw; ax++ {
			v := acc[ay*aw+ax]
			if v < threshold || !isLocalMax(acc, aw, ah, ax, ay) {
				continue
			}
			peaks = append(peaks, Circle{Center: refine(acc, aw, ah, ax, ay, dp, b.Min), Votes: v})
		}
	}
	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].Votes > peaks[j].Votes })

	minDist2 := cfg.MinCenterDistance * cfg.MinCenterDistance
	out := peaks[:0]
	for _, p := range peaks {
		keep := true
		for _, q := range out {
			dx, dy := p.Center.X-q.Center.X, p.Center.Y-q.Center.Y
			if dx*dx+dy*dy < minDist2 {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, p)
		}
	}
	return out
}

// isLocalMax reports whether cell (ax, ay) is a 3x3 maximum. Ties go to the
// cell that comes first in scan order.
func isLocalMax(acc []int, aw, ah, ax, ay int) bool {
	v := acc[ay*aw+ax]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := ax+dx, ay+dy
			if nx < 0 || ny < 0 || nx >= aw || ny >= ah {
				continue
			}
			n := acc[ny*aw+nx]
			if n > v || (n == v && (dy < 0 || (dy == 0 && dx < 0))) {
				return false
			}
		}
	}
	return true
}

// refine places the center at the vote-weighted mean of the 3x3 cell
// neighbourhood, in image coordinates.
func refine(acc []int, aw, ah, ax, ay, dp int, origin image.Point) domain.Position {
	var sx, sy, sw float64
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := ax+dx, ay+dy
			if nx < 0 || ny < 0 || nx >= aw || ny >= ah {
				continue
			}
			v := float64(acc[ny*aw+nx])
			sx += v * (float64(nx*dp) + float64(dp-1)/2)
			sy += v * (float64(ny*dp) + float64(dp-1)/2)
			sw += v
		}
	}
	return domain.Position{
		X: origin.X + int(math.Round(sx/sw)),
		Y: origin.Y + int(math.Round(sy/sw)),
	}
}
