// Package report renders accuracy results to image files.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/dkeye/bounce/internal/app/accuracy"
)

var ErrNoSamples = errors.New("no samples to plot")

// Plotter records the MSE of every scored report and draws it against the
// frame timestamp. It satisfies accuracy.Sink.
type Plotter struct {
	mu        sync.Mutex
	title     string
	clockRate float64
	samples   plotter.XYs
}

var _ accuracy.Sink = (*Plotter)(nil)

// NewPlotter plots timestamps in seconds using clockRate ticks per second.
func NewPlotter(title string, clockRate uint32) *Plotter {
	rate := float64(clockRate)
	if rate <= 0 {
		rate = 1
	}
	return &Plotter{title: title, clockRate: rate}
}

func (p *Plotter) Record(r accuracy.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples = append(p.samples, plotter.XY{X: float64(r.Report.PTS) / p.clockRate, Y: r.Err})
}

func (p *Plotter) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.samples)
}

// Mean is the average MSE over every recorded sample.
func (p *Plotter) Mean() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return meanErr(p.samples)
}

func meanErr(pts plotter.XYs) float64 {
	if len(pts) == 0 {
		return 0
	}
	ys := make([]float64, len(pts))
	for i, pt := range pts {
		ys[i] = pt.Y
	}
	return stat.Mean(ys, nil)
}

// Save writes the chart as an image; the format follows the file extension.
func (p *Plotter) Save(path string) error {
	p.mu.Lock()
	pts := make(plotter.XYs, len(p.samples))
	copy(pts, p.samples)
	p.mu.Unlock()

	if len(pts) == 0 {
		return ErrNoSamples
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}

	pl := plot.New()
	pl.Title.Text = p.title
	pl.X.Label.Text = "pts (s)"
	pl.Y.Label.Text = "MSE (px²)"
	pl.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("mse line: %w", err)
	}
	line.Width = vg.Points(1)
	line.Color = color.RGBA{R: 200, A: 255}
	mean := meanErr(pts)
	avg := plotter.NewFunction(func(float64) float64 { return mean })
	avg.Width = vg.Points(1)
	avg.Color = color.RGBA{B: 200, A: 255}
	avg.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	pl.Add(line, avg)
	pl.Legend.Add("MSE", line)
	pl.Legend.Add(fmt.Sprintf("mean %.2f", mean), avg)
	pl.Legend.Top = true
	pl.Legend.Left = false
	pl.Legend.XOffs = -10
	pl.Legend.YOffs = -10

	if err := pl.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
