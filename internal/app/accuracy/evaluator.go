package accuracy

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"github.com/dkeye/bounce/internal/domain"
)

// window is how many recent errors feed the rolling statistics.
const window = 1024

// Result is one scored report.
type Result struct {
	Report domain.PositionReport `json:"report"`
	Truth  domain.Position       `json:"truth"`
	Err    float64               `json:"mse"`
}

// Sink receives every scored report.
type Sink interface {
	Record(Result)
}

type SinkFunc func(Result)

func (f SinkFunc) Record(r Result) { f(r) }

// LogSink writes each result as a log line.
var LogSink = SinkFunc(func(r Result) {
	log.Info().
		Str("module", "accuracy").
		Int64("pts", r.Report.PTS).
		Int("x", r.Report.X).
		Int("y", r.Report.Y).
		Int("truth_x", r.Truth.X).
		Int("truth_y", r.Truth.Y).
		Float64("mse", r.Err).
		Msg("report scored")
})

// MSE is the mean of the squared per-axis errors.
func MSE(truth, got domain.Position) float64 {
	dx := float64(truth.X - got.X)
	dy := float64(truth.Y - got.Y)
	return stat.Mean([]float64{dx * dx, dy * dy}, nil)
}

type Summary struct {
	Matched   int64   `json:"matched"`
	Unmatched int64   `json:"unmatched"`
	Pending   int     `json:"pending"`
	Last      float64 `json:"last_mse"`
	Mean      float64 `json:"mean_mse"`
	// Rolling figures cover the most recent reports only.
	RollingMean   float64 `json:"rolling_mean_mse"`
	RollingStdDev float64 `json:"rolling_stddev_mse"`
	RollingMedian float64 `json:"rolling_median_mse"`
	Max           float64 `json:"max_mse"`
}

type Evaluator struct {
	store *GroundTruthStore
	sinks []Sink

	mu        sync.Mutex
	matched   int64
	unmatched int64
	sum       float64
	last      float64
	max       float64
	recent    []float64
}

func NewEvaluator(store *GroundTruthStore, sinks ...Sink) *Evaluator {
	return &Evaluator{store: store, sinks: sinks}
}

// OnReport scores rep against the stored ground truth for rep.PTS. A report
// without a record is logged and leaves everything unchanged.
func (e *Evaluator) OnReport(rep domain.PositionReport) (Result, bool) {
	truth, ok := e.store.Pop(rep.PTS)
	if !ok {
		e.mu.Lock()
		e.unmatched++
		e.mu.Unlock()
		log.Warn().Str("module", "accuracy").Int64("pts", rep.PTS).Msg("pts not found")
		return Result{}, false
	}

	res := Result{Report: rep, Truth: truth, Err: MSE(truth, rep.Position())}

	e.mu.Lock()
	e.matched++
	e.sum += res.Err
	e.last = res.Err
	e.max = max(e.max, res.Err)
	e.recent = append(e.recent, res.Err)
	if len(e.recent) > window {
		e.recent = e.recent[len(e.recent)-window:]
	}
	e.mu.Unlock()

	for _, s := range e.sinks {
		s.Record(res)
	}
	return res, true
}

// HandleMessage decodes one side-channel message and scores it.
func (e *Evaluator) HandleMessage(data []byte) (Result, bool, error) {
	var rep domain.PositionReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return Result{}, false, fmt.Errorf("decode report: %w", err)
	}
	res, ok := e.OnReport(rep)
	return res, ok, nil
}

func (e *Evaluator) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Summary{
		Matched:   e.matched,
		Unmatched: e.unmatched,
		Pending:   e.store.Len(),
		Last:      e.last,
		Max:       e.max,
	}
	if e.matched > 0 {
		s.Mean = e.sum / float64(e.matched)
	}
	if len(e.recent) > 0 {
		s.RollingMean, s.RollingStdDev = stat.MeanStdDev(e.recent, nil)
		sorted := append([]float64(nil), e.recent...)
		slices.Sort(sorted)
		s.RollingMedian = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	}
	return s
}

// Evict runs age-based eviction every interval until ctx ends. A zero
// maxAge disables it.
func (e *Evaluator) Evict(ctx context.Context, maxAge, interval time.Duration) {
	if maxAge <= 0 {
		return
	}
	if interval <= 0 {
		interval = maxAge
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := e.store.EvictOlderThan(maxAge); n > 0 {
				log.Debug().Str("module", "accuracy").Int("evicted", n).Msg("evicted stale ground truth")
			}
		}
	}
}

// maxLoggedOrphans caps the pts list in the close log line.
const maxLoggedOrphans = 32

// Close reports records that never got a report and drops them.
func (e *Evaluator) Close() int {
	pending := e.store.Orphans()
	orphans := e.store.Clear()
	sum := e.Summary()
	ev := log.Info().
		Str("module", "accuracy").
		Int("orphans", orphans).
		Int64("matched", sum.Matched).
		Int64("unmatched", sum.Unmatched).
		Float64("mean_mse", sum.Mean)
	if len(pending) > 0 {
		ev = ev.Ints64("orphan_pts", pending[:min(len(pending), maxLoggedOrphans)])
	}
	ev.Msg("accuracy session closed")
	return orphans
}
