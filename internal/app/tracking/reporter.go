package tracking

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/bounce/internal/domain"
)

// TextSender is the side-channel the reporter writes to.
type TextSender interface {
	SendText(s string) error
}

// Reporter turns the shared state into PositionReport messages. A report is
// sent at most once per processed frame and never before the first cycle.
type Reporter struct {
	state *SharedPositionState
	out   TextSender

	mu   sync.Mutex
	last int64
	sent bool
}

func NewReporter(state *SharedPositionState, out TextSender) *Reporter {
	return &Reporter{state: state, out: out}
}

// Report sends the current estimate. It returns false when nothing new was
// sent.
func (r *Reporter) Report() (domain.PositionReport, bool, error) {
	cur, ready := r.state.Snapshot()
	if !ready {
		return domain.PositionReport{}, false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent && cur.Timestamp == r.last {
		return domain.PositionReport{}, false, nil
	}

	rep := domain.PositionReport{PTS: cur.Timestamp, X: cur.X, Y: cur.Y}
	data, err := json.Marshal(rep)
	if err != nil {
		return rep, false, fmt.Errorf("encode report: %w", err)
	}
	if err := r.out.SendText(string(data)); err != nil {
		return rep, false, fmt.Errorf("send report: %w", err)
	}
	r.last = cur.Timestamp
	r.sent = true
	return rep, true, nil
}
