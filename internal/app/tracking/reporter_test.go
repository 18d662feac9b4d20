package tracking

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/bounce/internal/domain"
)

type textSink struct {
	sent []string
	err  error
}

func (s *textSink) SendText(v string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, v)
	return nil
}

func TestReporterSuppressesUntilFirstCycle(t *testing.T) {
	state := NewSharedPositionState(domain.TrackedPosition{})
	sink := &textSink{}
	r := NewReporter(state, sink)

	_, ok, err := r.Report()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, sink.sent)
}

func TestReporterOncePerTimestamp(t *testing.T) {
	state := NewSharedPositionState(domain.TrackedPosition{})
	sink := &textSink{}
	r := NewReporter(state, sink)

	state.Apply(3000, domain.Position{X: 120, Y: 80}, true)
	rep, ok, err := r.Report()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.PositionReport{PTS: 3000, X: 120, Y: 80}, rep)

	_, ok, err = r.Report()
	require.NoError(t, err)
	assert.False(t, ok)

	state.Apply(6000, domain.Position{}, false)
	_, ok, err = r.Report()
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{
		`{"pts":3000,"x":120,"y":80}`,
		`{"pts":6000,"x":120,"y":80}`,
	}, sink.sent)
}

func TestReporterRetriesAfterSendError(t *testing.T) {
	state := NewSharedPositionState(domain.TrackedPosition{})
	sink := &textSink{err: errors.New("closed")}
	r := NewReporter(state, sink)
	state.Apply(3000, domain.Position{X: 1, Y: 2}, true)

	_, ok, err := r.Report()
	assert.Error(t, err)
	assert.False(t, ok)

	sink.err = nil
	_, ok, err = r.Report()
	require.NoError(t, err)
	assert.True(t, ok)
}
