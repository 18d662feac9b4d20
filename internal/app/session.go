package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/bounce/internal/core"
)

type SessionState int

const (
	StateNew SessionState = iota
	StateDescriptionExchanged
	StateConnected
	StateClosed
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateDescriptionExchanged:
		return "description-exchanged"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

func (s SessionState) Terminal() bool { return s == StateClosed || s == StateFailed }

type Role string

const (
	RoleOffer  Role = "offer"
	RoleAnswer Role = "answer"
)

// Session owns one MediaSession and one SignalingChannel. Messages for a
// session are consumed by a single loop, so at most one negotiation step is
// in flight at a time.
type Session struct {
	ID        core.SessionID
	Role      Role
	Media     core.MediaSession
	Signal    core.SignalingChannel
	CreatedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   SessionState
	onClose []func()

	signalOnce sync.Once
	signalErr  error
	closeOnce  sync.Once
	closeErr   error
}

func NewSessionID() core.SessionID { return core.SessionID(uuid.NewString()) }

// NewSession wraps the session handles. An empty sid gets a fresh one.
func NewSession(ctx context.Context, sid core.SessionID, role Role, media core.MediaSession, signal core.SignalingChannel) *Session {
	if sid == "" {
		sid = NewSessionID()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		ID:        sid,
		Role:      role,
		Media:     media,
		Signal:    signal,
		CreatedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Context is canceled when the session closes.
func (s *Session) Context() context.Context { return s.ctx }

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState moves the session forward. Terminal states are sticky.
func (s *Session) setState(next SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() || s.state == next {
		return false
	}
	prev := s.state
	s.state = next
	log.Debug().
		Str("module", "app.session").
		Str("sid", string(s.ID)).
		Stringer("from", prev).
		Stringer("to", next).
		Msg("state change")
	return true
}

// OnClose registers fn to run once when the session closes. Hooks run in
// reverse registration order. Registering on a closed session runs fn
// immediately.
func (s *Session) OnClose(fn func()) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		fn()
		return
	}
	s.onClose = append(s.onClose, fn)
	s.mu.Unlock()
}

// CloseSignal releases the signaling channel. Only the first call reaches
// the channel.
func (s *Session) CloseSignal() error {
	s.signalOnce.Do(func() {
		if s.Signal != nil {
			s.signalErr = s.Signal.Close()
		}
	})
	return s.signalErr
}

// Close tears the session down: signaling, media, then close hooks.
// Idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		s.cancel()

		var errs []error
		if err := s.CloseSignal(); err != nil {
			errs = append(errs, err)
		}
		if s.Media != nil {
			if err := s.Media.Close(); err != nil {
				errs = append(errs, err)
			}
		}

		s.mu.Lock()
		hooks := s.onClose
		s.onClose = nil
		s.mu.Unlock()
		for i := len(hooks) - 1; i >= 0; i-- {
			hooks[i]()
		}

		s.closeErr = errors.Join(errs...)
		log.Info().Str("module", "app.session").Str("sid", string(s.ID)).Msg("session closed")
	})
	return s.closeErr
}

// fail marks the session Failed and closes it.
func (s *Session) fail() error {
	s.setState(StateFailed)
	return s.Close()
}
