package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/bounce/internal/core"
)

var (
	ErrNoAnswer      = errors.New("no answer could be synthesized")
	ErrSessionFailed = errors.New("transport failed")
)

// EventHandler receives the media events the negotiator does not handle
// itself. Calls happen on the session loop; long work must be moved off it.
type EventHandler interface {
	OnConnected(ctx context.Context, s *Session)
	OnTrack(ctx context.Context, s *Session, track *webrtc.TrackRemote)
	OnDataChannel(ctx context.Context, s *Session, dc core.DataChannel)
}

// Negotiator drives the signaling state machine of one session at a time.
type Negotiator struct {
	Registry *Registry
}

func NewNegotiator(reg *Registry) *Negotiator {
	return &Negotiator{Registry: reg}
}

// Consume applies one signaling message and reports whether the consume
// loop should continue.
func (n *Negotiator) Consume(ctx context.Context, s *Session, msg core.Message) bool {
	l := log.With().Str("module", "app.negotiator").Str("sid", string(s.ID)).Logger()

	switch m := msg.(type) {
	case core.Bye:
		l.Info().Msg("bye received")
		if err := s.CloseSignal(); err != nil {
			l.Warn().Err(err).Msg("close signaling")
		}
		return false

	case core.Description:
		if err := validateSDP(m.SDP); err != nil {
			l.Warn().Err(err).Str("type", m.Type.String()).Msg("malformed session description")
			return false
		}
		if err := s.Media.SetRemoteDescription(m.SessionDescription); err != nil {
			l.Warn().Err(err).Str("type", m.Type.String()).Msg("apply remote description")
			return false
		}
		l.Debug().Str("type", m.Type.String()).Msg("remote description applied")

		if m.Type != webrtc.SDPTypeOffer {
			s.setState(StateDescriptionExchanged)
			return true
		}

		if err := n.answer(ctx, s); err != nil {
			l.Warn().Err(err).Msg("negotiation stopped")
			return false
		}
		s.setState(StateDescriptionExchanged)
		return true

	case core.Candidate:
		if err := s.Media.AddICECandidate(m.ICECandidateInit); err != nil {
			l.Warn().Err(err).Msg("add ice candidate")
		}
		return true

	default:
		return true
	}
}

func (n *Negotiator) answer(ctx context.Context, s *Session) error {
	answer, err := s.Media.CreateAnswer()
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if answer == nil {
		return ErrNoAnswer
	}
	local, err := s.Media.SetLocalDescription(*answer)
	if err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}
	if err := s.Signal.Send(ctx, core.Description{SessionDescription: *local}); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}
	log.Info().Str("module", "app.negotiator").Str("sid", string(s.ID)).Msg("answer sent")
	return nil
}

// Offer creates the local offer, waits for candidate gathering and sends it.
func (n *Negotiator) Offer(ctx context.Context, s *Session) error {
	offer, err := s.Media.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	local, err := s.Media.SetLocalDescription(*offer)
	if err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	if err := s.Signal.Send(ctx, core.Description{SessionDescription: *local}); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}
	log.Info().Str("module", "app.negotiator").Str("sid", string(s.ID)).Msg("offer sent")
	return nil
}

// Run consumes signaling messages and media events until Bye, a negotiation
// dead-end, transport failure, end of signaling or ctx cancellation. A nil
// return is a clean stop. The caller owns closing the session afterwards,
// except on transport failure where Run has already closed and unregistered
// it.
func (n *Negotiator) Run(ctx context.Context, s *Session, h EventHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l := log.With().Str("module", "app.negotiator").Str("sid", string(s.ID)).Logger()

	msgs := make(chan core.Message)
	recvErr := make(chan error, 1)
	go func() {
		for {
			m, err := s.Signal.Receive(ctx)
			if err != nil {
				recvErr <- err
				return
			}
			select {
			case msgs <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	events := s.Media.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-recvErr:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.Info().Err(err).Msg("signaling ended")
			return nil

		case m := <-msgs:
			if !n.Consume(ctx, s, m) {
				return nil
			}

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := n.handleEvent(ctx, s, ev, h); err != nil {
				return err
			}
		}
	}
}

func (n *Negotiator) handleEvent(ctx context.Context, s *Session, ev core.MediaEvent, h EventHandler) error {
	l := log.With().Str("module", "app.negotiator").Str("sid", string(s.ID)).Logger()

	switch ev.Kind {
	case core.EventConnectionState:
		l.Info().Str("peer_connection_state", ev.State.String()).Msg("connection state")
		switch ev.State {
		case webrtc.PeerConnectionStateConnected:
			if s.setState(StateConnected) && h != nil {
				h.OnConnected(ctx, s)
			}
		case webrtc.PeerConnectionStateFailed:
			if err := s.fail(); err != nil {
				l.Warn().Err(err).Msg("close failed session")
			}
			if n.Registry != nil {
				n.Registry.Remove(s.ID)
			}
			return ErrSessionFailed
		}

	case core.EventTrack:
		if h != nil && ev.Track != nil {
			h.OnTrack(ctx, s, ev.Track)
		}

	case core.EventDataChannel:
		if h != nil && ev.Data != nil {
			h.OnDataChannel(ctx, s, ev.Data)
		}
	}
	return nil
}

func validateSDP(text string) error {
	var sd sdp.SessionDescription
	if err := sd.UnmarshalString(text); err != nil {
		return fmt.Errorf("parse sdp: %w", err)
	}
	return nil
}
