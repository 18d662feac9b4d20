package orch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/bounce/internal/adapters/rtc"
	"github.com/dkeye/bounce/internal/app"
	"github.com/dkeye/bounce/internal/app/accuracy"
	"github.com/dkeye/bounce/internal/app/sim"
	"github.com/dkeye/bounce/internal/config"
	"github.com/dkeye/bounce/internal/core"
	"github.com/dkeye/bounce/internal/report"
)

// Offerer runs the offering role.
type Offerer struct {
	Negotiator *app.Negotiator
	Registry   *app.Registry
	Media      MediaFactory
	Video      config.VideoConfig
	Scoring    config.AccuracyConfig

	mu       sync.Mutex
	sessions map[core.SessionID]*offerSession
}

type offerSession struct {
	sim    *sim.Simulator
	sender *rtc.VideoSender
	eval   *accuracy.Evaluator
	group  *errgroup.Group
	ctx    context.Context
}

var _ app.EventHandler = (*Offerer)(nil)

// Run drives one session over sig until it ends. Session-level failures are
// logged, not returned; an error means the session could not be set up.
func (o *Offerer) Run(ctx context.Context, sig core.SignalingChannel) error {
	sid := app.NewSessionID()
	l := log.With().Str("module", "orch.offer").Str("sid", string(sid)).Logger()

	conn, err := o.Media(sid)
	if err != nil {
		_ = sig.Close()
		return fmt.Errorf("peer connection: %w", err)
	}
	sess := app.NewSession(ctx, sid, app.RoleOffer, conn, sig)

	dc, err := conn.CreateDataChannel(DataChannelLabel)
	if err != nil {
		_ = sess.Close()
		return fmt.Errorf("data channel: %w", err)
	}
	track, err := rtc.NewVideoTrack()
	if err != nil {
		_ = sess.Close()
		return fmt.Errorf("video track: %w", err)
	}
	if _, err := conn.AddVideoTrack(track); err != nil {
		_ = sess.Close()
		return fmt.Errorf("add video track: %w", err)
	}

	store := accuracy.NewGroundTruthStore()
	sinks := []accuracy.Sink{accuracy.LogSink}
	var plot *report.Plotter
	if o.Scoring.PlotPath != "" {
		plot = report.NewPlotter("MSE "+string(sid), o.Video.ClockRate)
		sinks = append(sinks, plot)
	}
	eval := accuracy.NewEvaluator(store, sinks...)
	dc.OnMessage(func(data []byte) {
		if _, _, err := eval.HandleMessage(data); err != nil {
			l.Warn().Err(err).Msg("bad report")
		}
	})

	g, gctx := errgroup.WithContext(sess.Context())
	st := &offerSession{
		sim:    sim.New(o.Video.Width, o.Video.Height, o.Video.Radius, store, sim.WithClock(sim.NewMediaClock(o.Video.ClockRate, o.Video.FPS))),
		sender: rtc.NewVideoSender(track),
		eval:   eval,
		group:  g,
		ctx:    gctx,
	}
	if age := o.Scoring.MaxRecordAge; age > 0 {
		g.Go(func() error {
			eval.Evict(gctx, age, age/2)
			return nil
		})
	}

	o.track(sid, st)
	o.Registry.Add(sess)
	sess.OnClose(func() {
		o.untrack(sid)
		eval.Close()
		if plot != nil {
			if err := plot.Save(o.Scoring.PlotPath); err != nil {
				l.Warn().Err(err).Msg("save mse plot")
			} else {
				l.Info().Str("path", o.Scoring.PlotPath).Msg("mse plot saved")
			}
		}
	})

	if err := o.Negotiator.Offer(sess.Context(), sess); err != nil {
		l.Warn().Err(err).Msg("offer failed")
	} else if err := o.Negotiator.Run(sess.Context(), sess, o); err != nil && !errors.Is(err, context.Canceled) {
		l.Warn().Err(err).Msg("session ended")
	}

	if err := sess.Close(); err != nil {
		l.Debug().Err(err).Msg("close session")
	}
	o.Registry.Remove(sid)
	return g.Wait()
}

// OnConnected starts streaming frames at the configured rate.
func (o *Offerer) OnConnected(_ context.Context, s *app.Session) {
	st, ok := o.lookup(s.ID)
	if !ok {
		return
	}
	st.group.Go(func() error { return o.stream(st) })
}

func (o *Offerer) stream(st *offerSession) error {
	interval := st.sim.Clock().FrameInterval()
	t := time.NewTicker(interval)
	defer t.Stop()
	log.Info().Str("module", "orch.offer").Dur("interval", interval).Msg("streaming started")
	for {
		select {
		case <-st.ctx.Done():
			log.Info().Str("module", "orch.offer").Int64("frames", st.sim.Frames()).Msg("streaming stopped")
			return nil
		case <-t.C:
			img, pts := st.sim.NextFrame()
			if err := st.sender.WriteFrame(img, pts); err != nil {
				if errors.Is(err, io.ErrClosedPipe) {
					return nil
				}
				log.Warn().Err(err).Str("module", "orch.offer").Int64("pts", pts).Msg("write frame")
			}
		}
	}
}

func (o *Offerer) OnTrack(_ context.Context, s *app.Session, track *webrtc.TrackRemote) {
	log.Warn().Str("module", "orch.offer").Str("sid", string(s.ID)).Str("track_id", track.ID()).Msg("unexpected remote track")
}

func (o *Offerer) OnDataChannel(_ context.Context, s *app.Session, dc core.DataChannel) {
	log.Debug().Str("module", "orch.offer").Str("sid", string(s.ID)).Str("label", dc.Label()).Msg("ignoring remote data channel")
}

// Accuracy summarizes every live session.
func (o *Offerer) Accuracy() map[core.SessionID]accuracy.Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[core.SessionID]accuracy.Summary, len(o.sessions))
	for sid, st := range o.sessions {
		out[sid] = st.eval.Summary()
	}
	return out
}

func (o *Offerer) track(sid core.SessionID, st *offerSession) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sessions == nil {
		o.sessions = make(map[core.SessionID]*offerSession)
	}
	o.sessions[sid] = st
}

func (o *Offerer) untrack(sid core.SessionID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.sessions, sid)
}

func (o *Offerer) lookup(sid core.SessionID) (*offerSession, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.sessions[sid]
	return st, ok
}
