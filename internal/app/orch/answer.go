package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/bounce/internal/adapters/rtc"
	"github.com/dkeye/bounce/internal/app"
	"github.com/dkeye/bounce/internal/app/tracking"
	"github.com/dkeye/bounce/internal/config"
	"github.com/dkeye/bounce/internal/core"
	"github.com/dkeye/bounce/internal/domain"
	"github.com/dkeye/bounce/internal/vision"
)

// Answerer runs the answering role: it tracks the ball in the received
// stream and reports positions back over the data channel.
type Answerer struct {
	Negotiator *app.Negotiator
	Registry   *app.Registry
	Media      MediaFactory
	Video      config.VideoConfig
	Tracking   config.TrackingConfig

	mu       sync.Mutex
	sessions map[core.SessionID]*answerSession
}

type answerSession struct {
	tracker *Tracker
	group   *errgroup.Group
	ctx     context.Context
}

var _ app.EventHandler = (*Answerer)(nil)

// Run answers one session over sig until it ends.
func (a *Answerer) Run(ctx context.Context, sig core.SignalingChannel) error {
	sid := app.NewSessionID()
	l := log.With().Str("module", "orch.answer").Str("sid", string(sid)).Logger()

	tracker, err := NewTracker(a.Video, a.Tracking)
	if err != nil {
		_ = sig.Close()
		return err
	}
	conn, err := a.Media(sid)
	if err != nil {
		_ = tracker.Close()
		_ = sig.Close()
		return fmt.Errorf("peer connection: %w", err)
	}
	sess := app.NewSession(ctx, sid, app.RoleAnswer, conn, sig)

	g, gctx := errgroup.WithContext(sess.Context())
	st := &answerSession{tracker: tracker, group: g, ctx: gctx}
	g.Go(func() error { return tracker.Run(gctx) })

	a.track(sid, st)
	a.Registry.Add(sess)
	sess.OnClose(func() {
		a.untrack(sid)
		if err := tracker.Close(); err != nil {
			l.Warn().Err(err).Msg("close tracker")
		}
		l.Info().
			Int64("processed", tracker.Pipeline.Processed()).
			Int64("misses", tracker.Pipeline.Misses()).
			Int64("dropped", tracker.Queue.Dropped()).
			Msg("tracking stopped")
	})

	if err := a.Negotiator.Run(sess.Context(), sess, a); err != nil && !errors.Is(err, context.Canceled) {
		l.Warn().Err(err).Msg("session ended")
	}

	if err := sess.Close(); err != nil {
		l.Debug().Err(err).Msg("close session")
	}
	a.Registry.Remove(sid)
	return g.Wait()
}

func (a *Answerer) OnConnected(_ context.Context, s *app.Session) {
	log.Info().Str("module", "orch.answer").Str("sid", string(s.ID)).Msg("connected")
}

// OnTrack starts reading frames from the remote video track.
func (a *Answerer) OnTrack(_ context.Context, s *app.Session, track *webrtc.TrackRemote) {
	st, ok := a.lookup(s.ID)
	if !ok {
		return
	}
	log.Info().Str("module", "orch.answer").Str("sid", string(s.ID)).
		Str("kind", track.Kind().String()).Str("codec", track.Codec().MimeType).Msg("track received")
	if track.Kind() != webrtc.RTPCodecTypeVideo {
		return
	}
	st.group.Go(func() error {
		err := rtc.ReadFrames(st.ctx, track, func(rec domain.FrameRecord) {
			st.tracker.OnFrame(st.ctx, rec)
		})
		if err != nil && st.ctx.Err() != nil {
			return nil
		}
		return err
	})
}

// OnDataChannel binds the reporter to the peer's report channel.
func (a *Answerer) OnDataChannel(_ context.Context, s *app.Session, dc core.DataChannel) {
	st, ok := a.lookup(s.ID)
	if !ok {
		return
	}
	if dc.Label() != DataChannelLabel {
		log.Warn().Str("module", "orch.answer").Str("sid", string(s.ID)).Str("label", dc.Label()).Msg("unexpected data channel")
		return
	}
	st.tracker.Bind(dc)
}

func (a *Answerer) track(sid core.SessionID, st *answerSession) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sessions == nil {
		a.sessions = make(map[core.SessionID]*answerSession)
	}
	a.sessions[sid] = st
}

func (a *Answerer) untrack(sid core.SessionID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sid)
}

func (a *Answerer) lookup(sid core.SessionID) (*answerSession, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.sessions[sid]
	return st, ok
}

// Tracker is the answering side's per-session tracking stack: the frame
// queue, the detection pipeline and the reporter once a data channel shows
// up.
type Tracker struct {
	Queue    *tracking.FrameQueue
	State    *tracking.SharedPositionState
	Pipeline *tracking.Pipeline

	shm *tracking.SharedMemoryPublisher

	mu       sync.Mutex
	reporter *tracking.Reporter
}

func NewTracker(video config.VideoConfig, cfg config.TrackingConfig) (*Tracker, error) {
	det, err := vision.NewDetector(cfg.Detector)
	if err != nil {
		return nil, err
	}
	policy, err := tracking.ParseDropPolicy(cfg.DropPolicy)
	if err != nil {
		return nil, err
	}
	t := &Tracker{
		Queue: tracking.NewFrameQueue(cfg.QueueSize, policy),
		State: tracking.NewSharedPositionState(domain.TrackedPosition{}),
	}
	var pubs []tracking.Publisher
	if cfg.ShmPath != "" {
		shm, err := tracking.NewSharedMemoryPublisher(cfg.ShmPath)
		if err != nil {
			return nil, fmt.Errorf("shared memory: %w", err)
		}
		t.shm = shm
		pubs = append(pubs, shm)
	}
	dcfg := vision.ConfigFor(video.Radius, cfg.AccumulatorResolutionRatio, cfg.MinCenterDistance)
	t.Pipeline = tracking.NewPipeline(t.Queue, t.State, det, dcfg, pubs...)
	return t, nil
}

// Run processes queued frames until ctx is done.
func (t *Tracker) Run(ctx context.Context) error {
	return t.Pipeline.Run(ctx)
}

// Bind attaches the report channel.
func (t *Tracker) Bind(out tracking.TextSender) {
	t.mu.Lock()
	t.reporter = tracking.NewReporter(t.State, out)
	t.mu.Unlock()
}

// OnFrame enqueues rec for detection and sends the latest estimate.
func (t *Tracker) OnFrame(ctx context.Context, rec domain.FrameRecord) {
	l := log.With().Str("module", "orch.answer").Int64("pts", rec.Timestamp).Logger()
	if err := t.Queue.Offer(ctx, rec); err != nil {
		lvl := zerolog.DebugLevel
		if !errors.Is(err, tracking.ErrQueueFull) {
			lvl = zerolog.WarnLevel
		}
		l.WithLevel(lvl).Err(err).Msg("frame not queued")
	}

	rep := t.reporterFor()
	if rep == nil {
		return
	}
	if _, _, err := rep.Report(); err != nil {
		l.Debug().Err(err).Msg("report not sent")
	}
}

func (t *Tracker) reporterFor() *tracking.Reporter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reporter
}

func (t *Tracker) Close() error {
	if t.shm == nil {
		return nil
	}
	return t.shm.Close()
}
