package cli

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/bounce/internal/adapters/http"
	signaling "github.com/dkeye/bounce/internal/adapters/signal"
	"github.com/dkeye/bounce/internal/app"
	"github.com/dkeye/bounce/internal/app/orch"
	"github.com/dkeye/bounce/internal/config"
	"github.com/dkeye/bounce/internal/core"
)

// NewClientCommand is the answering peer: it tracks the received ball and
// reports its position back.
func NewClientCommand() *cobra.Command {
	return newCommand("client", "Track the received ball and report its position", runAnswer)
}

func runAnswer(ctx context.Context, cfg *config.Config) error {
	api, rtcCfg, err := newAPI(cfg)
	if err != nil {
		return err
	}
	sig, err := dialSignal(ctx, cfg)
	if err != nil {
		return err
	}

	reg := app.NewRegistry()
	a := &orch.Answerer{
		Negotiator: app.NewNegotiator(reg),
		Registry:   reg,
		Media:      mediaFactory(api, rtcCfg),
		Video:      cfg.Video,
		Tracking:   cfg.Tracking,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	if cfg.HTTP.Addr != "" {
		serve(gctx, g, cfg.HTTP.Addr, router.SetupRouter(router.Deps{Registry: reg, Debug: cfg.Verbose > 1}))
	}
	shutdown(gctx, g, reg)

	g.Go(func() error {
		defer cancel()
		log.Info().Str("module", "cli").Str("transport", cfg.Signaling.Transport).Str("addr", cfg.Addr()).Msg("answering peer started")
		return a.Run(gctx, sig)
	})

	err = g.Wait()
	log.Info().Str("module", "cli").Msg("answering peer exited")
	return err
}

func dialSignal(ctx context.Context, cfg *config.Config) (core.SignalingChannel, error) {
	if cfg.Signaling.Transport == "websocket" {
		return signaling.DialWS(ctx, "ws://"+cfg.Addr()+cfg.Signaling.Path, wsOptions(cfg))
	}
	return signaling.NewTCPChannel(cfg.Addr()), nil
}
