package cli

import (
	"context"
	"time"

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

// sessionRestart paces back-to-back sessions on the same endpoint.
const sessionRestart = time.Second

// NewServerCommand is the offering peer: it streams the bouncing ball and
// scores the positions reported back.
func NewServerCommand() *cobra.Command {
	return newCommand("server", "Stream a bouncing ball and score the tracked positions", runOffer)
}

func runOffer(ctx context.Context, cfg *config.Config) error {
	api, rtcCfg, err := newAPI(cfg)
	if err != nil {
		return err
	}
	reg := app.NewRegistry()
	o := &orch.Offerer{
		Negotiator: app.NewNegotiator(reg),
		Registry:   reg,
		Media:      mediaFactory(api, rtcCfg),
		Video:      cfg.Video,
		Scoring:    cfg.Accuracy,
	}

	g, gctx := errgroup.WithContext(ctx)
	next := func(context.Context) (core.SignalingChannel, error) {
		return signaling.NewTCPChannel(cfg.Addr()), nil
	}
	if cfg.Signaling.Transport == "websocket" {
		ln := signaling.NewWSListener(wsOptions(cfg))
		serve(gctx, g, cfg.Addr(), router.SetupRouter(router.Deps{
			Registry:   reg,
			Accuracy:   o,
			Signal:     ln.HandleSignal,
			SignalPath: cfg.Signaling.Path,
			Debug:      cfg.Verbose > 1,
		}))
		next = func(ctx context.Context) (core.SignalingChannel, error) { return ln.Accept(ctx) }
	}
	if cfg.HTTP.Addr != "" {
		serve(gctx, g, cfg.HTTP.Addr, router.SetupRouter(router.Deps{Registry: reg, Accuracy: o, Debug: cfg.Verbose > 1}))
	}
	shutdown(gctx, g, reg)

	g.Go(func() error {
		log.Info().Str("module", "cli").Str("transport", cfg.Signaling.Transport).Str("addr", cfg.Addr()).Msg("offering peer started")
		for gctx.Err() == nil {
			sig, err := next(gctx)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			if err := o.Run(gctx, sig); err != nil {
				log.Warn().Err(err).Str("module", "cli").Msg("session setup failed")
			}
			select {
			case <-gctx.Done():
			case <-time.After(sessionRestart):
			}
		}
		return nil
	})

	err = g.Wait()
	log.Info().Str("module", "cli").Msg("offering peer exited")
	return err
}
