// Package cli builds the cobra commands behind the two peer binaries.
package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/bounce/internal/adapters/rtc"
	signaling "github.com/dkeye/bounce/internal/adapters/signal"
	"github.com/dkeye/bounce/internal/app"
	"github.com/dkeye/bounce/internal/app/orch"
	"github.com/dkeye/bounce/internal/config"
	"github.com/dkeye/bounce/internal/core"
	"github.com/dkeye/bounce/internal/logging"
)

const shutdownTimeout = 5 * time.Second

type runFunc func(ctx context.Context, cfg *config.Config) error

func newCommand(use, short string, run runFunc) *cobra.Command {
	v := config.New()
	var file string

	cmd := &cobra.Command{
		Use:          use,
		Short:        short,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Early setup so config loading can log.
			logging.Setup(os.Stderr, v.GetInt("verbose"))
			cfg, err := config.Load(v, file)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logging.Setup(os.Stderr, cfg.Verbose)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.String("host", "0.0.0.0", "signaling host")
	f.Int("port", 8080, "signaling port")
	f.CountP("verbose", "v", "increase log verbosity (-v debug, -vv trace)")
	f.StringVar(&file, "config", "", "config file (yaml)")
	bind(v, cmd, "host", "port", "verbose")
	return cmd
}

func bind(v *viper.Viper, cmd *cobra.Command, names ...string) {
	for _, name := range names {
		if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}
}

// Execute runs cmd with a background context and exits non-zero on error.
func Execute(cmd *cobra.Command) {
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func mediaFactory(api *webrtc.API, cfg webrtc.Configuration) orch.MediaFactory {
	return func(sid core.SessionID) (*rtc.Connection, error) {
		return rtc.NewConnection(api, cfg, sid)
	}
}

func newAPI(cfg *config.Config) (*webrtc.API, webrtc.Configuration, error) {
	api, err := rtc.NewAPI(logging.PionFactory{})
	if err != nil {
		return nil, webrtc.Configuration{}, err
	}
	return api, rtc.Configuration(cfg.WebRTC.ICEServers), nil
}

func wsOptions(cfg *config.Config) signaling.WSOptions {
	return signaling.WSOptions{ReadLimit: cfg.Signaling.ReadLimit, PingPeriod: cfg.Signaling.PingPeriod}
}

// serve runs an HTTP server on g until ctx is done.
func serve(ctx context.Context, g *errgroup.Group, addr string, h http.Handler) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error {
		log.Info().Str("module", "cli").Str("addr", addr).Msg("http server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Str("module", "cli").Msg("server forced to shutdown")
		}
		return nil
	})
}

// shutdown closes every live session once ctx is done.
func shutdown(ctx context.Context, g *errgroup.Group, reg *app.Registry) {
	g.Go(func() error {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := reg.CloseAll(cctx); err != nil {
			log.Warn().Err(err).Str("module", "cli").Msg("close sessions")
		}
		return nil
	})
}
