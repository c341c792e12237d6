package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/netcore/internal/admin"
	"github.com/danmuck/netcore/internal/auth"
	"github.com/danmuck/netcore/internal/command"
	"github.com/danmuck/netcore/internal/logging"
	"github.com/danmuck/netcore/internal/observability"
	"github.com/danmuck/netcore/internal/pipeline"
	"github.com/danmuck/netcore/internal/transport"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// gatePriority puts the auth gate ahead of every other receive hook.
const gatePriority = -1000

func newServeCmd() *cobra.Command {
	var configPath string
	var tcpAddr, udpAddr, adminAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a command server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServiceConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("tcp") {
				cfg.Server.TCPAddr = tcpAddr
			}
			if cmd.Flags().Changed("udp") {
				cfg.Server.UDPAddr = udpAddr
			}
			if cmd.Flags().Changed("admin") {
				cfg.AdminAddr = adminAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.toml")
	cmd.Flags().StringVar(&tcpAddr, "tcp", "", "tcp listen address (overrides config)")
	cmd.Flags().StringVar(&udpAddr, "udp", "", "udp listen address (overrides config)")
	cmd.Flags().StringVar(&adminAddr, "admin", "", "admin http address (overrides config)")
	return cmd
}

func runServe(ctx context.Context, cfg serviceConfig) error {
	observability.RegisterMetrics()
	l := logging.For("netcorectl")

	fallback := transport.ReceiverFunc(func(_ context.Context, peer pipeline.Peer, payload []byte) {
		l.Debug().Str("conn", peer.ID()).Int("bytes", len(payload)).Msg("netcorectl.serve unrouted payload")
	})
	d := command.NewDispatcher(fallback)
	if err := registerBuiltins(d); err != nil {
		return err
	}
	srv, err := transport.NewServer(cfg.Server, d)
	if err != nil {
		return err
	}
	srv.Register(&pipeline.Hooks{
		Connect: func(peer pipeline.Peer) {
			l.Info().Str("conn", peer.ID()).Str("transport", peer.Transport()).Str("remote", peer.RemoteAddr().String()).Msg("netcorectl.serve connected")
		},
		Disconnect: func(peer pipeline.Peer, cause error) {
			l.Info().Str("conn", peer.ID()).AnErr("cause", cause).Msg("netcorectl.serve disconnected")
		},
	})
	if cfg.AuthToken != "" {
		srv.Register(auth.NewGate(auth.StaticToken{Token: cfg.AuthToken}, gatePriority, cfg.AuthMaxFailures))
	}
	srv.SetTag("version", version)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	if cfg.AdminAddr != "" {
		a := admin.New(cfg.AdminAddr, srv, d, cfg.CORSOrigins)
		g.Go(func() error {
			return a.Serve(gctx)
		})
	}
	l.Info().
		Str("tcp", cfg.Server.TCPAddr).
		Str("udp", cfg.Server.UDPAddr).
		Str("admin", cfg.AdminAddr).
		Strs("commands", d.Registry().Names()).
		Msg("netcorectl.serve starting")
	return g.Wait()
}
