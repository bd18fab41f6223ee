package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tuannm99/recsql/internal/engine"
	"github.com/tuannm99/recsql/internal/metrics"
	"github.com/tuannm99/recsql/server/recsqlwire"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve table sessions over TCP",
		Long: `Every client connection gets its own in-memory database. Files named
with --preload are loaded into each new session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:5433", "listen address")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringSlice("preload", nil, "table files loaded into every session")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	log := slog.Default()
	observers := []engine.Observer{engine.NewLoggingObserver(log)}

	if addr := a.cfg.Server.MetricsAddr; addr != "" {
		reg := prometheus.NewRegistry()
		c, err := metrics.New(reg)
		if err != nil {
			return err
		}
		observers = append(observers, c)

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info("metrics.listen", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics.serve", "err", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	// server sessions stay in memory; dbfile only applies to local commands
	return recsqlwire.Run(ctx, recsqlwire.ServerConfig{
		Addr:      a.cfg.Server.Addr,
		Preload:   a.cfg.Server.Preload,
		CacheSize: a.cfg.Engine.CacheSize,
		Tables:    a.tableOptions(),
		Observers: observers,
		Logger:    log,
	})
}
