package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/trichter/internal/config"
	"github.com/danielpatrickdp/trichter/internal/storage"
	"github.com/danielpatrickdp/trichter/internal/storage/remote"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured storage backend over gRPC with Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Storage.Backend == storage.TypeRemote {
				return errors.New("serve needs a local storage backend, not remote")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			backend, closeBackend, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeBackend()

			lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
			}
			gs := grpc.NewServer()
			srv := remote.NewServer(backend)
			srv.Register(ctx, gs)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("grpc storage listening", "addr", cfg.Server.GRPCAddr, "backend", cfg.Storage.Backend)
				return gs.Serve(lis)
			})
			g.Go(func() error {
				t := time.NewTicker(10 * time.Second)
				defer t.Stop()
				for {
					select {
					case <-gctx.Done():
						return nil
					case <-t.C:
						if !srv.RefreshHealth(gctx) {
							logger.Warn("storage backend unhealthy")
						}
					}
				}
			})
			metricsSrv := metricsServer(cfg)
			if metricsSrv != nil {
				g.Go(func() error {
					logger.Info("metrics listening", "addr", cfg.Server.MetricsAddr)
					if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
			}
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("shutting down")
				srv.Shutdown()
				gs.GracefulStop()
				if metricsSrv != nil {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return metricsSrv.Shutdown(shutdownCtx)
				}
				return nil
			})

			if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			return nil
		},
	}
}

func metricsServer(cfg *config.Config) *http.Server {
	if cfg.Server.MetricsAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
