package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/license-map/internal/model"
	"github.com/sells-group/license-map/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve proximity queries over HTTP from the checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		path := cfg.Checkpoint.Path
		srv, err := server.New(ctx, server.Options{
			Load: func(ctx context.Context) (*model.Dataset, error) {
				return loadCheckpoint(ctx, path)
			},
			Fallback: model.ReferencePoint{
				Lat:    cfg.Query.FallbackLat,
				Lon:    cfg.Query.FallbackLon,
				Source: model.ReferenceFallback,
			},
			DefaultRadiusKm: cfg.Query.DefaultRadiusKm,
			CORSOrigins:     cfg.Server.CORSOrigins,
		})
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		return listenAndServe(ctx, fmt.Sprintf(":%d", port), srv.Handler())
	},
}

// listenAndServe runs an HTTP server until ctx is done, then shuts it down
// gracefully.
func listenAndServe(ctx context.Context, addr string, h http.Handler) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("starting server", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
