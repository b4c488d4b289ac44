// cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gewnthar/sanctions/database"
	"github.com/gewnthar/sanctions/handlers"
)

var serveNoScheduler bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduled fallback import",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "do not run the fallback import in this process")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer database.CloseDB()

	srv := &http.Server{
		Addr: ":" + a.cfg.Server.Port,
		Handler: handlers.NewRouter(handlers.Deps{
			Screener:  a.checker,
			Refresher: a.job,
			Snapshots: a.snaps,
			Sources:   a.sources,
			DB:        a.snaps,
			Gatherer:  a.registry,

			AdminToken: a.cfg.Server.AdminToken,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.S().Infof("Server starting on http://localhost%s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		zap.S().Info("Server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if a.cfg.Fallback.Enabled && !serveNoScheduler {
		g.Go(func() error {
			return a.job.Schedule(gctx, a.cfg.Fallback.ImportInterval)
		})
	} else {
		zap.S().Info("Fallback import scheduler disabled")
	}
	return g.Wait()
}
