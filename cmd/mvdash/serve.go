package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"mvdash/internal/platform/config"
	"mvdash/internal/report"
	"mvdash/internal/status"
)

const shutdownTimeout = 10 * time.Second

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// startStatus serves the status API and metrics on addr in the background.
func (e *env) startStatus(addr string) *http.Server {
	r := status.NewRouter(status.NewHandler(e.repo, e.log, e.metrics), e.log, e.metrics)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.log.Error("status server error", "error", err)
		}
	}()
	e.log.Info("status server starting", "addr", addr)
	return srv
}

func (e *env) shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		e.log.Error("shutdown error", "error", err)
		return
	}
	e.log.Info("status server stopped")
}

func serveCommand(c *cli.Context) error {
	run, err := resolveRun(c)
	if err != nil {
		return err
	}
	e := newEnv(c)
	cat, err := loadCatalog(run)
	if err != nil {
		return err
	}

	addr := c.String("metrics-addr")
	if addr == "" {
		addr = ":" + config.GetEnv("PORT", "8080")
	}
	srv := e.startStatus(addr)

	ctx, stop := signalContext(context.Background())
	defer stop()

	rows, err := e.simulate(ctx, run, cat)
	report.WriteTable(os.Stdout, rows)
	if err != nil && ctx.Err() == nil {
		e.log.Error("simulation failed", "error", err)
	}

	if ctx.Err() == nil {
		e.log.Info("simulation done, serving status until interrupted", "active_sessions", e.repo.ActiveCount())
		<-ctx.Done()
	}
	e.log.Info("shutdown signal received, draining connections")
	e.shutdown(srv)
	return nil
}
