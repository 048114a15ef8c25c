package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soochol/autoflow/internal/config"
)

const version = "0.1.0"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "serve" {
		if err := serve(); err != nil {
			slog.Error("autoflow: fatal", "err", err)
			os.Exit(1)
		}
		return
	}
	fmt.Println("autoflow v" + version)
	fmt.Println("Usage: autoflow serve")
}

func serve() error {
	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	// Runs left behind by a previous process never finish on their own.
	// With shared locks other processes may still be running theirs, so
	// orphans are found by their free workflow lock instead.
	if a.locks == nil {
		a.history.CleanupOrphanedExecutions(ctx, true)
	}

	if cfg.Scheduler.Disabled {
		slog.Info("scheduler sweep disabled for this process")
	} else {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer a.scheduler.Stop()
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.workers.Run(gctx)
	})
	if a.locks != nil {
		g.Go(func() error {
			return a.history.RunOrphanReaper(gctx, a.locks, cfg.Redis.LockTTL)
		})
	}
	g.Go(func() error {
		slog.Info("starting autoflow server", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
