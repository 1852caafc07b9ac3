package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/chorly/internal/app"
	"github.com/dukerupert/chorly/internal/config"
	"github.com/dukerupert/chorly/internal/jobs"
	"github.com/dukerupert/chorly/internal/logging"
	"github.com/dukerupert/chorly/internal/server"
)

func main() {
	configFile := flag.String("config", os.Getenv("CHORLY_CONFIG"), "path to a config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.WithRealtime())
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	srv := server.New(a.DB, a.Service, a.Hub, a.Metrics.Handler(), logger)

	scheduler := jobs.NewScheduler(a.Runner, jobs.ScheduleConfig{
		Interval:       cfg.JobInterval,
		ReminderHour:   cfg.ReminderHour,
		SummaryWeekday: cfg.SummaryWeekday,
	})
	scheduler.Start(ctx)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("chorly listening", "addr", httpServer.Addr, "timezone", cfg.Timezone)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error("close error", "error", err)
	}
}
