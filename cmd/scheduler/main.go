package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/callcron/scheduler/config"
	"github.com/callcron/scheduler/internal/email"
	"github.com/callcron/scheduler/internal/health"
	"github.com/callcron/scheduler/internal/infrastructure/postgres"
	ctxlog "github.com/callcron/scheduler/internal/log"
	"github.com/callcron/scheduler/internal/metrics"
	"github.com/callcron/scheduler/internal/notify"
	"github.com/callcron/scheduler/internal/queue"
	"github.com/callcron/scheduler/internal/scheduler"
	httptransport "github.com/callcron/scheduler/internal/transport/http"
	"github.com/callcron/scheduler/internal/transport/http/handler"
	"github.com/callcron/scheduler/internal/usecase"
	"github.com/callcron/scheduler/internal/workerpool"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()
	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	jobStore := postgres.NewJobStore(pool)
	q := queue.New()
	wp := workerpool.New(workerpool.Config{
		MaxWorkers:           cfg.MaxWorkers,
		BacklogSize:          cfg.WorkerBacklogSize,
		RequestTimeout:       cfg.RequestTimeout(),
		ResponseCaptureBytes: cfg.ResponseCaptureBytes,
	}, logger)
	wp.Start()

	emailSender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
	notifier := notify.NewOperatorAlert(emailSender, cfg.OperatorAlertEmail, logger)

	loop := scheduler.New(jobStore, q, wp, notifier, logger, scheduler.Config{
		MaxRetries:      cfg.MaxRetries,
		RefreshInterval: cfg.RefreshInterval(),
		BackoffCap:      cfg.BackoffCap(),
		RequestTimeout:  cfg.RequestTimeout(),
	})
	go func() {
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler loop exited", "error", err)
		}
	}()

	jobUsecase := usecase.NewJobUsecase(jobStore, loop)
	jobHandler := handler.NewJobHandler(jobUsecase, logger)

	userRepo := postgres.NewUserRepository(pool)
	authUsecase := usecase.NewAuthUsecase(userRepo, emailSender, []byte(cfg.JWTSecret), cfg.MagicLinkBase)
	authHandler := handler.NewAuthHandler(authUsecase, logger)

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httptransport.NewRouter(logger, jobHandler, authHandler, []byte(cfg.JWTSecret)),
	}
	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", "error", err)
		}
	}()
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	wp.Shutdown(shutdownCtx, true)
}

func newLogger(cfg *config.Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
	}

	var inner slog.Handler
	if cfg.Env == "local" {
		inner = tint.NewHandler(out, &tint.Options{
			Level:      cfg.SlogLevel(),
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level: cfg.SlogLevel(),
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
