package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"sms-broadcaster/internal/broadcast"
	"sms-broadcaster/internal/config"
	"sms-broadcaster/internal/db"
	"sms-broadcaster/internal/handlers"
	"sms-broadcaster/internal/middleware"
	"sms-broadcaster/internal/sms"
	"sms-broadcaster/internal/subscription"
	"sms-broadcaster/pkg/logger"
	"sms-broadcaster/pkg/tasks"
	"sms-broadcaster/web"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

const (
	shutdownTimeout      = 10 * time.Second
	limiterSweepInterval = time.Minute
	limiterIdle          = 10 * time.Minute
)

func main() {
	envErr := godotenv.Load()

	log, err := logger.New(logger.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if envErr != nil {
		log.Info("no .env file loaded", zap.Error(envErr))
	}

	if err := run(log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info("database connection established")

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	tmpl, err := web.Templates()
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}

	sender := sms.NewMessageBird(cfg.MessageBirdAPIKey, log.Named("messagebird"))
	manager := subscription.New(store, sender, cfg.Originator, log.Named("subscription"))
	batcher := broadcast.NewBatcher(sender, cfg.Originator, log.Named("broadcast"))

	var enqueuer tasks.TaskEnqueuer
	if cfg.BroadcastMode == config.BroadcastQueue {
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer client.Close()
		enqueuer = client
		log.Info("broadcasts are queued", zap.String("redis", cfg.RedisAddr))
	}

	if !cfg.OperatorAuth() {
		log.Warn("operator pages are not protected; set OPERATOR_USER and OPERATOR_PASSWORD")
	}

	h := handlers.New(tmpl, manager, batcher, store, enqueuer, log.Named("http"))
	limiter := middleware.NewRateLimiterMiddleware(rate.Limit(cfg.WebhookRate), cfg.WebhookBurst, cfg.TrustProxy, log.Named("ratelimit"))
	go limiter.Run(ctx, limiterSweepInterval, limiterIdle)
	router := h.Router(limiter.Middleware, middleware.BasicAuth(cfg.OperatorUser, cfg.OperatorPassword))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("commit", CommitSHA))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
