package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"sms-broadcaster/internal/broadcast"
	"sms-broadcaster/internal/config"
	"sms-broadcaster/internal/db"
	"sms-broadcaster/internal/sms"
	"sms-broadcaster/internal/worker"
	"sms-broadcaster/pkg/logger"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

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

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx := context.Background()
	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer store.Close()

	sender := sms.NewMessageBird(cfg.MessageBirdAPIKey, log.Named("messagebird"))
	mux, err := newServeMux(ctx, store, sender, cfg.Originator, log)
	if err != nil {
		log.Fatal("failed to prepare worker", zap.Error(err))
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{
			// One broadcast at a time keeps provider calls sequential.
			Concurrency: 1,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	log.Info("worker starting", zap.String("commit", CommitSHA))
	if err := srv.Run(mux); err != nil {
		log.Fatal("could not run server", zap.Error(err))
	}
}

// newServeMux makes sure the subscribers table exists, since the worker may
// start before the server ever has, and registers the task handlers.
func newServeMux(ctx context.Context, store *db.Store, sender sms.Sender, originator string, log *zap.Logger) (*asynq.ServeMux, error) {
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	batcher := broadcast.NewBatcher(sender, originator, log.Named("broadcast"))
	mux := asynq.NewServeMux()
	worker.NewTaskHandler(store, batcher, log.Named("worker")).Register(mux)
	return mux, nil
}
