package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

const (
	BroadcastSync  = "sync"
	BroadcastQueue = "queue"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisAddr   string

	MessageBirdAPIKey string
	Originator        string

	// BroadcastMode is BroadcastSync or BroadcastQueue.
	BroadcastMode string

	OperatorUser     string
	OperatorPassword string

	WebhookRate  float64
	WebhookBurst int
	// TrustProxy keys the webhook rate limit on X-Forwarded-For.
	TrustProxy bool
}

// Load reads the configuration from the environment. The caller loads any
// .env file first.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisAddr:         getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		MessageBirdAPIKey: os.Getenv("MESSAGEBIRD_API_KEY"),
		Originator:        os.Getenv("MESSAGEBIRD_ORIGINATOR"),
		BroadcastMode:     getEnv("BROADCAST_MODE", BroadcastSync),
		OperatorUser:      os.Getenv("OPERATOR_USER"),
		OperatorPassword:  os.Getenv("OPERATOR_PASSWORD"),
	}

	var errs []error
	var err error
	if cfg.WebhookRate, err = strconv.ParseFloat(getEnv("WEBHOOK_RATE", "5"), 64); err != nil || cfg.WebhookRate <= 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_RATE must be a positive number"))
	}
	if cfg.WebhookBurst, err = strconv.Atoi(getEnv("WEBHOOK_BURST", "10")); err != nil || cfg.WebhookBurst <= 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_BURST must be a positive integer"))
	}
	if cfg.TrustProxy, err = strconv.ParseBool(getEnv("TRUST_PROXY", "false")); err != nil {
		errs = append(errs, fmt.Errorf("TRUST_PROXY must be a boolean"))
	}

	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is not set"))
	}
	if cfg.MessageBirdAPIKey == "" {
		errs = append(errs, errors.New("MESSAGEBIRD_API_KEY is not set"))
	}
	if cfg.Originator == "" {
		errs = append(errs, errors.New("MESSAGEBIRD_ORIGINATOR is not set"))
	}
	if cfg.BroadcastMode != BroadcastSync && cfg.BroadcastMode != BroadcastQueue {
		errs = append(errs, fmt.Errorf("BROADCAST_MODE must be %q or %q, got %q", BroadcastSync, BroadcastQueue, cfg.BroadcastMode))
	}
	if (cfg.OperatorUser == "") != (cfg.OperatorPassword == "") {
		errs = append(errs, errors.New("OPERATOR_USER and OPERATOR_PASSWORD must be set together"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OperatorAuth reports whether the operator UI requires basic auth.
func (c *Config) OperatorAuth() bool {
	return c.OperatorUser != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
