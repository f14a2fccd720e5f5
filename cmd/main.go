package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/isntfunny/kitchenpace-sub002/internal/app"
	"github.com/isntfunny/kitchenpace-sub002/internal/config"
	"github.com/isntfunny/kitchenpace-sub002/internal/logging"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const file = "config.json"

var version = "dev"

func initSentry(cfg *config.SentryConfig, version string) error {
	return sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     version,
	})
}

func main() {
	_ = godotenv.Load()

	cfg := config.NewConfig()
	if err := cfg.Read(configFile()); err != nil {
		log.Fatal(err)
	}
	cfg.ApplyEnv()

	if err := logging.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("logging.Init: %s", err)
	}
	defer func() { _ = logging.Sync() }()

	if err := initSentry(&cfg.Sentry, version); err != nil {
		logging.L().Fatal("sentry.Init", zap.Error(err))
	}
	// Flush buffered events before the program terminates.
	defer sentry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logging.L().Fatal("app init failed", zap.Error(err))
	}

	if err := a.Run(ctx); err != nil {
		logging.L().Error("server stopped", zap.Error(err))
	}
}

func configFile() string {
	if f := os.Getenv("CONFIG_FILE"); f != "" {
		return f
	}
	return file
}
