package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookflow/internal/app"
	"github.com/vladislavdragonenkov/bookflow/internal/version"
)

// setupLogger настраивает формат и уровень логирования.
func setupLogger(rawLevel string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(parseLogLevel(rawLevel))
}

// parseLogLevel разбирает уровень логирования; неизвестное значение
// откатывается на info.
func parseLogLevel(raw string) log.Level {
	level, err := log.ParseLevel(strings.TrimSpace(strings.ToLower(raw)))
	if err != nil || raw == "" {
		return log.InfoLevel
	}
	return level
}

func main() {
	// .env удобен при локальной разработке; в контейнере его нет.
	_ = godotenv.Load()

	setupLogger(os.Getenv("BOOKFLOW_LOG_LEVEL"))
	cfg := app.LoadConfigFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"metrics_addr": cfg.MetricsAddr,
		"version":      version.String(),
	}).Info("starting fulfillment service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("service exited with error")
	}

	log.Info("fulfillment service stopped")
}
