// Command order-service запускает HTTP API replay заказов, метрики, health и gRPC health.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-replay/internal/app"
	"github.com/vladislavdragonenkov/order-replay/internal/version"
)

const envLogLevel = "OMS_LOG_LEVEL"

// setupLogger настраивает формат и уровень логирования для сервиса.
// Неизвестный уровень оставляет info и возвращает предупреждение.
func setupLogger(level string) string {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	level = strings.TrimSpace(level)
	if level == "" {
		return ""
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return "unknown " + envLogLevel + " " + level + ", using info"
	}
	log.SetLevel(parsed)
	return ""
}

func main() {
	if warning := setupLogger(os.Getenv(envLogLevel)); warning != "" {
		log.Warn(warning)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka":          cfg.KafkaEnabled(),
		"build":          version.String(),
	}).Info("запускаем order-replay")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("order-replay остановлен")
}
