package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Поддерживаемые драйверы хранилища событий и снапшотов.
const (
	StorageDriverMemory   = "memory"
	StorageDriverSQLite   = "sqlite"
	StorageDriverPostgres = "postgres"
	StorageDriverRedis    = "redis"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string `env:"OMS_HTTP_ADDR"`
	GRPCAddr    string `env:"OMS_GRPC_ADDR"`
	MetricsAddr string `env:"OMS_METRICS_ADDR"`

	StorageDriver       string `env:"OMS_STORAGE_DRIVER"`
	SQLitePath          string `env:"OMS_SQLITE_PATH"`
	PostgresDSN         string `env:"OMS_POSTGRES_DSN"`
	PostgresAutoMigrate bool   `env:"OMS_POSTGRES_AUTO_MIGRATE"`
	RedisAddr           string `env:"OMS_REDIS_ADDR"`
	RedisPassword       string `env:"OMS_REDIS_PASSWORD"`
	RedisDB             int    `env:"OMS_REDIS_DB"`
	RedisPrefix         string `env:"OMS_REDIS_PREFIX"`

	// KafkaBrokers пустой — Kafka не используется.
	KafkaBrokers     []string `env:"OMS_KAFKA_BROKERS" envSeparator:","`
	KafkaEventsTopic string   `env:"OMS_KAFKA_EVENTS_TOPIC"`
	KafkaTraceTopic  string   `env:"OMS_KAFKA_TRACE_TOPIC"`
	// KafkaIngestTopic пустой — consumer входящих событий не запускается.
	KafkaIngestTopic string `env:"OMS_KAFKA_INGEST_TOPIC"`
	KafkaGroupID     string `env:"OMS_KAFKA_GROUP_ID"`
	KafkaMaxRetries  int    `env:"OMS_KAFKA_MAX_RETRIES"`
	// KafkaBreakerFailures ошибок подряд открывают breaker публикаций на KafkaBreakerReset.
	KafkaBreakerFailures int           `env:"OMS_KAFKA_BREAKER_FAILURES"`
	KafkaBreakerReset    time.Duration `env:"OMS_KAFKA_BREAKER_RESET"`

	RecordRehydration bool `env:"OMS_REPLAY_RECORD_REHYDRATION"`
	ExclusiveBoundary bool `env:"OMS_REPLAY_EXCLUSIVE_BOUNDARY"`
	// SnapshotEvery 0 отключает автоматические снапшоты по числу событий.
	SnapshotEvery int `env:"OMS_SNAPSHOT_EVERY"`
	// SnapshotInterval 0 отключает фоновый snapshot worker.
	SnapshotInterval time.Duration `env:"OMS_SNAPSHOT_INTERVAL"`
}

// DefaultConfig возвращает настройки по умолчанию: in-memory хранилище без Kafka.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:             ":8080",
		GRPCAddr:             ":50051",
		MetricsAddr:          ":9090",
		StorageDriver:        StorageDriverMemory,
		SQLitePath:           "order-replay.db",
		PostgresAutoMigrate:  true,
		RedisAddr:            "localhost:6379",
		RedisPrefix:          "oms",
		KafkaEventsTopic:     "oms.order.events",
		KafkaTraceTopic:      "oms.replay.trace",
		KafkaGroupID:         "order-replay",
		KafkaMaxRetries:      3,
		KafkaBreakerFailures: 5,
		KafkaBreakerReset:    30 * time.Second,
		SnapshotEvery:        50,
		SnapshotInterval:     time.Minute,
	}
}

// LoadConfig накладывает переменные окружения OMS_* поверх DefaultConfig.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))

	brokers := cfg.KafkaBrokers[:0]
	for _, broker := range cfg.KafkaBrokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	cfg.KafkaBrokers = brokers

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http addr is required"))
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("sqlite path is required for sqlite storage"))
		}
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage"))
		}
	case StorageDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("redis addr is required for redis storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if c.SnapshotEvery < 0 {
		errs = append(errs, errors.New("snapshot every must be >= 0"))
	}
	if c.SnapshotInterval < 0 {
		errs = append(errs, errors.New("snapshot interval must be >= 0"))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaIngestTopic != "" && strings.TrimSpace(c.KafkaGroupID) == "" {
		errs = append(errs, errors.New("kafka group id is required for ingest consumer"))
	}
	return errors.Join(errs...)
}

// KafkaEnabled сообщает, настроены ли брокеры.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
