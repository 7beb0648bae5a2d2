// Package redis хранит журнал событий заказов в Redis Streams, а снапшоты в hash + sorted set.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
)

const (
	defaultPrefix  = "oms"
	defaultTimeout = 5 * time.Second
)

// Config описывает подключение к Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix добавляется ко всем ключам; пустой означает "oms".
	Prefix string
}

// Store оборачивает клиента Redis.
type Store struct {
	client *goredis.Client
	prefix string
}

// Open подключается к Redis и проверяет доступность сервера.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	store := &Store{client: client, prefix: cfg.Prefix}
	if store.prefix == "" {
		store.prefix = defaultPrefix
	}
	if err := store.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// Client возвращает raw-клиента Redis.
func (s *Store) Client() *goredis.Client {
	return s.client
}

// Ping проверяет доступность сервера.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := s.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Close закрывает клиента.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) key(orderID, suffix string) string {
	// Hash tag держит все ключи заказа в одном слоте кластера.
	return fmt.Sprintf("%s:order:{%s}:%s", s.prefix, orderID, suffix)
}

func isUnavailable(err error) bool {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr):
		return true
	case errors.Is(err, goredis.ErrClosed), errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}

func wrap(op string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
