package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
)

const opTimeout = 5 * time.Second

type eventLog struct {
	db *sql.DB
}

// NewEventLog создаёт PostgreSQL-реализацию EventLog.
func NewEventLog(store *Store) domain.EventLog {
	return &eventLog{db: store.DB()}
}

// Append записывает событие. Повторная запись события с тем же ID ничего не меняет.
func (l *eventLog) Append(ctx context.Context, event domain.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := l.db.ExecContext(ctx, `
		INSERT INTO order_events (id, order_id, type, created_at, payload)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO NOTHING
	`, event.ID, event.OrderID, string(event.Type), event.CreatedAt.UTC(), []byte(event.Payload)); err != nil {
		return wrap("append order event", err)
	}

	return nil
}

// EventsFrom возвращает события с created_at >= from; seq сохраняет порядок записи при равном времени.
func (l *eventLog) EventsFrom(ctx context.Context, orderID string, from time.Time) ([]domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, order_id, type, created_at, payload
		FROM order_events
		WHERE order_id = $1 AND created_at >= $2
		ORDER BY created_at ASC, seq ASC
	`, orderID, from.UTC())
	if err != nil {
		return nil, wrap("list order events", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		var (
			event     domain.Event
			eventType string
			payload   []byte
		)
		if err := rows.Scan(&event.ID, &event.OrderID, &eventType, &event.CreatedAt, &payload); err != nil {
			return nil, wrap("scan order event", err)
		}
		event.Type = domain.EventType(eventType)
		event.CreatedAt = event.CreatedAt.UTC()
		event.Payload = payload
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate order events", err)
	}

	return events, nil
}

var _ domain.EventLog = (*eventLog)(nil)
