package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
)

type eventLog struct {
	db *sql.DB
}

// NewEventLog создаёт SQLite-реализацию EventLog.
func NewEventLog(store *Store) domain.EventLog {
	return &eventLog{db: store.DB()}
}

// Append записывает событие; повтор с тем же ID игнорируется.
func (l *eventLog) Append(ctx context.Context, event domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := event.Validate(); err != nil {
		return err
	}

	if _, err := l.db.ExecContext(ctx, `
		INSERT INTO order_events (id, order_id, type, created_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, event.ID, event.OrderID, string(event.Type), toMicros(event.CreatedAt), []byte(event.Payload)); err != nil {
		return wrap("append order event", err)
	}
	return nil
}

// EventsFrom возвращает события с created_at >= from в порядке записи.
func (l *eventLog) EventsFrom(ctx context.Context, orderID string, from time.Time) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, order_id, type, created_at, payload
		FROM order_events
		WHERE order_id = ? AND created_at >= ?
		ORDER BY created_at ASC, seq ASC
	`, orderID, toMicros(from))
	if err != nil {
		return nil, wrap("list order events", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		var (
			event     domain.Event
			eventType string
			createdAt int64
			payload   []byte
		)
		if err := rows.Scan(&event.ID, &event.OrderID, &eventType, &createdAt, &payload); err != nil {
			return nil, wrap("scan order event", err)
		}
		event.Type = domain.EventType(eventType)
		event.CreatedAt = fromMicros(createdAt)
		event.Payload = payload
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate order events", err)
	}
	return events, nil
}

var _ domain.EventLog = (*eventLog)(nil)
