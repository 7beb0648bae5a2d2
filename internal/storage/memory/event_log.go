package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
)

// eventLogInMemory хранит события в памяти (для разработки/тестов).
type eventLogInMemory struct {
	mu     sync.RWMutex
	events map[string][]domain.Event
}

// NewEventLog создаёт in-memory реализацию EventLog.
func NewEventLog() domain.EventLog {
	return &eventLogInMemory{events: make(map[string][]domain.Event)}
}

// Append добавляет событие в лог заказа.
func (l *eventLogInMemory) Append(ctx context.Context, event domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := event.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Копия payload, чтобы вызывающий не мог изменить записанное событие.
	event.Payload = append([]byte(nil), event.Payload...)
	l.events[event.OrderID] = append(l.events[event.OrderID], event)

	// Стабильная сортировка сохраняет порядок добавления при равных CreatedAt.
	sort.SliceStable(l.events[event.OrderID], func(i, j int) bool {
		return l.events[event.OrderID][i].CreatedAt.Before(l.events[event.OrderID][j].CreatedAt)
	})

	return nil
}

// EventsFrom возвращает события заказа с CreatedAt >= from в хронологическом порядке.
func (l *eventLogInMemory) EventsFrom(ctx context.Context, orderID string, from time.Time) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	events := l.events[orderID]
	result := make([]domain.Event, 0, len(events))
	for _, event := range events {
		if event.CreatedAt.Before(from) {
			continue
		}
		result = append(result, event)
	}
	return result, nil
}

var _ domain.EventLog = (*eventLogInMemory)(nil)
