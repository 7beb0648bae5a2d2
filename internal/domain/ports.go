package domain

import (
	"context"
	"time"
)

// EventLog — упорядоченный append-only лог событий заказов.
type EventLog interface {
	// Append добавляет событие в конец лога заказа. Событие видно всем последующим чтениям.
	Append(ctx context.Context, event Event) error
	// EventsFrom возвращает по порядку все события заказа с CreatedAt >= from (нижняя граница включительно).
	EventsFrom(ctx context.Context, orderID string, from time.Time) ([]Event, error)
}

// SnapshotStore хранит снапшоты заказов, упорядоченные по CreatedAt.
type SnapshotStore interface {
	// Latest возвращает снапшот с максимальным CreatedAt или ErrSnapshotNotFound.
	Latest(ctx context.Context, orderID string) (Snapshot, error)
	// Save сохраняет снапшот; повтор CreatedAt для заказа — ErrSnapshotConflict.
	Save(ctx context.Context, snapshot Snapshot) error
}

// Clock — источник текущего времени; внедряется, чтобы replay был детерминирован в тестах.
type Clock interface {
	Now() time.Time
}

// ClockFunc адаптирует функцию к интерфейсу Clock.
type ClockFunc func() time.Time

// Now возвращает результат вызова функции.
func (f ClockFunc) Now() time.Time { return f() }
