package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
	"github.com/vladislavdragonenkov/order-replay/internal/storage/memory"
)

func TestSnapshotStore_LatestEmpty(t *testing.T) {
	store := memory.NewSnapshotStore()

	if _, err := store.Latest(context.Background(), "order-1"); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestSnapshotStore_LatestByCreatedAt(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2022, 9, 17, 10, 0, 0, 0, time.UTC)
	store := memory.NewSnapshotStore()

	// Сохраняем не по порядку: Latest определяется CreatedAt, а не порядком записи.
	for _, snapshot := range []domain.Snapshot{
		{OrderID: "order-1", CreatedAt: base.Add(2 * time.Hour), Payload: json.RawMessage(`{"orderId":2}`)},
		{OrderID: "order-1", CreatedAt: base, Payload: json.RawMessage(`{"orderId":1}`)},
	} {
		if err := store.Save(ctx, snapshot); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	latest, err := store.Latest(ctx, "order-1")
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if !latest.CreatedAt.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("unexpected latest snapshot time: %s", latest.CreatedAt)
	}
}

func TestSnapshotStore_RejectsDuplicateTimestamp(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2022, 9, 17, 10, 0, 0, 0, time.UTC)
	store := memory.NewSnapshotStore(domain.Snapshot{OrderID: "order-1", CreatedAt: at, Payload: json.RawMessage(`{}`)})

	err := store.Save(ctx, domain.Snapshot{OrderID: "order-1", CreatedAt: at, Payload: json.RawMessage(`{"orderId":3}`)})
	if !errors.Is(err, domain.ErrSnapshotConflict) {
		t.Fatalf("expected ErrSnapshotConflict, got %v", err)
	}

	// Тот же момент у другого заказа допустим.
	if err := store.Save(ctx, domain.Snapshot{OrderID: "order-2", CreatedAt: at, Payload: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("save for other order failed: %v", err)
	}
}

func TestSnapshotStore_SaveRequiresOrderID(t *testing.T) {
	store := memory.NewSnapshotStore()
	if err := store.Save(context.Background(), domain.Snapshot{}); !errors.Is(err, domain.ErrOrderIDRequired) {
		t.Fatalf("expected ErrOrderIDRequired, got %v", err)
	}
}

func TestNewSnapshotStore_PanicsOnDuplicateSeed(t *testing.T) {
	at := time.Date(2022, 9, 17, 10, 0, 0, 0, time.UTC)

	defer func() {
		recovered := recover()
		if recovered == nil {
			t.Fatal("expected panic for duplicate seed timestamp")
		}
		err, ok := recovered.(error)
		if !ok || !errors.Is(err, domain.ErrSnapshotConflict) {
			t.Fatalf("expected ErrSnapshotConflict panic, got %v", recovered)
		}
	}()

	memory.NewSnapshotStore(
		domain.Snapshot{OrderID: "order-1", CreatedAt: at, Payload: json.RawMessage(`{"orderId":1}`)},
		domain.Snapshot{OrderID: "order-1", CreatedAt: at, Payload: json.RawMessage(`{"orderId":2}`)},
	)
}
