package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
)

// snapshotStoreInMemory — in-memory хранилище снапшотов, упорядоченных по CreatedAt.
type snapshotStoreInMemory struct {
	mu        sync.RWMutex
	snapshots map[string][]domain.Snapshot
}

// NewSnapshotStore возвращает in-memory SnapshotStore с начальными снапшотами.
// Невалидный seed (пустой OrderID, повтор CreatedAt) — ошибка программиста: паникует.
func NewSnapshotStore(seed ...domain.Snapshot) domain.SnapshotStore {
	store := &snapshotStoreInMemory{snapshots: make(map[string][]domain.Snapshot)}
	for _, snapshot := range seed {
		if err := store.Save(context.Background(), snapshot); err != nil {
			panic(fmt.Errorf("seed snapshot %s at %s: %w", snapshot.OrderID, snapshot.CreatedAt.Format(time.RFC3339Nano), err))
		}
	}
	return store
}

// Save сохраняет снапшот, если для заказа ещё нет снапшота с тем же CreatedAt.
func (s *snapshotStoreInMemory) Save(ctx context.Context, snapshot domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(snapshot.OrderID) == "" {
		return domain.ErrOrderIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.snapshots[snapshot.OrderID]
	for _, current := range existing {
		if current.CreatedAt.Equal(snapshot.CreatedAt) {
			return domain.ErrSnapshotConflict
		}
	}

	snapshot.Payload = append([]byte(nil), snapshot.Payload...)
	existing = append(existing, snapshot)
	sort.Slice(existing, func(i, j int) bool {
		return existing[i].CreatedAt.Before(existing[j].CreatedAt)
	})
	s.snapshots[snapshot.OrderID] = existing
	return nil
}

// Latest возвращает снапшот с максимальным CreatedAt.
func (s *snapshotStoreInMemory) Latest(ctx context.Context, orderID string) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	existing := s.snapshots[orderID]
	if len(existing) == 0 {
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}
	return existing[len(existing)-1], nil
}

var _ domain.SnapshotStore = (*snapshotStoreInMemory)(nil)
