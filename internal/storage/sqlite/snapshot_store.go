package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
)

type snapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore создаёт SQLite-реализацию SnapshotStore.
func NewSnapshotStore(store *Store) domain.SnapshotStore {
	return &snapshotStore{db: store.DB()}
}

func (s *snapshotStore) Latest(ctx context.Context, orderID string) (domain.Snapshot, error) {
	var (
		snapshot  domain.Snapshot
		createdAt int64
		payload   []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT order_id, created_at, payload
		FROM order_snapshots
		WHERE order_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, orderID).Scan(&snapshot.OrderID, &createdAt, &payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Snapshot{}, domain.ErrSnapshotNotFound
		}
		return domain.Snapshot{}, wrap("get latest snapshot", err)
	}
	snapshot.CreatedAt = fromMicros(createdAt)
	snapshot.Payload = payload
	return snapshot, nil
}

func (s *snapshotStore) Save(ctx context.Context, snapshot domain.Snapshot) error {
	if strings.TrimSpace(snapshot.OrderID) == "" {
		return domain.ErrOrderIDRequired
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO order_snapshots (order_id, created_at, payload)
		VALUES (?, ?, ?)
	`, snapshot.OrderID, toMicros(snapshot.CreatedAt), []byte(snapshot.Payload)); err != nil {
		if isConstraintViolation(err) {
			return domain.ErrSnapshotConflict
		}
		return wrap("save snapshot", err)
	}
	return nil
}

var _ domain.SnapshotStore = (*snapshotStore)(nil)
