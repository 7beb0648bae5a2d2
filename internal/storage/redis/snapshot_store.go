package redis

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
)

type snapshotStore struct {
	store *Store
}

// NewSnapshotStore создаёт Redis-реализацию SnapshotStore.
// Payload лежит в hash по ключу-времени, sorted set индексирует время снапшотов.
func NewSnapshotStore(store *Store) domain.SnapshotStore {
	return &snapshotStore{store: store}
}

func (s *snapshotStore) Latest(ctx context.Context, orderID string) (domain.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	members, err := s.store.client.ZRevRange(ctx, s.store.key(orderID, "snapshot_index"), 0, 0).Result()
	if err != nil {
		return domain.Snapshot{}, wrap("get latest snapshot index", err)
	}
	if len(members) == 0 {
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}

	payload, err := s.store.client.HGet(ctx, s.store.key(orderID, "snapshots"), members[0]).Result()
	if errors.Is(err, goredis.Nil) {
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.Snapshot{}, wrap("get latest snapshot", err)
	}

	micros, err := strconv.ParseInt(members[0], 10, 64)
	if err != nil {
		return domain.Snapshot{}, wrap("parse snapshot time", err)
	}

	return domain.Snapshot{
		OrderID:   orderID,
		CreatedAt: time.UnixMicro(micros).UTC(),
		Payload:   []byte(payload),
	}, nil
}

func (s *snapshotStore) Save(ctx context.Context, snapshot domain.Snapshot) error {
	if strings.TrimSpace(snapshot.OrderID) == "" {
		return domain.ErrOrderIDRequired
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	micros := snapshot.CreatedAt.UTC().UnixMicro()
	member := strconv.FormatInt(micros, 10)

	created, err := s.store.client.HSetNX(ctx, s.store.key(snapshot.OrderID, "snapshots"), member, []byte(snapshot.Payload)).Result()
	if err != nil {
		return wrap("save snapshot", err)
	}
	if !created {
		return domain.ErrSnapshotConflict
	}

	if err := s.store.client.ZAdd(ctx, s.store.key(snapshot.OrderID, "snapshot_index"), goredis.Z{
		Score:  float64(micros),
		Member: member,
	}).Err(); err != nil {
		return wrap("index snapshot", err)
	}
	return nil
}

var _ domain.SnapshotStore = (*snapshotStore)(nil)
