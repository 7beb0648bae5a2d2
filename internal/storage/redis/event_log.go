package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
)

const (
	fieldID        = "id"
	fieldType      = "type"
	fieldCreatedAt = "created_at"
	fieldPayload   = "payload"
)

// appendScript атомарно пропускает уже записанный ID, добавляет событие в stream заказа
// и индексирует запись в sorted set по created_at. Член индекса "<seq>:<stream id>":
// seq дополнен нулями, поэтому при равном времени порядок совпадает с порядком записи.
var appendScript = goredis.NewScript(`
if redis.call('SADD', KEYS[2], ARGV[1]) == 0 then
  return 0
end
local seq = redis.call('INCR', KEYS[4])
local entry = redis.call('XADD', KEYS[1], '*', 'id', ARGV[1], 'type', ARGV[2], 'created_at', ARGV[3], 'payload', ARGV[4])
redis.call('ZADD', KEYS[3], ARGV[3], string.format('%020d:%s', seq, entry))
return 1
`)

type eventLog struct {
	store *Store
}

// NewEventLog создаёт Redis-реализацию EventLog: один stream на заказ.
func NewEventLog(store *Store) domain.EventLog {
	return &eventLog{store: store}
}

func (l *eventLog) Append(ctx context.Context, event domain.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	keys := []string{
		l.store.key(event.OrderID, "events"),
		l.store.key(event.OrderID, "event_ids"),
		l.store.key(event.OrderID, "events_by_time"),
		l.store.key(event.OrderID, "event_seq"),
	}
	if err := appendScript.Run(ctx, l.store.client, keys,
		event.ID,
		string(event.Type),
		strconv.FormatInt(event.CreatedAt.UTC().UnixMicro(), 10),
		[]byte(event.Payload),
	).Err(); err != nil {
		return wrap("append order event", err)
	}
	return nil
}

// EventsFrom выбирает из индекса записи с created_at >= from на стороне Redis
// и дочитывает их из stream одним pipeline.
func (l *eventLog) EventsFrom(ctx context.Context, orderID string, from time.Time) ([]domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	minScore := "-inf"
	if !from.IsZero() {
		minScore = strconv.FormatInt(from.UTC().UnixMicro(), 10)
	}
	members, err := l.store.client.ZRangeByScore(ctx, l.store.key(orderID, "events_by_time"), &goredis.ZRangeBy{
		Min: minScore,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, wrap("list order event index", err)
	}
	if len(members) == 0 {
		return []domain.Event{}, nil
	}

	streamKey := l.store.key(orderID, "events")
	pipe := l.store.client.Pipeline()
	reads := make([]*goredis.XMessageSliceCmd, 0, len(members))
	for _, member := range members {
		entryID, err := streamIDFromMember(member)
		if err != nil {
			return nil, err
		}
		reads = append(reads, pipe.XRange(ctx, streamKey, entryID, entryID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, wrap("read order events", err)
	}

	events := make([]domain.Event, 0, len(reads))
	for i, read := range reads {
		messages := read.Val()
		if len(messages) != 1 {
			return nil, fmt.Errorf("index member %s: stream entry not found", members[i])
		}
		event, err := decodeEvent(orderID, messages[0])
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// streamIDFromMember достаёт ID записи stream из члена индекса "<seq>:<stream id>".
func streamIDFromMember(member string) (string, error) {
	_, entryID, ok := strings.Cut(member, ":")
	if !ok || entryID == "" {
		return "", fmt.Errorf("malformed event index member %q", member)
	}
	return entryID, nil
}

func decodeEvent(orderID string, message goredis.XMessage) (domain.Event, error) {
	field := func(name string) (string, error) {
		raw, ok := message.Values[name]
		if !ok {
			return "", fmt.Errorf("stream entry %s: missing field %q", message.ID, name)
		}
		value, ok := raw.(string)
		if !ok {
			return "", fmt.Errorf("stream entry %s: field %q has type %T", message.ID, name, raw)
		}
		return value, nil
	}

	id, err := field(fieldID)
	if err != nil {
		return domain.Event{}, err
	}
	eventType, err := field(fieldType)
	if err != nil {
		return domain.Event{}, err
	}
	createdRaw, err := field(fieldCreatedAt)
	if err != nil {
		return domain.Event{}, err
	}
	payload, err := field(fieldPayload)
	if err != nil {
		return domain.Event{}, err
	}
	micros, err := strconv.ParseInt(createdRaw, 10, 64)
	if err != nil {
		return domain.Event{}, fmt.Errorf("stream entry %s: parse created_at: %w", message.ID, err)
	}

	return domain.Event{
		ID:        id,
		OrderID:   orderID,
		Type:      domain.EventType(eventType),
		CreatedAt: time.UnixMicro(micros).UTC(),
		Payload:   []byte(payload),
	}, nil
}

var _ domain.EventLog = (*eventLog)(nil)
