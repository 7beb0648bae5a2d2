package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
	"github.com/vladislavdragonenkov/order-replay/internal/metrics"
)

// RehydrationIDPrefix отличает синтезированные при регидрации Init-события от остальных.
const RehydrationIDPrefix = "rehydration-"

// IsRehydrationEvent сообщает, записано ли событие engine при регидрации из снапшота.
func IsRehydrationEvent(event domain.Event) bool {
	return event.Type == domain.EventTypeInit && strings.HasPrefix(event.ID, RehydrationIDPrefix)
}

// Status — логическое состояние engine.
type Status int

const (
	StatusUninitialized Status = iota
	StatusInitialized
)

func (s Status) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	default:
		return "uninitialized"
	}
}

// Engine восстанавливает состояние одного заказа из снапшота и лога событий.
// Рабочая последовательность событий принадлежит экземпляру; Engine не потокобезопасен.
type Engine struct {
	orderID  string
	events   domain.EventLog
	registry *Registry

	clock             domain.Clock
	sink              TraceSink
	logger            *log.Entry
	metrics           *metrics.ReplayMetrics
	recordRehydration bool
	exclusiveBoundary bool
	snapshotFirst     bool
	newID             func() string

	status  Status
	seed    *domain.Snapshot
	working []domain.Event
}

// NewEngine строит engine: берёт последний снапшот, синтезирует из него Init
// и забирает из лога события начиная с момента снапшота. При пустом хранилище
// снапшотов сворачивается весь лог заказа. snapshots может быть nil.
func NewEngine(
	ctx context.Context,
	orderID string,
	events domain.EventLog,
	snapshots domain.SnapshotStore,
	registry *Registry,
	options ...Option,
) (*Engine, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, domain.ErrOrderIDRequired
	}
	if events == nil {
		return nil, errors.New("event log is not configured")
	}
	if registry == nil {
		return nil, errors.New("registry is not configured")
	}

	opts := defaultEngineOptions()
	for _, option := range options {
		option(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "replay-engine")
	}
	if opts.Sink == nil {
		opts.Sink = DiscardSink{}
	}

	e := &Engine{
		orderID:           orderID,
		events:            events,
		registry:          registry,
		clock:             opts.Clock,
		sink:              opts.Sink,
		logger:            logger.WithField("order_id", orderID),
		metrics:           opts.Metrics,
		recordRehydration: opts.RecordRehydration,
		exclusiveBoundary: opts.ExclusiveBoundary,
		snapshotFirst:     opts.SnapshotFirst,
		newID:             opts.NewID,
	}

	snapshot, found, err := latestSnapshot(ctx, snapshots, orderID)
	if err != nil {
		return nil, err
	}

	if !found {
		history, err := events.EventsFrom(ctx, orderID, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("read event log: %w", err)
		}
		e.working = dedupe(history, nil)
		e.status = StatusInitialized
		e.logger.WithField("events", len(e.working)).Debug("engine initialized without snapshot")
		return e, nil
	}

	if err := e.rehydrate(ctx, snapshot); err != nil {
		return nil, err
	}
	return e, nil
}

func latestSnapshot(ctx context.Context, store domain.SnapshotStore, orderID string) (domain.Snapshot, bool, error) {
	if store == nil {
		return domain.Snapshot{}, false, nil
	}
	snapshot, err := store.Latest(ctx, orderID)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("read latest snapshot: %w", err)
	}
	return snapshot, true, nil
}

// rehydrate синтезирует Init со временем "сейчас" (а не временем снапшота),
// фиксируя сам факт регидрации, и собирает рабочую последовательность.
func (e *Engine) rehydrate(ctx context.Context, snapshot domain.Snapshot) error {
	seed := domain.Event{
		ID:        RehydrationIDPrefix + e.newID(),
		OrderID:   e.orderID,
		Type:      domain.EventTypeInit,
		CreatedAt: e.clock.Now(),
		Payload:   snapshot.Payload,
	}

	// Сначала чтение: при его ошибке в логе не должно остаться Init от engine, который не вернулся.
	persisted, err := e.events.EventsFrom(ctx, e.orderID, snapshot.CreatedAt)
	if err != nil {
		return fmt.Errorf("read event log from %s: %w", snapshot.CreatedAt.Format(time.RFC3339Nano), err)
	}

	if e.recordRehydration {
		if err := e.events.Append(ctx, seed); err != nil {
			return fmt.Errorf("append rehydration event: %w", err)
		}
		e.metrics.RecordEventAppended(string(seed.Type))
	}

	keep := func(event domain.Event) bool {
		if event.ID == seed.ID {
			return false
		}
		if e.exclusiveBoundary && !event.CreatedAt.After(snapshot.CreatedAt) {
			return false
		}
		if e.snapshotFirst && IsRehydrationEvent(event) {
			return false
		}
		return true
	}

	if e.snapshotFirst {
		e.working = append([]domain.Event{seed}, dedupe(persisted, keep)...)
	} else {
		e.working = append(dedupe(persisted, keep), seed)
	}
	e.seed = &snapshot
	e.status = StatusInitialized
	e.metrics.RecordRehydration()

	e.logger.WithFields(log.Fields{
		"snapshot_at": snapshot.CreatedAt.Format(time.RFC3339Nano),
		"events":      len(e.working),
		"audited":     e.recordRehydration,
	}).Debug("engine rehydrated from snapshot")
	return nil
}

// dedupe сохраняет порядок и отбрасывает повторы по идентификатору события.
func dedupe(events []domain.Event, keep func(domain.Event) bool) []domain.Event {
	seen := make(map[string]struct{}, len(events))
	out := make([]domain.Event, 0, len(events)+1)
	for _, event := range events {
		if keep != nil && !keep(event) {
			continue
		}
		if event.ID != "" {
			if _, dup := seen[event.ID]; dup {
				continue
			}
			seen[event.ID] = struct{}{}
		}
		out = append(out, event)
	}
	return out
}

// OrderID возвращает идентификатор заказа.
func (e *Engine) OrderID() string { return e.orderID }

// Status возвращает логическое состояние engine.
func (e *Engine) Status() Status { return e.status }

// Seed возвращает снапшот, из которого инициализирован engine.
func (e *Engine) Seed() (domain.Snapshot, bool) {
	if e.seed == nil {
		return domain.Snapshot{}, false
	}
	return *e.seed, true
}

// Events возвращает копию рабочей последовательности событий.
func (e *Engine) Events() []domain.Event {
	out := make([]domain.Event, len(e.working))
	copy(out, e.working)
	return out
}

// Emit записывает новое событие в лог и в рабочую последовательность.
// Состояние не пересчитывается: оно строится лениво в Project.
func (e *Engine) Emit(ctx context.Context, eventType domain.EventType, payload any) (domain.Event, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return domain.Event{}, err
	}

	event := domain.Event{
		ID:        e.newID(),
		OrderID:   e.orderID,
		Type:      eventType,
		CreatedAt: e.clock.Now(),
		Payload:   raw,
	}
	if err := event.Validate(); err != nil {
		return domain.Event{}, err
	}

	if err := e.events.Append(ctx, event); err != nil {
		return domain.Event{}, fmt.Errorf("append %s: %w", eventType, err)
	}
	e.working = append(e.working, event)
	e.metrics.RecordEventAppended(string(eventType))

	e.logger.WithFields(log.Fields{
		"event_id": event.ID,
		"type":     event.Type,
	}).Debug("event emitted")
	return event, nil
}

// EmitInit записывает Init с полным состоянием.
func (e *Engine) EmitInit(ctx context.Context, state domain.State) (domain.Event, error) {
	return e.Emit(ctx, domain.EventTypeInit, state)
}

// EmitDeliveryAddressUpdated записывает смену адреса доставки.
func (e *Engine) EmitDeliveryAddressUpdated(ctx context.Context, firstName, lastName string) (domain.Event, error) {
	return e.Emit(ctx, domain.EventTypeDeliveryAddressUpdated, domain.DeliveryAddress{
		FirstName: firstName,
		LastName:  lastName,
	})
}

// EmitOrderIDChanged записывает смену номера заказа.
func (e *Engine) EmitOrderIDChanged(ctx context.Context, orderID int64) (domain.Event, error) {
	return e.Emit(ctx, domain.EventTypeOrderIDChanged, domain.OrderIDChanged{OrderID: orderID})
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		return p, nil
	case domain.State:
		return p.Encode()
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		return data, nil
	}
}

// Project пересчитывает состояние с нуля и отдаёт trace в sink.
func (e *Engine) Project() (domain.State, error) {
	state, _, err := e.ProjectWithTrace()
	return state, err
}

// ProjectWithTrace пересчитывает состояние и возвращает trace вызывающему.
// Sink получает записи только после успешного fold.
func (e *Engine) ProjectWithTrace() (domain.State, []TraceRecord, error) {
	start := time.Now()
	state, records, err := Fold(e.registry, e.working)
	if err != nil {
		e.metrics.RecordProjection(metrics.ResultError, time.Since(start))
		e.logger.WithError(err).Warn("projection aborted")
		return nil, nil, err
	}
	e.metrics.RecordProjection(metrics.ResultOK, time.Since(start))

	for _, record := range records {
		e.metrics.RecordEventApplied(string(record.Handler))
		e.sink.Trace(record)
	}
	return state, records, nil
}
