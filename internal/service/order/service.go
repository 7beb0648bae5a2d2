// Package order — хост-сервис над replay-ядром: сериализует запись и replay по заказу,
// публикует события и снимает снапшоты.
package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
	"github.com/vladislavdragonenkov/order-replay/internal/metrics"
	"github.com/vladislavdragonenkov/order-replay/internal/replay"
)

// EventPublisher получает каждое записанное в лог событие.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Projection — результат replay одного заказа.
type Projection struct {
	OrderID string               `json:"order_id"`
	State   domain.State         `json:"state"`
	Trace   []replay.TraceRecord `json:"trace"`
	// SnapshotAt — время снапшота, из которого поднят engine; nil, если снапшота нет.
	SnapshotAt *time.Time `json:"snapshot_at,omitempty"`
	Events     int        `json:"events"`
}

// Service выполняет команды над заказами поверх EventLog и SnapshotStore.
// Запись и последующий replay одного заказа выполняются под эксклюзивной блокировкой.
type Service struct {
	events    domain.EventLog
	snapshots domain.SnapshotStore
	registry  *replay.Registry

	clock             domain.Clock
	logger            *log.Entry
	metrics           *metrics.ReplayMetrics
	publisher         EventPublisher
	sink              replay.TraceSink
	policy            replay.SnapshotPolicy
	recordRehydration bool
	exclusiveBoundary bool

	locks *keyedMutex

	mu      sync.Mutex
	pending map[string]int
}

// NewService создаёт сервис заказов.
func NewService(events domain.EventLog, snapshots domain.SnapshotStore, registry *replay.Registry, options ...Option) (*Service, error) {
	if events == nil {
		return nil, errors.New("event log is not configured")
	}
	if snapshots == nil {
		return nil, errors.New("snapshot store is not configured")
	}
	if registry == nil {
		registry = replay.NewOrderRegistry()
	}

	opts := defaultServiceOptions()
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "order-service")
	}
	sink := opts.TraceSink
	if sink == nil {
		sink = replay.DiscardSink{}
	}

	return &Service{
		events:            events,
		snapshots:         snapshots,
		registry:          registry,
		clock:             opts.Clock,
		logger:            logger,
		metrics:           opts.Metrics,
		publisher:         opts.Publisher,
		sink:              sink,
		policy:            opts.SnapshotPolicy,
		recordRehydration: opts.RecordRehydration,
		exclusiveBoundary: opts.ExclusiveBoundary,
		locks:             newKeyedMutex(),
		pending:           make(map[string]int),
	}, nil
}

func (s *Service) newEngine(ctx context.Context, orderID string) (*replay.Engine, error) {
	return replay.NewEngine(ctx, orderID, s.events, s.snapshots, s.registry,
		replay.WithClock(s.clock),
		replay.WithTraceSink(s.sink),
		replay.WithLogger(s.logger),
		replay.WithMetrics(s.metrics),
		replay.WithRehydrationAudit(s.recordRehydration),
		replay.WithExclusiveBoundary(s.exclusiveBoundary),
		replay.WithSnapshotFirst(true),
	)
}

func normalizeOrderID(orderID string) (string, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", domain.ErrOrderIDRequired
	}
	return orderID, nil
}

// Project восстанавливает текущее состояние заказа вместе с trace.
func (s *Service) Project(ctx context.Context, orderID string) (Projection, error) {
	orderID, err := normalizeOrderID(orderID)
	if err != nil {
		return Projection{}, err
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	engine, err := s.newEngine(ctx, orderID)
	if err != nil {
		return Projection{}, err
	}
	return s.project(engine)
}

func (s *Service) project(engine *replay.Engine) (Projection, error) {
	state, trace, err := engine.ProjectWithTrace()
	if err != nil {
		return Projection{}, err
	}

	projection := Projection{
		OrderID: engine.OrderID(),
		State:   state,
		Trace:   trace,
		Events:  len(engine.Events()),
	}
	if seed, ok := engine.Seed(); ok {
		at := seed.CreatedAt.UTC()
		projection.SnapshotAt = &at
	}
	return projection, nil
}

// Initialize записывает Init с полным состоянием заказа.
func (s *Service) Initialize(ctx context.Context, orderID string, state domain.State) (domain.Event, error) {
	if state == nil {
		state = domain.State{}
	}
	return s.emit(ctx, orderID, func(engine *replay.Engine) (domain.Event, error) {
		return engine.EmitInit(ctx, state)
	})
}

// UpdateDeliveryAddress записывает смену адреса доставки.
func (s *Service) UpdateDeliveryAddress(ctx context.Context, orderID string, address domain.DeliveryAddress) (domain.Event, error) {
	return s.emit(ctx, orderID, func(engine *replay.Engine) (domain.Event, error) {
		return engine.EmitDeliveryAddressUpdated(ctx, address.FirstName, address.LastName)
	})
}

// ChangeOrderID записывает смену номера заказа.
func (s *Service) ChangeOrderID(ctx context.Context, orderID string, number int64) (domain.Event, error) {
	return s.emit(ctx, orderID, func(engine *replay.Engine) (domain.Event, error) {
		return engine.EmitOrderIDChanged(ctx, number)
	})
}

func (s *Service) emit(ctx context.Context, orderID string, emit func(*replay.Engine) (domain.Event, error)) (domain.Event, error) {
	orderID, err := normalizeOrderID(orderID)
	if err != nil {
		return domain.Event{}, err
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	engine, err := s.newEngine(ctx, orderID)
	if err != nil {
		return domain.Event{}, err
	}

	event, err := emit(engine)
	if err != nil {
		return domain.Event{}, err
	}

	s.afterAppend(ctx, event)
	s.maybeSnapshot(ctx, engine)
	return event, nil
}

// Append записывает готовое событие (например, из Kafka ingest).
// Тип должен быть зарегистрирован, а payload — применим reducer'ом, иначе лог не трогается.
func (s *Service) Append(ctx context.Context, event domain.Event) error {
	orderID, err := normalizeOrderID(event.OrderID)
	if err != nil {
		return err
	}
	event.OrderID = orderID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.clock.Now()
	}
	if err := event.Validate(); err != nil {
		return err
	}
	// Reducers проверяют только форму payload, поэтому пустого prior достаточно.
	if _, err := s.registry.Dispatch(domain.State{}, event); err != nil {
		return err
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	recorded, err := s.checkNotBehindSnapshot(ctx, event)
	if err != nil || recorded {
		return err
	}

	if err := s.events.Append(ctx, event); err != nil {
		return fmt.Errorf("append %s: %w", event.Type, err)
	}
	s.metrics.RecordEventAppended(string(event.Type))
	s.afterAppend(ctx, event)

	if s.policy != nil && s.policy.ShouldSnapshot(orderID, s.pendingCount(orderID), s.clock.Now()) {
		engine, err := s.newEngine(ctx, orderID)
		if err != nil {
			s.logger.WithError(err).WithField("order_id", orderID).Warn("auto snapshot skipped")
			return nil
		}
		s.saveSnapshot(ctx, engine)
	}
	return nil
}

// checkNotBehindSnapshot отклоняет событие, которое replay начнёт читать уже после него.
// Повторная доставка уже записанного события не ошибка: recorded == true, лог не трогается.
// Вызывается под блокировкой заказа.
func (s *Service) checkNotBehindSnapshot(ctx context.Context, event domain.Event) (bool, error) {
	snapshot, err := s.snapshots.Latest(ctx, event.OrderID)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load latest snapshot: %w", err)
	}

	behind := event.CreatedAt.Before(snapshot.CreatedAt)
	if s.exclusiveBoundary && event.CreatedAt.Equal(snapshot.CreatedAt) {
		behind = true
	}
	if !behind {
		return false, nil
	}

	logged, err := s.events.EventsFrom(ctx, event.OrderID, time.Time{})
	if err != nil {
		return false, fmt.Errorf("load order events: %w", err)
	}
	for _, existing := range logged {
		if existing.ID == event.ID {
			return true, nil
		}
	}

	return false, fmt.Errorf("event %s at %s, snapshot at %s: %w",
		event.ID, event.CreatedAt.Format(time.RFC3339Nano), snapshot.CreatedAt.Format(time.RFC3339Nano), domain.ErrEventOutOfOrder)
}

func (s *Service) afterAppend(ctx context.Context, event domain.Event) {
	s.mu.Lock()
	s.pending[event.OrderID]++
	s.mu.Unlock()

	if s.publisher == nil {
		return
	}
	// Событие уже в логе; сбой публикации не отменяет команду.
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": event.OrderID,
			"event_id": event.ID,
		}).Warn("failed to publish order event")
	}
}

func (s *Service) pendingCount(orderID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[orderID]
}

func (s *Service) maybeSnapshot(ctx context.Context, engine *replay.Engine) {
	if s.policy == nil {
		return
	}
	if !s.policy.ShouldSnapshot(engine.OrderID(), s.pendingCount(engine.OrderID()), s.clock.Now()) {
		return
	}
	s.saveSnapshot(ctx, engine)
}

func (s *Service) saveSnapshot(ctx context.Context, engine *replay.Engine) {
	if _, err := s.capture(ctx, engine); err != nil {
		s.logger.WithError(err).WithField("order_id", engine.OrderID()).Warn("auto snapshot failed")
	}
}

// CaptureSnapshot материализует текущее состояние заказа в снапшот.
func (s *Service) CaptureSnapshot(ctx context.Context, orderID string) (domain.Snapshot, error) {
	orderID, err := normalizeOrderID(orderID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	engine, err := s.newEngine(ctx, orderID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return s.capture(ctx, engine)
}

func (s *Service) capture(ctx context.Context, engine *replay.Engine) (domain.Snapshot, error) {
	snapshot, err := replay.Capture(engine, s.clock)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if err := s.snapshots.Save(ctx, snapshot); err != nil {
		return domain.Snapshot{}, fmt.Errorf("save snapshot: %w", err)
	}

	s.mu.Lock()
	delete(s.pending, snapshot.OrderID)
	s.mu.Unlock()
	s.metrics.RecordSnapshot()

	s.logger.WithFields(log.Fields{
		"order_id":    snapshot.OrderID,
		"snapshot_at": snapshot.CreatedAt,
	}).Info("snapshot captured")
	return snapshot, nil
}

// PendingOrders возвращает заказы с событиями, записанными после последнего снапшота.
func (s *Service) PendingOrders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := make([]string, 0, len(s.pending))
	for orderID, count := range s.pending {
		if count > 0 {
			orders = append(orders, orderID)
		}
	}
	sort.Strings(orders)
	return orders
}
