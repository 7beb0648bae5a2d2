package replay

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
)

// Reducer — чистая функция (prior, event) -> next. Не должна мутировать prior,
// читать часы или внешнее состояние: от этого зависит детерминизм replay.
type Reducer func(prior domain.State, event domain.Event) (domain.State, error)

// Registry сопоставляет тип события с reducer.
type Registry struct {
	mu       sync.RWMutex
	reducers map[domain.EventType]Reducer
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{reducers: make(map[domain.EventType]Reducer)}
}

// NewOrderRegistry создаёт реестр с reducers домена заказов.
func NewOrderRegistry() *Registry {
	r := NewRegistry()
	r.mustRegister(domain.EventTypeInit, InitReducer)
	r.mustRegister(domain.EventTypeDeliveryAddressUpdated, DeliveryAddressUpdatedReducer)
	r.mustRegister(domain.EventTypeOrderIDChanged, OrderIDChangedReducer)
	return r
}

// Register связывает reducer с типом. Повторная регистрация отклоняется,
// чтобы ошибки сборки зависимостей всплывали сразу.
func (r *Registry) Register(eventType domain.EventType, reducer Reducer) error {
	if strings.TrimSpace(string(eventType)) == "" {
		return domain.ErrEventTypeRequired
	}
	if reducer == nil {
		return fmt.Errorf("reducer for %s is nil", eventType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.reducers[eventType]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateRegistration, eventType)
	}
	r.reducers[eventType] = reducer
	return nil
}

func (r *Registry) mustRegister(eventType domain.EventType, reducer Reducer) {
	if err := r.Register(eventType, reducer); err != nil {
		panic(err)
	}
}

// Dispatch находит reducer по типу события и применяет его.
func (r *Registry) Dispatch(prior domain.State, event domain.Event) (domain.State, error) {
	r.mu.RLock()
	reducer, ok := r.reducers[event.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownHandler, event.Type)
	}

	next, err := reducer(prior, event)
	if err != nil {
		return nil, fmt.Errorf("reduce %s: %w", event.Type, err)
	}
	return next, nil
}

// Has сообщает, зарегистрирован ли reducer для типа.
func (r *Registry) Has(eventType domain.EventType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.reducers[eventType]
	return ok
}

// Types возвращает зарегистрированные типы в отсортированном порядке.
func (r *Registry) Types() []domain.EventType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.EventType, 0, len(r.reducers))
	for t := range r.reducers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
