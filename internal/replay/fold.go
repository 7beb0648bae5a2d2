package replay

import (
	"fmt"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
)

// Fold последовательно применяет события к пустому состоянию.
// Чистая функция: одинаковые события дают одинаковый результат.
// При ошибке частичное состояние не возвращается.
func Fold(registry *Registry, events []domain.Event) (domain.State, []TraceRecord, error) {
	if registry == nil {
		return nil, nil, fmt.Errorf("registry is not configured")
	}

	state := domain.State{}
	records := make([]TraceRecord, 0, len(events))
	for i, event := range events {
		next, err := registry.Dispatch(state, event)
		if err != nil {
			return nil, nil, fmt.Errorf("apply event #%d (id=%s): %w", i, event.ID, err)
		}
		state = next
		records = append(records, TraceRecord{
			Handler:   event.Type,
			EventID:   event.ID,
			OrderID:   event.OrderID,
			CreatedAt: event.CreatedAt,
			Payload:   event.Payload,
			State:     state,
		})
	}

	return state, records, nil
}
