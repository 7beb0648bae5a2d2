package replay

import (
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
)

// Capture материализует текущую projection engine в снапшот на момент clock.Now().
func Capture(engine *Engine, clock domain.Clock) (domain.Snapshot, error) {
	if engine == nil {
		return domain.Snapshot{}, fmt.Errorf("engine is nil")
	}
	if clock == nil {
		clock = domain.ClockFunc(func() time.Time { return time.Now().UTC() })
	}

	state, err := engine.Project()
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("project for snapshot: %w", err)
	}
	payload, err := state.Encode()
	if err != nil {
		return domain.Snapshot{}, err
	}

	return domain.Snapshot{
		OrderID:   engine.OrderID(),
		CreatedAt: clock.Now(),
		Payload:   payload,
	}, nil
}

// SnapshotPolicy решает, пора ли снимать снапшот.
type SnapshotPolicy interface {
	ShouldSnapshot(orderID string, eventsSinceSnapshot int, at time.Time) bool
}

// EventCountPolicy снимает снапшот каждые N записанных событий. N <= 0 отключает политику.
type EventCountPolicy struct {
	N int
}

// ShouldSnapshot реализует SnapshotPolicy.
func (p EventCountPolicy) ShouldSnapshot(_ string, eventsSinceSnapshot int, _ time.Time) bool {
	return p.N > 0 && eventsSinceSnapshot > 0 && eventsSinceSnapshot%p.N == 0
}
