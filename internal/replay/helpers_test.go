package replay_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
)

// stepClock отдаёт время, сдвигая его на step при каждом вызове.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(start time.Time) *stepClock {
	return &stepClock{now: start, step: time.Second}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.now
	c.now = c.now.Add(c.step)
	return current
}

// sequentialIDs генерирует предсказуемые идентификаторы событий.
func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// failingLog подменяет Append или EventsFrom ошибкой.
type failingLog struct {
	domain.EventLog
	appendErr error
	readErr   error
}

func (l *failingLog) Append(ctx context.Context, event domain.Event) error {
	if l.appendErr != nil {
		return l.appendErr
	}
	return l.EventLog.Append(ctx, event)
}

func (l *failingLog) EventsFrom(ctx context.Context, orderID string, from time.Time) ([]domain.Event, error) {
	if l.readErr != nil {
		return nil, l.readErr
	}
	return l.EventLog.EventsFrom(ctx, orderID, from)
}

type failingSnapshots struct {
	err error
}

func (s failingSnapshots) Latest(context.Context, string) (domain.Snapshot, error) {
	return domain.Snapshot{}, s.err
}

func (s failingSnapshots) Save(context.Context, domain.Snapshot) error {
	return s.err
}

func mustState(t *testing.T, raw string) domain.State {
	t.Helper()
	state, err := domain.DecodeState(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("decode state %s: %v", raw, err)
	}
	return state
}

func sept17(hour, minute int) time.Time {
	return time.Date(2022, 9, 17, hour, minute, 0, 0, time.UTC)
}
