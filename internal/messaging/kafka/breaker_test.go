package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(maxFailures int, reset time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Date(2022, 9, 17, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(maxFailures, reset, nil)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute)
	boom := errors.New("boom")

	require.ErrorIs(t, cb.Execute("op", func() error { return boom }), boom)
	assert.Equal(t, CircuitClosed, cb.State())

	require.ErrorIs(t, cb.Execute("op", func() error { return boom }), boom)
	assert.Equal(t, CircuitOpen, cb.State())

	called := false
	err := cb.Execute("op", func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)

	require.Error(t, cb.Execute("op", func() error { return errors.New("boom") }))
	assert.Equal(t, CircuitOpen, cb.State())

	*now = now.Add(time.Minute)
	require.NoError(t, cb.Execute("op", func() error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(3, time.Second)

	for i := 0; i < 3; i++ {
		_ = cb.Execute("op", func() error { return errors.New("boom") })
	}
	require.Equal(t, CircuitOpen, cb.State())

	*now = now.Add(2 * time.Second)
	require.Error(t, cb.Execute("op", func() error { return errors.New("still down") }))
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Execute("op", func() error { return nil }), ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute)

	_ = cb.Execute("op", func() error { return errors.New("boom") })
	require.NoError(t, cb.Execute("op", func() error { return nil }))
	_ = cb.Execute("op", func() error { return errors.New("boom") })

	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(42).String())
}

func TestEventPublisher_WithBreakerStopsSending(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	breaker, _ := newTestBreaker(1, time.Minute)
	publisher := NewEventPublisher(NewProducerFromSync(mockProducer, nil), TopicOrderEvents).WithBreaker(breaker)

	require.Error(t, publisher.Publish(context.Background(), sampleEvent()))
	// Второй вызов не доходит до producer: mock упал бы на неожиданном сообщении.
	require.ErrorIs(t, publisher.Publish(context.Background(), sampleEvent()), ErrCircuitOpen)

	require.NoError(t, mockProducer.Close())
}
