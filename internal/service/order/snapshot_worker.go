package order

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
)

const defaultSnapshotInterval = time.Minute

var (
	snapshotWorkerRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oms_snapshot_worker_runs_total",
		Help: "Total number of snapshot worker runs grouped by result.",
	}, []string{"result"})
	snapshotWorkerLastCaptured = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oms_snapshot_worker_last_captured",
		Help: "Number of snapshots captured during the last worker run.",
	})
)

// Snapshotter — то, что умеет снимать снапшоты заказов; реализуется Service.
type Snapshotter interface {
	PendingOrders() []string
	CaptureSnapshot(ctx context.Context, orderID string) (domain.Snapshot, error)
}

// WorkerOptions задаёт параметры SnapshotWorker.
type WorkerOptions struct {
	Logger   *log.Entry
	Interval time.Duration
}

// WorkerOption настраивает SnapshotWorker.
type WorkerOption func(*WorkerOptions)

// WithWorkerLogger задаёт logger воркера.
func WithWorkerLogger(logger *log.Entry) WorkerOption {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithInterval задаёт интервал между прогонами.
func WithInterval(interval time.Duration) WorkerOption {
	return func(opts *WorkerOptions) {
		opts.Interval = interval
	}
}

// SnapshotWorker периодически снимает снапшоты заказов, изменённых с прошлого снапшота.
type SnapshotWorker struct {
	service  Snapshotter
	logger   *log.Entry
	interval time.Duration
}

// NewSnapshotWorker создаёт воркер снапшотов.
func NewSnapshotWorker(service Snapshotter, options ...WorkerOption) *SnapshotWorker {
	opts := WorkerOptions{Interval: defaultSnapshotInterval}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "snapshot-worker")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultSnapshotInterval
	}

	return &SnapshotWorker{
		service:  service,
		logger:   logger,
		interval: opts.Interval,
	}
}

// Run запускает периодические снапшоты до отмены ctx.
func (w *SnapshotWorker) Run(ctx context.Context) {
	if w.service == nil {
		w.logger.Warn("snapshot worker is disabled: service is nil")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

func (w *SnapshotWorker) run(ctx context.Context) {
	captured, err := w.CapturePending(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		snapshotWorkerRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("snapshot worker run failed")
		return
	}

	snapshotWorkerRunsTotal.WithLabelValues("ok").Inc()
	snapshotWorkerLastCaptured.Set(float64(captured))
	if captured > 0 {
		w.logger.WithField("captured", captured).Info("snapshot worker run completed")
	}
}

// CapturePending снимает снапшоты всех заказов из PendingOrders.
// Ошибка одного заказа не останавливает прогон; возвращается первая из них.
func (w *SnapshotWorker) CapturePending(ctx context.Context) (int, error) {
	var (
		captured int
		firstErr error
	)
	for _, orderID := range w.service.PendingOrders() {
		if err := ctx.Err(); err != nil {
			return captured, err
		}
		if _, err := w.service.CaptureSnapshot(ctx, orderID); err != nil {
			w.logger.WithError(err).WithField("order_id", orderID).Warn("snapshot capture failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		captured++
	}
	return captured, firstErr
}
