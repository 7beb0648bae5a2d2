// Package app собирает процесс order-replay: хранилище, сервис заказов, HTTP API,
// метрики и health, gRPC health и Kafka.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/trickstertwo/xclock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/order-replay/internal/health"
	"github.com/vladislavdragonenkov/order-replay/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/order-replay/internal/metrics"
	"github.com/vladislavdragonenkov/order-replay/internal/replay"
	"github.com/vladislavdragonenkov/order-replay/internal/service/order"
	httptransport "github.com/vladislavdragonenkov/order-replay/internal/transport/http"
	"github.com/vladislavdragonenkov/order-replay/internal/version"
)

const shutdownTimeout = 5 * time.Second

// SystemClock — часы процесса на xclock, всегда в UTC.
func SystemClock() domain.Clock {
	clock := xclock.Default()
	return domain.ClockFunc(func() time.Time { return clock.Now().UTC() })
}

// Run запускает все компоненты и блокируется до отмены ctx или падения gRPC сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	// Kafka опциональна: ошибка уже залогирована, сервис работает только с хранилищем.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	orderService, err := newOrderService(cfg, deps, kafkaProducer, logger)
	if err != nil {
		return err
	}

	consumer, err := startIngestConsumer(ctx, cfg, orderService, kafkaProducer, logger)
	if err != nil {
		logger.WithError(err).Warn("kafka ingest is disabled")
	}
	defer stopConsumer(consumer, logger)

	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := startSnapshotWorker(workerCtx, cfg, orderService, logger)
	defer func() {
		stopWorker()
		<-workerDone
	}()

	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", deps.storageChecker)
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	apiSrv := startAPIServer(ctx, cfg.HTTPAddr, logger, httptransport.NewRouter(httptransport.Deps{
		Orders: orderService,
		Logger: logger.WithField("layer", "http"),
	}))
	defer shutdownHTTP(apiSrv, logger)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC health сервер слушает %s", lis.Addr())
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stoppedCh := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stoppedCh)
		}()
		select {
		case <-stoppedCh:
		case <-time.After(shutdownTimeout):
			logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
			grpcServer.Stop()
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// newOrderService собирает сервис заказов с trace в лог и, если есть producer, в Kafka.
func newOrderService(cfg Config, deps runtimeDependencies, producer *kafka.Producer, logger *log.Entry) (*order.Service, error) {
	sinks := replay.MultiSink{replay.NewLogSink(logger.WithField("layer", "replay-trace"), log.DebugLevel)}
	options := []order.Option{
		order.WithLogger(logger.WithField("layer", "order-service")),
		order.WithClock(SystemClock()),
		order.WithMetrics(metrics.NewReplayMetrics()),
		order.WithSnapshotEvery(cfg.SnapshotEvery),
		order.WithRehydrationAudit(cfg.RecordRehydration),
		order.WithExclusiveBoundary(cfg.ExclusiveBoundary),
	}
	if producer != nil {
		breaker := kafka.NewCircuitBreaker(cfg.KafkaBreakerFailures, cfg.KafkaBreakerReset, logger.WithField("layer", "kafka-breaker"))
		options = append(options, order.WithPublisher(kafka.NewEventPublisher(producer, cfg.KafkaEventsTopic).WithBreaker(breaker)))
		sinks = append(sinks, kafka.NewTraceSink(producer, cfg.KafkaTraceTopic, logger.WithField("layer", "kafka-trace")))
	}
	options = append(options, order.WithTraceSink(sinks))

	return order.NewService(deps.events, deps.snapshots, nil, options...)
}

// startSnapshotWorker запускает фоновые снапшоты; закрытый канал означает, что воркер завершился.
func startSnapshotWorker(ctx context.Context, cfg Config, snapshotter order.Snapshotter, logger *log.Entry) <-chan struct{} {
	done := make(chan struct{})
	if cfg.SnapshotInterval <= 0 {
		close(done)
		return done
	}

	worker := order.NewSnapshotWorker(snapshotter,
		order.WithWorkerLogger(logger.WithField("layer", "snapshot-worker")),
		order.WithInterval(cfg.SnapshotInterval),
	)
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	return done
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus и health probes.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// startAPIServer запускает HTTP API заказов.
func startAPIServer(ctx context.Context, addr string, logger *log.Entry, handler http.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("HTTP API слушает %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("api server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
