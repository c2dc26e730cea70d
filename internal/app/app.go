package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/furniture-store/internal/health"
	"github.com/vladislavdragonenkov/furniture-store/internal/metrics"
	"github.com/vladislavdragonenkov/furniture-store/internal/service/auth"
	"github.com/vladislavdragonenkov/furniture-store/internal/service/cart"
	"github.com/vladislavdragonenkov/furniture-store/internal/service/catalog"
	"github.com/vladislavdragonenkov/furniture-store/internal/service/orders"
	"github.com/vladislavdragonenkov/furniture-store/internal/service/outbox"
	"github.com/vladislavdragonenkov/furniture-store/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/furniture-store/internal/version"
)

const (
	healthWatchInterval = 5 * time.Second
	// outboxBacklogLimit порог pending сообщений, после которого outbox считается degraded.
	outboxBacklogLimit = 1000
)

// Run собирает зависимости и обслуживает HTTP API, gRPC health и метрики до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cascade, err := orders.ParseCascadeMode(cfg.CascadeMode)
	if err != nil {
		return err
	}

	st, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	manager := orders.NewManager(st.store,
		orders.WithLogger(logger.WithField("component", "order-manager")),
		orders.WithMetrics(metrics.NewOrderMetrics()),
		orders.WithCascadeMode(cascade),
	)
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	catalogSvc := catalog.NewService(st.store, hasher, logger.WithField("component", "catalog"))
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	authn := auth.NewAuthenticator(st.store.Users(), hasher, tokens)

	if err := bootstrapAdmin(ctx, cfg, catalogSvc, logger); err != nil {
		return err
	}

	pubs := initPublishers(cfg, logger)
	defer closeKafka(pubs.producer, logger)

	outboxMetrics := metrics.NewOutboxMetrics(prometheus.DefaultRegisterer)
	workerOpts := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(outboxMetrics),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if pubs.dlq != nil {
		workerOpts = append(workerOpts, outbox.WithDLQPublisher(pubs.dlq))
	}
	worker := outbox.NewWorker(st.store.Outbox(), pubs.main, workerOpts...)
	cleanup := outbox.NewCleanupWorker(st.store.Outbox(),
		outbox.WithCleanupLogger(logger.WithField("component", "outbox-cleanup")),
		outbox.WithCleanupMetrics(outboxMetrics),
		outbox.WithRetention(cfg.OutboxRetention),
		outbox.WithCleanupInterval(cfg.OutboxCleanupInterval),
	)
	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			worker.Run(workerCtx)
		}()
		go func() {
			defer wg.Done()
			cleanup.Run(workerCtx)
		}()
		wg.Wait()
	}()
	defer shutdownOutboxWorker(stopWorker, workerDone, logger)

	probes := healthcheck.NewRegistry(version.GetVersion())
	probes.Add(healthcheck.Probe{Name: "storage", Critical: true, Check: st.store.Ping})
	probes.Add(healthcheck.BacklogProbe("outbox", outboxBacklogLimit, func(ctx context.Context) (int, error) {
		stats, err := st.store.Outbox().Stats(ctx)
		return stats.PendingCount, err
	}))
	if pubs.producer != nil {
		probes.Add(healthcheck.Probe{Name: "kafka", Check: pubs.producer.Check})
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, probes)
	defer shutdownHTTP(metricsSrv, logger)

	carts := cart.NewService(st.store, manager, cart.WithLogger(logger.WithField("component", "cart")))
	api := httpapi.NewHandler(manager, catalogSvc, carts, authn, tokens, logger.WithField("component", "http-api"))
	apiSrv := &http.Server{
		Handler:           api.Router(cfg.RequestTimeout),
		ReadHeaderTimeout: 5 * time.Second,
	}
	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}

	grpcServer, healthServer := newGRPCServer(logger)
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = apiLis.Close()
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}
	go watchHealth(ctx, probes, healthServer, healthWatchInterval)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("HTTP API слушает %s", apiLis.Addr())
		if err := apiSrv.Serve(apiLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http api: %w", err)
		}
	}()
	go func() {
		logger.Infof("gRPC health сервер слушает %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case runErr = <-errCh:
		logger.WithError(runErr).Error("сервер завершился с ошибкой")
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownAPI(apiSrv, cfg.ShutdownTimeout, logger)
	stopGRPC(grpcServer, cfg.ShutdownTimeout, logger)

	return runErr
}

// bootstrapAdmin создаёт администратора из конфигурации, если он ещё не существует.
func bootstrapAdmin(ctx context.Context, cfg Config, svc *catalog.Service, logger *log.Entry) error {
	if cfg.AdminUsername == "" {
		return nil
	}
	admin, err := svc.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	logger.WithFields(log.Fields{
		"user_id":  admin.ID,
		"username": admin.Username,
	}).Info("администратор готов")
	return nil
}

// newGRPCServer собирает gRPC сервер со стандартным health-сервисом и метриками.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	return grpcServer, healthServer
}

// watchHealth переносит результат HTTP-проверок в статус gRPC health.
func watchHealth(ctx context.Context, probes *healthcheck.Registry, server *health.Server, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := probes.Evaluate(ctx)
			if ctx.Err() != nil {
				return
			}
			server.SetServingStatus("", servingStatus(report.Status))
		}
	}
}

func servingStatus(status healthcheck.Status) healthpb.HealthCheckResponse_ServingStatus {
	if status == healthcheck.StatusUnhealthy {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// startMetricsServer запускает HTTP-обработчик /metrics и health probes.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, probes *healthcheck.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", probes)
	mux.HandleFunc("/livez", healthcheck.Live)
	mux.HandleFunc("/readyz", probes.Ready)

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

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}

// shutdownAPI даёт активным запросам завершиться в пределах timeout.
func shutdownAPI(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http api shutdown with error")
	}
}

func stopGRPC(server *grpc.Server, timeout time.Duration, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// shutdownOutboxWorker останавливает воркер и ждёт завершения текущего цикла.
func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn("outbox worker did not stop in time")
	}
}
