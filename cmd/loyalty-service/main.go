package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_loyalty/internal/cache"
	"github.com/fjod/go_loyalty/internal/cart"
	"github.com/fjod/go_loyalty/internal/catalog"
	"github.com/fjod/go_loyalty/internal/checkout"
	"github.com/fjod/go_loyalty/internal/coins"
	"github.com/fjod/go_loyalty/internal/config"
	h "github.com/fjod/go_loyalty/internal/http"
	"github.com/fjod/go_loyalty/internal/ledger"
	"github.com/fjod/go_loyalty/internal/notifier"
	"github.com/fjod/go_loyalty/internal/orders"
	"github.com/fjod/go_loyalty/internal/pricing"
	"github.com/fjod/go_loyalty/internal/publisher"
	"github.com/fjod/go_loyalty/internal/repository"
	"github.com/fjod/go_loyalty/internal/store"
	"github.com/fjod/go_loyalty/pkg/circuitbreaker"
	"github.com/fjod/go_loyalty/pkg/clock"
	"github.com/fjod/go_loyalty/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// backends groups the stores behind the services. Postgres and Mongo in
// production, a single MemoryStore otherwise.
type backends struct {
	sessions     cart.SessionStore
	instruments  ledger.Store
	coins        coins.Store
	orders       orders.Repository
	outbox       publisher.EventSource
	productCache catalog.ProductCache
	checks       map[string]h.HealthCheck
	closers      []func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()
	zap.ReplaceGlobals(zl)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	ctx := context.Background()
	clk := clock.System{}

	b, err := openBackends(ctx, cfg, clk, zl)
	if err != nil {
		zl.Fatal("failed to open storage", zap.Error(err))
	}
	defer b.close(zl)

	catalogRepo, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		zl.Fatal("failed to open catalog", zap.Error(err))
	}
	defer catalogRepo.Close()
	if err := catalogRepo.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		zl.Fatal("failed to run catalog migrations", zap.Error(err))
	}

	var channel orders.Notifier
	if cfg.KafkaEnabled() {
		breaker := circuitbreaker.New(circuitbreaker.DefaultSettings("notifications"), zl)
		kn := notifier.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaNotificationsTopic, breaker, clk, zl)
		defer kn.Close()
		channel = kn
	} else {
		channel = notifier.NewLogNotifier(zl)
	}

	policy := coins.Policy{
		CoinRate:           cfg.CoinRate,
		RedemptionUnit:     cfg.CoinRedemptionUnit,
		MaxPerTransaction:  cfg.MaxCoinsPerTransaction,
		MinProofCodeLength: cfg.MinProofCodeLength,
	}
	engine := pricing.NewEngine(cfg.CoinRate)
	messages := orders.NewMessages(cfg.StorePhone, cfg.PhoneCountryCode)

	productSvc := catalog.NewService(catalogRepo, b.productCache, zl)
	cardSvc := ledger.NewService(b.instruments, clk, zl)
	coinSvc := coins.NewService(b.coins, b.instruments, policy, clk, zl)
	cartSvc := cart.NewService(b.sessions, productSvc, cardSvc, coinSvc, engine, clk, zl)
	orderMgr := orders.NewManager(b.orders, engine, channel, messages, clk, zl)
	checkoutSvc := checkout.NewService(cartSvc, coinSvc, cardSvc, orderMgr, engine, channel, messages, zl)
	orderMgr.Subscribe(checkoutSvc)

	var wg sync.WaitGroup
	pollerCtx, pollerCancel := context.WithCancel(ctx)
	var poller *publisher.OutboxPoller
	if cfg.KafkaEnabled() && b.outbox != nil {
		poller = publisher.NewOutboxPoller(b.outbox, cfg.KafkaOrderEventsTopic, zl, cfg.KafkaBrokers...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(pollerCtx)
		}()
	}

	router := h.NewRouter(h.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		AdminToken:     cfg.AdminToken,
		HealthChecks:   b.checks,
	}, h.Handlers{
		Cart:     h.NewCartHandler(cartSvc, checkoutSvc, cfg.RequestTimeout, zl),
		Orders:   h.NewOrdersHandler(orderMgr, cfg.RequestTimeout, zl),
		Products: h.NewProductHandler(productSvc, cfg.RequestTimeout, zl),
		Loyalty:  h.NewLoyaltyHandler(cardSvc, coinSvc, cfg.RequestTimeout, zl),
	}, zl)
	if cfg.AdminToken == "" {
		zl.Warn("ADMIN_TOKEN is empty, admin endpoints are disabled")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "loyalty-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zl.Info("http server starting", zap.String("port", cfg.HTTPPort), zap.String("storage", cfg.Storage))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("http server error", zap.Error(err))
		}
	}()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		zl.Fatal("failed to listen", zap.String("port", cfg.GRPCPort), zap.Error(err))
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	// Enable reflection for grpcurl/grpcui
	reflection.Register(grpcServer)

	go func() {
		zl.Info("grpc health server starting", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			zl.Fatal("grpc server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down loyalty service")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("http server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	pollerCancel()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		zl.Info("background workers stopped")
	case <-shutdownCtx.Done():
		zl.Warn("background workers didn't stop in time")
	}

	if poller != nil {
		if err := poller.Close(); err != nil {
			zl.Warn("failed to close outbox poller", zap.Error(err))
		}
	}
	zl.Info("loyalty service stopped")
}

func openBackends(ctx context.Context, cfg *config.Config, clk clock.Clock, zl *zap.Logger) (*backends, error) {
	if cfg.Storage == config.StorageMemory {
		mem := store.NewMemoryStore(cfg.SessionTTL, clk)
		zl.Warn("using in-memory storage, data is lost on restart")
		return &backends{
			sessions:    mem,
			instruments: mem,
			coins:       mem,
			orders:      mem,
			closers:     []func() error{mem.Close},
		}, nil
	}

	b := &backends{checks: make(map[string]h.HealthCheck)}

	creds := &repository.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		SSLMode:           cfg.DBSSLMode,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	repo, err := repository.NewRepository(creds)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	b.closers = append(b.closers, repo.Close)
	if err := repo.RunMigrations(creds); err != nil {
		b.close(zl)
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	zl.Info("database migrations completed")
	b.coins = repo
	b.orders = repo
	b.outbox = repo
	b.checks["postgres"] = func(context.Context) error { return repo.Ping() }

	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		b.close(zl)
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	b.closers = append(b.closers, func() error { return mongoDB.Client().Disconnect(context.Background()) })
	instruments := repository.NewInstrumentRepository(mongoDB)
	if err := instruments.CreateIndexes(ctx); err != nil {
		b.close(zl)
		return nil, fmt.Errorf("create instrument indexes: %w", err)
	}
	b.instruments = instruments
	b.checks["mongodb"] = func(ctx context.Context) error { return mongoDB.Client().Ping(ctx, nil) }

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})
	b.closers = append(b.closers, redisClient.Close)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		b.close(zl)
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	b.sessions = cache.NewSessionStore(redisClient, cfg.SessionTTL)
	b.productCache = cache.NewProductCache(redisClient)
	b.checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }

	return b, nil
}

// close releases the backends in reverse order of opening.
func (b *backends) close(zl *zap.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			zl.Warn("failed to close backend", zap.Error(err))
		}
	}
	b.closers = nil
}
