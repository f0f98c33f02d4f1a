package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/dedup"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/docstore"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/docstore/memstore"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/docstore/mongostore"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/docstore/pgstore"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/events"
	httpapi "github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/http"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/idempotency"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/logging"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/sequence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Store ---
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeStore()

	m := metrics.New("stocksync")
	svcOpts := []inventory.Option{inventory.WithLogger(logger), inventory.WithMetrics(m)}
	wfOpts := []order.Option{order.WithLogger(logger), order.WithLowStockThreshold(cfg.LowStockThreshold)}

	// --- Idempotency ---
	var claims idempotency.Claimer
	if cfg.RedisURL != "" {
		rdb, err := idempotency.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis connect", zap.Error(err))
		}
		defer rdb.Close()
		claims = idempotency.NewRedisClaimer(rdb)
	} else {
		claims = idempotency.NewMemoryClaimer()
	}
	svcOpts = append(svcOpts, inventory.WithClaimer(claims, cfg.IdempotencyTTL))

	// --- AMQP ---
	var consumer *events.Consumer
	if cfg.RabbitMQURL != "" {
		conn, err := events.Dial(cfg.RabbitMQURL)
		if err != nil {
			logger.Fatal("rabbitmq connect", zap.Error(err))
		}
		defer conn.Close()

		pub, err := events.NewPublisher(conn, sequence.NewRepository(store), events.PublisherOptions{
			PublishEnveloped: cfg.PublishEnveloped,
			Producer:         cfg.ServiceName,
		})
		if err != nil {
			logger.Fatal("start publisher", zap.Error(err))
		}
		defer pub.Close()

		svcOpts = append(svcOpts, inventory.WithNotifier(pub))
		wfOpts = append(wfOpts, order.WithEvents(pub))
		consumer = events.NewConsumer(conn, cfg.ServiceName, logger)
	} else {
		logger.Info("RABBITMQ_URL not set, events disabled")
	}

	svc := inventory.NewService(inventory.NewDocumentRepository(store), svcOpts...)
	wf := order.NewWorkflow(order.NewRepository(store), svc, wfOpts...)

	if consumer != nil {
		handler := events.StockRestockedHandler(svc, dedup.NewRepository(store), claims, logger, events.RestockConsumerName)
		if err := consumer.Start(ctx, events.StockRestockedRoutingKey, handler); err != nil {
			logger.Fatal("start restock consumer", zap.Error(err))
		}
	}

	// --- HTTP ---
	router := httpapi.NewRouter(httpapi.NewInventoryHandler(svc), httpapi.NewOrderHandler(wf), httpapi.RouterOptions{
		Logger:         logger,
		Metrics:        m,
		RequestTimeout: cfg.RequestTimeout,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("http server failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()

	logger.Info("shutdown complete")
}

// openStore builds the document store selected by STORE_DRIVER and returns a
// function releasing its connections.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (docstore.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(disconnectCtx)
		}
		return mongostore.New(client.Database(cfg.MongoDatabase)), closeFn, nil

	case config.StorePostgres:
		if cfg.RunMigrations {
			if err := db.RunMigrations(cfg.DatabaseDSN, logger); err != nil {
				return nil, nil, err
			}
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		return pgstore.New(pool), pool.Close, nil

	default:
		logger.Warn("using in-memory store, data is lost on restart")
		return memstore.New(), func() {}, nil
	}
}
