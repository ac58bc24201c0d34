package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"sales-service/cache"
	apperrors "sales-service/common/errors"
	"sales-service/common/logger"
	"sales-service/common/middleware"
	"sales-service/controllers"
	"sales-service/database"
	"sales-service/events"
	"sales-service/hub"
	"sales-service/inventory"
	"sales-service/kafka"
	awspkg "sales-service/pkg/aws"
	"sales-service/repository"
	"sales-service/routes"
	"sales-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "sales-service"

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cwWriter, cwErr := awspkg.NewCloudWatchLogsClient(ctx, serviceName)
	var zlog *zap.Logger
	if cwErr == nil && cwWriter.IsEnabled() {
		zlog = logger.InitializeWithWriter(cfg.Env, cwWriter)
	} else {
		zlog = logger.Initialize(cfg.Env)
	}
	defer zlog.Sync() //nolint:errcheck
	if cwErr != nil {
		zlog.Warn("CloudWatch logs unavailable", zap.Error(cwErr))
	}

	metricsClient, err := awspkg.NewMetricsClient(ctx)
	if err != nil {
		zlog.Warn("CloudWatch metrics unavailable", zap.Error(err))
	}

	db, err := database.ConnectPostgres(cfg.Postgres, zlog)
	if err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db) //nolint:errcheck
	uow := repository.NewGormUnitOfWork(db)

	broadcaster := events.NewBroadcaster(1024, zlog)
	stock := cache.NewStockCache()

	link := inventory.NewLink(inventory.Config{
		URL:                 cfg.InventoryURL,
		Backoff:             inventory.Backoff{Base: cfg.InventoryReconnectBase, Max: cfg.InventoryReconnectMax},
		ReplyTimeout:        cfg.InventoryReplyTimeout,
		EchoesCorrelationID: cfg.InventoryEchoesCorrelate,
	}, stock, broadcaster, zlog)

	salesHub := hub.New(hub.Config{
		WriteTimeout: cfg.HubWriteTimeout,
		SendBuffer:   cfg.HubSendBuffer,
	}, zlog, hub.InventorySnapshot(stock))
	broadcaster.Subscribe(salesHub.HandleEvent)

	// Optional reconciliation queue
	var queue repository.ReconcileQueue
	var redisQueue *repository.RedisReconcileQueue
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL, zlog)
		if err != nil {
			zlog.Warn("Redis unavailable, undelivered decrements will not be queued", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
			redisQueue = repository.NewRedisReconcileQueue(redisClient)
			queue = redisQueue
		}
	}

	// Optional event sinks
	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.SalesEventsTopic, zlog)
		events.AttachKafka(broadcaster, producer, zlog)
	}
	if cfg.SalesSNSTopicARN != "" {
		if awsCfg, err := awspkg.LoadAWSConfig(ctx); err != nil {
			zlog.Warn("AWS config unavailable, SNS disabled", zap.Error(err))
		} else {
			events.AttachSNS(broadcaster, awspkg.NewSNSClient(awsCfg), cfg.SalesSNSTopicARN, zlog)
		}
	}

	// DI chain
	saleOpts := []services.SaleOption{services.WithMetrics(metricsClient)}
	if queue != nil {
		saleOpts = append(saleOpts, services.WithReconcileQueue(queue))
	}
	saleService := services.NewSaleService(uow, stock, link, broadcaster, zlog, saleOpts...)
	customerService := services.NewCustomerService(uow, broadcaster, zlog)
	orderService := services.NewOrderService(uow, broadcaster, metricsClient, zlog)
	orderProductService := services.NewOrderProductService(uow, broadcaster, zlog)

	var queueLen controllers.QueueLength
	if redisQueue != nil {
		queueLen = redisQueue
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(zlog))
	r.Use(middleware.MetricsMiddleware(metricsClient, serviceName))
	r.Use(apperrors.ErrorMiddleware())

	routes.RegisterRoutes(r, routes.Controllers{
		Sales:     controllers.NewSaleController(saleService),
		Customers: controllers.NewCustomerController(customerService),
		Orders:    controllers.NewOrderController(orderService, orderProductService),
		Inventory: controllers.NewInventoryController(stock, link, salesHub, queueLen),
	}, cfg.HubPath, salesHub, middleware.Timeout(cfg.RequestTimeout))

	// Background tasks
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		broadcaster.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := link.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zlog.Warn("Inventory link stopped", zap.Error(err))
		}
	}()
	if queue != nil {
		worker := services.NewReconcileWorker(queue, link, inventory.Backoff{
			Base: cfg.InventoryReconnectBase, Max: cfg.InventoryReconnectMax,
		}, zlog)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("Server failed", zap.Error(err))
		}
	}()

	zlog.Info("Sales service started",
		zap.String("port", cfg.Port),
		zap.String("inventory_url", cfg.InventoryURL),
		zap.String("hub_path", cfg.HubPath),
	)
	<-quit
	zlog.Info("Shutting down sales service...")

	// hijacked hub connections are not tracked by srv.Shutdown
	salesHub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("Server forced to shutdown", zap.Error(err))
	}

	// stops the link and its reconnect timer, the worker, then drains the broadcaster
	cancel()
	wg.Wait()

	if producer != nil {
		if err := producer.Close(); err != nil {
			zlog.Warn("Kafka producer close failed", zap.Error(err))
		}
	}
	zlog.Info("Server exited cleanly")
}
