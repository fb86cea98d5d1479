package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/takeout/gateway"
	"github.com/example/takeout/pkg/audit"
	"github.com/example/takeout/pkg/config"
	"github.com/example/takeout/pkg/discovery"
	grpcserver "github.com/example/takeout/pkg/grpc"
	"github.com/example/takeout/pkg/idgen"
	"github.com/example/takeout/pkg/logger"
	"github.com/example/takeout/pkg/messaging"
	"github.com/example/takeout/pkg/metrics"
	"github.com/example/takeout/pkg/repository"
	"github.com/example/takeout/pkg/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Setup logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting takeout service",
		zap.String("name", cfg.Server.Name),
		zap.String("http", cfg.HTTP.Addr()),
		zap.String("grpc", cfg.GRPC.Addr()))

	db, err := repository.OpenDatabase(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}

	ctx := context.Background()

	redisRepo := repository.NewRedisRepository(&cfg.Redis)
	defer redisRepo.Close()
	if err := redisRepo.Ping(ctx); err != nil {
		log.Warn("Redis connection failed", zap.Error(err))
	} else {
		log.Info("Redis connected successfully")
	}

	// Audit trail goes to MongoDB through an actor when enabled
	var (
		auditor     service.Auditor
		auditReader gateway.AuditReader
	)
	if cfg.MongoDB.Enabled {
		mongoRepo, err := repository.NewMongoRepository(&cfg.MongoDB)
		if err != nil {
			log.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer mongoRepo.Close(context.Background())

		dispatcher := audit.NewDispatcher(mongoRepo, log.Named("audit"))
		defer dispatcher.Close()
		auditor = dispatcher
		auditReader = mongoRepo
	}

	var events service.EventPublisher
	if cfg.RabbitMQ.Enabled {
		publisher, err := messaging.NewPublisher(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer publisher.Close()
		events = publisher
	}

	ids, err := idgen.New(cfg.Snowflake.Node)
	if err != nil {
		log.Fatal("Failed to create id generator", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	gw := gateway.NewGateway(cfg, log, gateway.Services{
		Cart:      service.NewCartService(db, m, log),
		Orders:    service.NewOrderService(db, redisRepo, ids, auditor, events, m, log),
		Lifecycle: service.NewLifecycleGuard(db, redisRepo, auditor, m, log),
		Catalog:   service.NewCatalogQuery(db, redisRepo, auditor, log),
		Audit:     auditReader,
	}, m, registry)
	gw.SetupRoutes()

	health := grpcserver.NewHealthServer(log)
	health.SetServing("", true)
	health.SetServing(cfg.Server.Name, true)

	serverErr := make(chan error, 2)
	go func() {
		if err := gw.Start(); err != nil {
			serverErr <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		if err := health.Start(cfg.GRPC.Addr()); err != nil {
			serverErr <- fmt.Errorf("grpc: %w", err)
		}
	}()

	// Register in etcd for service discovery
	instance := &discovery.ServiceInstance{
		Name: cfg.Server.Name,
		Host: cfg.Server.Host,
		Port: cfg.HTTP.Port,
	}
	var sd *discovery.ServiceDiscovery
	if cfg.Etcd.Enabled {
		sd, err = discovery.NewServiceDiscovery(&cfg.Etcd, log)
		if err != nil {
			log.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
		} else if err := sd.Register(ctx, instance); err != nil {
			log.Warn("Failed to register service", zap.Error(err))
		} else {
			log.Info("Service registered in etcd", zap.String("address", instance.Addr()))
		}
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("Received shutdown signal")
	case err := <-serverErr:
		log.Error("Server error", zap.Error(err))
	}

	if sd != nil {
		if err := sd.Deregister(ctx, instance); err != nil {
			log.Error("Failed to deregister service", zap.Error(err))
		}
		sd.Close()
	}

	health.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", zap.Error(err))
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info("Service stopped")
}
