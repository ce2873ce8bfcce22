package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tansucloud/tansu-outbox/pkg/adminserver"
	"github.com/tansucloud/tansu-outbox/pkg/config"
	"github.com/tansucloud/tansu-outbox/pkg/metrics"
	"github.com/tansucloud/tansu-outbox/pkg/outbox"
	"github.com/tansucloud/tansu-outbox/pkg/publish"
	"github.com/tansucloud/tansu-outbox/pkg/store/postgres"
	redisclient "github.com/tansucloud/tansu-outbox/pkg/store/redis"
	"github.com/tansucloud/tansu-outbox/pkg/tenant"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	db, err := postgres.NewStore(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	repo := postgres.NewOutboxRepository(db.DB())
	if cfg.Outbox.RowLocking {
		repo = repo.WithRowLocking()
	}

	var publisher publish.Publisher
	switch cfg.Outbox.Publisher {
	case "kafka":
		kafkaPublisher := publish.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	default:
		redis, err := redisclient.NewClient(&cfg.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redis.Close()
		publisher = publish.NewRedisPublisher(redis.Client())
	}

	resolver := tenant.NewSingleStoreResolver(db.DB())
	recorder := metrics.NewRecorder(cfg.Outbox.DispatchTenant)

	dispatcher := outbox.NewDispatcher(repo, resolver, publisher, recorder, logger, cfg.Outbox)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := dispatcher.Run(ctx); err != nil && err != context.Canceled {
			logger.Fatal("outbox dispatcher stopped with error", zap.Error(err))
		}
	}()

	admin := adminserver.NewServer(repo, cfg, logger)
	go func() {
		if err := admin.Run(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("admin server stopped with error", zap.Error(err))
		}
	}()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics listener starting", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics listener stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("outbox dispatcher shutting down")
}
