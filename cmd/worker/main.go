package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/example/retail-orders/internal/app"
	"github.com/example/retail-orders/internal/config"
	"github.com/example/retail-orders/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("invalid configuration", zap.Error(err))
	}
	logger.Init(cfg.AppEnv)
	defer logger.Sync()
	log := logger.Named("worker")

	if cfg.QueueBackend != config.BackendKafka {
		log.Fatal("worker consumes Kafka, set QUEUE_BACKEND=kafka", zap.String("queue", cfg.QueueBackend))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger.L())
	if err != nil {
		log.Fatal("failed to build services", zap.Error(err))
	}
	defer a.Close()

	consumer := a.NewConsumer()
	defer consumer.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		log.Info("consuming order queue",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
			zap.String("group", cfg.KafkaConsumerGroup))
		if err := consumer.Consume(ctx, a.StateMachine.OnQueueMessage); err != nil && ctx.Err() == nil {
			log.Error("consumer stopped", zap.Error(err))
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		a.RunSchedules(ctx)
	}()

	<-ctx.Done()
	log.Info("shutting down")
	wg.Wait()
}
