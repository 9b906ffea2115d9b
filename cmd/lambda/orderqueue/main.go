package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/example/retail-orders/internal/app"
	"github.com/example/retail-orders/internal/config"
	"github.com/example/retail-orders/internal/infrastructure/lambdax"
	"github.com/example/retail-orders/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("invalid configuration", zap.Error(err))
	}
	logger.Init(cfg.AppEnv)
	defer logger.Sync()
	log := logger.Named("lambda.orderqueue")

	a, err := app.New(context.Background(), cfg, logger.L())
	if err != nil {
		log.Fatal("failed to build services", zap.Error(err))
	}

	log.Info("initialized")
	lambda.Start(lambdax.SQSBatchHandler(a.StateMachine.OnQueueMessage, log))
}
