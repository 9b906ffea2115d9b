package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/retail-orders/internal/api"
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
	log := logger.Named("api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger.L())
	if err != nil {
		log.Fatal("failed to build services", zap.Error(err))
	}
	defer a.Close()

	// With the in-memory queue there is no worker process, so the consumer
	// and the scheduled jobs run here.
	var wg sync.WaitGroup
	if a.MemoryQueue != nil {
		wg.Add(2)
		go func() {
			defer wg.Done()
			log.Info("starting in-process order queue consumer")
			if err := a.MemoryQueue.Run(ctx, a.StateMachine.OnQueueMessage); err != nil && ctx.Err() == nil {
				log.Error("order queue consumer stopped", zap.Error(err))
			}
		}()
		go func() {
			defer wg.Done()
			log.Info("starting in-process schedules",
				zap.Duration("sweep_interval", cfg.SweepInterval),
				zap.Duration("reconcile_interval", cfg.ReconcileInterval))
			a.RunSchedules(ctx)
		}()
	}

	router := api.NewRouter(api.NewHandlers(a.APIDeps()), a.JWT, api.DefaultRouterConfig(), logger.Named("http"))
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server started", zap.String("addr", cfg.HTTPAddr),
			zap.String("store", cfg.StoreBackend), zap.String("queue", cfg.QueueBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	wg.Wait()
}
