package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Every runs job once at start and then on each tick until ctx ends.
// A non-positive interval disables the job.
func Every(ctx context.Context, interval time.Duration, job func(now time.Time)) {
	if interval <= 0 {
		return
	}
	job(time.Now().UTC())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			job(t.UTC())
		}
	}
}

// RunSchedules runs the stale-order sweep and the stock reconciliation on
// their configured intervals. It blocks until ctx ends.
func (a *App) RunSchedules(ctx context.Context) {
	log := a.Log.Named("schedule")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		Every(ctx, a.Config.SweepInterval, func(now time.Time) {
			n, err := a.Reaper.SweepStaleOrders(ctx, now)
			report(log, "sweep", n, err)
		})
	}()
	go func() {
		defer wg.Done()
		Every(ctx, a.Config.ReconcileInterval, func(now time.Time) {
			n, err := a.Coordinator.ReconcileStock(ctx, now, a.Config.ReconcileGrace)
			report(log, "reconcile", n, err)
		})
	}()
	wg.Wait()
}

func report(log *zap.Logger, job string, n int, err error) {
	if err != nil {
		log.Error("job finished with errors", zap.String("job", job), zap.Int("affected", n), zap.Error(err))
		return
	}
	log.Info("job finished", zap.String("job", job), zap.Int("affected", n))
}
