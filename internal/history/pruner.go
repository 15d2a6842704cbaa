package history

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/ikayroni/weather-api/internal/observability"
)

// Pruner periodically trims the history table to its newest keep rows.
type Pruner struct {
	scheduler *gocron.Scheduler
	store     Store
	keep      int
	interval  time.Duration
	logger    *zap.Logger
}

// NewPruner creates a Pruner; Start schedules it. logger may be nil.
func NewPruner(store Store, keep int, interval time.Duration, logger *zap.Logger) *Pruner {
	if keep <= 0 {
		keep = 100
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Pruner{
		scheduler: gocron.NewScheduler(time.UTC),
		store:     store,
		keep:      keep,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the periodic prune job and starts the scheduler.
func (p *Pruner) Start() error {
	_, err := p.scheduler.Every(p.interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		removed, err := p.store.Prune(ctx, p.keep)
		if err != nil {
			if p.logger != nil {
				p.logger.Warn("history prune failed", zap.Error(err))
			}
			return
		}
		observability.HistoryPrunedTotal.Add(float64(removed))
		if removed > 0 && p.logger != nil {
			p.logger.Info("history pruned",
				zap.Int64("removed", removed), zap.Int("keep", p.keep))
		}
	})
	if err != nil {
		return err
	}
	p.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (p *Pruner) Stop() {
	if p.scheduler != nil {
		p.scheduler.Stop()
	}
}
