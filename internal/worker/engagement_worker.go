package worker

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/festivo/ops-service/internal/config"
	"github.com/festivo/ops-service/internal/service"
)

// sweepBatchSize bounds how many due engagements one sweep run touches.
const sweepBatchSize = 200

// StartEngagementSweeper schedules the timeout sweep on the configured
// cron spec and returns the running scheduler, or nil when sweeping is
// disabled. The caller stops it on shutdown.
func StartEngagementSweeper(cfg config.SweepConfig, engagements *service.EngagementService, logger *zap.Logger) (*cron.Cron, error) {
	if !cfg.Enabled {
		logger.Info("engagement sweeper disabled")
		return nil, nil
	}
	c := cron.New()
	_, err := c.AddFunc(cfg.CronSpec, func() {
		ctx := context.Background()
		advanced, err := engagements.Sweep(ctx, sweepBatchSize)
		if err != nil {
			logger.Error("engagement sweep failed", zap.Error(err))
			return
		}
		if advanced > 0 {
			logger.Info("engagement sweep advanced engagements", zap.Int("count", advanced))
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	logger.Info("engagement sweeper started", zap.String("cron", cfg.CronSpec))
	return c, nil
}
