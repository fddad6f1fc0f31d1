package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	appsync "github.com/channelhub/backend/internal/application/sync"
	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/infrastructure/config"
)

// enqueueTimeout bounds one scheduling pass. A pass only enqueues jobs; the
// actual platform work happens in the queue workers.
const enqueueTimeout = time.Minute

// pruneSpec runs the retention prune once a day during the quiet hours
const pruneSpec = "0 3 * * *"

// Coordinator owns the recurring sync schedule. Each tick enumerates the
// tenants with at least one active connection and enqueues the interval's
// job type for each; the queue dedupe rule suppresses ticks that overlap a
// still-running job.
type Coordinator struct {
	cron        *cron.Cron
	trigger     *appsync.TriggerService
	connections sync.ConnectionRepository
	jobs        sync.JobRepository
	syncCfg     config.SyncConfig
	retention   time.Duration
	logger      *zap.Logger
}

// NewCoordinator creates a new scheduling coordinator
func NewCoordinator(trigger *appsync.TriggerService, connections sync.ConnectionRepository, jobs sync.JobRepository, syncCfg config.SyncConfig, retention time.Duration, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		cron:        cron.New(),
		trigger:     trigger,
		connections: connections,
		jobs:        jobs,
		syncCfg:     syncCfg,
		retention:   retention,
		logger:      logger.Named("scheduler"),
	}
}

// Start registers the cron entries and starts the scheduler
func (c *Coordinator) Start() error {
	c.cron.Schedule(cron.Every(c.syncCfg.OrderInterval), cron.FuncJob(func() {
		c.enqueueAll(sync.JobTypeOrderSync)
	}))
	c.cron.Schedule(cron.Every(c.syncCfg.InventoryInterval), cron.FuncJob(func() {
		c.enqueueAll(sync.JobTypeInventorySync)
	}))
	c.cron.Schedule(cron.Every(c.syncCfg.ProductInterval), cron.FuncJob(func() {
		c.enqueueAll(sync.JobTypeProductSync)
	}))
	if _, err := c.cron.AddFunc(pruneSpec, c.prune); err != nil {
		return err
	}

	c.cron.Start()
	c.logger.Info("scheduler started",
		zap.Duration("order_interval", c.syncCfg.OrderInterval),
		zap.Duration("inventory_interval", c.syncCfg.InventoryInterval),
		zap.Duration("product_interval", c.syncCfg.ProductInterval))
	return nil
}

// Stop halts the schedule and waits for any in-flight pass to finish
func (c *Coordinator) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
	c.logger.Info("scheduler stopped")
}

// enqueueAll runs one scheduling pass for the given job type
func (c *Coordinator) enqueueAll(jobType sync.JobType) {
	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()

	tenants, err := c.connections.ListTenantsWithActiveConnections(ctx)
	if err != nil {
		c.logger.Error("failed to enumerate tenants for scheduled sync",
			zap.String("sync_type", jobType.String()),
			zap.Error(err))
		return
	}

	enqueued, skipped := 0, 0
	for _, tenantID := range tenants {
		result, err := c.trigger.TriggerSync(ctx, tenantID, jobType)
		if err != nil {
			// a tenant disconnecting between the listing and the trigger
			// is not an error worth alerting on
			if errors.Is(err, sync.ErrPlatformNotConnected) {
				continue
			}
			c.logger.Error("scheduled sync trigger failed",
				zap.String("tenant_id", tenantID.String()),
				zap.String("sync_type", jobType.String()),
				zap.Error(err))
			continue
		}
		enqueued += result.Enqueued
		skipped += result.Skipped
	}

	c.logger.Info("scheduling pass complete",
		zap.String("sync_type", jobType.String()),
		zap.Int("tenants", len(tenants)),
		zap.Int("enqueued", enqueued),
		zap.Int("skipped", skipped))
}

// prune deletes finished jobs older than the retention window
func (c *Coordinator) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()

	deleted, err := c.jobs.DeleteOlderThan(ctx, time.Now().Add(-c.retention))
	if err != nil {
		c.logger.Error("job retention prune failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		c.logger.Info("pruned finished jobs",
			zap.Int64("deleted", deleted),
			zap.Duration("retention", c.retention))
	}
}
