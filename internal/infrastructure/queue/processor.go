package queue

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/sync"
)

// Handler executes one claimed job and returns a short result summary for
// the job record. A returned error consumes one retry attempt.
type Handler func(ctx context.Context, job *sync.SyncJob) (string, error)

// ProcessorConfig holds configuration for the job processor
type ProcessorConfig struct {
	Workers         int
	BatchSize       int
	PollInterval    time.Duration
	JobTimeout      time.Duration
	StaleAfter      time.Duration
	CleanupEnabled  bool
	Retention       time.Duration
	CleanupInterval time.Duration
}

// DefaultProcessorConfig returns default configuration
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Workers:         4,
		BatchSize:       50,
		PollInterval:    5 * time.Second,
		JobTimeout:      5 * time.Minute,
		StaleAfter:      15 * time.Minute,
		CleanupEnabled:  true,
		Retention:       30 * 24 * time.Hour,
		CleanupInterval: 1 * time.Hour,
	}
}

// Processor drains the durable job queue with a worker pool. Jobs are
// claimed atomically so multiple processor instances can share one queue,
// dispatched to the handler registered for their type, and retried with
// backoff until the budget is spent and they land in DEAD state.
type Processor struct {
	repo     sync.JobRepository
	handlers map[sync.JobType]Handler
	config   ProcessorConfig
	logger   *zap.Logger

	jobs   chan *sync.SyncJob
	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// NewProcessor creates a new job processor
func NewProcessor(repo sync.JobRepository, config ProcessorConfig, logger *zap.Logger) *Processor {
	if config.Workers <= 0 {
		config.Workers = DefaultProcessorConfig().Workers
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultProcessorConfig().BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultProcessorConfig().PollInterval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultProcessorConfig().CleanupInterval
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultProcessorConfig().StaleAfter
	}
	// A claim must outlive the longest legitimate run before it counts as
	// abandoned, otherwise a slow job would be double-run.
	if config.StaleAfter <= config.JobTimeout {
		config.StaleAfter = config.JobTimeout + time.Minute
	}
	return &Processor{
		repo:     repo,
		handlers: make(map[sync.JobType]Handler),
		config:   config,
		logger:   logger.Named("queue"),
		jobs:     make(chan *sync.SyncJob, config.BatchSize),
	}
}

// RegisterHandler binds a handler to a job type. Must be called before Start.
func (p *Processor) RegisterHandler(jobType sync.JobType, handler Handler) {
	p.handlers[jobType] = handler
}

// Start launches the poll loop, the worker pool, and the cleanup loop
func (p *Processor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.pollLoop(ctx)

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	if p.config.CleanupEnabled {
		p.wg.Add(1)
		go p.cleanupLoop(ctx)
	}

	p.logger.Info("job processor started",
		zap.Int("workers", p.config.Workers),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// Stop cancels polling and waits for in-flight jobs to finish
func (p *Processor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("job processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// staleSweepInterval is how often abandoned claims are checked for
const staleSweepInterval = time.Minute

// pollLoop claims runnable batches and feeds the worker pool. It also
// periodically requeues claims abandoned by a dead worker.
func (p *Processor) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	p.reclaimStale(ctx)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()
	staleTicker := time.NewTicker(staleSweepInterval)
	defer staleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-staleTicker.C:
			p.reclaimStale(ctx)
		case <-ticker.C:
			p.claimBatch(ctx)
		}
	}
}

// reclaimStale returns claims older than StaleAfter to the queue. A crashed
// worker never persists an outcome, so without this its jobs would sit in
// the processing state forever.
func (p *Processor) reclaimStale(ctx context.Context) {
	requeued, err := p.repo.RequeueStale(ctx, time.Now().Add(-p.config.StaleAfter))
	if err != nil {
		p.logger.Error("failed to requeue stale jobs", zap.Error(err))
		return
	}
	if requeued > 0 {
		p.logger.Warn("requeued jobs abandoned by a dead worker",
			zap.Int64("count", requeued),
			zap.Duration("stale_after", p.config.StaleAfter))
	}
}

// claimBatch finds runnable jobs and atomically claims them. Jobs already
// claimed by a concurrent processor instance are skipped by the repository.
func (p *Processor) claimBatch(ctx context.Context) {
	runnable, err := p.repo.FindRunnable(ctx, time.Now(), p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find runnable jobs", zap.Error(err))
		return
	}
	if len(runnable) == 0 {
		return
	}

	ids := make([]uuid.UUID, len(runnable))
	for i, job := range runnable {
		ids[i] = job.ID
	}

	claimed, err := p.repo.MarkProcessing(ctx, ids)
	if err != nil {
		p.logger.Error("failed to claim jobs", zap.Error(err))
		return
	}

	for _, job := range claimed {
		select {
		case <-ctx.Done():
			return
		case p.jobs <- job:
		}
	}
}

func (p *Processor) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			p.drainBacklog()
			return
		case job := <-p.jobs:
			p.runJob(ctx, job)
		}
	}
}

// drainBacklog returns claimed-but-unstarted jobs to the queue at shutdown
// so another instance can run them immediately instead of waiting for the
// stale sweep. Workers share the channel; whoever gets a job requeues it.
func (p *Processor) drainBacklog() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		select {
		case job := <-p.jobs:
			job.Requeue()
			if err := p.repo.Update(ctx, job); err != nil {
				p.logger.Error("failed to requeue job at shutdown",
					zap.String("job_id", job.ID.String()),
					zap.Error(err))
			}
		default:
			return
		}
	}
}

// runJob dispatches one claimed job to its handler and records the outcome
func (p *Processor) runJob(ctx context.Context, job *sync.SyncJob) {
	handler, ok := p.handlers[job.Type]
	if !ok {
		p.recordFailure(ctx, job, fmt.Errorf("%w: no handler registered for job type %s", sync.ErrJobInvalidType, job.Type))
		return
	}

	jobCtx := ctx
	if p.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, p.config.JobTimeout)
		defer cancel()
	}

	result, err := handler(jobCtx, job)
	if err != nil {
		p.recordFailure(ctx, job, err)
		return
	}

	job.MarkCompleted(result)
	if err := p.repo.Update(ctx, job); err != nil {
		p.logger.Error("failed to mark job completed",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
		return
	}
	p.logger.Debug("job completed",
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", job.Type.String()),
		zap.String("result", result))
}

// recordFailure burns one attempt and persists the retry or dead state.
// Failures no retry can fix skip the remaining budget and dead-letter
// immediately.
func (p *Processor) recordFailure(ctx context.Context, job *sync.SyncJob, cause error) {
	if retryableJobError(cause) {
		job.MarkFailed(cause.Error())
	} else {
		job.MarkDead(cause.Error())
	}

	if job.IsDead() {
		p.logger.Warn("job moved to dead letter queue",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", job.Type.String()),
			zap.String("tenant_id", job.TenantID.String()),
			zap.String("platform", string(job.Platform)),
			zap.Int("attempts", job.Attempts),
			zap.String("last_error", job.LastError))
	} else {
		p.logger.Info("job failed, scheduled for retry",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", job.Type.String()),
			zap.Int("attempts", job.Attempts),
			zap.Timep("next_retry_at", job.NextRetryAt),
			zap.Error(cause))
	}

	if err := p.repo.Update(ctx, job); err != nil {
		p.logger.Error("failed to persist job failure",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
	}
}

// retryableJobError classifies a handler failure. Malformed payloads,
// unroutable jobs and client-side platform rejections can never succeed on
// a later attempt.
func retryableJobError(err error) bool {
	if errors.Is(err, sync.ErrJobPayloadInvalid) || errors.Is(err, sync.ErrJobInvalidType) {
		return false
	}
	var adapterErr *sync.AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr.Retryable()
	}
	return true
}

// cleanupLoop periodically prunes old terminal jobs
func (p *Processor) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cleanup(ctx)
		}
	}
}

// cleanup removes completed and dead jobs past the retention window
func (p *Processor) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.Retention)
	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to prune old jobs", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("pruned old jobs",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff))
	}
}
