package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/sync"
)

// DefaultOrderLookback is how far back a triggered order import reaches when
// no explicit window is given
const DefaultOrderLookback = 24 * time.Hour

// recentJobsLimit caps the job list returned by the status read model
const recentJobsLimit = 20

// TriggerResult reports how many jobs a trigger actually enqueued. Jobs
// suppressed by the dedupe rule are reported, not treated as errors.
type TriggerResult struct {
	Enqueued int `json:"enqueued"`
	Skipped  int `json:"skipped"`
}

// JobDTO is the read-model view of one queued job
type JobDTO struct {
	ID          uuid.UUID     `json:"id"`
	Type        sync.JobType  `json:"type"`
	Platform    sync.Platform `json:"platform"`
	Status      sync.JobStatus `json:"status"`
	Attempts    int           `json:"attempts"`
	LastError   string        `json:"last_error,omitempty"`
	Result      string        `json:"result,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// SyncStatus is the status read model: aggregate counters plus recent jobs
type SyncStatus struct {
	Stats      *sync.JobStats `json:"stats"`
	RecentJobs []JobDTO       `json:"recent_jobs"`
}

// TriggerService enqueues sync work and serves the status read model. It is
// shared by the manual trigger endpoint and the cron coordinator; both paths
// go through the same dedupe rule.
type TriggerService struct {
	jobs          sync.JobRepository
	connections   sync.ConnectionRepository
	orderLookback time.Duration
	maxAttempts   int
	logger        *zap.Logger
}

// NewTriggerService creates a new trigger service. maxAttempts overrides the
// retry ceiling of enqueued jobs; zero keeps the per-type default.
func NewTriggerService(jobs sync.JobRepository, connections sync.ConnectionRepository, orderLookback time.Duration, maxAttempts int, logger *zap.Logger) *TriggerService {
	if orderLookback <= 0 {
		orderLookback = DefaultOrderLookback
	}
	return &TriggerService{
		jobs:          jobs,
		connections:   connections,
		orderLookback: orderLookback,
		maxAttempts:   maxAttempts,
		logger:        logger,
	}
}

// TriggerSync enqueues one job per active connection of the tenant for the
// given sync type. An equivalent job already queued or running counts as
// skipped; the trigger still succeeds.
func (s *TriggerService) TriggerSync(ctx context.Context, tenantID uuid.UUID, jobType sync.JobType) (*TriggerResult, error) {
	if !jobType.IsValid() || jobType == sync.JobTypeWebhook {
		return nil, sync.ErrJobInvalidType
	}

	conns, err := s.connections.FindActiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(conns) == 0 {
		return nil, sync.ErrPlatformNotConnected
	}

	result := &TriggerResult{}
	for _, conn := range conns {
		payload, err := s.payloadFor(jobType)
		if err != nil {
			return nil, err
		}
		job, err := sync.NewSyncJob(tenantID, jobType, conn.Platform, payload, "")
		if err != nil {
			return nil, err
		}
		if err := s.jobs.Enqueue(ctx, job.WithMaxAttempts(s.maxAttempts)); err != nil {
			if errors.Is(err, sync.ErrJobAlreadyQueued) {
				result.Skipped++
				continue
			}
			return nil, err
		}
		result.Enqueued++
	}

	s.logger.Info("sync triggered",
		zap.String("tenant_id", tenantID.String()),
		zap.String("sync_type", jobType.String()),
		zap.Int("enqueued", result.Enqueued),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// GetSyncStatus returns aggregate job stats plus the tenant's recent jobs
func (s *TriggerService) GetSyncStatus(ctx context.Context, tenantID uuid.UUID) (*SyncStatus, error) {
	stats, err := s.jobs.StatsByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	recent, err := s.jobs.FindRecentByTenant(ctx, tenantID, recentJobsLimit)
	if err != nil {
		return nil, err
	}

	status := &SyncStatus{
		Stats:      stats,
		RecentJobs: make([]JobDTO, 0, len(recent)),
	}
	for _, job := range recent {
		status.RecentJobs = append(status.RecentJobs, JobDTO{
			ID:          job.ID,
			Type:        job.Type,
			Platform:    job.Platform,
			Status:      job.Status,
			Attempts:    job.Attempts,
			LastError:   job.LastError,
			Result:      job.Result,
			CompletedAt: job.CompletedAt,
			CreatedAt:   job.CreatedAt,
		})
	}
	return status, nil
}

func (s *TriggerService) payloadFor(jobType sync.JobType) ([]byte, error) {
	switch jobType {
	case sync.JobTypeOrderSync:
		return json.Marshal(OrderSyncPayload{Since: time.Now().Add(-s.orderLookback)})
	case sync.JobTypeProductSync:
		return json.Marshal(ProductSyncPayload{})
	case sync.JobTypeInventorySync:
		return json.Marshal(InventorySyncPayload{})
	default:
		return nil, fmt.Errorf("%w: %s", sync.ErrJobInvalidType, jobType)
	}
}
