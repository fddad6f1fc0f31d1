package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType identifies which handler a queued job is dispatched to
type JobType string

const (
	// JobTypeProductSync pushes one product to its target platforms
	JobTypeProductSync JobType = "product-sync"
	// JobTypeOrderSync imports orders for one tenant connection
	JobTypeOrderSync JobType = "order-sync"
	// JobTypeInventorySync reconciles stock levels for one tenant
	JobTypeInventorySync JobType = "inventory-sync"
	// JobTypeWebhook processes one verified webhook delivery
	JobTypeWebhook JobType = "webhook-processing"
)

// IsValid returns true if the job type is valid
func (t JobType) IsValid() bool {
	switch t {
	case JobTypeProductSync, JobTypeOrderSync, JobTypeInventorySync, JobTypeWebhook:
		return true
	default:
		return false
	}
}

// String returns the string representation of JobType
func (t JobType) String() string {
	return string(t)
}

// MaxAttempts returns the retry ceiling for the job type. Webhook jobs get a
// higher ceiling because delivery is more failure-prone and retries are
// cheaper there.
func (t JobType) MaxAttempts() int {
	if t == JobTypeWebhook {
		return 5
	}
	return 3
}

// DefaultPriority returns the scheduling priority for the job type. Order and
// inventory sync outrank product sync: stockouts and fulfillment delays are
// more business-critical than listing freshness.
func (t JobType) DefaultPriority() JobPriority {
	switch t {
	case JobTypeOrderSync, JobTypeInventorySync:
		return JobPriorityHigh
	case JobTypeWebhook:
		return JobPriorityHigh
	default:
		return JobPriorityNormal
	}
}

// JobPriority orders jobs within the queue; higher runs first
type JobPriority int

const (
	// JobPriorityNormal is the baseline priority
	JobPriorityNormal JobPriority = 0
	// JobPriorityHigh outranks normal work
	JobPriorityHigh JobPriority = 10
)

// JobStatus represents the lifecycle state of a queued job
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusDead       JobStatus = "DEAD"
)

// BaseRetryBackoff is the first retry delay; each further attempt doubles it
const BaseRetryBackoff = time.Second

// SyncJob is one durable unit of queued work. Jobs survive process restarts,
// are retried with exponential backoff on failure, and land in DEAD state for
// inspection once the retry budget is spent.
type SyncJob struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Type        JobType
	Platform    Platform
	Priority    JobPriority
	Status      JobStatus
	Payload     []byte
	Result      string
	DedupeKey   string
	Attempts    int
	MaxAttempts int
	LastError   string
	NextRetryAt *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewSyncJob creates a pending job. The resource parameter scopes the dedupe
// key so two jobs touching the same (tenant, platform, type, resource) tuple
// never run concurrently; pass an empty resource for tenant-wide jobs.
func NewSyncJob(tenantID uuid.UUID, jobType JobType, platform Platform, payload []byte, resource string) (*SyncJob, error) {
	if tenantID == uuid.Nil {
		return nil, ErrProductInvalidTenantID
	}
	if !jobType.IsValid() {
		return nil, ErrJobInvalidType
	}
	now := time.Now()
	return &SyncJob{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Type:        jobType,
		Platform:    platform,
		Priority:    jobType.DefaultPriority(),
		Status:      JobStatusPending,
		Payload:     payload,
		DedupeKey:   DedupeKey(tenantID, platform, jobType, resource),
		Attempts:    0,
		MaxAttempts: jobType.MaxAttempts(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// WithMaxAttempts overrides the retry ceiling for this job. Non-positive
// values keep the type default.
func (j *SyncJob) WithMaxAttempts(n int) *SyncJob {
	if n > 0 {
		j.MaxAttempts = n
	}
	return j
}

// DedupeKey builds the serialization key for a job
func DedupeKey(tenantID uuid.UUID, platform Platform, jobType JobType, resource string) string {
	return fmt.Sprintf("%s|%s|%s|%s", tenantID, platform, jobType, resource)
}

// CanRetry returns true if the job has retry budget left
func (j *SyncJob) CanRetry() bool {
	return j.Status == JobStatusFailed && j.Attempts < j.MaxAttempts
}

// MarkProcessing claims the job for a worker
func (j *SyncJob) MarkProcessing() error {
	if j.Status != JobStatusPending && j.Status != JobStatusFailed {
		return ErrJobNotClaimable
	}
	j.Status = JobStatusProcessing
	j.UpdatedAt = time.Now()
	return nil
}

// MarkCompleted records a successful run with its result summary
func (j *SyncJob) MarkCompleted(result string) {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.Result = result
	j.LastError = ""
	j.NextRetryAt = nil
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkFailed records a failed attempt. While budget remains the job is
// scheduled for retry with exponential backoff; once spent it goes DEAD and
// is retained for inspection rather than dropped.
func (j *SyncJob) MarkFailed(errMsg string) {
	j.Attempts++
	j.LastError = errMsg
	j.UpdatedAt = time.Now()

	if j.Attempts >= j.MaxAttempts {
		j.Status = JobStatusDead
		j.NextRetryAt = nil
	} else {
		j.Status = JobStatusFailed
		// Exponential backoff: 1s, 2s, 4s, ...
		backoff := BaseRetryBackoff * time.Duration(1<<uint(j.Attempts-1))
		nextRetry := time.Now().Add(backoff)
		j.NextRetryAt = &nextRetry
	}
}

// MarkDead moves the job straight to the dead letter state, bypassing the
// remaining retry budget. Used for failures no retry can fix.
func (j *SyncJob) MarkDead(errMsg string) {
	j.Attempts++
	j.LastError = errMsg
	j.Status = JobStatusDead
	j.NextRetryAt = nil
	j.UpdatedAt = time.Now()
}

// Requeue returns a claimed job to the pending state without burning an
// attempt. Used when a worker shuts down before running the job.
func (j *SyncJob) Requeue() {
	j.Status = JobStatusPending
	j.NextRetryAt = nil
	j.UpdatedAt = time.Now()
}

// IsDead returns true if the job exhausted its retry budget
func (j *SyncJob) IsDead() bool {
	return j.Status == JobStatusDead
}

// IsTerminal returns true if the job will not run again
func (j *SyncJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusDead
}

// JobStats aggregates job counts for the status read model
type JobStats struct {
	Total     int64      `json:"total"`
	Completed int64      `json:"completed"`
	Failed    int64      `json:"failed"`
	Pending   int64      `json:"pending"`
	LastSync  *time.Time `json:"last_sync,omitempty"`
}

// JobRepository is the persistence port for the durable queue
type JobRepository interface {
	// Enqueue persists a job unless an equivalent pending/processing job
	// already exists for its dedupe key; returns ErrJobAlreadyQueued then
	Enqueue(ctx context.Context, job *SyncJob) error

	// FindRunnable retrieves pending jobs plus failed jobs whose backoff has
	// elapsed, highest priority first, oldest first within a priority
	FindRunnable(ctx context.Context, now time.Time, limit int) ([]*SyncJob, error)

	// MarkProcessing atomically claims the given jobs and returns the ones
	// actually claimed; jobs claimed by a concurrent worker are skipped
	MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*SyncJob, error)

	// Update persists job state transitions
	Update(ctx context.Context, job *SyncJob) error

	// RequeueStale returns processing jobs last touched before the cutoff to
	// the pending state, recovering jobs whose worker died mid-run
	RequeueStale(ctx context.Context, updatedBefore time.Time) (int64, error)

	// FindByID retrieves a single job
	FindByID(ctx context.Context, id uuid.UUID) (*SyncJob, error)

	// FindRecentByTenant returns the tenant's most recent jobs, newest first
	FindRecentByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]*SyncJob, error)

	// StatsByTenant aggregates job counts for the tenant
	StatsByTenant(ctx context.Context, tenantID uuid.UUID) (*JobStats, error)

	// FindDead retrieves dead-lettered jobs with pagination
	FindDead(ctx context.Context, page, pageSize int) ([]*SyncJob, int64, error)

	// DeleteOlderThan prunes terminal jobs created before the given time
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
