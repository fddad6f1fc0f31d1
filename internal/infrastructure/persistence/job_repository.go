package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/channelhub/backend/internal/domain/shared"
	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/infrastructure/persistence/models"
)

// GormJobRepository implements JobRepository using GORM
type GormJobRepository struct {
	db *gorm.DB
}

// NewGormJobRepository creates a new GormJobRepository
func NewGormJobRepository(db *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: db}
}

// activeStatuses are the states that block a duplicate enqueue
var activeStatuses = []sync.JobStatus{
	sync.JobStatusPending,
	sync.JobStatusProcessing,
	sync.JobStatusFailed,
}

// Enqueue persists a job unless an equivalent one is already queued or
// running. The check and insert run in one transaction so two concurrent
// triggers for the same dedupe key cannot both land.
func (r *GormJobRepository) Enqueue(ctx context.Context, job *sync.SyncJob) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.SyncJobModel{}).
			Where("dedupe_key = ? AND status IN ?", job.DedupeKey, activeStatuses).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return sync.ErrJobAlreadyQueued
		}
		return tx.Create(models.SyncJobModelFromDomain(job)).Error
	})
}

// FindRunnable retrieves pending jobs plus failed jobs whose backoff has
// elapsed, highest priority first, oldest first within a priority
func (r *GormJobRepository) FindRunnable(ctx context.Context, now time.Time, limit int) ([]*sync.SyncJob, error) {
	var jobModels []models.SyncJobModel
	if err := r.db.WithContext(ctx).
		Where("status = ? OR (status = ? AND next_retry_at <= ?)",
			sync.JobStatusPending, sync.JobStatusFailed, now).
		Order("priority DESC").
		Order("created_at ASC").
		Limit(limit).
		Find(&jobModels).Error; err != nil {
		return nil, err
	}

	jobs := make([]*sync.SyncJob, len(jobModels))
	for i, model := range jobModels {
		jobs[i] = model.ToDomain()
	}
	return jobs, nil
}

// MarkProcessing claims the given jobs one at a time with a guarded update,
// so a job grabbed by a concurrent worker between poll and claim is skipped
// rather than double-run. Returns only the jobs this caller actually claimed.
func (r *GormJobRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*sync.SyncJob, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	claimed := make([]uuid.UUID, 0, len(ids))
	now := time.Now()
	for _, id := range ids {
		result := r.db.WithContext(ctx).
			Model(&models.SyncJobModel{}).
			Where("id = ? AND status IN ?", id, []sync.JobStatus{sync.JobStatusPending, sync.JobStatusFailed}).
			Updates(map[string]any{
				"status":     sync.JobStatusProcessing,
				"updated_at": now,
			})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected > 0 {
			claimed = append(claimed, id)
		}
	}

	if len(claimed) == 0 {
		return nil, nil
	}

	var jobModels []models.SyncJobModel
	if err := r.db.WithContext(ctx).
		Where("id IN ?", claimed).
		Order("priority DESC").
		Order("created_at ASC").
		Find(&jobModels).Error; err != nil {
		return nil, err
	}

	jobs := make([]*sync.SyncJob, len(jobModels))
	for i, model := range jobModels {
		jobs[i] = model.ToDomain()
	}
	return jobs, nil
}

// Update persists job state transitions
func (r *GormJobRepository) Update(ctx context.Context, job *sync.SyncJob) error {
	return r.db.WithContext(ctx).Save(models.SyncJobModelFromDomain(job)).Error
}

// RequeueStale returns processing jobs last touched before the cutoff to
// the pending state. A worker that crashed or was killed mid-run never
// persisted an outcome, so its claim would otherwise strand the job.
func (r *GormJobRepository) RequeueStale(ctx context.Context, updatedBefore time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Where("status = ? AND updated_at < ?", sync.JobStatusProcessing, updatedBefore).
		Updates(map[string]any{
			"status":        sync.JobStatusPending,
			"next_retry_at": nil,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// FindByID finds a job by ID
func (r *GormJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*sync.SyncJob, error) {
	var model models.SyncJobModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindRecentByTenant returns the tenant's most recent jobs, newest first
func (r *GormJobRepository) FindRecentByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]*sync.SyncJob, error) {
	var jobModels []models.SyncJobModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobModels).Error; err != nil {
		return nil, err
	}

	jobs := make([]*sync.SyncJob, len(jobModels))
	for i, model := range jobModels {
		jobs[i] = model.ToDomain()
	}
	return jobs, nil
}

// StatsByTenant aggregates job counts for the tenant
func (r *GormJobRepository) StatsByTenant(ctx context.Context, tenantID uuid.UUID) (*sync.JobStats, error) {
	stats := &sync.JobStats{}

	type statusCount struct {
		Status sync.JobStatus
		Count  int64
	}
	var counts []statusCount
	if err := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Select("status, COUNT(*) as count").
		Where("tenant_id = ?", tenantID).
		Group("status").
		Scan(&counts).Error; err != nil {
		return nil, err
	}

	for _, c := range counts {
		stats.Total += c.Count
		switch c.Status {
		case sync.JobStatusCompleted:
			stats.Completed += c.Count
		case sync.JobStatusFailed, sync.JobStatusDead:
			stats.Failed += c.Count
		case sync.JobStatusPending, sync.JobStatusProcessing:
			stats.Pending += c.Count
		}
	}

	var lastCompleted models.SyncJobModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, sync.JobStatusCompleted).
		Order("completed_at DESC").
		First(&lastCompleted).Error
	if err == nil {
		stats.LastSync = lastCompleted.CompletedAt
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return stats, nil
}

// FindDead retrieves dead-lettered jobs with pagination, newest first
func (r *GormJobRepository) FindDead(ctx context.Context, page, pageSize int) ([]*sync.SyncJob, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Where("status = ?", sync.JobStatusDead).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobModels []models.SyncJobModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", sync.JobStatusDead).
		Order("updated_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&jobModels).Error; err != nil {
		return nil, 0, err
	}

	jobs := make([]*sync.SyncJob, len(jobModels))
	for i, model := range jobModels {
		jobs[i] = model.ToDomain()
	}
	return jobs, total, nil
}

// DeleteOlderThan prunes terminal jobs created before the given time
func (r *GormJobRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?",
			[]sync.JobStatus{sync.JobStatusCompleted, sync.JobStatusDead}, before).
		Delete(&models.SyncJobModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Ensure GormJobRepository implements JobRepository
var _ sync.JobRepository = (*GormJobRepository)(nil)
