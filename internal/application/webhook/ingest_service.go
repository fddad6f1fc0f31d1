package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/shared"
	"github.com/channelhub/backend/internal/domain/sync"
)

// DefaultDedupTTL is how long a delivery key stays claimed
const DefaultDedupTTL = 24 * time.Hour

// JobPayload is the queue payload for one verified webhook delivery
type JobPayload struct {
	EventType  sync.WebhookEventType `json:"event_type"`
	SourceID   string                `json:"source_id"`
	DeliveryID string                `json:"delivery_id,omitempty"`
	Body       json.RawMessage       `json:"body,omitempty"`
}

// IngestService runs the synchronous half of the webhook pipeline: verify,
// classify, resolve the tenant and enqueue. Everything heavier happens in
// the queue worker so the platform gets its 200 within the delivery window.
type IngestService struct {
	registry    sync.AdapterRegistry
	connections sync.ConnectionRepository
	jobs        sync.JobRepository
	dedup       shared.IdempotencyStore
	dedupTTL    time.Duration
	maxAttempts int
	logger      *zap.Logger
}

// NewIngestService creates a new webhook ingest service. maxAttempts
// overrides the retry ceiling of enqueued webhook jobs; zero keeps the
// per-type default.
func NewIngestService(registry sync.AdapterRegistry, connections sync.ConnectionRepository, jobs sync.JobRepository, dedup shared.IdempotencyStore, dedupTTL time.Duration, maxAttempts int, logger *zap.Logger) *IngestService {
	if dedupTTL <= 0 {
		dedupTTL = DefaultDedupTTL
	}
	return &IngestService{
		registry:    registry,
		connections: connections,
		jobs:        jobs,
		dedup:       dedup,
		dedupTTL:    dedupTTL,
		maxAttempts: maxAttempts,
		logger:      logger.Named("webhook"),
	}
}

// Ingest verifies one delivery and enqueues it for asynchronous processing.
// ErrInvalidSignature and ErrPlatformNotSupported propagate so the handler
// can map them to 401 and 404; every softer condition (unknown event,
// unresolved tenant, duplicate delivery) acks with a nil error and a log
// line, because platforms retry non-2xx responses and a retry cannot fix
// any of those.
func (s *IngestService) Ingest(ctx context.Context, platform sync.Platform, req *sync.WebhookRequest) error {
	adapter, err := s.registry.Get(platform)
	if err != nil {
		return err
	}

	event, err := adapter.VerifyWebhook(req)
	if err != nil {
		if errors.Is(err, sync.ErrInvalidSignature) {
			s.logger.Warn("webhook signature rejected",
				zap.String("platform", platform.String()))
			return err
		}
		if errors.Is(err, sync.ErrUnknownWebhookEvent) {
			s.logger.Info("ignoring unclassified webhook event",
				zap.String("platform", platform.String()))
			return nil
		}
		return err
	}

	if !s.claimDelivery(ctx, event) {
		s.logger.Debug("duplicate webhook delivery suppressed",
			zap.String("platform", platform.String()),
			zap.String("delivery_id", event.DeliveryID))
		return nil
	}

	if err := s.enqueueVerified(ctx, platform, event); err != nil {
		// A transient failure here means the platform will redeliver; the
		// claim has to go so the redelivery is not suppressed as a duplicate.
		s.releaseDelivery(ctx, event)
		return err
	}
	return nil
}

func (s *IngestService) enqueueVerified(ctx context.Context, platform sync.Platform, event *sync.WebhookEvent) error {
	conn, err := s.connections.FindByShopDomain(ctx, platform, event.SourceID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("webhook tenant unresolved, acking without enqueue",
				zap.String("platform", platform.String()),
				zap.String("source_id", event.SourceID),
				zap.String("event_type", event.EventType.String()))
			return nil
		}
		return err
	}

	payload, err := json.Marshal(JobPayload{
		EventType:  event.EventType,
		SourceID:   event.SourceID,
		DeliveryID: event.DeliveryID,
		Body:       event.Payload,
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	job, err := sync.NewSyncJob(conn.TenantID, sync.JobTypeWebhook, platform, payload, event.DeliveryID)
	if err != nil {
		return err
	}
	if err := s.jobs.Enqueue(ctx, job.WithMaxAttempts(s.maxAttempts)); err != nil {
		if errors.Is(err, sync.ErrJobAlreadyQueued) {
			s.logger.Debug("webhook job already queued",
				zap.String("platform", platform.String()),
				zap.String("delivery_id", event.DeliveryID))
			return nil
		}
		return err
	}

	s.logger.Info("webhook enqueued",
		zap.String("tenant_id", conn.TenantID.String()),
		zap.String("platform", platform.String()),
		zap.String("event_type", event.EventType.String()),
		zap.String("delivery_id", event.DeliveryID))
	return nil
}

// Challenge answers a subscription-time verification handshake
func (s *IngestService) Challenge(_ context.Context, platform sync.Platform, req *sync.WebhookRequest) (string, error) {
	adapter, err := s.registry.Get(platform)
	if err != nil {
		return "", err
	}
	return adapter.AnswerChallenge(req)
}

// claimDelivery reserves the delivery key. A dedup store failure counts as
// a successful claim; the queue dedupe key and the idempotent engines catch
// what slips through.
func (s *IngestService) claimDelivery(ctx context.Context, event *sync.WebhookEvent) bool {
	if event.DeliveryID == "" {
		return true
	}
	key := fmt.Sprintf("%s|%s", event.Platform, event.DeliveryID)
	claimed, err := s.dedup.Reserve(ctx, key, s.dedupTTL)
	if err != nil {
		s.logger.Warn("webhook dedup store unavailable",
			zap.String("platform", event.Platform.String()),
			zap.Error(err))
		return true
	}
	return claimed
}

func (s *IngestService) releaseDelivery(ctx context.Context, event *sync.WebhookEvent) {
	if event.DeliveryID == "" {
		return
	}
	key := fmt.Sprintf("%s|%s", event.Platform, event.DeliveryID)
	if err := s.dedup.Release(ctx, key); err != nil {
		s.logger.Warn("failed to release dedup claim",
			zap.String("platform", event.Platform.String()),
			zap.String("delivery_id", event.DeliveryID),
			zap.Error(err))
	}
}
