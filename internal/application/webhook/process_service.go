package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	appsync "github.com/channelhub/backend/internal/application/sync"
	"github.com/channelhub/backend/internal/domain/sync"
)

// webhookOrderLookback bounds the targeted import a webhook triggers. The
// event tells us something changed just now; a narrow window keeps the
// fetch cheap while still catching deliveries that arrive late.
const webhookOrderLookback = time.Hour

// ProcessService is the asynchronous half of the webhook pipeline. The
// queue worker hands it verified deliveries and it routes each event type
// to the matching sync engine.
type ProcessService struct {
	orders    *appsync.OrderSyncService
	inventory *appsync.InventorySyncService
	logger    *zap.Logger
}

// NewProcessService creates a new webhook process service
func NewProcessService(orders *appsync.OrderSyncService, inventory *appsync.InventorySyncService, logger *zap.Logger) *ProcessService {
	return &ProcessService{
		orders:    orders,
		inventory: inventory,
		logger:    logger.Named("webhook"),
	}
}

// Handle executes one queued webhook job. Registered against the webhook
// job type at startup.
func (s *ProcessService) Handle(ctx context.Context, job *sync.SyncJob) (string, error) {
	var payload JobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", sync.ErrJobPayloadInvalid, err)
	}

	switch payload.EventType {
	case sync.WebhookEventOrderCreated, sync.WebhookEventOrderUpdated:
		result, err := s.orders.ImportOrders(ctx, job.TenantID, job.Platform, time.Now().Add(-webhookOrderLookback))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s: imported %d orders, %d created, %d updated",
			payload.EventType, result.Total, result.Created, result.Updated), nil

	case sync.WebhookEventProductUpdated, sync.WebhookEventInventoryUpdated:
		result, err := s.inventory.ImportInventory(ctx, job.TenantID, job.Platform)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s: refreshed %d/%d items",
			payload.EventType, result.SuccessCount, result.TotalCount), nil

	default:
		s.logger.Warn("webhook job carries unknown event type",
			zap.String("event_type", payload.EventType.String()),
			zap.String("job_id", job.ID.String()))
		return fmt.Sprintf("ignored unknown event type %s", payload.EventType), nil
	}
}
