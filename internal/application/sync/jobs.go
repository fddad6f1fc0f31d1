package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/sync"
)

// OrderSyncPayload parameterizes one order import job
type OrderSyncPayload struct {
	// Since bounds the import window; the zero value falls back to the
	// default lookback at execution time
	Since time.Time `json:"since,omitempty"`
}

// ProductSyncPayload parameterizes one product sync job. A nil ProductID
// means the whole catalog.
type ProductSyncPayload struct {
	ProductID *uuid.UUID      `json:"product_id,omitempty"`
	Platforms []sync.Platform `json:"platforms,omitempty"`
}

// InventorySyncPayload parameterizes one inventory import job
type InventorySyncPayload struct{}

// JobHandlers adapts the sync engines to the queue's handler signature.
// Each method is registered against its job type at startup.
type JobHandlers struct {
	orders    *OrderSyncService
	products  *ProductSyncService
	inventory *InventorySyncService
	lookback  time.Duration
	logger    *zap.Logger
}

// NewJobHandlers creates the handler set for the three sync job types
func NewJobHandlers(orders *OrderSyncService, products *ProductSyncService, inventory *InventorySyncService, lookback time.Duration, logger *zap.Logger) *JobHandlers {
	if lookback <= 0 {
		lookback = DefaultOrderLookback
	}
	return &JobHandlers{
		orders:    orders,
		products:  products,
		inventory: inventory,
		lookback:  lookback,
		logger:    logger,
	}
}

// HandleOrderSync imports orders for the job's platform since the payload's
// window start
func (h *JobHandlers) HandleOrderSync(ctx context.Context, job *sync.SyncJob) (string, error) {
	var payload OrderSyncPayload
	if err := decodePayload(job.Payload, &payload); err != nil {
		return "", err
	}
	since := payload.Since
	if since.IsZero() {
		since = time.Now().Add(-h.lookback)
	}

	result, err := h.orders.ImportOrders(ctx, job.TenantID, job.Platform, since)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("imported %d orders: %d created, %d updated, %d skipped",
		result.Total, result.Created, result.Updated, result.Skipped), nil
}

// HandleProductSync pushes one product, or the whole catalog, to the
// connected platforms
func (h *JobHandlers) HandleProductSync(ctx context.Context, job *sync.SyncJob) (string, error) {
	var payload ProductSyncPayload
	if err := decodePayload(job.Payload, &payload); err != nil {
		return "", err
	}

	// Queued jobs are scoped to their own platform so the per-connection
	// jobs a trigger fans out never push the same listing twice.
	platforms := payload.Platforms
	if job.Platform != "" {
		platforms = []sync.Platform{job.Platform}
	}

	if payload.ProductID != nil {
		results, err := h.products.SyncProduct(ctx, job.TenantID, *payload.ProductID, platforms)
		if err != nil {
			return "", err
		}
		success := 0
		for _, r := range results {
			if r.Success {
				success++
			}
		}
		return fmt.Sprintf("synced product to %d/%d platforms", success, len(results)), nil
	}

	result, err := h.products.SyncAllProducts(ctx, job.TenantID, platforms)
	if err != nil {
		return "", err
	}
	return summarizeRun("synced", result), nil
}

// HandleInventorySync imports platform stock levels into the canonical
// inventory
func (h *JobHandlers) HandleInventorySync(ctx context.Context, job *sync.SyncJob) (string, error) {
	var payload InventorySyncPayload
	if err := decodePayload(job.Payload, &payload); err != nil {
		return "", err
	}

	result, err := h.inventory.ImportInventory(ctx, job.TenantID, job.Platform)
	if err != nil {
		return "", err
	}
	return summarizeRun("imported", result), nil
}

func decodePayload(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", sync.ErrJobPayloadInvalid, err)
	}
	return nil
}

func summarizeRun(verb string, result *sync.SyncResult) string {
	return fmt.Sprintf("%s %d/%d items, %d failed", verb, result.SuccessCount, result.TotalCount, result.FailedCount)
}
