package sync

import "time"

// SyncResult summarizes one engine run. Partial failures are reported
// per-item; one platform's failure never hides the others' successes.
type SyncResult struct {
	// Status is the overall outcome
	Status SyncStatus `json:"status"`
	// TotalCount is the number of items the run attempted
	TotalCount int `json:"total_count"`
	// SuccessCount is the number of items that synced
	SuccessCount int `json:"success_count"`
	// FailedCount is the number of items that failed
	FailedCount int `json:"failed_count"`
	// FailedItems details each failure
	FailedItems []SyncFailure `json:"failed_items,omitempty"`
	// SyncedAt is when the run finished
	SyncedAt time.Time `json:"synced_at"`
}

// SyncFailure records one failed item within a run
type SyncFailure struct {
	// ItemID identifies the failed item (SKU, order id, platform name)
	ItemID string `json:"item_id"`
	// Platform is the platform the failure occurred on, if applicable
	Platform Platform `json:"platform,omitempty"`
	// ErrorMessage is the failure description
	ErrorMessage string `json:"error_message"`
}

// NewSyncResult derives the overall status from the counters
func NewSyncResult(total, success int, failures []SyncFailure) *SyncResult {
	status := SyncStatusSuccess
	switch {
	case total > 0 && success == 0:
		status = SyncStatusFailed
	case len(failures) > 0:
		status = SyncStatusPartial
	}
	return &SyncResult{
		Status:       status,
		TotalCount:   total,
		SuccessCount: success,
		FailedCount:  len(failures),
		FailedItems:  failures,
		SyncedAt:     time.Now(),
	}
}
