package sync

import "errors"

var (
	// Platform errors
	ErrPlatformNotSupported    = errors.New("sync: platform not supported")
	ErrPlatformNotConnected    = errors.New("sync: platform not connected for tenant")
	ErrPlatformUnavailable     = errors.New("sync: platform temporarily unavailable")
	ErrPlatformInvalidResponse = errors.New("sync: invalid platform response")
	ErrInvalidSignature        = errors.New("sync: invalid webhook signature")

	// Credential errors
	ErrCredentialsMissing   = errors.New("sync: credentials missing for connection")
	ErrCredentialsExpired   = errors.New("sync: credentials expired and refresh failed")
	ErrDecryptionFailed     = errors.New("sync: credential decryption failed")
	ErrConnectionInactive   = errors.New("sync: connection is not active")
	ErrRefreshNotSupported  = errors.New("sync: platform does not rotate tokens")
	ErrConnectionInProgress = errors.New("sync: an OAuth flow is already pending for this platform")

	// Product errors
	ErrProductInvalidTenantID = errors.New("sync: invalid tenant ID")
	ErrProductInvalidSKU      = errors.New("sync: product SKU is required")
	ErrProductInvalidTitle    = errors.New("sync: product title is required")
	ErrProductNegativePrice   = errors.New("sync: product price cannot be negative")
	ErrDuplicateSKU           = errors.New("sync: a product with this SKU already exists")

	// Order errors
	ErrOrderInvalidPlatformID = errors.New("sync: platform order ID is required")
	ErrOrderNoItems           = errors.New("sync: order must contain at least one item")
	ErrOrderItemsImmutable    = errors.New("sync: order items cannot change after creation")

	// Job errors
	ErrJobInvalidType       = errors.New("sync: invalid job type")
	ErrJobAlreadyQueued     = errors.New("sync: an equivalent job is already queued or running")
	ErrJobRetriesExhausted  = errors.New("sync: job retry budget exhausted")
	ErrJobPayloadInvalid    = errors.New("sync: job payload is malformed")
	ErrJobNotClaimable      = errors.New("sync: job is not in a claimable state")
	ErrUnknownWebhookEvent  = errors.New("sync: unknown webhook event type")
	ErrTenantUnresolved     = errors.New("sync: webhook tenant could not be resolved")
	ErrChallengeUnsupported = errors.New("sync: platform does not use challenge verification")
)
