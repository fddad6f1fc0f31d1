package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MetadataShopDomain is the metadata key adapters use for the platform-side
// shop identifier (shop domain, merchant id, seller id). Webhook tenant
// resolution matches deliveries against this key.
const MetadataShopDomain = "shop_domain"

// PlatformConnection holds one tenant's credentials for one platform.
// Both tokens are stored ciphertext; the vault is the only component that
// sees plaintext. One row per (tenant, platform); disconnecting flips the
// status instead of deleting the row so the audit history survives.
type PlatformConnection struct {
	ID                    uuid.UUID
	TenantID              uuid.UUID
	Platform              Platform
	EncryptedAccessToken  string
	EncryptedRefreshToken string
	ExpiresAt             *time.Time
	Scope                 string
	Status                ConnectionStatus
	Metadata              map[string]string
	LastError             string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewPlatformConnection creates an active connection with encrypted tokens
func NewPlatformConnection(tenantID uuid.UUID, platform Platform, encryptedAccess, encryptedRefresh string) (*PlatformConnection, error) {
	if tenantID == uuid.Nil {
		return nil, ErrProductInvalidTenantID
	}
	if !platform.IsValid() {
		return nil, ErrPlatformNotSupported
	}
	if encryptedAccess == "" {
		return nil, ErrCredentialsMissing
	}
	now := time.Now()
	return &PlatformConnection{
		ID:                    uuid.New(),
		TenantID:              tenantID,
		Platform:              platform,
		EncryptedAccessToken:  encryptedAccess,
		EncryptedRefreshToken: encryptedRefresh,
		Status:                ConnectionStatusActive,
		Metadata:              make(map[string]string),
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

// IsActive returns true if the connection can be used for sync
func (c *PlatformConnection) IsActive() bool {
	return c.Status == ConnectionStatusActive
}

// Disconnect flips the connection to DISCONNECTED without deleting history
func (c *PlatformConnection) Disconnect() {
	c.Status = ConnectionStatusDisconnected
	c.UpdatedAt = time.Now()
}

// MarkError records a credential failure on the connection
func (c *PlatformConnection) MarkError(reason string) {
	c.Status = ConnectionStatusError
	c.LastError = reason
	c.UpdatedAt = time.Now()
}

// Reactivate restores an errored or disconnected connection after a
// successful re-auth, replacing the stored ciphertexts.
func (c *PlatformConnection) Reactivate(encryptedAccess, encryptedRefresh string, expiresAt *time.Time, scope string) {
	c.EncryptedAccessToken = encryptedAccess
	c.EncryptedRefreshToken = encryptedRefresh
	c.ExpiresAt = expiresAt
	c.Scope = scope
	c.Status = ConnectionStatusActive
	c.LastError = ""
	c.UpdatedAt = time.Now()
}

// ShopDomain returns the platform-side shop identifier, empty if unknown
func (c *PlatformConnection) ShopDomain() string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[MetadataShopDomain]
}

// MaskedConnection is the listing view of a connection. Tokens are never
// decrypted for listing; only lifecycle metadata is exposed.
type MaskedConnection struct {
	Platform  Platform          `json:"platform"`
	Status    ConnectionStatus  `json:"status"`
	Scope     string            `json:"scope"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	LastError string            `json:"last_error,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Masked returns the redacted listing view of the connection
func (c *PlatformConnection) Masked() MaskedConnection {
	return MaskedConnection{
		Platform:  c.Platform,
		Status:    c.Status,
		Scope:     c.Scope,
		ExpiresAt: c.ExpiresAt,
		Metadata:  c.Metadata,
		LastError: c.LastError,
		UpdatedAt: c.UpdatedAt,
	}
}

// ConnectionRepository is the persistence port for platform connections
type ConnectionRepository interface {
	// Save upserts a connection by (tenant, platform)
	Save(ctx context.Context, conn *PlatformConnection) error

	// FindByTenantAndPlatform returns the connection for one tenant and
	// platform, or shared.ErrNotFound
	FindByTenantAndPlatform(ctx context.Context, tenantID uuid.UUID, platform Platform) (*PlatformConnection, error)

	// FindByTenant returns all of a tenant's connections, any status
	FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]*PlatformConnection, error)

	// FindActiveByTenant returns the tenant's ACTIVE connections
	FindActiveByTenant(ctx context.Context, tenantID uuid.UUID) ([]*PlatformConnection, error)

	// FindByShopDomain resolves a connection from the platform-side shop
	// identifier stored in metadata, used for webhook tenant resolution
	FindByShopDomain(ctx context.Context, platform Platform, shopDomain string) (*PlatformConnection, error)

	// ListTenantsWithActiveConnections returns the distinct tenant IDs that
	// have at least one ACTIVE connection
	ListTenantsWithActiveConnections(ctx context.Context) ([]uuid.UUID, error)
}

// CredentialVault is the application-facing port for credential storage.
// Implementations encrypt on store and decrypt on get; plaintext never
// reaches the repository layer.
type CredentialVault interface {
	// Store upserts a connection, encrypting both tokens independently
	Store(ctx context.Context, tenantID uuid.UUID, platform Platform, creds *Credentials) (*PlatformConnection, error)

	// Get decrypts and returns the tenant's credentials for a platform.
	// Returns ErrPlatformNotConnected when no active connection exists and
	// ErrDecryptionFailed when the stored ciphertext cannot be opened.
	Get(ctx context.Context, tenantID uuid.UUID, platform Platform) (*Credentials, error)

	// ListMasked returns the tenant's connections with tokens redacted
	ListMasked(ctx context.Context, tenantID uuid.UUID) ([]MaskedConnection, error)

	// Disconnect flips the connection status without deleting history
	Disconnect(ctx context.Context, tenantID uuid.UUID, platform Platform) error

	// MarkError records a credential failure on the connection
	MarkError(ctx context.Context, tenantID uuid.UUID, platform Platform, reason string) error
}
