package vault

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/shared"
	"github.com/channelhub/backend/internal/domain/sync"
)

// Vault implements the sync.CredentialVault port on top of the connection
// repository and the token cipher. Plaintext tokens exist only inside Store
// and Get; nothing below this layer sees them.
type Vault struct {
	connections sync.ConnectionRepository
	cipher      *TokenCipher
	logger      *zap.Logger
}

// Interface guard
var _ sync.CredentialVault = (*Vault)(nil)

// New creates a credential vault
func New(connections sync.ConnectionRepository, cipher *TokenCipher, logger *zap.Logger) *Vault {
	return &Vault{
		connections: connections,
		cipher:      cipher,
		logger:      logger.Named("vault"),
	}
}

// Store upserts a connection for (tenant, platform), encrypting both tokens
// independently before persistence. An existing row is reactivated in place
// so disconnect/error history survives re-auth.
func (v *Vault) Store(ctx context.Context, tenantID uuid.UUID, platform sync.Platform, creds *sync.Credentials) (*sync.PlatformConnection, error) {
	if creds == nil || creds.AccessToken == "" {
		return nil, sync.ErrCredentialsMissing
	}

	encAccess, err := v.cipher.Encrypt(creds.AccessToken)
	if err != nil {
		return nil, err
	}
	encRefresh, err := v.cipher.Encrypt(creds.RefreshToken)
	if err != nil {
		return nil, err
	}

	conn, err := v.connections.FindByTenantAndPlatform(ctx, tenantID, platform)
	switch {
	case err == nil:
		conn.Reactivate(encAccess, encRefresh, creds.ExpiresAt, creds.Scope)
	case errors.Is(err, shared.ErrNotFound):
		conn, err = sync.NewPlatformConnection(tenantID, platform, encAccess, encRefresh)
		if err != nil {
			return nil, err
		}
		conn.ExpiresAt = creds.ExpiresAt
		conn.Scope = creds.Scope
	default:
		return nil, err
	}

	if len(creds.Metadata) > 0 {
		if conn.Metadata == nil {
			conn.Metadata = make(map[string]string, len(creds.Metadata))
		}
		for k, val := range creds.Metadata {
			conn.Metadata[k] = val
		}
	}

	if err := v.connections.Save(ctx, conn); err != nil {
		return nil, err
	}

	v.logger.Info("stored platform credentials",
		zap.String("tenant_id", tenantID.String()),
		zap.String("platform", platform.String()),
	)
	return conn, nil
}

// Get decrypts and returns the tenant's credentials for a platform.
// Decryption fails closed: a tampered or truncated ciphertext yields
// sync.ErrDecryptionFailed, never garbage plaintext.
func (v *Vault) Get(ctx context.Context, tenantID uuid.UUID, platform sync.Platform) (*sync.Credentials, error) {
	conn, err := v.connections.FindByTenantAndPlatform(ctx, tenantID, platform)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, sync.ErrPlatformNotConnected
		}
		return nil, err
	}
	if !conn.IsActive() {
		return nil, sync.ErrConnectionInactive
	}

	accessToken, err := v.cipher.Decrypt(conn.EncryptedAccessToken)
	if err != nil {
		v.logger.Error("credential decryption failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("platform", platform.String()),
			zap.Error(err),
		)
		return nil, sync.ErrDecryptionFailed
	}
	refreshToken, err := v.cipher.Decrypt(conn.EncryptedRefreshToken)
	if err != nil {
		return nil, sync.ErrDecryptionFailed
	}

	return &sync.Credentials{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    conn.ExpiresAt,
		Scope:        conn.Scope,
		Metadata:     conn.Metadata,
	}, nil
}

// ListMasked returns connection metadata with tokens redacted. Tokens are
// never decrypted for listing views.
func (v *Vault) ListMasked(ctx context.Context, tenantID uuid.UUID) ([]sync.MaskedConnection, error) {
	conns, err := v.connections.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	masked := make([]sync.MaskedConnection, 0, len(conns))
	for _, conn := range conns {
		masked = append(masked, conn.Masked())
	}
	return masked, nil
}

// Disconnect flips the connection status without deleting history
func (v *Vault) Disconnect(ctx context.Context, tenantID uuid.UUID, platform sync.Platform) error {
	conn, err := v.connections.FindByTenantAndPlatform(ctx, tenantID, platform)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return sync.ErrPlatformNotConnected
		}
		return err
	}
	conn.Disconnect()
	if err := v.connections.Save(ctx, conn); err != nil {
		return err
	}
	v.logger.Info("platform disconnected",
		zap.String("tenant_id", tenantID.String()),
		zap.String("platform", platform.String()),
	)
	return nil
}

// MarkError records a credential failure on the connection
func (v *Vault) MarkError(ctx context.Context, tenantID uuid.UUID, platform sync.Platform, reason string) error {
	conn, err := v.connections.FindByTenantAndPlatform(ctx, tenantID, platform)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return sync.ErrPlatformNotConnected
		}
		return err
	}
	conn.MarkError(reason)
	if err := v.connections.Save(ctx, conn); err != nil {
		return err
	}
	v.logger.Warn("platform connection marked errored",
		zap.String("tenant_id", tenantID.String()),
		zap.String("platform", platform.String()),
		zap.String("reason", reason),
	)
	return nil
}
