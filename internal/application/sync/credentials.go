package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/sync"
)

// CredentialManager hands engines usable credentials. Expired tokens are
// rotated through the platform's refresh protocol and the rotated pair is
// written back to the vault; a failed rotation marks the connection ERROR
// so the dashboard surfaces the re-auth requirement.
type CredentialManager struct {
	vault    sync.CredentialVault
	registry sync.AdapterRegistry
	logger   *zap.Logger
}

// NewCredentialManager creates a new credential manager
func NewCredentialManager(vault sync.CredentialVault, registry sync.AdapterRegistry, logger *zap.Logger) *CredentialManager {
	return &CredentialManager{
		vault:    vault,
		registry: registry,
		logger:   logger,
	}
}

// CredentialsFor returns the adapter and fresh credentials for one tenant
// connection, refreshing first when the access token has expired.
func (m *CredentialManager) CredentialsFor(ctx context.Context, tenantID uuid.UUID, platform sync.Platform) (sync.PlatformAdapter, *sync.Credentials, error) {
	adapter, err := m.registry.Get(platform)
	if err != nil {
		return nil, nil, err
	}

	creds, err := m.vault.Get(ctx, tenantID, platform)
	if err != nil {
		return nil, nil, err
	}

	if !creds.Expired() {
		return adapter, creds, nil
	}

	refreshed, err := adapter.RefreshCredentials(ctx, creds)
	if err != nil {
		if markErr := m.vault.MarkError(ctx, tenantID, platform, err.Error()); markErr != nil {
			m.logger.Error("failed to mark connection errored",
				zap.String("tenant_id", tenantID.String()),
				zap.String("platform", string(platform)),
				zap.Error(markErr))
		}
		if errors.Is(err, sync.ErrRefreshNotSupported) {
			return nil, nil, fmt.Errorf("%w: token expired and platform does not rotate", sync.ErrCredentialsExpired)
		}
		return nil, nil, fmt.Errorf("%w: %v", sync.ErrCredentialsExpired, err)
	}

	if _, err := m.vault.Store(ctx, tenantID, platform, refreshed); err != nil {
		return nil, nil, fmt.Errorf("storing rotated credentials: %w", err)
	}

	m.logger.Info("credentials rotated",
		zap.String("tenant_id", tenantID.String()),
		zap.String("platform", string(platform)))
	return adapter, refreshed, nil
}
