package sync

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/infrastructure/persistence"
	"github.com/channelhub/backend/internal/infrastructure/persistence/models"
)

// serviceFixture bundles the sqlite-backed repositories the sync services
// are wired against in tests.
type serviceFixture struct {
	products    sync.ProductRepository
	listings    sync.ListingRepository
	inventory   sync.InventoryLogRepository
	orders      sync.OrderRepository
	connections sync.ConnectionRepository
	jobs        sync.JobRepository
}

func setupServiceTest(t *testing.T) *serviceFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.PlatformConnectionModel{},
		&models.ProductModel{},
		&models.PlatformListingModel{},
		&models.InventoryLogModel{},
		&models.OrderModel{},
		&models.OrderItemModel{},
		&models.SyncJobModel{},
	))
	return &serviceFixture{
		products:    persistence.NewGormProductRepository(db),
		listings:    persistence.NewGormListingRepository(db),
		inventory:   persistence.NewGormInventoryLogRepository(db),
		orders:      persistence.NewGormOrderRepository(db),
		connections: persistence.NewGormConnectionRepository(db),
		jobs:        persistence.NewGormJobRepository(db),
	}
}

func (f *serviceFixture) connect(t *testing.T, tenantID uuid.UUID, platform sync.Platform) *sync.PlatformConnection {
	t.Helper()
	conn, err := sync.NewPlatformConnection(tenantID, platform, "enc-access", "enc-refresh")
	require.NoError(t, err)
	require.NoError(t, f.connections.Save(context.Background(), conn))
	return conn
}

// mockAdapter implements sync.PlatformAdapter with overridable function
// fields so each test stubs only the calls it cares about.
type mockAdapter struct {
	platform    sync.Platform
	fetchFn     func(ctx context.Context, creds *sync.Credentials, cursor string) (*sync.ProductPage, error)
	createFn    func(ctx context.Context, creds *sync.Credentials, draft sync.ListingDraft) (string, error)
	updateFn    func(ctx context.Context, creds *sync.Credentials, platformListingID string, draft sync.ListingDraft) error
	ordersFn    func(ctx context.Context, creds *sync.Credentials, filter sync.OrderFilter) (*sync.OrderPage, error)
	inventoryFn func(ctx context.Context, creds *sync.Credentials, sku string, quantity int) error
	refreshFn   func(ctx context.Context, creds *sync.Credentials) (*sync.Credentials, error)
	verifyFn    func(req *sync.WebhookRequest) (*sync.WebhookEvent, error)
}

func (m *mockAdapter) Platform() sync.Platform { return m.platform }

func (m *mockAdapter) FetchProducts(ctx context.Context, creds *sync.Credentials, cursor string) (*sync.ProductPage, error) {
	if m.fetchFn == nil {
		return &sync.ProductPage{}, nil
	}
	return m.fetchFn(ctx, creds, cursor)
}

func (m *mockAdapter) CreateListing(ctx context.Context, creds *sync.Credentials, draft sync.ListingDraft) (string, error) {
	if m.createFn == nil {
		return fmt.Sprintf("%s-listing-%s", m.platform, draft.SKU), nil
	}
	return m.createFn(ctx, creds, draft)
}

func (m *mockAdapter) UpdateListing(ctx context.Context, creds *sync.Credentials, platformListingID string, draft sync.ListingDraft) error {
	if m.updateFn == nil {
		return nil
	}
	return m.updateFn(ctx, creds, platformListingID, draft)
}

func (m *mockAdapter) FetchOrders(ctx context.Context, creds *sync.Credentials, filter sync.OrderFilter) (*sync.OrderPage, error) {
	if m.ordersFn == nil {
		return &sync.OrderPage{}, nil
	}
	return m.ordersFn(ctx, creds, filter)
}

func (m *mockAdapter) UpdateInventory(ctx context.Context, creds *sync.Credentials, sku string, quantity int) error {
	if m.inventoryFn == nil {
		return nil
	}
	return m.inventoryFn(ctx, creds, sku, quantity)
}

func (m *mockAdapter) RefreshCredentials(ctx context.Context, creds *sync.Credentials) (*sync.Credentials, error) {
	if m.refreshFn == nil {
		return nil, sync.ErrRefreshNotSupported
	}
	return m.refreshFn(ctx, creds)
}

func (m *mockAdapter) AuthorizeURL(state, redirectURI, challenge string) string {
	return "https://auth.example.com/?state=" + state
}

func (m *mockAdapter) ExchangeCode(ctx context.Context, code, redirectURI, verifier string) (*sync.Credentials, error) {
	return &sync.Credentials{AccessToken: "exchanged-" + code}, nil
}

func (m *mockAdapter) RequiresPKCE() bool { return false }

func (m *mockAdapter) VerifyWebhook(req *sync.WebhookRequest) (*sync.WebhookEvent, error) {
	if m.verifyFn == nil {
		return nil, sync.ErrInvalidSignature
	}
	return m.verifyFn(req)
}

func (m *mockAdapter) AnswerChallenge(req *sync.WebhookRequest) (string, error) {
	return "", sync.ErrChallengeUnsupported
}

// stubRegistry serves the adapters it was seeded with
type stubRegistry struct {
	adapters map[sync.Platform]sync.PlatformAdapter
}

func newStubRegistry(adapters ...sync.PlatformAdapter) *stubRegistry {
	r := &stubRegistry{adapters: make(map[sync.Platform]sync.PlatformAdapter)}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

func (r *stubRegistry) Get(platform sync.Platform) (sync.PlatformAdapter, error) {
	adapter, ok := r.adapters[platform]
	if !ok {
		return nil, sync.ErrPlatformNotSupported
	}
	return adapter, nil
}

func (r *stubRegistry) All() []sync.PlatformAdapter {
	all := make([]sync.PlatformAdapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		all = append(all, a)
	}
	return all
}

// fakeVault keeps plaintext credentials in a map. Tests assert rotation by
// inspecting stored; MarkError failures land in errored.
type fakeVault struct {
	creds   map[string]*sync.Credentials
	stored  map[string]*sync.Credentials
	errored map[string]string
}

func newFakeVault() *fakeVault {
	return &fakeVault{
		creds:   make(map[string]*sync.Credentials),
		stored:  make(map[string]*sync.Credentials),
		errored: make(map[string]string),
	}
}

func vaultKey(tenantID uuid.UUID, platform sync.Platform) string {
	return tenantID.String() + "|" + string(platform)
}

func (v *fakeVault) put(tenantID uuid.UUID, platform sync.Platform, creds *sync.Credentials) {
	v.creds[vaultKey(tenantID, platform)] = creds
}

func (v *fakeVault) Store(_ context.Context, tenantID uuid.UUID, platform sync.Platform, creds *sync.Credentials) (*sync.PlatformConnection, error) {
	key := vaultKey(tenantID, platform)
	v.creds[key] = creds
	v.stored[key] = creds
	return sync.NewPlatformConnection(tenantID, platform, "enc-access", "enc-refresh")
}

func (v *fakeVault) Get(_ context.Context, tenantID uuid.UUID, platform sync.Platform) (*sync.Credentials, error) {
	creds, ok := v.creds[vaultKey(tenantID, platform)]
	if !ok {
		return nil, sync.ErrPlatformNotConnected
	}
	return creds, nil
}

func (v *fakeVault) ListMasked(_ context.Context, tenantID uuid.UUID) ([]sync.MaskedConnection, error) {
	return nil, nil
}

func (v *fakeVault) Disconnect(_ context.Context, tenantID uuid.UUID, platform sync.Platform) error {
	delete(v.creds, vaultKey(tenantID, platform))
	return nil
}

func (v *fakeVault) MarkError(_ context.Context, tenantID uuid.UUID, platform sync.Platform, reason string) error {
	v.errored[vaultKey(tenantID, platform)] = reason
	return nil
}

var (
	_ sync.CredentialVault = (*fakeVault)(nil)
	_ sync.AdapterRegistry = (*stubRegistry)(nil)
	_ sync.PlatformAdapter = (*mockAdapter)(nil)
)
