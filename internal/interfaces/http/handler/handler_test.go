package handler

import (
	"context"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

func openTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models...))
	return db
}

// stubAdapter covers the adapter surface the HTTP tests reach
type stubAdapter struct {
	platform    sync.Platform
	verifyFn    func(req *sync.WebhookRequest) (*sync.WebhookEvent, error)
	challengeFn func(req *sync.WebhookRequest) (string, error)
	exchangeFn  func(code string) (*sync.Credentials, error)
}

func (a *stubAdapter) Platform() sync.Platform { return a.platform }

func (a *stubAdapter) FetchProducts(_ context.Context, _ *sync.Credentials, _ string) (*sync.ProductPage, error) {
	return &sync.ProductPage{}, nil
}

func (a *stubAdapter) CreateListing(_ context.Context, _ *sync.Credentials, _ sync.ListingDraft) (string, error) {
	return "", sync.ErrPlatformNotSupported
}

func (a *stubAdapter) UpdateListing(_ context.Context, _ *sync.Credentials, _ string, _ sync.ListingDraft) error {
	return sync.ErrPlatformNotSupported
}

func (a *stubAdapter) FetchOrders(_ context.Context, _ *sync.Credentials, _ sync.OrderFilter) (*sync.OrderPage, error) {
	return &sync.OrderPage{}, nil
}

func (a *stubAdapter) UpdateInventory(_ context.Context, _ *sync.Credentials, _ string, _ int) error {
	return nil
}

func (a *stubAdapter) RefreshCredentials(_ context.Context, _ *sync.Credentials) (*sync.Credentials, error) {
	return nil, sync.ErrRefreshNotSupported
}

func (a *stubAdapter) AuthorizeURL(state, redirectURI, challenge string) string {
	return "https://auth.example.com/?state=" + state
}

func (a *stubAdapter) ExchangeCode(_ context.Context, code, _, _ string) (*sync.Credentials, error) {
	if a.exchangeFn != nil {
		return a.exchangeFn(code)
	}
	return &sync.Credentials{AccessToken: "exchanged-" + code}, nil
}

func (a *stubAdapter) RequiresPKCE() bool { return false }

func (a *stubAdapter) VerifyWebhook(req *sync.WebhookRequest) (*sync.WebhookEvent, error) {
	if a.verifyFn == nil {
		return nil, sync.ErrInvalidSignature
	}
	return a.verifyFn(req)
}

func (a *stubAdapter) AnswerChallenge(req *sync.WebhookRequest) (string, error) {
	if a.challengeFn == nil {
		return "", sync.ErrChallengeUnsupported
	}
	return a.challengeFn(req)
}

// stubAdapterRegistry serves the adapters it was seeded with
type stubAdapterRegistry struct {
	adapters map[sync.Platform]sync.PlatformAdapter
}

func stubRegistryOf(adapters ...sync.PlatformAdapter) *stubAdapterRegistry {
	r := &stubAdapterRegistry{adapters: make(map[sync.Platform]sync.PlatformAdapter)}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

func (r *stubAdapterRegistry) Get(platform sync.Platform) (sync.PlatformAdapter, error) {
	adapter, ok := r.adapters[platform]
	if !ok {
		return nil, sync.ErrPlatformNotSupported
	}
	return adapter, nil
}

func (r *stubAdapterRegistry) All() []sync.PlatformAdapter {
	all := make([]sync.PlatformAdapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		all = append(all, a)
	}
	return all
}

var (
	_ sync.PlatformAdapter = (*stubAdapter)(nil)
	_ sync.AdapterRegistry = (*stubAdapterRegistry)(nil)
)
