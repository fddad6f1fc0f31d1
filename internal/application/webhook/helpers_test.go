package webhook

import (
	"context"

	"github.com/channelhub/backend/internal/domain/sync"
)

// webhookAdapter stubs the adapter surface the webhook pipeline touches.
// The catalog, order and credential methods are never reached from here.
type webhookAdapter struct {
	platform    sync.Platform
	verifyFn    func(req *sync.WebhookRequest) (*sync.WebhookEvent, error)
	challengeFn func(req *sync.WebhookRequest) (string, error)
	ordersFn    func(ctx context.Context, creds *sync.Credentials, filter sync.OrderFilter) (*sync.OrderPage, error)
	fetchFn     func(ctx context.Context, creds *sync.Credentials, cursor string) (*sync.ProductPage, error)
}

func (a *webhookAdapter) Platform() sync.Platform { return a.platform }

func (a *webhookAdapter) FetchProducts(ctx context.Context, creds *sync.Credentials, cursor string) (*sync.ProductPage, error) {
	if a.fetchFn == nil {
		return &sync.ProductPage{}, nil
	}
	return a.fetchFn(ctx, creds, cursor)
}

func (a *webhookAdapter) CreateListing(_ context.Context, _ *sync.Credentials, _ sync.ListingDraft) (string, error) {
	return "", sync.ErrPlatformNotSupported
}

func (a *webhookAdapter) UpdateListing(_ context.Context, _ *sync.Credentials, _ string, _ sync.ListingDraft) error {
	return sync.ErrPlatformNotSupported
}

func (a *webhookAdapter) FetchOrders(ctx context.Context, creds *sync.Credentials, filter sync.OrderFilter) (*sync.OrderPage, error) {
	if a.ordersFn == nil {
		return &sync.OrderPage{}, nil
	}
	return a.ordersFn(ctx, creds, filter)
}

func (a *webhookAdapter) UpdateInventory(_ context.Context, _ *sync.Credentials, _ string, _ int) error {
	return nil
}

func (a *webhookAdapter) RefreshCredentials(_ context.Context, _ *sync.Credentials) (*sync.Credentials, error) {
	return nil, sync.ErrRefreshNotSupported
}

func (a *webhookAdapter) AuthorizeURL(state, redirectURI, challenge string) string { return "" }

func (a *webhookAdapter) ExchangeCode(_ context.Context, _, _, _ string) (*sync.Credentials, error) {
	return nil, sync.ErrPlatformNotSupported
}

func (a *webhookAdapter) RequiresPKCE() bool { return false }

func (a *webhookAdapter) VerifyWebhook(req *sync.WebhookRequest) (*sync.WebhookEvent, error) {
	if a.verifyFn == nil {
		return nil, sync.ErrInvalidSignature
	}
	return a.verifyFn(req)
}

func (a *webhookAdapter) AnswerChallenge(req *sync.WebhookRequest) (string, error) {
	if a.challengeFn == nil {
		return "", sync.ErrChallengeUnsupported
	}
	return a.challengeFn(req)
}

// testRegistry serves the adapters it was seeded with
type testRegistry struct {
	adapters map[sync.Platform]sync.PlatformAdapter
}

func registryOf(adapters ...sync.PlatformAdapter) *testRegistry {
	r := &testRegistry{adapters: make(map[sync.Platform]sync.PlatformAdapter)}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

func (r *testRegistry) Get(platform sync.Platform) (sync.PlatformAdapter, error) {
	adapter, ok := r.adapters[platform]
	if !ok {
		return nil, sync.ErrPlatformNotSupported
	}
	return adapter, nil
}

func (r *testRegistry) All() []sync.PlatformAdapter {
	all := make([]sync.PlatformAdapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		all = append(all, a)
	}
	return all
}

var (
	_ sync.PlatformAdapter = (*webhookAdapter)(nil)
	_ sync.AdapterRegistry = (*testRegistry)(nil)
)
