package adapters

import (
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/infrastructure/config"
)

// Registry holds the configured platform adapters, keyed by platform
type Registry struct {
	adapters map[sync.Platform]sync.PlatformAdapter
	order    []sync.Platform
}

// NewRegistry creates an empty adapter registry
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[sync.Platform]sync.PlatformAdapter),
	}
}

// NewDefaultRegistry builds a registry with all six platform adapters wired
// from the app-level client registrations.
func NewDefaultRegistry(cfg config.PlatformsConfig, log *zap.Logger) *Registry {
	r := NewRegistry()
	r.Register(NewShopifyAdapter(cfg.Shopify, log))
	r.Register(NewAmazonAdapter(cfg.Amazon, log))
	r.Register(NewEbayAdapter(cfg.Ebay, log))
	r.Register(NewEtsyAdapter(cfg.Etsy, log))
	r.Register(NewWooCommerceAdapter(cfg.WooCommerce, log))
	r.Register(NewSquareAdapter(cfg.Square, log))
	return r
}

// Register adds an adapter; a second registration for a platform replaces
// the first.
func (r *Registry) Register(adapter sync.PlatformAdapter) {
	platform := adapter.Platform()
	if _, exists := r.adapters[platform]; !exists {
		r.order = append(r.order, platform)
	}
	r.adapters[platform] = adapter
}

// Get returns the adapter for the given platform
func (r *Registry) Get(platform sync.Platform) (sync.PlatformAdapter, error) {
	adapter, ok := r.adapters[platform]
	if !ok {
		return nil, sync.ErrPlatformNotSupported
	}
	return adapter, nil
}

// All returns every registered adapter in registration order
func (r *Registry) All() []sync.PlatformAdapter {
	all := make([]sync.PlatformAdapter, 0, len(r.order))
	for _, platform := range r.order {
		all = append(all, r.adapters[platform])
	}
	return all
}

// Ensure Registry implements AdapterRegistry
var _ sync.AdapterRegistry = (*Registry)(nil)
