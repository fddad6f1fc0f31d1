package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is a canonical order imported from one platform.
// (TenantID, Platform, PlatformOrderID) is the idempotency key: re-importing
// the same remote order updates this row, never duplicates it.
type Order struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	Platform        Platform
	PlatformOrderID string
	Status          OrderStatus
	CustomerName    string
	CustomerEmail   string
	ShippingAddress string
	Currency        string
	Total           decimal.Decimal
	Items           []OrderItem
	PlacedAt        time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem is one line item of a canonical order. Items are immutable once
// the order is created; later imports only touch the order's fulfillment
// metadata.
type OrderItem struct {
	ID                 uuid.UUID
	OrderID            uuid.UUID
	PlatformLineItemID string
	SKU                string
	Title              string
	Quantity           int
	UnitPrice          decimal.Decimal
}

// NewOrderFromPlatform builds a canonical order graph from a normalized
// platform order.
func NewOrderFromPlatform(tenantID uuid.UUID, platform Platform, po *PlatformOrder) (*Order, error) {
	if tenantID == uuid.Nil {
		return nil, ErrProductInvalidTenantID
	}
	if !platform.IsValid() {
		return nil, ErrPlatformNotSupported
	}
	if po.PlatformOrderID == "" {
		return nil, ErrOrderInvalidPlatformID
	}
	if len(po.Items) == 0 {
		return nil, ErrOrderNoItems
	}

	status := po.Status
	if !status.IsValid() {
		status = OrderStatusPending
	}

	now := time.Now()
	order := &Order{
		ID:              uuid.New(),
		TenantID:        tenantID,
		Platform:        platform,
		PlatformOrderID: po.PlatformOrderID,
		Status:          status,
		CustomerName:    po.CustomerName,
		CustomerEmail:   po.CustomerEmail,
		ShippingAddress: po.ShippingAddress,
		Currency:        po.Currency,
		Total:           po.Total,
		PlacedAt:        po.PlacedAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	order.Items = make([]OrderItem, 0, len(po.Items))
	for _, item := range po.Items {
		order.Items = append(order.Items, OrderItem{
			ID:                 uuid.New(),
			OrderID:            order.ID,
			PlatformLineItemID: item.PlatformLineItemID,
			SKU:                item.SKU,
			Title:              item.Title,
			Quantity:           item.Quantity,
			UnitPrice:          item.UnitPrice,
		})
	}

	return order, nil
}

// ApplyUpdate folds a re-imported platform order into this one. Only status,
// total and shipping address change; line items never do.
func (o *Order) ApplyUpdate(po *PlatformOrder) {
	if po.Status.IsValid() {
		o.Status = po.Status
	}
	if !po.Total.IsZero() {
		o.Total = po.Total
	}
	if po.ShippingAddress != "" {
		o.ShippingAddress = po.ShippingAddress
	}
	o.UpdatedAt = time.Now()
}

// TotalQuantity returns the total item quantity across all lines
func (o *Order) TotalQuantity() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}

// OrderRepository is the persistence port for canonical orders
type OrderRepository interface {
	// Create inserts an order together with its items
	Create(ctx context.Context, order *Order) error

	// UpdateHeader persists the order's mutable fields (status, total,
	// shipping address); items are left untouched
	UpdateHeader(ctx context.Context, order *Order) error

	// FindByPlatformOrderID returns the order matching the idempotency key
	// (tenant, platform, platformOrderID), or shared.ErrNotFound
	FindByPlatformOrderID(ctx context.Context, tenantID uuid.UUID, platform Platform, platformOrderID string) (*Order, error)

	// FindByID returns an order with its items, scoped to the tenant
	FindByID(ctx context.Context, tenantID, orderID uuid.UUID) (*Order, error)

	// List returns a page of the tenant's orders, newest first
	List(ctx context.Context, tenantID uuid.UUID, offset, limit int) ([]*Order, int64, error)
}
