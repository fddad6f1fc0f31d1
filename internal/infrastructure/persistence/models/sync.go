package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/channelhub/backend/internal/domain/sync"
)

// PlatformConnectionModel is the persistence model for the PlatformConnection domain entity.
type PlatformConnectionModel struct {
	ID                    uuid.UUID             `gorm:"type:uuid;primary_key"`
	TenantID              uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:idx_connection_tenant_platform,priority:1"`
	Platform              sync.Platform         `gorm:"type:varchar(20);not null;uniqueIndex:idx_connection_tenant_platform,priority:2;index:idx_connection_platform"`
	EncryptedAccessToken  string                `gorm:"type:text;not null"`
	EncryptedRefreshToken string                `gorm:"type:text"`
	ExpiresAt             *time.Time
	Scope                 string                `gorm:"type:text"`
	Status                sync.ConnectionStatus `gorm:"type:varchar(20);not null;default:'ACTIVE';index"`
	Metadata              datatypes.JSON        `gorm:"type:jsonb"`
	LastError             string                `gorm:"type:text"`
	CreatedAt             time.Time             `gorm:"not null"`
	UpdatedAt             time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PlatformConnectionModel) TableName() string {
	return "platform_connections"
}

// ToDomain converts the persistence model to a domain PlatformConnection entity.
func (m *PlatformConnectionModel) ToDomain() *sync.PlatformConnection {
	conn := &sync.PlatformConnection{
		ID:                    m.ID,
		TenantID:              m.TenantID,
		Platform:              m.Platform,
		EncryptedAccessToken:  m.EncryptedAccessToken,
		EncryptedRefreshToken: m.EncryptedRefreshToken,
		ExpiresAt:             m.ExpiresAt,
		Scope:                 m.Scope,
		Status:                m.Status,
		Metadata:              make(map[string]string),
		LastError:             m.LastError,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}

	if len(m.Metadata) > 0 {
		var metadata map[string]string
		if err := json.Unmarshal(m.Metadata, &metadata); err == nil {
			conn.Metadata = metadata
		}
	}

	return conn
}

// FromDomain populates the persistence model from a domain PlatformConnection entity.
func (m *PlatformConnectionModel) FromDomain(conn *sync.PlatformConnection) {
	m.ID = conn.ID
	m.TenantID = conn.TenantID
	m.Platform = conn.Platform
	m.EncryptedAccessToken = conn.EncryptedAccessToken
	m.EncryptedRefreshToken = conn.EncryptedRefreshToken
	m.ExpiresAt = conn.ExpiresAt
	m.Scope = conn.Scope
	m.Status = conn.Status
	m.LastError = conn.LastError
	m.CreatedAt = conn.CreatedAt
	m.UpdatedAt = conn.UpdatedAt

	if len(conn.Metadata) > 0 {
		if jsonBytes, err := json.Marshal(conn.Metadata); err == nil {
			m.Metadata = jsonBytes
		}
	} else {
		m.Metadata = datatypes.JSON("{}")
	}
}

// PlatformConnectionModelFromDomain creates a new persistence model from a domain entity.
func PlatformConnectionModelFromDomain(conn *sync.PlatformConnection) *PlatformConnectionModel {
	m := &PlatformConnectionModel{}
	m.FromDomain(conn)
	return m
}

// ProductModel is the persistence model for the Product domain entity.
type ProductModel struct {
	ID          uuid.UUID          `gorm:"type:uuid;primary_key"`
	TenantID    uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_product_tenant_sku,priority:1;index:idx_product_tenant_status,priority:1"`
	SKU         string             `gorm:"type:varchar(100);not null;uniqueIndex:idx_product_tenant_sku,priority:2"`
	Title       string             `gorm:"type:varchar(255);not null"`
	Description string             `gorm:"type:text"`
	Price       decimal.Decimal    `gorm:"type:decimal(20,4);not null"`
	Currency    string             `gorm:"type:varchar(3);not null;default:'USD'"`
	Quantity    int                `gorm:"not null;default:0"`
	Status      sync.ProductStatus `gorm:"type:varchar(20);not null;default:'DRAFT';index:idx_product_tenant_status,priority:2"`
	CreatedAt   time.Time          `gorm:"not null"`
	UpdatedAt   time.Time          `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product entity.
func (m *ProductModel) ToDomain() *sync.Product {
	return &sync.Product{
		ID:          m.ID,
		TenantID:    m.TenantID,
		SKU:         m.SKU,
		Title:       m.Title,
		Description: m.Description,
		Price:       m.Price,
		Currency:    m.Currency,
		Quantity:    m.Quantity,
		Status:      m.Status,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Product entity.
func (m *ProductModel) FromDomain(p *sync.Product) {
	m.ID = p.ID
	m.TenantID = p.TenantID
	m.SKU = p.SKU
	m.Title = p.Title
	m.Description = p.Description
	m.Price = p.Price
	m.Currency = p.Currency
	m.Quantity = p.Quantity
	m.Status = p.Status
	m.CreatedAt = p.CreatedAt
	m.UpdatedAt = p.UpdatedAt
}

// ProductModelFromDomain creates a new persistence model from a domain entity.
func ProductModelFromDomain(p *sync.Product) *ProductModel {
	m := &ProductModel{}
	m.FromDomain(p)
	return m
}

// PlatformListingModel is the persistence model for the PlatformListing domain entity.
type PlatformListingModel struct {
	ID                uuid.UUID          `gorm:"type:uuid;primary_key"`
	TenantID          uuid.UUID          `gorm:"type:uuid;not null;index:idx_listing_tenant_platform,priority:1"`
	ProductID         uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_listing_product_platform,priority:1"`
	Platform          sync.Platform      `gorm:"type:varchar(20);not null;uniqueIndex:idx_listing_product_platform,priority:2;index:idx_listing_tenant_platform,priority:2"`
	PlatformListingID string             `gorm:"type:varchar(100);index"`
	SyncedPrice       decimal.Decimal    `gorm:"type:decimal(20,4)"`
	SyncedQuantity    int                `gorm:"not null;default:0"`
	Status            sync.ListingStatus `gorm:"type:varchar(20);not null;default:'INACTIVE'"`
	LastError         string             `gorm:"type:text"`
	LastSyncedAt      *time.Time
	CreatedAt         time.Time          `gorm:"not null"`
	UpdatedAt         time.Time          `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PlatformListingModel) TableName() string {
	return "platform_listings"
}

// ToDomain converts the persistence model to a domain PlatformListing entity.
func (m *PlatformListingModel) ToDomain() *sync.PlatformListing {
	return &sync.PlatformListing{
		ID:                m.ID,
		TenantID:          m.TenantID,
		ProductID:         m.ProductID,
		Platform:          m.Platform,
		PlatformListingID: m.PlatformListingID,
		SyncedPrice:       m.SyncedPrice,
		SyncedQuantity:    m.SyncedQuantity,
		Status:            m.Status,
		LastError:         m.LastError,
		LastSyncedAt:      m.LastSyncedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain PlatformListing entity.
func (m *PlatformListingModel) FromDomain(l *sync.PlatformListing) {
	m.ID = l.ID
	m.TenantID = l.TenantID
	m.ProductID = l.ProductID
	m.Platform = l.Platform
	m.PlatformListingID = l.PlatformListingID
	m.SyncedPrice = l.SyncedPrice
	m.SyncedQuantity = l.SyncedQuantity
	m.Status = l.Status
	m.LastError = l.LastError
	m.LastSyncedAt = l.LastSyncedAt
	m.CreatedAt = l.CreatedAt
	m.UpdatedAt = l.UpdatedAt
}

// PlatformListingModelFromDomain creates a new persistence model from a domain entity.
func PlatformListingModelFromDomain(l *sync.PlatformListing) *PlatformListingModel {
	m := &PlatformListingModel{}
	m.FromDomain(l)
	return m
}

// InventoryLogModel is the persistence model for the InventoryLog domain entity.
// Rows are append-only; there is no update path.
type InventoryLogModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;index"`
	ProductID   uuid.UUID `gorm:"type:uuid;not null;index:idx_inventory_log_product"`
	OldQuantity int       `gorm:"not null"`
	NewQuantity int       `gorm:"not null"`
	Reason      string    `gorm:"type:varchar(255);not null"`
	CreatedAt   time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (InventoryLogModel) TableName() string {
	return "inventory_logs"
}

// ToDomain converts the persistence model to a domain InventoryLog entity.
func (m *InventoryLogModel) ToDomain() *sync.InventoryLog {
	return &sync.InventoryLog{
		ID:          m.ID,
		TenantID:    m.TenantID,
		ProductID:   m.ProductID,
		OldQuantity: m.OldQuantity,
		NewQuantity: m.NewQuantity,
		Reason:      m.Reason,
		CreatedAt:   m.CreatedAt,
	}
}

// InventoryLogModelFromDomain creates a new persistence model from a domain entity.
func InventoryLogModelFromDomain(l *sync.InventoryLog) *InventoryLogModel {
	return &InventoryLogModel{
		ID:          l.ID,
		TenantID:    l.TenantID,
		ProductID:   l.ProductID,
		OldQuantity: l.OldQuantity,
		NewQuantity: l.NewQuantity,
		Reason:      l.Reason,
		CreatedAt:   l.CreatedAt,
	}
}

// OrderModel is the persistence model for the Order domain entity.
type OrderModel struct {
	ID              uuid.UUID        `gorm:"type:uuid;primary_key"`
	TenantID        uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_order_tenant_platform_remote,priority:1;index:idx_order_tenant_placed,priority:1"`
	Platform        sync.Platform    `gorm:"type:varchar(20);not null;uniqueIndex:idx_order_tenant_platform_remote,priority:2"`
	PlatformOrderID string           `gorm:"type:varchar(100);not null;uniqueIndex:idx_order_tenant_platform_remote,priority:3"`
	Status          sync.OrderStatus `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	CustomerName    string           `gorm:"type:varchar(255)"`
	CustomerEmail   string           `gorm:"type:varchar(255)"`
	ShippingAddress string           `gorm:"type:text"`
	Currency        string           `gorm:"type:varchar(3)"`
	Total           decimal.Decimal  `gorm:"type:decimal(20,4);not null"`
	Items           []OrderItemModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PlacedAt        time.Time        `gorm:"not null;index:idx_order_tenant_placed,priority:2"`
	CreatedAt       time.Time        `gorm:"not null"`
	UpdatedAt       time.Time        `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel is the persistence model for one canonical order line item.
type OrderItemModel struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primary_key"`
	OrderID            uuid.UUID       `gorm:"type:uuid;not null;index"`
	PlatformLineItemID string          `gorm:"type:varchar(100)"`
	SKU                string          `gorm:"type:varchar(100);not null;index"`
	Title              string          `gorm:"type:varchar(255)"`
	Quantity           int             `gorm:"not null"`
	UnitPrice          decimal.Decimal `gorm:"type:decimal(20,4);not null"`
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}

// ToDomain converts the persistence model to a domain Order entity.
func (m *OrderModel) ToDomain() *sync.Order {
	order := &sync.Order{
		ID:              m.ID,
		TenantID:        m.TenantID,
		Platform:        m.Platform,
		PlatformOrderID: m.PlatformOrderID,
		Status:          m.Status,
		CustomerName:    m.CustomerName,
		CustomerEmail:   m.CustomerEmail,
		ShippingAddress: m.ShippingAddress,
		Currency:        m.Currency,
		Total:           m.Total,
		PlacedAt:        m.PlacedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	order.Items = make([]sync.OrderItem, 0, len(m.Items))
	for _, item := range m.Items {
		order.Items = append(order.Items, sync.OrderItem{
			ID:                 item.ID,
			OrderID:            item.OrderID,
			PlatformLineItemID: item.PlatformLineItemID,
			SKU:                item.SKU,
			Title:              item.Title,
			Quantity:           item.Quantity,
			UnitPrice:          item.UnitPrice,
		})
	}
	return order
}

// FromDomain populates the persistence model from a domain Order entity.
func (m *OrderModel) FromDomain(o *sync.Order) {
	m.ID = o.ID
	m.TenantID = o.TenantID
	m.Platform = o.Platform
	m.PlatformOrderID = o.PlatformOrderID
	m.Status = o.Status
	m.CustomerName = o.CustomerName
	m.CustomerEmail = o.CustomerEmail
	m.ShippingAddress = o.ShippingAddress
	m.Currency = o.Currency
	m.Total = o.Total
	m.PlacedAt = o.PlacedAt
	m.CreatedAt = o.CreatedAt
	m.UpdatedAt = o.UpdatedAt

	m.Items = make([]OrderItemModel, 0, len(o.Items))
	for _, item := range o.Items {
		m.Items = append(m.Items, OrderItemModel{
			ID:                 item.ID,
			OrderID:            item.OrderID,
			PlatformLineItemID: item.PlatformLineItemID,
			SKU:                item.SKU,
			Title:              item.Title,
			Quantity:           item.Quantity,
			UnitPrice:          item.UnitPrice,
		})
	}
}

// OrderModelFromDomain creates a new persistence model from a domain entity.
func OrderModelFromDomain(o *sync.Order) *OrderModel {
	m := &OrderModel{}
	m.FromDomain(o)
	return m
}

// SyncJobModel is the persistence model for the SyncJob domain entity.
type SyncJobModel struct {
	ID          uuid.UUID      `gorm:"type:uuid;primary_key"`
	TenantID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_job_tenant_created,priority:1"`
	Type        sync.JobType   `gorm:"type:varchar(30);not null"`
	Platform    sync.Platform  `gorm:"type:varchar(20)"`
	Priority    int            `gorm:"not null;default:0;index:idx_job_runnable,priority:2"`
	Status      sync.JobStatus `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_job_runnable,priority:1"`
	Payload     datatypes.JSON `gorm:"type:jsonb"`
	Result      string         `gorm:"type:text"`
	DedupeKey   string         `gorm:"type:varchar(255);not null;index:idx_job_dedupe"`
	Attempts    int            `gorm:"not null;default:0"`
	MaxAttempts int            `gorm:"not null"`
	LastError   string         `gorm:"type:text"`
	NextRetryAt *time.Time     `gorm:"index"`
	CompletedAt *time.Time
	CreatedAt   time.Time      `gorm:"not null;index:idx_job_tenant_created,priority:2"`
	UpdatedAt   time.Time      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncJobModel) TableName() string {
	return "sync_jobs"
}

// ToDomain converts the persistence model to a domain SyncJob entity.
func (m *SyncJobModel) ToDomain() *sync.SyncJob {
	return &sync.SyncJob{
		ID:          m.ID,
		TenantID:    m.TenantID,
		Type:        m.Type,
		Platform:    m.Platform,
		Priority:    sync.JobPriority(m.Priority),
		Status:      m.Status,
		Payload:     []byte(m.Payload),
		Result:      m.Result,
		DedupeKey:   m.DedupeKey,
		Attempts:    m.Attempts,
		MaxAttempts: m.MaxAttempts,
		LastError:   m.LastError,
		NextRetryAt: m.NextRetryAt,
		CompletedAt: m.CompletedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain SyncJob entity.
func (m *SyncJobModel) FromDomain(j *sync.SyncJob) {
	m.ID = j.ID
	m.TenantID = j.TenantID
	m.Type = j.Type
	m.Platform = j.Platform
	m.Priority = int(j.Priority)
	m.Status = j.Status
	m.Payload = datatypes.JSON(j.Payload)
	m.Result = j.Result
	m.DedupeKey = j.DedupeKey
	m.Attempts = j.Attempts
	m.MaxAttempts = j.MaxAttempts
	m.LastError = j.LastError
	m.NextRetryAt = j.NextRetryAt
	m.CompletedAt = j.CompletedAt
	m.CreatedAt = j.CreatedAt
	m.UpdatedAt = j.UpdatedAt
}

// SyncJobModelFromDomain creates a new persistence model from a domain entity.
func SyncJobModelFromDomain(j *sync.SyncJob) *SyncJobModel {
	m := &SyncJobModel{}
	m.FromDomain(j)
	return m
}
