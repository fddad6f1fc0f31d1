package persistence

import (
	"gorm.io/gorm"

	"github.com/channelhub/backend/internal/infrastructure/persistence/models"
)

// AutoMigrate creates or updates the schema for every persisted model
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.PlatformConnectionModel{},
		&models.ProductModel{},
		&models.PlatformListingModel{},
		&models.InventoryLogModel{},
		&models.OrderModel{},
		&models.OrderItemModel{},
		&models.SyncJobModel{},
	)
}
