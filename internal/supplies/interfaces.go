package supplies

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teleos-scientific/tlink-backend/pkg/db/models"
)

// Repository defines persistence operations for the supply ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateItem(ctx context.Context, item *models.SupplyItem) (*models.SupplyItem, error)
	FindItemByID(ctx context.Context, id uuid.UUID) (*models.SupplyItem, error)
	FindItemByType(ctx context.Context, supplyType string) (*models.SupplyItem, error)
	ListItems(ctx context.Context) ([]models.SupplyItem, error)
	ListLowStock(ctx context.Context) ([]models.SupplyItem, error)
	CreateUsage(ctx context.Context, usage *models.SupplyUsage) error
	CreateRestock(ctx context.Context, restock *models.SupplyRestock) error
	ListUsageByShipment(ctx context.Context, shipmentID uuid.UUID) ([]models.SupplyUsage, error)
}
