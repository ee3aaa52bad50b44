package supplies

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teleos-scientific/tlink-backend/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a supply ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateItem(ctx context.Context, item *models.SupplyItem) (*models.SupplyItem, error) {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func (r *repository) FindItemByID(ctx context.Context, id uuid.UUID) (*models.SupplyItem, error) {
	var item models.SupplyItem
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindItemByType(ctx context.Context, supplyType string) (*models.SupplyItem, error) {
	var item models.SupplyItem
	err := r.db.WithContext(ctx).
		Where("supply_type = ?", supplyType).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) ListItems(ctx context.Context) ([]models.SupplyItem, error) {
	var items []models.SupplyItem
	err := r.db.WithContext(ctx).
		Order("supply_type ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) ListLowStock(ctx context.Context) ([]models.SupplyItem, error) {
	var items []models.SupplyItem
	err := r.db.WithContext(ctx).
		Where("quantity_on_hand <= reorder_threshold").
		Order("supply_type ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) CreateUsage(ctx context.Context, usage *models.SupplyUsage) error {
	return r.db.WithContext(ctx).Create(usage).Error
}

func (r *repository) CreateRestock(ctx context.Context, restock *models.SupplyRestock) error {
	return r.db.WithContext(ctx).Create(restock).Error
}

func (r *repository) ListUsageByShipment(ctx context.Context, shipmentID uuid.UUID) ([]models.SupplyUsage, error) {
	var usages []models.SupplyUsage
	err := r.db.WithContext(ctx).
		Where("shipment_id = ?", shipmentID).
		Order("created_at ASC").
		Find(&usages).Error
	return usages, err
}
