package supplies

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/teleos-scientific/tlink-backend/pkg/db"
	"github.com/teleos-scientific/tlink-backend/pkg/db/models"
	pkgerrors "github.com/teleos-scientific/tlink-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateItemInput registers a new consumable supply type.
type CreateItemInput struct {
	SupplyType       string `json:"supply_type" validate:"required,max=64"`
	QuantityOnHand   int    `json:"quantity_on_hand" validate:"gte=0"`
	ReorderThreshold int    `json:"reorder_threshold" validate:"gte=0"`
	UnitCostCents    int    `json:"unit_cost_cents" validate:"gte=0"`
	Supplier         string `json:"supplier" validate:"max=255"`
}

// RestockInput adds stock with an audit record of who added it.
type RestockInput struct {
	Quantity    int       `json:"quantity" validate:"required,gt=0"`
	ActorUserID uuid.UUID `json:"-"`
}

// UsageRequest is one supply decrement requested during label generation.
type UsageRequest struct {
	SupplyItemID uuid.UUID
	Quantity     int
}

// Service defines supply ledger operations.
type Service interface {
	CreateItem(ctx context.Context, input CreateItemInput) (*models.SupplyItem, error)
	Restock(ctx context.Context, itemID uuid.UUID, input RestockInput) (*models.SupplyItem, error)
	GetItemByType(ctx context.Context, supplyType string) (*models.SupplyItem, error)
	ListItems(ctx context.Context) ([]models.SupplyItem, error)
	ListLowStock(ctx context.Context) ([]models.SupplyItem, error)
}

// Consumer decrements supplies inside the caller's transaction, recording a
// usage row per decrement. A failed decrement fails the whole call.
type Consumer interface {
	Consume(ctx context.Context, tx *gorm.DB, shipmentID uuid.UUID, requests []UsageRequest) error
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService builds a supply ledger service with the required dependencies.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("supplies repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) CreateItem(ctx context.Context, input CreateItemInput) (*models.SupplyItem, error) {
	if input.SupplyType == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supply type is required")
	}
	if input.QuantityOnHand < 0 || input.ReorderThreshold < 0 || input.UnitCostCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantities and cost cannot be negative")
	}

	item := &models.SupplyItem{
		SupplyType:       input.SupplyType,
		QuantityOnHand:   input.QuantityOnHand,
		ReorderThreshold: input.ReorderThreshold,
		UnitCostCents:    input.UnitCostCents,
		Supplier:         input.Supplier,
	}
	created, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_supply_items_supply_type") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("supply type %s already exists", input.SupplyType))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create supply item")
	}
	return created, nil
}

func (s *service) Restock(ctx context.Context, itemID uuid.UUID, input RestockInput) (*models.SupplyItem, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supply item id is required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restock quantity must be positive")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var restocked *models.SupplyItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := repo.FindItemByID(ctx, itemID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "supply item not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load supply item")
		}

		res := tx.WithContext(ctx).Exec(`
			UPDATE supply_items
			SET quantity_on_hand = quantity_on_hand + ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, input.Quantity, item.ID)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "increment supply stock")
		}

		if err := repo.CreateRestock(ctx, &models.SupplyRestock{
			SupplyItemID: item.ID,
			Quantity:     input.Quantity,
			ActorUserID:  input.ActorUserID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record restock")
		}

		restocked, err = repo.FindItemByID(ctx, itemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload supply item")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return restocked, nil
}

func (s *service) GetItemByType(ctx context.Context, supplyType string) (*models.SupplyItem, error) {
	if supplyType == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supply type is required")
	}
	item, err := s.repo.FindItemByType(ctx, supplyType)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound,
				fmt.Sprintf("supply type %s not found", supplyType))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find supply item")
	}
	return item, nil
}

func (s *service) ListItems(ctx context.Context) ([]models.SupplyItem, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list supply items")
	}
	return items, nil
}

func (s *service) ListLowStock(ctx context.Context) ([]models.SupplyItem, error) {
	items, err := s.repo.ListLowStock(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list low stock")
	}
	return items, nil
}

type consumerImpl struct {
	repo Repository
}

// NewConsumer exposes the default supply consumption implementation.
func NewConsumer(repo Repository) Consumer {
	return &consumerImpl{repo: repo}
}

func (c *consumerImpl) Consume(ctx context.Context, tx *gorm.DB, shipmentID uuid.UUID, requests []UsageRequest) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for supply consumption")
	}
	if shipmentID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipment id is required")
	}
	repo := c.repo.WithTx(tx)
	for _, req := range requests {
		if req.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "supply quantity must be positive")
		}
		res := tx.WithContext(ctx).Exec(`
			UPDATE supply_items
			SET quantity_on_hand = quantity_on_hand - ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND quantity_on_hand >= ?
		`, req.Quantity, req.SupplyItemID, req.Quantity)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement supply stock")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("insufficient stock for supply %s", req.SupplyItemID)).
				WithDetails(map[string]any{"supply_item_id": req.SupplyItemID.String()})
		}
		if err := repo.CreateUsage(ctx, &models.SupplyUsage{
			SupplyItemID: req.SupplyItemID,
			ShipmentID:   shipmentID,
			Quantity:     req.Quantity,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record supply usage")
		}
	}
	return nil
}
