package samples

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/teleos-scientific/tlink-backend/pkg/db"
	"github.com/teleos-scientific/tlink-backend/pkg/db/models"
	pkgerrors "github.com/teleos-scientific/tlink-backend/pkg/errors"
	"github.com/teleos-scientific/tlink-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines lot inventory operations.
type Service interface {
	RegisterLot(ctx context.Context, input RegisterLotInput) (*models.SampleLot, error)
	AdjustQuantity(ctx context.Context, lotID uuid.UUID, input AdjustLotInput) (*models.SampleLot, error)
	GetLot(ctx context.Context, id uuid.UUID) (*models.SampleLot, error)
	ListLots(ctx context.Context, params pagination.Params) (*LotList, error)
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService builds a sample lot service with the required dependencies.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("samples repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) RegisterLot(ctx context.Context, input RegisterLotInput) (*models.SampleLot, error) {
	if input.LotNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lot number is required")
	}
	if input.MaterialName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "material name is required")
	}
	if !input.Unit.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid unit %q", input.Unit))
	}
	if input.Quantity.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}

	lot := &models.SampleLot{
		LotNumber:         input.LotNumber,
		MaterialName:      input.MaterialName,
		Unit:              input.Unit,
		QuantityAvailable: input.Quantity,
		QuantityReserved:  decimal.Zero,
	}
	created, err := s.repo.CreateLot(ctx, lot)
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_sample_lots_lot_number") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("lot %s already registered", input.LotNumber))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create sample lot")
	}
	return created, nil
}

func (s *service) AdjustQuantity(ctx context.Context, lotID uuid.UUID, input AdjustLotInput) (*models.SampleLot, error) {
	if lotID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lot id is required")
	}
	if input.Delta.IsZero() && input.ReleaseReserve.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment requires a delta or a reserve release")
	}
	if input.ReleaseReserve.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reserve release cannot be negative")
	}

	var adjusted *models.SampleLot
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		lot, err := repo.FindLotByID(ctx, lotID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "lot not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load lot")
		}

		if !input.Delta.IsZero() {
			res := tx.WithContext(ctx).Exec(`
				UPDATE sample_lots
				SET quantity_available = quantity_available + ?,
					updated_at = CURRENT_TIMESTAMP
				WHERE id = ? AND quantity_available + ? >= 0
			`, input.Delta, lotID, input.Delta)
			if res.Error != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "adjust lot quantity")
			}
			if res.RowsAffected == 0 {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("adjustment would take lot %s below zero", lot.LotNumber))
			}
		}

		if input.ReleaseReserve.IsPositive() {
			res := tx.WithContext(ctx).Exec(`
				UPDATE sample_lots
				SET quantity_reserved = quantity_reserved - ?,
					quantity_available = quantity_available + ?,
					updated_at = CURRENT_TIMESTAMP
				WHERE id = ? AND quantity_reserved >= ?
			`, input.ReleaseReserve, input.ReleaseReserve, lotID, input.ReleaseReserve)
			if res.Error != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release reserved quantity")
			}
			if res.RowsAffected == 0 {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("lot %s does not hold that much in reserve", lot.LotNumber))
			}
		}

		adjusted, err = repo.FindLotByID(ctx, lotID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload lot")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return adjusted, nil
}

func (s *service) GetLot(ctx context.Context, id uuid.UUID) (*models.SampleLot, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lot id is required")
	}
	lot, err := s.repo.FindLotByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "lot not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load lot")
	}
	return lot, nil
}

func (s *service) ListLots(ctx context.Context, params pagination.Params) (*LotList, error) {
	list, err := s.repo.ListLots(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list lots")
	}
	return list, nil
}

// LotReserver moves quantity from available to reserved inside the caller's
// transaction.
type LotReserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, requests []LotReservationRequest) error
}

type lotReserverImpl struct{}

// NewLotReserver exposes the default lot reservation implementation.
func NewLotReserver() LotReserver {
	return lotReserverImpl{}
}

func (lotReserverImpl) Reserve(ctx context.Context, tx *gorm.DB, requests []LotReservationRequest) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for lot reservation")
	}
	for _, req := range requests {
		if !req.Quantity.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
		}
		res := tx.WithContext(ctx).Exec(`
			UPDATE sample_lots
			SET quantity_available = quantity_available - ?,
				quantity_reserved = quantity_reserved + ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND quantity_available >= ?
		`, req.Quantity, req.Quantity, req.LotID, req.Quantity)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve lot quantity")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("lot %s no longer has sufficient quantity", req.LotID))
		}
	}
	return nil
}
