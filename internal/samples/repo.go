package samples

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teleos-scientific/tlink-backend/pkg/db/models"
	"github.com/teleos-scientific/tlink-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a sample lot repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateLot(ctx context.Context, lot *models.SampleLot) (*models.SampleLot, error) {
	if err := r.db.WithContext(ctx).Create(lot).Error; err != nil {
		return nil, err
	}
	return lot, nil
}

func (r *repository) FindLotByID(ctx context.Context, id uuid.UUID) (*models.SampleLot, error) {
	var lot models.SampleLot
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&lot).Error
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

func (r *repository) FindLotByNumber(ctx context.Context, lotNumber string) (*models.SampleLot, error) {
	var lot models.SampleLot
	err := r.db.WithContext(ctx).
		Where("lot_number = ?", lotNumber).
		First(&lot).Error
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

func (r *repository) FindLotsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.SampleLot, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var lots []models.SampleLot
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&lots).Error
	if err != nil {
		return nil, err
	}
	return lots, nil
}

func (r *repository) ListLots(ctx context.Context, params pagination.Params) (*LotList, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.SampleLot{}).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var lots []models.SampleLot
	if err := query.Find(&lots).Error; err != nil {
		return nil, err
	}

	list := &LotList{Lots: lots}
	if len(lots) > limit {
		last := lots[limit-1]
		list.Lots = lots[:limit]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return list, nil
}

func (r *repository) UpdateLot(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.SampleLot{}).
		Where("id = ?", id).
		Updates(updates).Error
}
