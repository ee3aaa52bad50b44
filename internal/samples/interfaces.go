package samples

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teleos-scientific/tlink-backend/pkg/db/models"
	"github.com/teleos-scientific/tlink-backend/pkg/pagination"
)

// Repository defines persistence operations for sample lots.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateLot(ctx context.Context, lot *models.SampleLot) (*models.SampleLot, error)
	FindLotByID(ctx context.Context, id uuid.UUID) (*models.SampleLot, error)
	FindLotByNumber(ctx context.Context, lotNumber string) (*models.SampleLot, error)
	FindLotsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.SampleLot, error)
	ListLots(ctx context.Context, params pagination.Params) (*LotList, error)
	UpdateLot(ctx context.Context, id uuid.UUID, updates map[string]any) error
}
