package samples

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teleos-scientific/tlink-backend/pkg/db/models"
	"github.com/teleos-scientific/tlink-backend/pkg/enums"
)

// RegisterLotInput captures the fields required to add a lot to inventory.
type RegisterLotInput struct {
	LotNumber    string             `json:"lot_number" validate:"required,max=64"`
	MaterialName string             `json:"material_name" validate:"required,max=255"`
	Unit         enums.QuantityUnit `json:"unit" validate:"required"`
	Quantity     decimal.Decimal    `json:"quantity"`
}

// AdjustLotInput moves available quantity up or down, and optionally releases
// quantity held in reserve back to available.
type AdjustLotInput struct {
	Delta          decimal.Decimal `json:"delta"`
	ReleaseReserve decimal.Decimal `json:"release_reserve"`
	Reason         string          `json:"reason" validate:"max=500"`
}

// LotList wraps a paginated page of lots plus the next cursor.
type LotList struct {
	Lots       []models.SampleLot `json:"lots"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

// LotReservationRequest asks for quantity to be moved from available to
// reserved for one shipment line.
type LotReservationRequest struct {
	LotID    uuid.UUID
	Quantity decimal.Decimal
}
