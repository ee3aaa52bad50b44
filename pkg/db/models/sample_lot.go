package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teleos-scientific/tlink-backend/pkg/enums"
)

// SampleLot is a production/sample batch held in lab inventory. Shipment line
// items draw against QuantityAvailable; QuantityReserved tracks amounts
// committed to open shipments.
type SampleLot struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	LotNumber         string             `gorm:"column:lot_number;not null;uniqueIndex" json:"lot_number"`
	MaterialName      string             `gorm:"column:material_name;not null" json:"material_name"`
	Unit              enums.QuantityUnit `gorm:"column:unit;not null" json:"unit"`
	QuantityAvailable decimal.Decimal    `gorm:"column:quantity_available;type:numeric(12,3);not null" json:"quantity_available"`
	QuantityReserved  decimal.Decimal    `gorm:"column:quantity_reserved;type:numeric(12,3);not null;default:0" json:"quantity_reserved"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
