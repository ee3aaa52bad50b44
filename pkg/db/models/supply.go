package models

import (
	"time"

	"github.com/google/uuid"
)

// SupplyItem is one consumable packaging item type in the supply ledger.
// QuantityOnHand only moves through recorded usages and restocks and is never
// allowed below zero.
type SupplyItem struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SupplyType       string    `gorm:"column:supply_type;not null;uniqueIndex" json:"supply_type"`
	QuantityOnHand   int       `gorm:"column:quantity_on_hand;not null;default:0" json:"quantity_on_hand"`
	ReorderThreshold int       `gorm:"column:reorder_threshold;not null;default:0" json:"reorder_threshold"`
	UnitCostCents    int       `gorm:"column:unit_cost_cents;not null;default:0" json:"unit_cost_cents"`
	Supplier         string    `gorm:"column:supplier" json:"supplier,omitempty"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// SupplyUsage is the audit record for a decrement, always tied to the
// shipment that consumed the supplies.
type SupplyUsage struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SupplyItemID uuid.UUID `gorm:"column:supply_item_id;type:uuid;not null;index" json:"supply_item_id"`
	ShipmentID   uuid.UUID `gorm:"column:shipment_id;type:uuid;not null;index" json:"shipment_id"`
	Quantity     int       `gorm:"column:quantity;not null" json:"quantity"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// SupplyRestock is the audit record for an explicit increment.
type SupplyRestock struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SupplyItemID uuid.UUID `gorm:"column:supply_item_id;type:uuid;not null;index" json:"supply_item_id"`
	Quantity     int       `gorm:"column:quantity;not null" json:"quantity"`
	ActorUserID  uuid.UUID `gorm:"column:actor_user_id;type:uuid;not null" json:"actor_user_id"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
