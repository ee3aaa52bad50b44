package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teleos-scientific/tlink-backend/pkg/enums"
)

// Shipment is one outbound package request. TrackingNumber, ShippingCost, and
// EstimatedDelivery stay unset until label generation moves the shipment to
// shipped; they are always set together.
type Shipment struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ShipmentNumber string               `gorm:"column:shipment_number;not null;uniqueIndex" json:"shipment_number"`
	Status         enums.ShipmentStatus `gorm:"column:status;not null;default:'initiated'" json:"status"`

	RecipientName  string `gorm:"column:recipient_name;not null" json:"recipient_name"`
	RecipientEmail string `gorm:"column:recipient_email;not null" json:"recipient_email"`
	RecipientPhone string `gorm:"column:recipient_phone" json:"recipient_phone,omitempty"`

	AddressLine1      string `gorm:"column:address_line1;not null" json:"address_line1"`
	AddressLine2      string `gorm:"column:address_line2" json:"address_line2,omitempty"`
	AddressCity       string `gorm:"column:address_city;not null" json:"address_city"`
	AddressState      string `gorm:"column:address_state;not null" json:"address_state"`
	AddressPostalCode string `gorm:"column:address_postal_code;not null" json:"address_postal_code"`
	AddressCountry    string `gorm:"column:address_country;not null;default:'US'" json:"address_country"`
	AddressValidated  bool   `gorm:"column:address_validated;not null;default:false" json:"address_validated"`

	ScheduledDate       time.Time           `gorm:"column:scheduled_date;not null" json:"scheduled_date"`
	IsHazmat            bool                `gorm:"column:is_hazmat;not null;default:false" json:"is_hazmat"`
	SpecialInstructions string              `gorm:"column:special_instructions" json:"special_instructions,omitempty"`
	WeightLB            *decimal.Decimal    `gorm:"column:weight_lb;type:numeric(8,2)" json:"weight_lb,omitempty"`
	ServiceLevel        *enums.ServiceLevel `gorm:"column:service_level" json:"service_level,omitempty"`

	TrackingNumber    *string          `gorm:"column:tracking_number;uniqueIndex" json:"tracking_number,omitempty"`
	ShippingCost      *decimal.Decimal `gorm:"column:shipping_cost;type:numeric(10,2)" json:"shipping_cost,omitempty"`
	EstimatedDelivery *time.Time       `gorm:"column:estimated_delivery" json:"estimated_delivery,omitempty"`

	Items       []ShipmentItem     `gorm:"foreignKey:ShipmentID" json:"items,omitempty"`
	Hazmat      *HazmatDeclaration `gorm:"foreignKey:ShipmentID" json:"hazmat,omitempty"`
	CancelledAt *time.Time         `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// ShipmentItem references a sample lot and the quantity requested from it.
type ShipmentItem struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ShipmentID uuid.UUID          `gorm:"column:shipment_id;type:uuid;not null;index" json:"shipment_id"`
	LotID      uuid.UUID          `gorm:"column:lot_id;type:uuid;not null" json:"lot_id"`
	LotNumber  string             `gorm:"column:lot_number;not null" json:"lot_number"`
	Quantity   decimal.Decimal    `gorm:"column:quantity;type:numeric(12,3);not null" json:"quantity"`
	Unit       enums.QuantityUnit `gorm:"column:unit;not null" json:"unit"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
