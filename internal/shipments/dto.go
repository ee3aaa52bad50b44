package shipments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teleos-scientific/tlink-backend/internal/supplies"
	"github.com/teleos-scientific/tlink-backend/pkg/db/models"
	"github.com/teleos-scientific/tlink-backend/pkg/enums"
	"github.com/teleos-scientific/tlink-backend/pkg/types"
)

// Actor identifies the authenticated user performing an operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// RequestItemInput is one requested shipment line against a sample lot.
type RequestItemInput struct {
	LotID    uuid.UUID       `json:"lot_id" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
}

// RequestInput captures everything needed to initiate a shipment.
type RequestInput struct {
	RecipientName       string             `json:"recipient_name" validate:"required,max=255"`
	RecipientEmail      string             `json:"recipient_email" validate:"required,email"`
	RecipientPhone      string             `json:"recipient_phone" validate:"max=32"`
	Address             types.Address      `json:"address"`
	ScheduledDate       time.Time          `json:"scheduled_date"`
	SpecialInstructions string             `json:"special_instructions" validate:"max=2000"`
	Items               []RequestItemInput `json:"items" validate:"required,min=1,dive"`
	Actor               Actor              `json:"-"`
}

// ValidateAddressInput optionally carries a corrected address to validate in
// place of the shipment's stored address.
type ValidateAddressInput struct {
	Address *types.Address `json:"address,omitempty"`
}

// QuoteInput asks the carrier for a non-binding rate.
type QuoteInput struct {
	WeightLB decimal.Decimal    `json:"weight_lb"`
	Service  enums.ServiceLevel `json:"service"`
}

// GenerateLabelInput carries the physical package details for label purchase.
type GenerateLabelInput struct {
	WeightLB decimal.Decimal         `json:"weight_lb"`
	Service  enums.ServiceLevel      `json:"service"`
	Supplies []supplies.UsageRequest `json:"-"`
	Actor    Actor                   `json:"-"`
}

// LabelSupplyInput is the wire form of one supply line in a label request.
type LabelSupplyInput struct {
	SupplyItemID uuid.UUID `json:"supply_item_id" validate:"required"`
	Quantity     int       `json:"quantity" validate:"required,gt=0"`
}

// HazmatDeclarationInput is the dangerous-goods paperwork submitted by the lab.
type HazmatDeclarationInput struct {
	UNNumber           string             `json:"un_number" validate:"required,max=16"`
	ProperShippingName string             `json:"proper_shipping_name" validate:"required,max=255"`
	HazardClass        string             `json:"hazard_class" validate:"required,max=16"`
	PackingGroup       enums.PackingGroup `json:"packing_group" validate:"required"`
	TechnicalName      *string            `json:"technical_name,omitempty" validate:"omitempty,max=255"`
	EmergencyPhone     string             `json:"emergency_phone" validate:"required,max=32"`
}

// CancelInput carries the optional reason for a cancellation.
type CancelInput struct {
	Reason string `json:"reason" validate:"max=500"`
	Actor  Actor  `json:"-"`
}

// ListFilters describe the inputs supported by the shipment list.
type ListFilters struct {
	Status   *enums.ShipmentStatus
	IsHazmat *bool
	DateFrom *time.Time
	DateTo   *time.Time
}

// ShipmentList wraps a paginated page of shipments plus the next cursor.
type ShipmentList struct {
	Shipments  []models.Shipment `json:"shipments"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// TrackingClaim is the atomic write that turns a processing shipment into a
// shipped one. All fields land in a single conditional update.
type TrackingClaim struct {
	TrackingNumber    string
	ShippingCost      decimal.Decimal
	EstimatedDelivery *time.Time
	WeightLB          decimal.Decimal
	Service           enums.ServiceLevel
}

// TrackingUpdate is a carrier-reported status change, from polling or webhook.
type TrackingUpdate struct {
	CarrierStatus string
	Description   string
	Location      string
	EventTime     time.Time
}
