package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/teleos-scientific/tlink-backend/pkg/enums"
)

// HazmatDeclaration is the dangerous-goods paperwork attached to a hazmat
// shipment. At most one exists per shipment; it must exist, with warning
// labels marked printed, before the shipment can be labeled.
type HazmatDeclaration struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ShipmentID         uuid.UUID          `gorm:"column:shipment_id;type:uuid;not null;uniqueIndex" json:"shipment_id"`
	UNNumber           string             `gorm:"column:un_number;not null" json:"un_number"`
	ProperShippingName string             `gorm:"column:proper_shipping_name;not null" json:"proper_shipping_name"`
	HazardClass        string             `gorm:"column:hazard_class;not null" json:"hazard_class"`
	PackingGroup       enums.PackingGroup `gorm:"column:packing_group;not null" json:"packing_group"`
	TechnicalName      *string            `gorm:"column:technical_name" json:"technical_name,omitempty"`
	EmergencyPhone     string             `gorm:"column:emergency_phone;not null" json:"emergency_phone"`
	LabelsPrinted      bool               `gorm:"column:labels_printed;not null;default:false" json:"labels_printed"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
