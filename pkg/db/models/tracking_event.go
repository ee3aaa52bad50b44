package models

import (
	"time"

	"github.com/google/uuid"
)

// TrackingEvent is a cached carrier tracking snapshot entry for a shipment.
type TrackingEvent struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ShipmentID  uuid.UUID `gorm:"column:shipment_id;type:uuid;not null;index" json:"shipment_id"`
	Status      string    `gorm:"column:status;not null" json:"status"`
	Description string    `gorm:"column:description" json:"description,omitempty"`
	Location    string    `gorm:"column:location" json:"location,omitempty"`
	EventTime   time.Time `gorm:"column:event_time;not null" json:"event_time"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
