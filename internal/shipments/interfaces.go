package shipments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teleos-scientific/tlink-backend/pkg/db/models"
	"github.com/teleos-scientific/tlink-backend/pkg/enums"
	"github.com/teleos-scientific/tlink-backend/pkg/pagination"
)

// Repository defines persistence operations for shipments and their children.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// NextShipmentNumber draws the next human-readable number from the
	// database sequence.
	NextShipmentNumber(ctx context.Context) (string, error)
	CreateShipment(ctx context.Context, shipment *models.Shipment) (*models.Shipment, error)
	CreateItems(ctx context.Context, items []models.ShipmentItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error)
	FindByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Shipment, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*ShipmentList, error)
	UpdateShipment(ctx context.Context, id uuid.UUID, updates map[string]any) error
	// TransitionStatus performs a guarded status move and reports whether the
	// row was still in the expected state.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.ShipmentStatus) (bool, error)
	// ClaimTrackingNumber persists label results only when no label exists yet.
	ClaimTrackingNumber(ctx context.Context, id uuid.UUID, claim TrackingClaim) (bool, error)
	CreateHazmatDeclaration(ctx context.Context, decl *models.HazmatDeclaration) error
	FindHazmatByShipment(ctx context.Context, shipmentID uuid.UUID) (*models.HazmatDeclaration, error)
	UpdateHazmatDeclaration(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CreateTrackingEvents(ctx context.Context, events []models.TrackingEvent) error
	LatestTrackingEventTime(ctx context.Context, shipmentID uuid.UUID) (*time.Time, error)
}
