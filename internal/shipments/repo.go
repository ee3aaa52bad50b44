package shipments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teleos-scientific/tlink-backend/pkg/db/models"
	"github.com/teleos-scientific/tlink-backend/pkg/enums"
	"github.com/teleos-scientific/tlink-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a shipments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) NextShipmentNumber(ctx context.Context) (string, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Raw("SELECT nextval('shipment_number_seq')").
		Scan(&n).Error
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TL-%06d", n), nil
}

func (r *repository) CreateShipment(ctx context.Context, shipment *models.Shipment) (*models.Shipment, error) {
	if err := r.db.WithContext(ctx).Create(shipment).Error; err != nil {
		return nil, err
	}
	return shipment, nil
}

func (r *repository) CreateItems(ctx context.Context, items []models.ShipmentItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
	var shipment models.Shipment
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Hazmat").
		Where("id = ?", id).
		First(&shipment).Error
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (r *repository) FindByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Shipment, error) {
	var shipment models.Shipment
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Hazmat").
		Where("tracking_number = ?", trackingNumber).
		First(&shipment).Error
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (r *repository) List(ctx context.Context, params pagination.Params, filters ListFilters) (*ShipmentList, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.IsHazmat != nil {
		query = query.Where("is_hazmat = ?", *filters.IsHazmat)
	}
	if filters.DateFrom != nil {
		query = query.Where("scheduled_date >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("scheduled_date <= ?", *filters.DateTo)
	}

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

	var shipments []models.Shipment
	if err := query.Find(&shipments).Error; err != nil {
		return nil, err
	}

	list := &ShipmentList{Shipments: shipments}
	if len(shipments) > limit {
		last := shipments[limit-1]
		list.Shipments = shipments[:limit]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return list, nil
}

func (r *repository) UpdateShipment(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.ShipmentStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ClaimTrackingNumber(ctx context.Context, id uuid.UUID, claim TrackingClaim) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ? AND tracking_number IS NULL", id).
		Updates(map[string]any{
			"tracking_number":    claim.TrackingNumber,
			"shipping_cost":      claim.ShippingCost,
			"estimated_delivery": claim.EstimatedDelivery,
			"weight_lb":          claim.WeightLB,
			"service_level":      claim.Service,
			"status":             enums.ShipmentStatusShipped,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) CreateHazmatDeclaration(ctx context.Context, decl *models.HazmatDeclaration) error {
	return r.db.WithContext(ctx).Create(decl).Error
}

func (r *repository) FindHazmatByShipment(ctx context.Context, shipmentID uuid.UUID) (*models.HazmatDeclaration, error) {
	var decl models.HazmatDeclaration
	err := r.db.WithContext(ctx).
		Where("shipment_id = ?", shipmentID).
		First(&decl).Error
	if err != nil {
		return nil, err
	}
	return &decl, nil
}

func (r *repository) UpdateHazmatDeclaration(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.HazmatDeclaration{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) CreateTrackingEvents(ctx context.Context, events []models.TrackingEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&events).Error
}

func (r *repository) LatestTrackingEventTime(ctx context.Context, shipmentID uuid.UUID) (*time.Time, error) {
	var event models.TrackingEvent
	err := r.db.WithContext(ctx).
		Where("shipment_id = ?", shipmentID).
		Order("event_time DESC").
		First(&event).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &event.EventTime, nil
}
