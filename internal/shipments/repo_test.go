package shipments

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/teleos-scientific/tlink-backend/pkg/db/models"
	"github.com/teleos-scientific/tlink-backend/pkg/enums"
	"github.com/teleos-scientific/tlink-backend/pkg/pagination"
)

func setupShipmentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS shipments (
  id TEXT PRIMARY KEY,
  shipment_number TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'initiated',
  recipient_name TEXT NOT NULL,
  recipient_email TEXT NOT NULL,
  recipient_phone TEXT,
  address_line1 TEXT NOT NULL,
  address_line2 TEXT,
  address_city TEXT NOT NULL,
  address_state TEXT NOT NULL,
  address_postal_code TEXT NOT NULL,
  address_country TEXT NOT NULL DEFAULT 'US',
  address_validated INTEGER NOT NULL DEFAULT 0,
  scheduled_date DATETIME NOT NULL,
  is_hazmat INTEGER NOT NULL DEFAULT 0,
  special_instructions TEXT,
  weight_lb NUMERIC,
  service_level TEXT,
  tracking_number TEXT UNIQUE,
  shipping_cost NUMERIC,
  estimated_delivery DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS shipment_items (
  id TEXT PRIMARY KEY,
  shipment_id TEXT NOT NULL,
  lot_id TEXT NOT NULL,
  lot_number TEXT NOT NULL,
  quantity NUMERIC NOT NULL,
  unit TEXT NOT NULL,
  created_at DATETIME
);
CREATE TABLE IF NOT EXISTS hazmat_declarations (
  id TEXT PRIMARY KEY,
  shipment_id TEXT NOT NULL UNIQUE,
  un_number TEXT NOT NULL,
  proper_shipping_name TEXT NOT NULL,
  hazard_class TEXT NOT NULL,
  packing_group TEXT NOT NULL,
  technical_name TEXT,
  emergency_phone TEXT NOT NULL,
  labels_printed INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS tracking_events (
  id TEXT PRIMARY KEY,
  shipment_id TEXT NOT NULL,
  status TEXT NOT NULL,
  description TEXT,
  location TEXT,
  event_time DATETIME NOT NULL,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

var seedCounter atomic.Int64

func seedShipment(t *testing.T, db *gorm.DB, status enums.ShipmentStatus) *models.Shipment {
	t.Helper()
	id := uuid.New()
	shipment := &models.Shipment{
		ID:                id,
		ShipmentNumber:    fmt.Sprintf("TL-%06d", seedCounter.Add(1)),
		Status:            status,
		RecipientName:     "Dr. Vasquez",
		RecipientEmail:    "vasquez@example.org",
		AddressLine1:      "200 Research Pkwy",
		AddressCity:       "New Haven",
		AddressState:      "CT",
		AddressPostalCode: "06511",
		AddressCountry:    "US",
		ScheduledDate:     time.Now().UTC().AddDate(0, 0, 2),
	}
	require.NoError(t, db.Create(shipment).Error)
	return shipment
}

func TestRepositoryShipmentRoundTrip(t *testing.T) {
	db := setupShipmentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	shipment := seedShipment(t, db, enums.ShipmentStatusInitiated)
	items := []models.ShipmentItem{
		{ID: uuid.New(), ShipmentID: shipment.ID, LotID: uuid.New(), LotNumber: "LOT-1001", Quantity: decimal.NewFromInt(10), Unit: enums.QuantityUnitMilliliter},
		{ID: uuid.New(), ShipmentID: shipment.ID, LotID: uuid.New(), LotNumber: "LOT-1002", Quantity: decimal.NewFromInt(25), Unit: enums.QuantityUnitMilliliter},
	}
	require.NoError(t, repo.CreateItems(ctx, items))

	found, err := repo.FindByID(ctx, shipment.ID)
	require.NoError(t, err)
	assert.Equal(t, shipment.ShipmentNumber, found.ShipmentNumber)
	assert.Len(t, found.Items, 2)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestTransitionStatusGuardsCurrentState(t *testing.T) {
	db := setupShipmentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	shipment := seedShipment(t, db, enums.ShipmentStatusInitiated)

	moved, err := repo.TransitionStatus(ctx, shipment.ID, enums.ShipmentStatusInitiated, enums.ShipmentStatusProcessing)
	require.NoError(t, err)
	assert.True(t, moved)

	// Second attempt from the stale state matches zero rows.
	moved, err = repo.TransitionStatus(ctx, shipment.ID, enums.ShipmentStatusInitiated, enums.ShipmentStatusProcessing)
	require.NoError(t, err)
	assert.False(t, moved)

	found, err := repo.FindByID(ctx, shipment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ShipmentStatusProcessing, found.Status)
}

func TestClaimTrackingNumberOnlyOnce(t *testing.T) {
	db := setupShipmentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	shipment := seedShipment(t, db, enums.ShipmentStatusProcessing)
	est := time.Now().UTC().AddDate(0, 0, 3)
	claim := TrackingClaim{
		TrackingNumber:    "794600000001",
		ShippingCost:      decimal.RequireFromString("42.50"),
		EstimatedDelivery: &est,
		WeightLB:          decimal.RequireFromString("3.2"),
		Service:           enums.ServiceLevelPriorityOvernight,
	}

	ok, err := repo.ClaimTrackingNumber(ctx, shipment.ID, claim)
	require.NoError(t, err)
	assert.True(t, ok)

	found, err := repo.FindByID(ctx, shipment.ID)
	require.NoError(t, err)
	require.NotNil(t, found.TrackingNumber)
	assert.Equal(t, "794600000001", *found.TrackingNumber)
	assert.Equal(t, enums.ShipmentStatusShipped, found.Status)
	require.NotNil(t, found.ShippingCost)
	assert.True(t, found.ShippingCost.Equal(decimal.RequireFromString("42.50")))

	// A second claim finds tracking_number already set.
	claim.TrackingNumber = "794600000002"
	ok, err = repo.ClaimTrackingNumber(ctx, shipment.ID, claim)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err = repo.FindByID(ctx, shipment.ID)
	require.NoError(t, err)
	assert.Equal(t, "794600000001", *found.TrackingNumber)
}

func TestFindByTrackingNumber(t *testing.T) {
	db := setupShipmentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	shipment := seedShipment(t, db, enums.ShipmentStatusProcessing)
	_, err := repo.ClaimTrackingNumber(ctx, shipment.ID, TrackingClaim{
		TrackingNumber: "794600000099",
		ShippingCost:   decimal.RequireFromString("12.00"),
		WeightLB:       decimal.NewFromInt(1),
		Service:        enums.ServiceLevelGround,
	})
	require.NoError(t, err)

	found, err := repo.FindByTrackingNumber(ctx, "794600000099")
	require.NoError(t, err)
	assert.Equal(t, shipment.ID, found.ID)

	_, err = repo.FindByTrackingNumber(ctx, "nope")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestHazmatDeclarationRoundTrip(t *testing.T) {
	db := setupShipmentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	shipment := seedShipment(t, db, enums.ShipmentStatusProcessing)

	_, err := repo.FindHazmatByShipment(ctx, shipment.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	decl := &models.HazmatDeclaration{
		ID:                 uuid.New(),
		ShipmentID:         shipment.ID,
		UNNumber:           "UN1993",
		ProperShippingName: "Flammable liquid, n.o.s.",
		HazardClass:        "3",
		PackingGroup:       enums.PackingGroupII,
		EmergencyPhone:     "+1-800-424-9300",
	}
	require.NoError(t, repo.CreateHazmatDeclaration(ctx, decl))

	second := &models.HazmatDeclaration{
		ID:                 uuid.New(),
		ShipmentID:         shipment.ID,
		UNNumber:           "UN1993",
		ProperShippingName: "Flammable liquid, n.o.s.",
		HazardClass:        "3",
		PackingGroup:       enums.PackingGroupII,
		EmergencyPhone:     "+1-800-424-9300",
	}
	assert.Error(t, repo.CreateHazmatDeclaration(ctx, second))

	require.NoError(t, repo.UpdateHazmatDeclaration(ctx, decl.ID, map[string]any{"labels_printed": true}))
	found, err := repo.FindHazmatByShipment(ctx, shipment.ID)
	require.NoError(t, err)
	assert.True(t, found.LabelsPrinted)
}

func TestTrackingEventsLatestTime(t *testing.T) {
	db := setupShipmentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	shipment := seedShipment(t, db, enums.ShipmentStatusShipped)

	latest, err := repo.LatestTrackingEventTime(ctx, shipment.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	events := []models.TrackingEvent{
		{ID: uuid.New(), ShipmentID: shipment.ID, Status: "PICKED_UP", EventTime: base},
		{ID: uuid.New(), ShipmentID: shipment.ID, Status: "IN_TRANSIT", EventTime: base.Add(6 * time.Hour)},
	}
	require.NoError(t, repo.CreateTrackingEvents(ctx, events))

	latest, err = repo.LatestTrackingEventTime(ctx, shipment.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(base.Add(6*time.Hour)))
}

func TestListShipmentsFiltersAndPagination(t *testing.T) {
	db := setupShipmentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seedShipment(t, db, enums.ShipmentStatusInitiated)
	}
	hazmat := seedShipment(t, db, enums.ShipmentStatusProcessing)
	require.NoError(t, db.Model(&models.Shipment{}).Where("id = ?", hazmat.ID).
		Update("is_hazmat", true).Error)

	status := enums.ShipmentStatusInitiated
	list, err := repo.List(ctx, pagination.Params{Limit: 2}, ListFilters{Status: &status})
	require.NoError(t, err)
	assert.Len(t, list.Shipments, 2)
	assert.NotEmpty(t, list.NextCursor)

	list, err = repo.List(ctx, pagination.Params{Limit: 2, Cursor: list.NextCursor}, ListFilters{Status: &status})
	require.NoError(t, err)
	assert.Len(t, list.Shipments, 1)
	assert.Empty(t, list.NextCursor)

	isHazmat := true
	list, err = repo.List(ctx, pagination.Params{Limit: 10}, ListFilters{IsHazmat: &isHazmat})
	require.NoError(t, err)
	require.Len(t, list.Shipments, 1)
	assert.Equal(t, hazmat.ID, list.Shipments[0].ID)
}
