package shipments

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/teleos-scientific/tlink-backend/internal/samples"
	"github.com/teleos-scientific/tlink-backend/internal/supplies"
	"github.com/teleos-scientific/tlink-backend/pkg/carrier"
	"github.com/teleos-scientific/tlink-backend/pkg/db/models"
	"github.com/teleos-scientific/tlink-backend/pkg/enums"
	pkgerrors "github.com/teleos-scientific/tlink-backend/pkg/errors"
	"github.com/teleos-scientific/tlink-backend/pkg/outbox"
	"github.com/teleos-scientific/tlink-backend/pkg/pagination"
	"github.com/teleos-scientific/tlink-backend/pkg/redis"
	"github.com/teleos-scientific/tlink-backend/pkg/types"
)

type memShipmentsRepo struct {
	shipments map[uuid.UUID]*models.Shipment
	items     map[uuid.UUID][]models.ShipmentItem
	hazmat    map[uuid.UUID]*models.HazmatDeclaration
	tracking  map[uuid.UUID][]models.TrackingEvent
	sequence  int64

	claimTracking    func(ctx context.Context, id uuid.UUID, claim TrackingClaim) (bool, error)
	transitionStatus func(ctx context.Context, id uuid.UUID, from, to enums.ShipmentStatus) (bool, error)
}

func newMemShipmentsRepo() *memShipmentsRepo {
	return &memShipmentsRepo{
		shipments: make(map[uuid.UUID]*models.Shipment),
		items:     make(map[uuid.UUID][]models.ShipmentItem),
		hazmat:    make(map[uuid.UUID]*models.HazmatDeclaration),
		tracking:  make(map[uuid.UUID][]models.TrackingEvent),
	}
}

func (r *memShipmentsRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *memShipmentsRepo) NextShipmentNumber(ctx context.Context) (string, error) {
	r.sequence++
	return fmt.Sprintf("TL-%06d", r.sequence), nil
}

func (r *memShipmentsRepo) CreateShipment(ctx context.Context, shipment *models.Shipment) (*models.Shipment, error) {
	copied := *shipment
	r.shipments[shipment.ID] = &copied
	return shipment, nil
}

func (r *memShipmentsRepo) CreateItems(ctx context.Context, items []models.ShipmentItem) error {
	for _, item := range items {
		r.items[item.ShipmentID] = append(r.items[item.ShipmentID], item)
	}
	return nil
}

func (r *memShipmentsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
	shipment, ok := r.shipments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *shipment
	copied.Items = r.items[id]
	if decl, ok := r.hazmat[id]; ok {
		declCopy := *decl
		copied.Hazmat = &declCopy
	}
	return &copied, nil
}

func (r *memShipmentsRepo) FindByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Shipment, error) {
	for id, shipment := range r.shipments {
		if shipment.TrackingNumber != nil && *shipment.TrackingNumber == trackingNumber {
			return r.FindByID(ctx, id)
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memShipmentsRepo) List(ctx context.Context, params pagination.Params, filters ListFilters) (*ShipmentList, error) {
	list := &ShipmentList{}
	for _, shipment := range r.shipments {
		list.Shipments = append(list.Shipments, *shipment)
	}
	return list, nil
}

func (r *memShipmentsRepo) UpdateShipment(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	shipment, ok := r.shipments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if v, ok := updates["address_validated"]; ok {
		shipment.AddressValidated = v.(bool)
	}
	if v, ok := updates["cancelled_at"]; ok {
		t := v.(time.Time)
		shipment.CancelledAt = &t
	}
	if v, ok := updates["address_line1"]; ok {
		shipment.AddressLine1 = v.(string)
	}
	return nil
}

func (r *memShipmentsRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.ShipmentStatus) (bool, error) {
	if r.transitionStatus != nil {
		return r.transitionStatus(ctx, id, from, to)
	}
	shipment, ok := r.shipments[id]
	if !ok || shipment.Status != from {
		return false, nil
	}
	shipment.Status = to
	return true, nil
}

func (r *memShipmentsRepo) ClaimTrackingNumber(ctx context.Context, id uuid.UUID, claim TrackingClaim) (bool, error) {
	if r.claimTracking != nil {
		return r.claimTracking(ctx, id, claim)
	}
	shipment, ok := r.shipments[id]
	if !ok || shipment.TrackingNumber != nil {
		return false, nil
	}
	tn := claim.TrackingNumber
	shipment.TrackingNumber = &tn
	shipment.ShippingCost = &claim.ShippingCost
	shipment.EstimatedDelivery = claim.EstimatedDelivery
	shipment.WeightLB = &claim.WeightLB
	service := claim.Service
	shipment.ServiceLevel = &service
	shipment.Status = enums.ShipmentStatusShipped
	return true, nil
}

func (r *memShipmentsRepo) CreateHazmatDeclaration(ctx context.Context, decl *models.HazmatDeclaration) error {
	if _, ok := r.hazmat[decl.ShipmentID]; ok {
		return fmt.Errorf("duplicate key value violates unique constraint \"ux_hazmat_declarations_shipment_id\"")
	}
	if decl.ID == uuid.Nil {
		decl.ID = uuid.New()
	}
	copied := *decl
	r.hazmat[decl.ShipmentID] = &copied
	return nil
}

func (r *memShipmentsRepo) FindHazmatByShipment(ctx context.Context, shipmentID uuid.UUID) (*models.HazmatDeclaration, error) {
	decl, ok := r.hazmat[shipmentID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *decl
	return &copied, nil
}

func (r *memShipmentsRepo) UpdateHazmatDeclaration(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	for _, decl := range r.hazmat {
		if decl.ID == id {
			if v, ok := updates["labels_printed"]; ok {
				decl.LabelsPrinted = v.(bool)
			}
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memShipmentsRepo) CreateTrackingEvents(ctx context.Context, events []models.TrackingEvent) error {
	for _, event := range events {
		r.tracking[event.ShipmentID] = append(r.tracking[event.ShipmentID], event)
	}
	return nil
}

func (r *memShipmentsRepo) LatestTrackingEventTime(ctx context.Context, shipmentID uuid.UUID) (*time.Time, error) {
	events := r.tracking[shipmentID]
	if len(events) == 0 {
		return nil, nil
	}
	latest := events[0].EventTime
	for _, event := range events[1:] {
		if event.EventTime.After(latest) {
			latest = event.EventTime
		}
	}
	return &latest, nil
}

type stubLotCatalog struct {
	lots map[uuid.UUID]models.SampleLot
}

func (s *stubLotCatalog) FindLotsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.SampleLot, error) {
	var out []models.SampleLot
	for _, id := range ids {
		if lot, ok := s.lots[id]; ok {
			out = append(out, lot)
		}
	}
	return out, nil
}

type stubReserver struct {
	reserve  func(ctx context.Context, tx *gorm.DB, requests []samples.LotReservationRequest) error
	reserved [][]samples.LotReservationRequest
}

func (s *stubReserver) Reserve(ctx context.Context, tx *gorm.DB, requests []samples.LotReservationRequest) error {
	if s.reserve != nil {
		return s.reserve(ctx, tx, requests)
	}
	s.reserved = append(s.reserved, requests)
	return nil
}

type stubConsumer struct {
	consume  func(ctx context.Context, tx *gorm.DB, shipmentID uuid.UUID, requests []supplies.UsageRequest) error
	consumed [][]supplies.UsageRequest
}

func (s *stubConsumer) Consume(ctx context.Context, tx *gorm.DB, shipmentID uuid.UUID, requests []supplies.UsageRequest) error {
	if s.consume != nil {
		return s.consume(ctx, tx, shipmentID, requests)
	}
	s.consumed = append(s.consumed, requests)
	return nil
}

type stubStock struct {
	items map[uuid.UUID]*models.SupplyItem
}

func (s *stubStock) FindItemByID(ctx context.Context, id uuid.UUID) (*models.SupplyItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return item, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubOutbox struct {
	events []outbox.DomainEvent
	emit   func(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if s.emit != nil {
		return s.emit(ctx, tx, event)
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubOutbox) eventTypes() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, 0, len(s.events))
	for _, event := range s.events {
		out = append(out, event.EventType)
	}
	return out
}

type stubCarrier struct {
	validateAddress func(ctx context.Context, address types.Address) (*carrier.AddressValidation, error)
	getRate         func(ctx context.Context, address types.Address, weightLB decimal.Decimal, service enums.ServiceLevel) (*carrier.RateQuote, error)
	createShipment  func(ctx context.Context, input carrier.ShipmentRequest) (*carrier.Label, error)
	track           func(ctx context.Context, trackingNumber string) (*carrier.TrackingInfo, error)

	shipCalls int
}

func (s *stubCarrier) ValidateAddress(ctx context.Context, address types.Address) (*carrier.AddressValidation, error) {
	if s.validateAddress != nil {
		return s.validateAddress(ctx, address)
	}
	return &carrier.AddressValidation{Valid: true}, nil
}

func (s *stubCarrier) GetRate(ctx context.Context, address types.Address, weightLB decimal.Decimal, service enums.ServiceLevel) (*carrier.RateQuote, error) {
	if s.getRate != nil {
		return s.getRate(ctx, address, weightLB, service)
	}
	return &carrier.RateQuote{Cost: decimal.RequireFromString("18.40"), Currency: "USD", Service: service}, nil
}

func (s *stubCarrier) CreateShipment(ctx context.Context, input carrier.ShipmentRequest) (*carrier.Label, error) {
	s.shipCalls++
	if s.createShipment != nil {
		return s.createShipment(ctx, input)
	}
	return &carrier.Label{
		TrackingNumber:    "794612345678",
		LabelURL:          "https://labels.example.com/794612345678.pdf",
		Cost:              decimal.RequireFromString("42.50"),
		EstimatedDelivery: time.Now().UTC().AddDate(0, 0, 2),
	}, nil
}

func (s *stubCarrier) Track(ctx context.Context, trackingNumber string) (*carrier.TrackingInfo, error) {
	if s.track != nil {
		return s.track(ctx, trackingNumber)
	}
	return &carrier.TrackingInfo{Status: "IN_TRANSIT"}, nil
}

type stubQuotes struct {
	stored  []redis.CachedQuote
	dropped []string
}

func (s *stubQuotes) StoreQuote(ctx context.Context, quote redis.CachedQuote) error {
	s.stored = append(s.stored, quote)
	return nil
}

func (s *stubQuotes) DropQuote(ctx context.Context, shipmentID string) error {
	s.dropped = append(s.dropped, shipmentID)
	return nil
}

type serviceFixture struct {
	svc      Service
	repo     *memShipmentsRepo
	lots     *stubLotCatalog
	reserver *stubReserver
	consumer *stubConsumer
	stock    *stubStock
	outbox   *stubOutbox
	carrier  *stubCarrier
	quotes   *stubQuotes
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo:     newMemShipmentsRepo(),
		lots:     &stubLotCatalog{lots: make(map[uuid.UUID]models.SampleLot)},
		reserver: &stubReserver{},
		consumer: &stubConsumer{},
		stock:    &stubStock{items: make(map[uuid.UUID]*models.SupplyItem)},
		outbox:   &stubOutbox{},
		carrier:  &stubCarrier{},
		quotes:   &stubQuotes{},
	}
	svc, err := NewService(ServiceDeps{
		Repo:     f.repo,
		Lots:     f.lots,
		Reserver: f.reserver,
		Supplies: f.consumer,
		Stock:    f.stock,
		Tx:       stubTxRunner{},
		Outbox:   f.outbox,
		Carrier:  f.carrier,
		Quotes:   f.quotes,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *serviceFixture) addLot(available string) models.SampleLot {
	lot := models.SampleLot{
		ID:                uuid.New(),
		LotNumber:         fmt.Sprintf("LOT-%s", uuid.New().String()[:4]),
		MaterialName:      "Reference standard",
		Unit:              enums.QuantityUnitMilliliter,
		QuantityAvailable: decimal.RequireFromString(available),
	}
	f.lots.lots[lot.ID] = lot
	return lot
}

func (f *serviceFixture) addSupply(onHand int) *models.SupplyItem {
	item := &models.SupplyItem{
		ID:             uuid.New(),
		SupplyType:     fmt.Sprintf("cold-pack-%s", uuid.New().String()[:4]),
		QuantityOnHand: onHand,
	}
	f.stock.items[item.ID] = item
	return item
}

func validRequestInput(items ...RequestItemInput) RequestInput {
	return RequestInput{
		RecipientName:  "Dr. Vasquez",
		RecipientEmail: "vasquez@example.org",
		Address: types.Address{
			Line1:      "200 Research Pkwy",
			City:       "New Haven",
			State:      "CT",
			PostalCode: "06511",
			Country:    "US",
		},
		ScheduledDate: time.Now().UTC().AddDate(0, 0, 3),
		Items:         items,
		Actor:         Actor{UserID: uuid.New(), Role: enums.ActorRoleLabStaff},
	}
}

func (f *serviceFixture) requestShipment(t *testing.T, items ...RequestItemInput) *models.Shipment {
	t.Helper()
	shipment, err := f.svc.Request(context.Background(), validRequestInput(items...))
	require.NoError(t, err)
	return shipment
}

func TestRequestValidation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Request(ctx, validRequestInput())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	input := validRequestInput(RequestItemInput{LotID: uuid.New(), Quantity: decimal.NewFromInt(5)})
	input.RecipientEmail = ""
	_, err = f.svc.Request(ctx, input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	input = validRequestInput(RequestItemInput{LotID: uuid.New(), Quantity: decimal.NewFromInt(5)})
	input.Address.PostalCode = ""
	_, err = f.svc.Request(ctx, input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	lot := f.addLot("50")
	_, err = f.svc.Request(ctx, validRequestInput(RequestItemInput{LotID: lot.ID, Quantity: decimal.Zero}))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRequestUnknownLotNamesTheLot(t *testing.T) {
	f := newServiceFixture(t)

	missing := uuid.New()
	_, err := f.svc.Request(context.Background(),
		validRequestInput(RequestItemInput{LotID: missing, Quantity: decimal.NewFromInt(5)}))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, err.Error(), missing.String())
}

func TestRequestInsufficientLotNamesLotNumber(t *testing.T) {
	f := newServiceFixture(t)
	lot := f.addLot("5")

	_, err := f.svc.Request(context.Background(),
		validRequestInput(RequestItemInput{LotID: lot.ID, Quantity: decimal.NewFromInt(10)}))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, err.Error(), lot.LotNumber)
	assert.Empty(t, f.reserver.reserved)
}

func TestRequestSumsLineItemsPerLot(t *testing.T) {
	f := newServiceFixture(t)
	lot := f.addLot("30")

	// Each line fits on its own, the pair does not.
	_, err := f.svc.Request(context.Background(), validRequestInput(
		RequestItemInput{LotID: lot.ID, Quantity: decimal.NewFromInt(20)},
		RequestItemInput{LotID: lot.ID, Quantity: decimal.NewFromInt(20)}))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, err.Error(), lot.LotNumber)
	assert.Empty(t, f.reserver.reserved)

	shipment := f.requestShipment(t,
		RequestItemInput{LotID: lot.ID, Quantity: decimal.NewFromInt(20)},
		RequestItemInput{LotID: lot.ID, Quantity: decimal.NewFromInt(10)})
	assert.Equal(t, enums.ShipmentStatusInitiated, shipment.Status)
	require.Len(t, f.reserver.reserved, 1)
	require.Len(t, f.reserver.reserved[0], 1)
	assert.True(t, f.reserver.reserved[0][0].Quantity.Equal(decimal.NewFromInt(30)))
}

func TestRequestReservesAndEmits(t *testing.T) {
	f := newServiceFixture(t)
	lot := f.addLot("50")

	shipment := f.requestShipment(t, RequestItemInput{LotID: lot.ID, Quantity: decimal.NewFromInt(10)})

	assert.Equal(t, enums.ShipmentStatusInitiated, shipment.Status)
	assert.False(t, shipment.IsHazmat)
	assert.NotEmpty(t, shipment.ShipmentNumber)
	require.Len(t, f.reserver.reserved, 1)
	assert.True(t, f.reserver.reserved[0][0].Quantity.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, []enums.OutboxEventType{
		enums.EventShipmentRequested,
		enums.EventNotificationEmailQueued,
	}, f.outbox.eventTypes())
}

func TestRequestHazmatThresholdBoundary(t *testing.T) {
	f := newServiceFixture(t)

	below := f.requestShipment(t,
		RequestItemInput{LotID: f.addLot("100").ID, Quantity: decimal.RequireFromString("29.999")})
	assert.False(t, below.IsHazmat)

	at := f.requestShipment(t,
		RequestItemInput{LotID: f.addLot("100").ID, Quantity: decimal.RequireFromString("30")})
	assert.True(t, at.IsHazmat)

	split := f.requestShipment(t,
		RequestItemInput{LotID: f.addLot("100").ID, Quantity: decimal.NewFromInt(10)},
		RequestItemInput{LotID: f.addLot("100").ID, Quantity: decimal.NewFromInt(25)})
	assert.True(t, split.IsHazmat)
}

func TestBeginRequiresInitiated(t *testing.T) {
	f := newServiceFixture(t)
	lot := f.addLot("50")
	shipment := f.requestShipment(t, RequestItemInput{LotID: lot.ID, Quantity: decimal.NewFromInt(5)})

	moved, err := f.svc.Begin(context.Background(), shipment.ID, Actor{UserID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, enums.ShipmentStatusProcessing, moved.Status)

	_, err = f.svc.Begin(context.Background(), shipment.ID, Actor{UserID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestValidateAddressPersistsCorrection(t *testing.T) {
	f := newServiceFixture(t)
	lot := f.addLot("50")
	shipment := f.requestShipment(t, RequestItemInput{LotID: lot.ID, Quantity: decimal.NewFromInt(5)})

	f.carrier.validateAddress = func(ctx context.Context, address types.Address) (*carrier.AddressValidation, error) {
		corrected := address
		corrected.Line1 = "200 RESEARCH PKWY"
		return &carrier.AddressValidation{Valid: true, Corrected: &corrected}, nil
	}

	updated, err := f.svc.ValidateAddress(context.Background(), shipment.ID, ValidateAddressInput{})
	require.NoError(t, err)
	assert.True(t, updated.AddressValidated)
	assert.Equal(t, "200 RESEARCH PKWY", updated.AddressLine1)
	assert.Equal(t, enums.ShipmentStatusInitiated, updated.Status)
}

func TestValidateAddressInvalid(t *testing.T) {
	f := newServiceFixture(t)
	lot := f.addLot("50")
	shipment := f.requestShipment(t, RequestItemInput{LotID: lot.ID, Quantity: decimal.NewFromInt(5)})

	f.carrier.validateAddress = func(ctx context.Context, address types.Address) (*carrier.AddressValidation, error) {
		return &carrier.AddressValidation{Valid: false}, nil
	}

	_, err := f.svc.ValidateAddress(context.Background(), shipment.ID, ValidateAddressInput{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	found, err := f.svc.Get(context.Background(), shipment.ID)
	require.NoError(t, err)
	assert.False(t, found.AddressValidated)
}

func TestValidateAddressAcceptsResubmission(t *testing.T) {
	f := newServiceFixture(t)
	lot := f.addLot("50")
	shipment := f.requestShipment(t, RequestItemInput{LotID: lot.ID, Quantity: decimal.NewFromInt(5)})

	var seen types.Address
	f.carrier.validateAddress = func(ctx context.Context, address types.Address) (*carrier.AddressValidation, error) {
		seen = address
		return &carrier.AddressValidation{Valid: true}, nil
	}

	updated, err := f.svc.ValidateAddress(context.Background(), shipment.ID, ValidateAddressInput{
		Address: &types.Address{
			Line1:      "14 Cold Chain Ct",
			City:       "Boulder",
			State:      "co",
			PostalCode: "80301",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "14 Cold Chain Ct", seen.Line1)
	assert.Equal(t, "CO", seen.State)
	assert.True(t, updated.AddressValidated)
	assert.Equal(t, "14 Cold Chain Ct", updated.AddressLine1)
	assert.Equal(t, "Boulder", updated.AddressCity)
}

func TestQuoteRateCachesQuote(t *testing.T) {
	f := newServiceFixture(t)
	lot := f.addLot("50")
	shipment := f.requestShipment(t, RequestItemInput{LotID: lot.ID, Quantity: decimal.NewFromInt(5)})

	quote, err := f.svc.QuoteRate(context.Background(), shipment.ID, QuoteInput{
		WeightLB: decimal.RequireFromString("2.5"),
		Service:  enums.ServiceLevelGround,
	})
	require.NoError(t, err)
	assert.Equal(t, "18.4", quote.Cost.String())
	require.Len(t, f.quotes.stored, 1)
	assert.Equal(t, shipment.ID.String(), f.quotes.stored[0].ShipmentID)

	found, err := f.svc.Get(context.Background(), shipment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ShipmentStatusInitiated, found.Status)
}

// readyForLabel walks a non-hazmat shipment to processing with a validated
// address.
func (f *serviceFixture) readyForLabel(t *testing.T) *models.Shipment {
	t.Helper()
	lot := f.addLot("50")
	shipment := f.requestShipment(t, RequestItemInput{LotID: lot.ID, Quantity: decimal.NewFromInt(5)})
	_, err := f.svc.Begin(context.Background(), shipment.ID, Actor{UserID: uuid.New()})
	require.NoError(t, err)
	_, err = f.svc.ValidateAddress(context.Background(), shipment.ID, ValidateAddressInput{})
	require.NoError(t, err)
	f.outbox.events = nil
	return shipment
}

func labelInput(supplies ...supplies.UsageRequest) GenerateLabelInput {
	return GenerateLabelInput{
		WeightLB: decimal.RequireFromString("3.2"),
		Service:  enums.ServiceLevelPriorityOvernight,
		Supplies: supplies,
		Actor:    Actor{UserID: uuid.New(), Role: enums.ActorRoleLabStaff},
	}
}

func TestGenerateLabelHappyPath(t *testing.T) {
	f := newServiceFixture(t)
	shipment := f.readyForLabel(t)
	supply := f.addSupply(10)

	shipped, err := f.svc.GenerateLabel(context.Background(), shipment.ID,
		labelInput(supplies.UsageRequest{SupplyItemID: supply.ID, Quantity: 2}))
	require.NoError(t, err)

	assert.Equal(t, enums.ShipmentStatusShipped, shipped.Status)
	require.NotNil(t, shipped.TrackingNumber)
	assert.Equal(t, "794612345678", *shipped.TrackingNumber)
	require.Len(t, f.consumer.consumed, 1)
	assert.Equal(t, []enums.OutboxEventType{
		enums.EventShipmentShipped,
		enums.EventShipmentStatusChanged,
		enums.EventNotificationEmailQueued,
	}, f.outbox.eventTypes())
}

func TestGenerateLabelRequiresProcessing(t *testing.T) {
	f := newServiceFixture(t)
	lot := f.addLot("50")
	shipment := f.requestShipment(t, RequestItemInput{LotID: lot.ID, Quantity: decimal.NewFromInt(5)})

	_, err := f.svc.GenerateLabel(context.Background(), shipment.ID, labelInput())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Zero(t, f.carrier.shipCalls)
}

func TestGenerateLabelRequiresValidatedAddress(t *testing.T) {
	f := newServiceFixture(t)
	lot := f.addLot("50")
	shipment := f.requestShipment(t, RequestItemInput{LotID: lot.ID, Quantity: decimal.NewFromInt(5)})
	_, err := f.svc.Begin(context.Background(), shipment.ID, Actor{UserID: uuid.New()})
	require.NoError(t, err)

	_, err = f.svc.GenerateLabel(context.Background(), shipment.ID, labelInput())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Zero(t, f.carrier.shipCalls)
}

func TestGenerateLabelInsufficientSupplyBeforeCarrier(t *testing.T) {
	f := newServiceFixture(t)
	shipment := f.readyForLabel(t)
	supply := f.addSupply(1)

	_, err := f.svc.GenerateLabel(context.Background(), shipment.ID,
		labelInput(supplies.UsageRequest{SupplyItemID: supply.ID, Quantity: 5}))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, err.Error(), supply.SupplyType)
	assert.Zero(t, f.carrier.shipCalls)
}

func TestGenerateLabelSecondCallConflicts(t *testing.T) {
	f := newServiceFixture(t)
	shipment := f.readyForLabel(t)
	supply := f.addSupply(10)

	_, err := f.svc.GenerateLabel(context.Background(), shipment.ID,
		labelInput(supplies.UsageRequest{SupplyItemID: supply.ID, Quantity: 1}))
	require.NoError(t, err)

	_, err = f.svc.GenerateLabel(context.Background(), shipment.ID,
		labelInput(supplies.UsageRequest{SupplyItemID: supply.ID, Quantity: 1}))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, 1, f.carrier.shipCalls)
	require.Len(t, f.consumer.consumed, 1)
}

func TestGenerateLabelClaimRaceSurfacesTrackingNumber(t *testing.T) {
	f := newServiceFixture(t)
	shipment := f.readyForLabel(t)
	supply := f.addSupply(10)

	f.repo.claimTracking = func(ctx context.Context, id uuid.UUID, claim TrackingClaim) (bool, error) {
		return false, nil
	}

	// The carrier label was purchased before the claim lost the race, so
	// the caller must still see the orphaned tracking number.
	_, err := f.svc.GenerateLabel(context.Background(), shipment.ID,
		labelInput(supplies.UsageRequest{SupplyItemID: supply.ID, Quantity: 1}))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePartialFailure))
	assert.Equal(t, 1, f.carrier.shipCalls)
	assert.Empty(t, f.consumer.consumed)

	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	details, ok := appErr.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "794612345678", details["tracking_number"])
}

func TestGenerateLabelPartialFailureCarriesTrackingNumber(t *testing.T) {
	f := newServiceFixture(t)
	shipment := f.readyForLabel(t)
	supply := f.addSupply(10)

	f.consumer.consume = func(ctx context.Context, tx *gorm.DB, shipmentID uuid.UUID, requests []supplies.UsageRequest) error {
		return fmt.Errorf("connection reset")
	}

	_, err := f.svc.GenerateLabel(context.Background(), shipment.ID,
		labelInput(supplies.UsageRequest{SupplyItemID: supply.ID, Quantity: 1}))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePartialFailure))

	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	details, ok := appErr.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "794612345678", details["tracking_number"])
}

func TestGenerateLabelHazmatGuards(t *testing.T) {
	f := newServiceFixture(t)
	shipment := f.requestShipment(t,
		RequestItemInput{LotID: f.addLot("100").ID, Quantity: decimal.NewFromInt(40)})
	require.True(t, shipment.IsHazmat)
	_, err := f.svc.Begin(context.Background(), shipment.ID, Actor{UserID: uuid.New()})
	require.NoError(t, err)
	_, err = f.svc.ValidateAddress(context.Background(), shipment.ID, ValidateAddressInput{})
	require.NoError(t, err)

	_, err = f.svc.GenerateLabel(context.Background(), shipment.ID, labelInput())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Contains(t, err.Error(), "declaration")

	decl, err := f.svc.SubmitHazmatDeclaration(context.Background(), shipment.ID, HazmatDeclarationInput{
		UNNumber:           "UN1993",
		ProperShippingName: "Flammable liquid, n.o.s.",
		HazardClass:        "3",
		PackingGroup:       enums.PackingGroupII,
		EmergencyPhone:     "+1-800-424-9300",
	})
	require.NoError(t, err)
	assert.False(t, decl.LabelsPrinted)

	_, err = f.svc.GenerateLabel(context.Background(), shipment.ID, labelInput())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Contains(t, err.Error(), "warning labels")

	_, err = f.svc.MarkWarningLabelsPrinted(context.Background(), shipment.ID)
	require.NoError(t, err)

	shipped, err := f.svc.GenerateLabel(context.Background(), shipment.ID, labelInput())
	require.NoError(t, err)
	assert.Equal(t, enums.ShipmentStatusShipped, shipped.Status)
}

func TestSubmitHazmatDeclarationGuards(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	plain := f.requestShipment(t,
		RequestItemInput{LotID: f.addLot("100").ID, Quantity: decimal.NewFromInt(5)})
	input := HazmatDeclarationInput{
		UNNumber:           "UN1993",
		ProperShippingName: "Flammable liquid, n.o.s.",
		HazardClass:        "3",
		PackingGroup:       enums.PackingGroupIII,
		EmergencyPhone:     "+1-800-424-9300",
	}

	_, err := f.svc.SubmitHazmatDeclaration(ctx, plain.ID, input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	hazmat := f.requestShipment(t,
		RequestItemInput{LotID: f.addLot("100").ID, Quantity: decimal.NewFromInt(40)})

	bad := input
	bad.PackingGroup = enums.PackingGroup("IV")
	_, err = f.svc.SubmitHazmatDeclaration(ctx, hazmat.ID, bad)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.SubmitHazmatDeclaration(ctx, hazmat.ID, input)
	require.NoError(t, err)

	_, err = f.svc.SubmitHazmatDeclaration(ctx, hazmat.ID, input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestMarkWarningLabelsPrinted(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	shipment := f.requestShipment(t,
		RequestItemInput{LotID: f.addLot("100").ID, Quantity: decimal.NewFromInt(40)})

	_, err := f.svc.MarkWarningLabelsPrinted(ctx, shipment.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.SubmitHazmatDeclaration(ctx, shipment.ID, HazmatDeclarationInput{
		UNNumber:           "UN1993",
		ProperShippingName: "Flammable liquid, n.o.s.",
		HazardClass:        "3",
		PackingGroup:       enums.PackingGroupII,
		EmergencyPhone:     "+1-800-424-9300",
	})
	require.NoError(t, err)

	decl, err := f.svc.MarkWarningLabelsPrinted(ctx, shipment.ID)
	require.NoError(t, err)
	assert.True(t, decl.LabelsPrinted)

	again, err := f.svc.MarkWarningLabelsPrinted(ctx, shipment.ID)
	require.NoError(t, err)
	assert.True(t, again.LabelsPrinted)
}

func TestPollTrackingAdvancesForwardOnly(t *testing.T) {
	f := newServiceFixture(t)
	shipment := f.readyForLabel(t)
	supply := f.addSupply(10)
	_, err := f.svc.GenerateLabel(context.Background(), shipment.ID,
		labelInput(supplies.UsageRequest{SupplyItemID: supply.ID, Quantity: 1}))
	require.NoError(t, err)

	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	f.carrier.track = func(ctx context.Context, trackingNumber string) (*carrier.TrackingInfo, error) {
		return &carrier.TrackingInfo{
			Status: "IN_TRANSIT",
			Events: []carrier.TrackingEvent{
				{Status: "PICKED_UP", Time: base},
				{Status: "IN_TRANSIT", Location: "Memphis, TN", Time: base.Add(4 * time.Hour)},
			},
		}, nil
	}

	polled, err := f.svc.PollTracking(context.Background(), shipment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ShipmentStatusInTransit, polled.Status)
	assert.Len(t, f.repo.tracking[shipment.ID], 2)

	// A stale carrier view must not move the shipment backward or
	// duplicate events.
	f.carrier.track = func(ctx context.Context, trackingNumber string) (*carrier.TrackingInfo, error) {
		return &carrier.TrackingInfo{
			Status: "PICKED_UP",
			Events: []carrier.TrackingEvent{{Status: "PICKED_UP", Time: base}},
		}, nil
	}
	polled, err = f.svc.PollTracking(context.Background(), shipment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ShipmentStatusInTransit, polled.Status)
	assert.Len(t, f.repo.tracking[shipment.ID], 2)
}

func TestApplyTrackingUpdateDelivers(t *testing.T) {
	f := newServiceFixture(t)
	shipment := f.readyForLabel(t)
	supply := f.addSupply(10)
	_, err := f.svc.GenerateLabel(context.Background(), shipment.ID,
		labelInput(supplies.UsageRequest{SupplyItemID: supply.ID, Quantity: 1}))
	require.NoError(t, err)

	delivered, err := f.svc.ApplyTrackingUpdate(context.Background(), "794612345678", TrackingUpdate{
		CarrierStatus: "DELIVERED",
		Description:   "Left at front desk",
		Location:      "New Haven, CT",
		EventTime:     time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ShipmentStatusDelivered, delivered.Status)

	_, err = f.svc.ApplyTrackingUpdate(context.Background(), "unknown-number", TrackingUpdate{
		CarrierStatus: "DELIVERED",
		EventTime:     time.Now().UTC(),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCancelNonTerminal(t *testing.T) {
	f := newServiceFixture(t)
	lot := f.addLot("50")
	shipment := f.requestShipment(t, RequestItemInput{LotID: lot.ID, Quantity: decimal.NewFromInt(5)})
	f.outbox.events = nil

	cancelled, err := f.svc.Cancel(context.Background(), shipment.ID, CancelInput{
		Reason: "requester withdrew",
		Actor:  Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ShipmentStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, []enums.OutboxEventType{
		enums.EventShipmentCancelled,
		enums.EventShipmentStatusChanged,
		enums.EventNotificationEmailQueued,
	}, f.outbox.eventTypes())
	assert.Equal(t, []string{shipment.ID.String()}, f.quotes.dropped)
}

func TestCancelTerminalRejected(t *testing.T) {
	f := newServiceFixture(t)
	lot := f.addLot("50")
	shipment := f.requestShipment(t, RequestItemInput{LotID: lot.ID, Quantity: decimal.NewFromInt(5)})

	_, err := f.svc.Cancel(context.Background(), shipment.ID, CancelInput{Actor: Actor{UserID: uuid.New()}})
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), shipment.ID, CancelInput{Actor: Actor{UserID: uuid.New()}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

// Full lifecycle: a two-lot request crosses the hazmat threshold, the
// declaration workflow gates labeling, and the shipment ends up shipped with
// a tracking number.
func TestHazmatShipmentLifecycle(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	lotA := f.addLot("100")
	lotB := f.addLot("100")
	shipment := f.requestShipment(t,
		RequestItemInput{LotID: lotA.ID, Quantity: decimal.NewFromInt(10)},
		RequestItemInput{LotID: lotB.ID, Quantity: decimal.NewFromInt(25)})
	require.True(t, shipment.IsHazmat)

	_, err := f.svc.Begin(ctx, shipment.ID, Actor{UserID: uuid.New()})
	require.NoError(t, err)
	_, err = f.svc.ValidateAddress(ctx, shipment.ID, ValidateAddressInput{})
	require.NoError(t, err)

	_, err = f.svc.GenerateLabel(ctx, shipment.ID, labelInput())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.SubmitHazmatDeclaration(ctx, shipment.ID, HazmatDeclarationInput{
		UNNumber:           "UN2814",
		ProperShippingName: "Infectious substance, affecting humans",
		HazardClass:        "6.2",
		PackingGroup:       enums.PackingGroupI,
		EmergencyPhone:     "+1-800-424-9300",
	})
	require.NoError(t, err)
	_, err = f.svc.MarkWarningLabelsPrinted(ctx, shipment.ID)
	require.NoError(t, err)

	supply := f.addSupply(4)
	shipped, err := f.svc.GenerateLabel(ctx, shipment.ID,
		labelInput(supplies.UsageRequest{SupplyItemID: supply.ID, Quantity: 2}))
	require.NoError(t, err)

	assert.Equal(t, enums.ShipmentStatusShipped, shipped.Status)
	require.NotNil(t, shipped.TrackingNumber)
	require.NotNil(t, shipped.ShippingCost)
	assert.True(t, shipped.ShippingCost.Equal(decimal.RequireFromString("42.50")))
}
