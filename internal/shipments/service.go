package shipments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/teleos-scientific/tlink-backend/internal/samples"
	"github.com/teleos-scientific/tlink-backend/internal/supplies"
	"github.com/teleos-scientific/tlink-backend/pkg/carrier"
	"github.com/teleos-scientific/tlink-backend/pkg/db/models"
	"github.com/teleos-scientific/tlink-backend/pkg/enums"
	pkgerrors "github.com/teleos-scientific/tlink-backend/pkg/errors"
	"github.com/teleos-scientific/tlink-backend/pkg/logger"
	"github.com/teleos-scientific/tlink-backend/pkg/metrics"
	"github.com/teleos-scientific/tlink-backend/pkg/outbox"
	"github.com/teleos-scientific/tlink-backend/pkg/outbox/payloads"
	"github.com/teleos-scientific/tlink-backend/pkg/pagination"
	"github.com/teleos-scientific/tlink-backend/pkg/redis"
	"github.com/teleos-scientific/tlink-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// carrierGateway is the slice of the carrier client the service depends on.
type carrierGateway interface {
	ValidateAddress(ctx context.Context, address types.Address) (*carrier.AddressValidation, error)
	GetRate(ctx context.Context, address types.Address, weightLB decimal.Decimal, service enums.ServiceLevel) (*carrier.RateQuote, error)
	CreateShipment(ctx context.Context, input carrier.ShipmentRequest) (*carrier.Label, error)
	Track(ctx context.Context, trackingNumber string) (*carrier.TrackingInfo, error)
}

// quoteCache stores the last rate quote per shipment for display.
type quoteCache interface {
	StoreQuote(ctx context.Context, quote redis.CachedQuote) error
	DropQuote(ctx context.Context, shipmentID string) error
}

// LotCatalog reads sample lots during request validation.
type LotCatalog interface {
	FindLotsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.SampleLot, error)
}

// SupplyCatalog reads supply items for the pre-label stock check.
type SupplyCatalog interface {
	FindItemByID(ctx context.Context, id uuid.UUID) (*models.SupplyItem, error)
}

// Service defines shipment lifecycle operations.
type Service interface {
	Request(ctx context.Context, input RequestInput) (*models.Shipment, error)
	Begin(ctx context.Context, id uuid.UUID, actor Actor) (*models.Shipment, error)
	ValidateAddress(ctx context.Context, id uuid.UUID, input ValidateAddressInput) (*models.Shipment, error)
	QuoteRate(ctx context.Context, id uuid.UUID, input QuoteInput) (*carrier.RateQuote, error)
	GenerateLabel(ctx context.Context, id uuid.UUID, input GenerateLabelInput) (*models.Shipment, error)
	PollTracking(ctx context.Context, id uuid.UUID) (*models.Shipment, error)
	ApplyTrackingUpdate(ctx context.Context, trackingNumber string, update TrackingUpdate) (*models.Shipment, error)
	SubmitHazmatDeclaration(ctx context.Context, id uuid.UUID, input HazmatDeclarationInput) (*models.HazmatDeclaration, error)
	MarkWarningLabelsPrinted(ctx context.Context, id uuid.UUID) (*models.HazmatDeclaration, error)
	Cancel(ctx context.Context, id uuid.UUID, input CancelInput) (*models.Shipment, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Shipment, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*ShipmentList, error)
}

// ServiceDeps carries the service's collaborators.
type ServiceDeps struct {
	Repo     Repository
	Lots     LotCatalog
	Reserver samples.LotReserver
	Supplies supplies.Consumer
	Stock    SupplyCatalog
	Tx       txRunner
	Outbox   outboxPublisher
	Carrier  carrierGateway
	Quotes   quoteCache
	Hazmat   *HazmatEvaluator
	Metrics  *metrics.ShipmentMetrics
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	lots     LotCatalog
	reserver samples.LotReserver
	supplies supplies.Consumer
	stock    SupplyCatalog
	tx       txRunner
	outbox   outboxPublisher
	carrier  carrierGateway
	quotes   quoteCache
	hazmat   *HazmatEvaluator
	metrics  *metrics.ShipmentMetrics
	logg     *logger.Logger
}

// NewService builds a shipment service with the required dependencies.
// Quotes, Metrics, and Logger may be nil.
func NewService(deps ServiceDeps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("shipments repository required")
	}
	if deps.Lots == nil {
		return nil, fmt.Errorf("lot catalog required")
	}
	if deps.Reserver == nil {
		return nil, fmt.Errorf("lot reserver required")
	}
	if deps.Supplies == nil {
		return nil, fmt.Errorf("supply consumer required")
	}
	if deps.Stock == nil {
		return nil, fmt.Errorf("supply catalog required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if deps.Carrier == nil {
		return nil, fmt.Errorf("carrier gateway required")
	}
	hazmat := deps.Hazmat
	if hazmat == nil {
		hazmat = NewHazmatEvaluator(DefaultHazmatThreshold)
	}
	return &service{
		repo:     deps.Repo,
		lots:     deps.Lots,
		reserver: deps.Reserver,
		supplies: deps.Supplies,
		stock:    deps.Stock,
		tx:       deps.Tx,
		outbox:   deps.Outbox,
		carrier:  deps.Carrier,
		quotes:   deps.Quotes,
		hazmat:   hazmat,
		metrics:  deps.Metrics,
		logg:     deps.Logger,
	}, nil
}

func (s *service) Request(ctx context.Context, input RequestInput) (*models.Shipment, error) {
	if strings.TrimSpace(input.RecipientName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient name is required")
	}
	if strings.TrimSpace(input.RecipientEmail) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient email is required")
	}
	if !input.Address.IsComplete() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery address is incomplete")
	}
	if input.ScheduledDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scheduled date is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line item is required")
	}

	ids := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		if item.LotID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "lot id is required on every line item")
		}
		if !item.Quantity.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line item quantity must be positive")
		}
		ids = append(ids, item.LotID)
	}

	lots, err := s.lots.FindLotsByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sample lots")
	}
	lotsByID := make(map[uuid.UUID]models.SampleLot, len(lots))
	for _, lot := range lots {
		lotsByID[lot.ID] = lot
	}

	quantities := make([]decimal.Decimal, 0, len(input.Items))
	items := make([]models.ShipmentItem, 0, len(input.Items))
	totals := make(map[uuid.UUID]decimal.Decimal, len(lotsByID))
	for _, item := range input.Items {
		lot, ok := lotsByID[item.LotID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("lot %s does not exist", item.LotID))
		}
		totals[lot.ID] = totals[lot.ID].Add(item.Quantity)
		quantities = append(quantities, item.Quantity)
		items = append(items, models.ShipmentItem{
			LotID:     lot.ID,
			LotNumber: lot.LotNumber,
			Quantity:  item.Quantity,
			Unit:      lot.Unit,
		})
	}

	// Availability is checked against the summed quantity per lot so that
	// multiple line items on the same lot cannot overdraw it.
	reservations := make([]samples.LotReservationRequest, 0, len(totals))
	checked := make(map[uuid.UUID]bool, len(totals))
	for _, item := range input.Items {
		if checked[item.LotID] {
			continue
		}
		checked[item.LotID] = true
		lot := lotsByID[item.LotID]
		total := totals[item.LotID]
		if total.GreaterThan(lot.QuantityAvailable) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("lot %s has insufficient quantity: requested %s, available %s",
					lot.LotNumber, total, lot.QuantityAvailable)).
				WithDetails(map[string]any{"lot_number": lot.LotNumber})
		}
		reservations = append(reservations, samples.LotReservationRequest{
			LotID:    lot.ID,
			Quantity: total,
		})
	}

	// Hazmat is decided server-side from the requested totals; callers
	// cannot override it.
	isHazmat := s.hazmat.IsHazmat(quantities)
	address := input.Address.Normalized()

	shipment := &models.Shipment{
		ID:                  uuid.New(),
		Status:              enums.ShipmentStatusInitiated,
		RecipientName:       strings.TrimSpace(input.RecipientName),
		RecipientEmail:      strings.TrimSpace(input.RecipientEmail),
		RecipientPhone:      strings.TrimSpace(input.RecipientPhone),
		AddressLine1:        address.Line1,
		AddressLine2:        address.Line2,
		AddressCity:         address.City,
		AddressState:        address.State,
		AddressPostalCode:   address.PostalCode,
		AddressCountry:      address.Country,
		ScheduledDate:       input.ScheduledDate,
		IsHazmat:            isHazmat,
		SpecialInstructions: input.SpecialInstructions,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.reserver.Reserve(ctx, tx, reservations); err != nil {
			return err
		}
		number, err := repo.NextShipmentNumber(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate shipment number")
		}
		shipment.ShipmentNumber = number
		if _, err := repo.CreateShipment(ctx, shipment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shipment")
		}
		for i := range items {
			items[i].ShipmentID = shipment.ID
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shipment items")
		}

		lotIDs := make([]string, 0, len(items))
		for _, item := range items {
			lotIDs = append(lotIDs, item.LotNumber)
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventShipmentRequested,
			AggregateType: enums.AggregateShipment,
			AggregateID:   shipment.ID,
			Version:       1,
			Actor:         buildActor(input.Actor),
			Data: payloads.ShipmentRequestedEvent{
				ShipmentID:  shipment.ID,
				RequestedBy: input.Actor.UserID,
				LotIDs:      lotIDs,
				IsHazmat:    isHazmat,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}
		return s.queueEmail(ctx, tx, shipment, input.Actor, "shipment_requested",
			fmt.Sprintf("Shipment %s received", shipment.ShipmentNumber),
			map[string]string{"shipment_number": shipment.ShipmentNumber})
	})
	if err != nil {
		return nil, err
	}

	s.incTransition(enums.ShipmentStatusInitiated)
	shipment.Items = items
	return shipment, nil
}

func (s *service) Begin(ctx context.Context, id uuid.UUID, actor Actor) (*models.Shipment, error) {
	shipment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if shipment.Status != enums.ShipmentStatusInitiated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot begin processing from %s", shipment.Status))
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		moved, err := repo.TransitionStatus(ctx, id, enums.ShipmentStatusInitiated, enums.ShipmentStatusProcessing)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update shipment status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "shipment changed state concurrently")
		}
		return s.emitStatusChange(ctx, tx, shipment.ID, actor,
			enums.ShipmentStatusInitiated, enums.ShipmentStatusProcessing)
	})
	if err != nil {
		return nil, err
	}

	s.incTransition(enums.ShipmentStatusProcessing)
	shipment.Status = enums.ShipmentStatusProcessing
	return shipment, nil
}

func (s *service) ValidateAddress(ctx context.Context, id uuid.UUID, input ValidateAddressInput) (*models.Shipment, error) {
	shipment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if shipment.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shipment is in a terminal state")
	}

	// The caller may re-submit a corrected address; otherwise the stored
	// address is validated as-is.
	address := shipmentAddress(shipment)
	if input.Address != nil {
		address = input.Address.Normalized()
	}

	result, err := s.carrier.ValidateAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address could not be validated")
	}

	persisted := address
	if result.Corrected != nil {
		persisted = result.Corrected.Normalized()
	}
	updates := map[string]any{
		"address_validated":   true,
		"address_line1":       persisted.Line1,
		"address_line2":       persisted.Line2,
		"address_city":        persisted.City,
		"address_state":       persisted.State,
		"address_postal_code": persisted.PostalCode,
		"address_country":     persisted.Country,
	}
	if err := s.repo.UpdateShipment(ctx, id, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist address validation")
	}
	return s.load(ctx, id)
}

func (s *service) QuoteRate(ctx context.Context, id uuid.UUID, input QuoteInput) (*carrier.RateQuote, error) {
	if !input.WeightLB.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "weight must be positive")
	}
	if !input.Service.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid service level %q", input.Service))
	}
	shipment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if shipment.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shipment is in a terminal state")
	}

	quote, err := s.carrier.GetRate(ctx, shipmentAddress(shipment), input.WeightLB, input.Service)
	if err != nil {
		return nil, err
	}

	if s.quotes != nil {
		cached := redis.CachedQuote{
			ShipmentID: shipment.ID.String(),
			Service:    quote.Service.String(),
			WeightLB:   input.WeightLB.String(),
			Cost:       quote.Cost.String(),
			Currency:   quote.Currency,
			QuotedAt:   time.Now().UTC(),
		}
		if err := s.quotes.StoreQuote(ctx, cached); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithShipmentID(ctx, shipment.ID.String()), "caching rate quote failed")
		}
	}
	return quote, nil
}

func (s *service) GenerateLabel(ctx context.Context, id uuid.UUID, input GenerateLabelInput) (*models.Shipment, error) {
	shipment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if shipment.TrackingNumber != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "label already generated").
			WithDetails(map[string]any{"tracking_number": *shipment.TrackingNumber})
	}
	if shipment.Status != enums.ShipmentStatusProcessing {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("label generation requires processing state, shipment is %s", shipment.Status))
	}
	if !shipment.AddressValidated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "address must be validated before label generation")
	}
	if !input.WeightLB.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "weight must be positive")
	}
	if !input.Service.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid service level %q", input.Service))
	}
	if shipment.IsHazmat {
		decl, err := s.repo.FindHazmatByShipment(ctx, id)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "hazmat declaration required before label generation")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load hazmat declaration")
		}
		if !decl.LabelsPrinted {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "hazmat warning labels must be printed before label generation")
		}
	}
	if err := s.checkSupplyStock(ctx, input.Supplies); err != nil {
		return nil, err
	}

	// The carrier charge happens before the local transaction. Everything
	// after this point must either commit or surface the tracking number.
	label, err := s.carrier.CreateShipment(ctx, carrier.ShipmentRequest{
		Recipient:    shipment.RecipientName,
		Address:      shipmentAddress(shipment),
		WeightLB:     input.WeightLB,
		Service:      input.Service,
		IsHazmat:     shipment.IsHazmat,
		Reference:    shipment.ShipmentNumber,
		ScheduledFor: shipment.ScheduledDate,
	})
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var estimated *time.Time
		if !label.EstimatedDelivery.IsZero() {
			est := label.EstimatedDelivery
			estimated = &est
		}
		ok, err := repo.ClaimTrackingNumber(ctx, id, TrackingClaim{
			TrackingNumber:    label.TrackingNumber,
			ShippingCost:      label.Cost,
			EstimatedDelivery: estimated,
			WeightLB:          input.WeightLB,
			Service:           input.Service,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim tracking number")
		}
		if !ok {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithShipmentID(ctx, id.String()),
					fmt.Sprintf("label claim lost race, carrier tracking %s is unreferenced", label.TrackingNumber))
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "label already generated")
		}

		if err := s.supplies.Consume(ctx, tx, id, input.Supplies); err != nil {
			return err
		}

		supplyRefs := make([]payloads.SupplyUsageRef, 0, len(input.Supplies))
		for _, usage := range input.Supplies {
			supplyRefs = append(supplyRefs, payloads.SupplyUsageRef{
				SupplyItemID: usage.SupplyItemID,
				Quantity:     usage.Quantity,
			})
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventShipmentShipped,
			AggregateType: enums.AggregateShipment,
			AggregateID:   shipment.ID,
			Version:       1,
			Actor:         buildActor(input.Actor),
			Data: payloads.ShipmentShippedEvent{
				ShipmentID:        shipment.ID,
				TrackingNumber:    label.TrackingNumber,
				ShippingCost:      label.Cost,
				ServiceLevel:      input.Service.String(),
				EstimatedDelivery: estimated,
				Supplies:          supplyRefs,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}
		if err := s.emitStatusChange(ctx, tx, shipment.ID, input.Actor,
			enums.ShipmentStatusProcessing, enums.ShipmentStatusShipped); err != nil {
			return err
		}
		return s.queueEmail(ctx, tx, shipment, input.Actor, "shipment_shipped",
			fmt.Sprintf("Shipment %s is on its way", shipment.ShipmentNumber),
			map[string]string{
				"shipment_number": shipment.ShipmentNumber,
				"tracking_number": label.TrackingNumber,
			})
	})
	if err != nil {
		// A real label exists at the carrier but the local state did not
		// commit. Callers must see the tracking number, including when the
		// claim lost a concurrent race.
		return nil, pkgerrors.Wrap(pkgerrors.CodePartialFailure, err,
			"carrier label issued but local update failed").
			WithDetails(map[string]any{"tracking_number": label.TrackingNumber})
	}

	s.incTransition(enums.ShipmentStatusShipped)
	return s.load(ctx, id)
}

func (s *service) PollTracking(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
	shipment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if shipment.TrackingNumber == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipment has no tracking number yet")
	}

	info, err := s.carrier.Track(ctx, *shipment.TrackingNumber)
	if err != nil {
		return nil, err
	}

	updates := make([]TrackingUpdate, 0, len(info.Events))
	for _, event := range info.Events {
		updates = append(updates, TrackingUpdate{
			CarrierStatus: event.Status,
			Description:   event.Description,
			Location:      event.Location,
			EventTime:     event.Time,
		})
	}
	if err := s.applyTracking(ctx, shipment, info.Status, updates); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

func (s *service) ApplyTrackingUpdate(ctx context.Context, trackingNumber string, update TrackingUpdate) (*models.Shipment, error) {
	if strings.TrimSpace(trackingNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number is required")
	}
	shipment, err := s.repo.FindByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no shipment with that tracking number")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment")
	}
	if err := s.applyTracking(ctx, shipment, update.CarrierStatus, []TrackingUpdate{update}); err != nil {
		return nil, err
	}
	return s.load(ctx, shipment.ID)
}

// applyTracking appends new tracking events and advances the status, forward
// only. Carrier reports that would move the shipment backward are ignored.
func (s *service) applyTracking(ctx context.Context, shipment *models.Shipment, carrierStatus string, updates []TrackingUpdate) error {
	target, known := mapCarrierStatus(carrierStatus)

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		latest, err := repo.LatestTrackingEventTime(ctx, shipment.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest tracking event")
		}
		events := make([]models.TrackingEvent, 0, len(updates))
		for _, update := range updates {
			if latest != nil && !update.EventTime.After(*latest) {
				continue
			}
			events = append(events, models.TrackingEvent{
				ShipmentID:  shipment.ID,
				Status:      update.CarrierStatus,
				Description: update.Description,
				Location:    update.Location,
				EventTime:   update.EventTime,
			})
		}
		if err := repo.CreateTrackingEvents(ctx, events); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append tracking events")
		}

		if !known || !shipment.Status.Before(target) {
			return nil
		}
		moved, err := repo.TransitionStatus(ctx, shipment.ID, shipment.Status, target)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance shipment status")
		}
		if !moved {
			// Lost a race with another updater; the next poll reconciles.
			return nil
		}
		s.incTransition(target)
		return s.emitStatusChange(ctx, tx, shipment.ID, Actor{}, shipment.Status, target)
	})
}

func (s *service) SubmitHazmatDeclaration(ctx context.Context, id uuid.UUID, input HazmatDeclarationInput) (*models.HazmatDeclaration, error) {
	if strings.TrimSpace(input.UNNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "un number is required")
	}
	if strings.TrimSpace(input.ProperShippingName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "proper shipping name is required")
	}
	if strings.TrimSpace(input.HazardClass) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hazard class is required")
	}
	if !input.PackingGroup.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid packing group %q", input.PackingGroup))
	}
	if strings.TrimSpace(input.EmergencyPhone) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "emergency phone is required")
	}

	shipment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !shipment.IsHazmat {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipment is not flagged hazmat")
	}
	if shipment.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shipment is in a terminal state")
	}
	if _, err := s.repo.FindHazmatByShipment(ctx, id); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "hazmat declaration already submitted")
	} else if err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load hazmat declaration")
	}

	decl := &models.HazmatDeclaration{
		ShipmentID:         id,
		UNNumber:           strings.TrimSpace(input.UNNumber),
		ProperShippingName: strings.TrimSpace(input.ProperShippingName),
		HazardClass:        strings.TrimSpace(input.HazardClass),
		PackingGroup:       input.PackingGroup,
		TechnicalName:      input.TechnicalName,
		EmergencyPhone:     strings.TrimSpace(input.EmergencyPhone),
	}
	if err := s.repo.CreateHazmatDeclaration(ctx, decl); err != nil {
		if dbErrIsDuplicateDeclaration(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "hazmat declaration already submitted")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create hazmat declaration")
	}
	return decl, nil
}

func (s *service) MarkWarningLabelsPrinted(ctx context.Context, id uuid.UUID) (*models.HazmatDeclaration, error) {
	decl, err := s.repo.FindHazmatByShipment(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no hazmat declaration on file")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load hazmat declaration")
	}
	if decl.LabelsPrinted {
		return decl, nil
	}
	if err := s.repo.UpdateHazmatDeclaration(ctx, decl.ID, map[string]any{"labels_printed": true}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark labels printed")
	}
	decl.LabelsPrinted = true
	return decl, nil
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID, input CancelInput) (*models.Shipment, error) {
	shipment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if shipment.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot cancel a %s shipment", shipment.Status))
	}
	from := shipment.Status

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		moved, err := repo.TransitionStatus(ctx, id, from, enums.ShipmentStatusCancelled)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel shipment")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "shipment changed state concurrently")
		}
		now := time.Now().UTC()
		if err := repo.UpdateShipment(ctx, id, map[string]any{"cancelled_at": now}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record cancellation time")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventShipmentCancelled,
			AggregateType: enums.AggregateShipment,
			AggregateID:   shipment.ID,
			Version:       1,
			Actor:         buildActor(input.Actor),
			Data: payloads.ShipmentCancelledEvent{
				ShipmentID:  shipment.ID,
				FromStatus:  from,
				CancelledAt: now,
				Reason:      input.Reason,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}
		if err := s.emitStatusChange(ctx, tx, shipment.ID, input.Actor, from, enums.ShipmentStatusCancelled); err != nil {
			return err
		}
		return s.queueEmail(ctx, tx, shipment, input.Actor, "shipment_cancelled",
			fmt.Sprintf("Shipment %s cancelled", shipment.ShipmentNumber),
			map[string]string{"shipment_number": shipment.ShipmentNumber})
	})
	if err != nil {
		return nil, err
	}

	if s.quotes != nil {
		if err := s.quotes.DropQuote(ctx, id.String()); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithShipmentID(ctx, id.String()), "dropping cached quote failed")
		}
	}
	s.incTransition(enums.ShipmentStatusCancelled)
	return s.load(ctx, id)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
	return s.load(ctx, id)
}

func (s *service) List(ctx context.Context, params pagination.Params, filters ListFilters) (*ShipmentList, error) {
	list, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list shipments")
	}
	return list, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipment id is required")
	}
	shipment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment")
	}
	return shipment, nil
}

func (s *service) checkSupplyStock(ctx context.Context, requests []supplies.UsageRequest) error {
	for _, req := range requests {
		if req.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "supply quantity must be positive")
		}
		item, err := s.stock.FindItemByID(ctx, req.SupplyItemID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("supply %s does not exist", req.SupplyItemID))
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load supply item")
		}
		if item.QuantityOnHand < req.Quantity {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("insufficient stock for supply %s: requested %d, on hand %d",
					item.SupplyType, req.Quantity, item.QuantityOnHand)).
				WithDetails(map[string]any{"supply_type": item.SupplyType})
		}
	}
	return nil
}

func (s *service) emitStatusChange(ctx context.Context, tx *gorm.DB, shipmentID uuid.UUID, actor Actor, from, to enums.ShipmentStatus) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventShipmentStatusChanged,
		AggregateType: enums.AggregateShipment,
		AggregateID:   shipmentID,
		Version:       1,
		Actor:         buildActor(actor),
		Data: payloads.ShipmentStatusChangedEvent{
			ShipmentID: shipmentID,
			From:       from,
			To:         to,
			ChangedAt:  time.Now().UTC(),
		},
	})
}

func (s *service) queueEmail(ctx context.Context, tx *gorm.DB, shipment *models.Shipment, actor Actor, template, subject string, vars map[string]string) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationEmailQueued,
		AggregateType: enums.AggregateNotification,
		AggregateID:   shipment.ID,
		Version:       1,
		Actor:         buildActor(actor),
		Data: payloads.NotificationEmailQueuedEvent{
			ShipmentID: shipment.ID,
			Template:   template,
			Recipients: []string{shipment.RecipientEmail},
			Subject:    subject,
			Variables:  vars,
		},
	})
}

func (s *service) incTransition(to enums.ShipmentStatus) {
	if s.metrics != nil {
		s.metrics.IncTransition(to.String())
	}
}

func buildActor(actor Actor) *outbox.ActorRef {
	if actor.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{
		UserID: actor.UserID,
		Role:   actor.Role,
	}
}

func shipmentAddress(m *models.Shipment) types.Address {
	return types.Address{
		Line1:      m.AddressLine1,
		Line2:      m.AddressLine2,
		City:       m.AddressCity,
		State:      m.AddressState,
		PostalCode: m.AddressPostalCode,
		Country:    m.AddressCountry,
	}
}

func mapCarrierStatus(status string) (enums.ShipmentStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "LABEL_CREATED", "PICKED_UP", "SHIPPED":
		return enums.ShipmentStatusShipped, true
	case "IN_TRANSIT", "AT_FACILITY", "OUT_FOR_DELIVERY":
		return enums.ShipmentStatusInTransit, true
	case "DELIVERED":
		return enums.ShipmentStatusDelivered, true
	default:
		return "", false
	}
}

func dbErrIsDuplicateDeclaration(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "ux_hazmat_declarations_shipment_id") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
