package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teleos-scientific/tlink-backend/api/middleware"
	"github.com/teleos-scientific/tlink-backend/api/responses"
	"github.com/teleos-scientific/tlink-backend/api/validators"
	shipmentsvc "github.com/teleos-scientific/tlink-backend/internal/shipments"
	supplysvc "github.com/teleos-scientific/tlink-backend/internal/supplies"
	"github.com/teleos-scientific/tlink-backend/pkg/enums"
	pkgerrors "github.com/teleos-scientific/tlink-backend/pkg/errors"
	"github.com/teleos-scientific/tlink-backend/pkg/logger"
	"github.com/teleos-scientific/tlink-backend/pkg/pagination"
)

// RequestShipment initiates a new shipment from requested sample lots.
func RequestShipment(svc shipmentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload shipmentsvc.RequestInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.Actor = actor

		shipment, err := svc.Request(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, shipment)
	}
}

// BeginProcessing moves an initiated shipment into processing.
func BeginProcessing(svc shipmentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shipmentID, err := pathUUID(r, "shipmentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shipment, err := svc.Begin(r.Context(), shipmentID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shipment)
	}
}

// ValidateShipmentAddress runs carrier address validation and persists the result.
func ValidateShipmentAddress(svc shipmentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shipmentID, err := pathUUID(r, "shipmentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload shipmentsvc.ValidateAddressInput
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		shipment, err := svc.ValidateAddress(r.Context(), shipmentID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shipment)
	}
}

type quoteRequest struct {
	WeightLB decimal.Decimal `json:"weight_lb"`
	Service  string          `json:"service" validate:"required"`
}

// QuoteShipmentRate fetches a non-binding carrier rate.
func QuoteShipmentRate(svc shipmentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shipmentID, err := pathUUID(r, "shipmentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload quoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		service, err := enums.ParseServiceLevel(strings.TrimSpace(payload.Service))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid service level"))
			return
		}

		quote, err := svc.QuoteRate(r.Context(), shipmentID, shipmentsvc.QuoteInput{
			WeightLB: payload.WeightLB,
			Service:  service,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

type generateLabelRequest struct {
	WeightLB decimal.Decimal                `json:"weight_lb"`
	Service  string                         `json:"service" validate:"required"`
	Supplies []shipmentsvc.LabelSupplyInput `json:"supplies" validate:"dive"`
}

// GenerateShipmentLabel purchases a carrier label and ships the shipment.
func GenerateShipmentLabel(svc shipmentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shipmentID, err := pathUUID(r, "shipmentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload generateLabelRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		service, err := enums.ParseServiceLevel(strings.TrimSpace(payload.Service))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid service level"))
			return
		}

		usages := make([]supplysvc.UsageRequest, 0, len(payload.Supplies))
		for _, supply := range payload.Supplies {
			usages = append(usages, supplysvc.UsageRequest{
				SupplyItemID: supply.SupplyItemID,
				Quantity:     supply.Quantity,
			})
		}

		shipment, err := svc.GenerateLabel(r.Context(), shipmentID, shipmentsvc.GenerateLabelInput{
			WeightLB: payload.WeightLB,
			Service:  service,
			Supplies: usages,
			Actor:    actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shipment)
	}
}

// PollShipmentTracking pulls the latest tracking state from the carrier.
func PollShipmentTracking(svc shipmentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shipmentID, err := pathUUID(r, "shipmentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shipment, err := svc.PollTracking(r.Context(), shipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shipment)
	}
}

// SubmitHazmatDeclaration attaches dangerous-goods paperwork to a shipment.
func SubmitHazmatDeclaration(svc shipmentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shipmentID, err := pathUUID(r, "shipmentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload shipmentsvc.HazmatDeclarationInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		decl, err := svc.SubmitHazmatDeclaration(r.Context(), shipmentID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, decl)
	}
}

// MarkHazmatLabelsPrinted records that warning labels were physically printed.
func MarkHazmatLabelsPrinted(svc shipmentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shipmentID, err := pathUUID(r, "shipmentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		decl, err := svc.MarkWarningLabelsPrinted(r.Context(), shipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, decl)
	}
}

// CancelShipment cancels any non-terminal shipment.
func CancelShipment(svc shipmentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shipmentID, err := pathUUID(r, "shipmentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload shipmentsvc.CancelInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.Actor = actor

		shipment, err := svc.Cancel(r.Context(), shipmentID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shipment)
	}
}

// GetShipment returns one shipment with items and hazmat declaration.
func GetShipment(svc shipmentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shipmentID, err := pathUUID(r, "shipmentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shipment, err := svc.Get(r.Context(), shipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shipment)
	}
}

// ListShipments returns a filtered cursor page of shipments.
func ListShipments(svc shipmentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filters, err := parseShipmentFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		}, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func parseShipmentFilters(r *http.Request) (shipmentsvc.ListFilters, error) {
	var filters shipmentsvc.ListFilters
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := enums.ParseShipmentStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(query.Get("is_hazmat")); raw != "" {
		switch raw {
		case "true":
			isHazmat := true
			filters.IsHazmat = &isHazmat
		case "false":
			isHazmat := false
			filters.IsHazmat = &isHazmat
		default:
			return filters, pkgerrors.New(pkgerrors.CodeValidation, "is_hazmat must be true or false")
		}
	}
	if raw := strings.TrimSpace(query.Get("date_from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid date_from")
		}
		filters.DateFrom = &from
	}
	if raw := strings.TrimSpace(query.Get("date_to")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid date_to")
		}
		filters.DateTo = &to
	}
	return filters, nil
}

func requestActor(r *http.Request) (shipmentsvc.Actor, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return shipmentsvc.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return shipmentsvc.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return shipmentsvc.Actor{
		UserID: userID,
		Role:   middleware.RoleFromContext(r.Context()),
	}, nil
}
