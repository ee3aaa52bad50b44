package controllers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/teleos-scientific/tlink-backend/api/responses"
	"github.com/teleos-scientific/tlink-backend/api/validators"
	shipmentsvc "github.com/teleos-scientific/tlink-backend/internal/shipments"
	"github.com/teleos-scientific/tlink-backend/pkg/config"
	pkgerrors "github.com/teleos-scientific/tlink-backend/pkg/errors"
	"github.com/teleos-scientific/tlink-backend/pkg/logger"
)

// carrierTokenHeader carries the shared secret the carrier is configured
// to send with every tracking push.
const carrierTokenHeader = "X-Carrier-Token"

type trackingWebhookPayload struct {
	TrackingNumber string    `json:"tracking_number" validate:"required"`
	Status         string    `json:"status" validate:"required"`
	Description    string    `json:"description"`
	Location       string    `json:"location"`
	EventTime      time.Time `json:"event_time" validate:"required"`
}

// TrackingWebhook ingests carrier-pushed tracking events. It applies the
// same forward-only transition rules as polling, so replayed or
// out-of-order pushes are safe.
func TrackingWebhook(cfg config.CarrierConfig, svc shipmentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(carrierTokenHeader)
		if cfg.WebhookSecret == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(cfg.WebhookSecret)) != 1 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook token"))
			return
		}

		var payload trackingWebhookPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shipment, err := svc.ApplyTrackingUpdate(r.Context(), payload.TrackingNumber, shipmentsvc.TrackingUpdate{
			CarrierStatus: payload.Status,
			Description:   payload.Description,
			Location:      payload.Location,
			EventTime:     payload.EventTime,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shipment)
	}
}
