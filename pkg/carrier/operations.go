package carrier

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teleos-scientific/tlink-backend/pkg/enums"
	pkgerrors "github.com/teleos-scientific/tlink-backend/pkg/errors"
	"github.com/teleos-scientific/tlink-backend/pkg/types"
)

// AddressValidation is the outcome of a carrier address check. Corrected is
// set when the carrier standardized the input into a different address.
type AddressValidation struct {
	Valid     bool
	Corrected *types.Address
}

// RateQuote is a non-binding cost estimate for a shipment.
type RateQuote struct {
	Cost     decimal.Decimal
	Currency string
	Service  enums.ServiceLevel
}

// ShipmentRequest carries everything the carrier needs to issue a label.
type ShipmentRequest struct {
	Recipient    string
	Address      types.Address
	WeightLB     decimal.Decimal
	Service      enums.ServiceLevel
	IsHazmat     bool
	Reference    string
	ScheduledFor time.Time
}

// Label is the result of label generation: a real-world carrier charge and a
// physical label now exist.
type Label struct {
	TrackingNumber    string
	LabelURL          string
	Cost              decimal.Decimal
	EstimatedDelivery time.Time
}

// TrackingEvent is one scan/status update reported by the carrier.
type TrackingEvent struct {
	Status      string
	Description string
	Location    string
	Time        time.Time
}

// TrackingInfo is the carrier's current view of a shipment.
type TrackingInfo struct {
	Status string
	Events []TrackingEvent
}

type addressPayload struct {
	Line1      string `json:"streetLine1"`
	Line2      string `json:"streetLine2,omitempty"`
	City       string `json:"city"`
	State      string `json:"stateOrProvinceCode"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"countryCode"`
}

func toAddressPayload(a types.Address) addressPayload {
	n := a.Normalized()
	return addressPayload{
		Line1:      n.Line1,
		Line2:      n.Line2,
		City:       n.City,
		State:      n.State,
		PostalCode: n.PostalCode,
		Country:    n.Country,
	}
}

func fromAddressPayload(p addressPayload) types.Address {
	return types.Address{
		Line1:      p.Line1,
		Line2:      p.Line2,
		City:       p.City,
		State:      p.State,
		PostalCode: p.PostalCode,
		Country:    p.Country,
	}
}

type validateAddressResponse struct {
	Resolved bool            `json:"resolved"`
	Matched  *addressPayload `json:"matchedAddress,omitempty"`
}

// ValidateAddress asks the carrier to verify and standardize an address. It
// does not retry; the operator re-invokes with a corrected address.
func (c *Client) ValidateAddress(ctx context.Context, address types.Address) (*AddressValidation, error) {
	if !address.IsComplete() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address is missing required fields")
	}

	req := map[string]any{"address": toAddressPayload(address)}
	var resp validateAddressResponse
	if err := c.post(ctx, "validate_address", "/address/v1/addresses/resolve", req, &resp); err != nil {
		return nil, err
	}

	result := &AddressValidation{Valid: resp.Resolved}
	if resp.Matched != nil {
		corrected := fromAddressPayload(*resp.Matched)
		result.Corrected = &corrected
	}
	return result, nil
}

type rateResponse struct {
	TotalCharge string `json:"totalNetCharge"`
	Currency    string `json:"currency"`
}

// GetRate returns a cost quote; nothing is booked and nothing is binding
// until label generation.
func (c *Client) GetRate(ctx context.Context, address types.Address, weightLB decimal.Decimal, service enums.ServiceLevel) (*RateQuote, error) {
	if weightLB.Sign() <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "weight must be positive")
	}
	if !service.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown service level")
	}

	req := map[string]any{
		"accountNumber": c.accountNumber,
		"recipient":     toAddressPayload(address),
		"weightLb":      weightLB.String(),
		"serviceType":   service.String(),
	}
	var resp rateResponse
	if err := c.post(ctx, "rate", "/rate/v1/rates/quotes", req, &resp); err != nil {
		return nil, err
	}

	cost, err := decimal.NewFromString(resp.TotalCharge)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeCarrier, err, "carrier returned unparseable charge")
	}
	return &RateQuote{Cost: cost, Currency: resp.Currency, Service: service}, nil
}

type shipResponse struct {
	TrackingNumber    string `json:"trackingNumber"`
	LabelURL          string `json:"labelUrl"`
	TotalCharge       string `json:"totalNetCharge"`
	EstimatedDelivery string `json:"estimatedDeliveryDate"`
}

// CreateShipment generates a label. This call has a real-world side effect
// (carrier charge, physical label); callers own idempotency protection.
func (c *Client) CreateShipment(ctx context.Context, input ShipmentRequest) (*Label, error) {
	if input.WeightLB.Sign() <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "weight must be positive")
	}
	if !input.Service.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown service level")
	}

	req := map[string]any{
		"accountNumber":     c.accountNumber,
		"recipientName":     input.Recipient,
		"recipient":         toAddressPayload(input.Address),
		"weightLb":          input.WeightLB.String(),
		"serviceType":       input.Service.String(),
		"dangerousGoods":    input.IsHazmat,
		"customerReference": input.Reference,
		"shipDate":          input.ScheduledFor.Format("2006-01-02"),
	}
	var resp shipResponse
	if err := c.post(ctx, "ship", "/ship/v1/shipments", req, &resp); err != nil {
		return nil, err
	}
	if resp.TrackingNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeCarrier, "carrier returned no tracking number")
	}

	cost, err := decimal.NewFromString(resp.TotalCharge)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeCarrier, err, "carrier returned unparseable charge")
	}

	label := &Label{
		TrackingNumber: resp.TrackingNumber,
		LabelURL:       resp.LabelURL,
		Cost:           cost,
	}
	if resp.EstimatedDelivery != "" {
		eta, err := time.Parse("2006-01-02", resp.EstimatedDelivery)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeCarrier, err, "carrier returned unparseable delivery date")
		}
		label.EstimatedDelivery = eta
	}
	return label, nil
}

type trackResponse struct {
	Status string `json:"latestStatus"`
	Events []struct {
		Status      string `json:"status"`
		Description string `json:"description"`
		Location    string `json:"location"`
		Timestamp   string `json:"timestamp"`
	} `json:"scanEvents"`
}

// Track queries the carrier's tracking feed for a tracking number.
func (c *Client) Track(ctx context.Context, trackingNumber string) (*TrackingInfo, error) {
	if trackingNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number required")
	}

	req := map[string]any{"trackingNumber": trackingNumber}
	var resp trackResponse
	if err := c.post(ctx, "track", "/track/v1/trackingnumbers", req, &resp); err != nil {
		return nil, err
	}

	info := &TrackingInfo{Status: resp.Status}
	for _, ev := range resp.Events {
		event := TrackingEvent{
			Status:      ev.Status,
			Description: ev.Description,
			Location:    ev.Location,
		}
		if ev.Timestamp != "" {
			ts, err := time.Parse(time.RFC3339, ev.Timestamp)
			if err == nil {
				event.Time = ts
			}
		}
		info.Events = append(info.Events, event)
	}
	return info, nil
}
