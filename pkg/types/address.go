package types

import "strings"

// Address is the structured delivery address carried on a shipment and sent
// to the carrier for validation, rating, and label generation.
type Address struct {
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country,omitempty"`
}

// Normalized returns a copy with whitespace trimmed and the country defaulted
// to US, matching what the carrier expects.
func (a Address) Normalized() Address {
	out := Address{
		Line1:      strings.TrimSpace(a.Line1),
		Line2:      strings.TrimSpace(a.Line2),
		City:       strings.TrimSpace(a.City),
		State:      strings.ToUpper(strings.TrimSpace(a.State)),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
	}
	if out.Country == "" {
		out.Country = "US"
	}
	return out
}

// IsComplete reports whether the required address fields are present.
func (a Address) IsComplete() bool {
	n := a.Normalized()
	return n.Line1 != "" && n.City != "" && n.State != "" && n.PostalCode != ""
}
