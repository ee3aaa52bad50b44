package notifications

import (
	"fmt"
	"html"

	pkgerrors "github.com/teleos-scientific/tlink-backend/pkg/errors"
)

// RenderedEmail is the body pair produced from a template and its variables.
type RenderedEmail struct {
	HTMLBody string
	TextBody string
}

// Render builds the email bodies for a queued notification. Unknown templates
// are a validation error so the consumer can drop them instead of retrying.
func Render(template string, vars map[string]string) (*RenderedEmail, error) {
	shipmentNumber := vars["shipment_number"]
	trackingNumber := vars["tracking_number"]

	switch template {
	case "shipment_requested":
		text := fmt.Sprintf(
			"Your shipment %s has been received and is awaiting processing.",
			shipmentNumber)
		return &RenderedEmail{TextBody: text, HTMLBody: paragraph(text)}, nil
	case "shipment_shipped":
		text := fmt.Sprintf(
			"Shipment %s is on its way. Track it with number %s.",
			shipmentNumber, trackingNumber)
		return &RenderedEmail{TextBody: text, HTMLBody: paragraph(text)}, nil
	case "shipment_cancelled":
		text := fmt.Sprintf(
			"Shipment %s has been cancelled. Contact the lab if this is unexpected.",
			shipmentNumber)
		return &RenderedEmail{TextBody: text, HTMLBody: paragraph(text)}, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unknown email template %q", template))
	}
}

func paragraph(text string) string {
	return fmt.Sprintf("<p>%s</p>", html.EscapeString(text))
}
