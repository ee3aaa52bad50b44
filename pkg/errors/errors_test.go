package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataFor(t *testing.T) {
	if MetadataFor(CodeValidation).HTTPStatus != http.StatusBadRequest {
		t.Fatalf("validation should map to 400")
	}
	if MetadataFor(CodeCarrierTimeout).HTTPStatus != http.StatusGatewayTimeout {
		t.Fatalf("carrier timeout should map to 504")
	}
	if !MetadataFor(CodeCarrier).Retryable {
		t.Fatalf("carrier errors should be retryable at the operator's discretion")
	}
	if MetadataFor(CodePartialFailure).Retryable {
		t.Fatalf("partial failure must not be marked retryable")
	}
	if MetadataFor(Code("UNKNOWN")).HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unknown codes should fall back to internal")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("socket closed")
	err := Wrap(CodeCarrier, cause, "rate quote failed")

	if err.Unwrap() != cause {
		t.Fatalf("expected cause to be preserved")
	}
	if got := err.Error(); got != "CARRIER_ERROR: rate quote failed" {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestAs(t *testing.T) {
	inner := New(CodePartialFailure, "label issued but persist failed").
		WithDetails(map[string]any{"tracking_number": "794000000000"})
	wrapped := fmt.Errorf("handler: %w", inner)

	typed := As(wrapped)
	if typed == nil {
		t.Fatalf("expected typed error from wrapped chain")
	}
	if typed.Code() != CodePartialFailure {
		t.Fatalf("unexpected code %s", typed.Code())
	}
	if !IsCode(wrapped, CodePartialFailure) {
		t.Fatalf("IsCode should match through wrapping")
	}
	if IsCode(wrapped, CodeConflict) {
		t.Fatalf("IsCode should not match a different code")
	}
}
