package errors

import (
	"fmt"
	"testing"
)

func TestError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeNotFound, "bin not found")
	if err.Code != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("connection reset")
	wrapped := Wrap(cause, ErrCodeTransient, "snapshot fetch failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	if !Is(wrapped, ErrCodeTransient) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeNotFound) {
		t.Error("Is should return false for non-matching code")
	}

	detailed := err.WithDetail("binId", "BIN-001").WithDetail("operation", "logItem")
	if detailed.Details["binId"] != "BIN-001" {
		t.Error("WithDetail should add details")
	}
}

func TestIsThroughFmtWrap(t *testing.T) {
	inner := BinNotFound("BIN-404", "empty")
	outer := fmt.Errorf("handler: %w", inner)

	if !Is(outer, ErrCodeNotFound) {
		t.Error("Is should see through fmt.Errorf wrapping")
	}
	if GetCode(outer) != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, GetCode(outer))
	}
	coded, ok := As(outer)
	if !ok || coded.Details["operation"] != "empty" {
		t.Error("As should return the coded error with details")
	}
	if Is(nil, ErrCodeNotFound) {
		t.Error("nil error has no code")
	}
}

func TestConstructors(t *testing.T) {
	err := BinNotFound("BIN-9", "logItem")
	if err.Code != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, err.Code)
	}
	if err.Details["binId"] != "BIN-9" || err.Details["operation"] != "logItem" {
		t.Error("BinNotFound should include binId and operation details")
	}

	tr := Transient("stream", fmt.Errorf("EOF"))
	if !IsTransient(tr) {
		t.Error("Transient should be classified as transient")
	}

	inv := InvariantViolation("BIN-1", "totalItems == sum(counts)")
	if inv.Code != ErrCodeInvariantViolation {
		t.Errorf("expected code %s, got %s", ErrCodeInvariantViolation, inv.Code)
	}
}
