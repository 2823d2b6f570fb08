package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	base := NotFound("listing not found")
	wrapped := fmt.Errorf("read listing: %w", base)

	if got := KindOf(wrapped); got != KindNotFound {
		t.Fatalf("expected %q, got %q", KindNotFound, got)
	}
	if !Is(wrapped, KindNotFound) {
		t.Fatalf("expected Is to match wrapped kind")
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != "" {
		t.Fatalf("expected empty kind, got %q", got)
	}
}

func TestServiceUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Service("store unavailable", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected service error to unwrap to cause")
	}
	if err.Error() != "service: store unavailable: connection refused" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
