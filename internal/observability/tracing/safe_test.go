package tracing

import (
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/movies"),
		attribute.String("user.email", "a@b.c"),
	)
	if len(attrs) != 1 || attrs[0].Key != "http.route" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
}

func TestSafeErrorRedactsKeys(t *testing.T) {
	err := SafeError(errors.New("stripe rejected key sk_test_abc123"))
	if strings.Contains(err.Error(), "sk_test_abc123") {
		t.Fatalf("expected key to be redacted, got %q", err.Error())
	}
	if SafeError(nil) != nil {
		t.Fatalf("expected nil")
	}
}
