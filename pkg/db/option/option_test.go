package option

import "testing"

func TestWithQuerySortByFallsBackOnUnknownColumn(t *testing.T) {
	allowed := map[string]bool{"title": true, "created_at": true}

	spec := WithQuerySortBy("password_hash", "desc", allowed, "title")
	if spec.Column != "title" {
		t.Fatalf("expected fallback column title, got %q", spec.Column)
	}
	if spec.Direction != "desc" {
		t.Fatalf("expected desc direction, got %q", spec.Direction)
	}

	spec = WithQuerySortBy("CREATED_AT", "sideways", allowed, "title")
	if spec.Column != "created_at" || spec.Direction != "asc" {
		t.Fatalf("unexpected spec %+v", spec)
	}
}
