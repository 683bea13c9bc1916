package correlation

import (
	"context"
	"net/http"
	"testing"
)

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "cid-1")

	ctx, cid := EnsureCorrelationID(ctx)
	if cid != "cid-1" {
		t.Fatalf("expected existing id, got %q", cid)
	}
	if got := ExtractCorrelationID(ctx); got != "cid-1" {
		t.Fatalf("expected cid-1 on context, got %q", got)
	}
}

func TestEnsureCorrelationIDGenerates(t *testing.T) {
	ctx, cid := EnsureCorrelationID(context.Background())
	if cid == "" {
		t.Fatalf("expected generated id")
	}

	header := http.Header{}
	Inject(ctx, header)
	if header.Get(HeaderName) != cid {
		t.Fatalf("expected header %q, got %q", cid, header.Get(HeaderName))
	}
}
