package correlation

import (
	"context"
	"strings"
	"testing"
)

func TestEnsureGeneratesOnce(t *testing.T) {
	t.Parallel()

	ctx := Ensure(context.Background())
	id := ID(ctx)
	if id == "" {
		t.Fatal("expected generated id")
	}
	if again := ID(Ensure(ctx)); again != id {
		t.Fatalf("ensure regenerated id: %q != %q", again, id)
	}
}

func TestSetRejectsInvalid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if got := ID(Set(ctx, "   ")); got != "" {
		t.Fatalf("blank id stored: %q", got)
	}
	if got := ID(Set(ctx, "bad\x01id")); got != "" {
		t.Fatalf("control characters stored: %q", got)
	}
	if got := ID(Set(ctx, strings.Repeat("x", MaxIDLength+1))); got != "" {
		t.Fatalf("oversized id stored: %q", got)
	}
	if got := ID(Set(ctx, " trimmed ")); got != "trimmed" {
		t.Fatalf("normalize = %q want %q", got, "trimmed")
	}
}
