package identity

import (
	"context"
	"testing"

	"github.com/visitly/handoff/internal/store"
)

func TestBindAndResolve(t *testing.T) {
	r := NewResolver(store.NewMemoryStore())
	ctx := context.Background()

	if err := r.Bind(ctx, "s1", "v1"); err != nil {
		t.Fatalf("Bind error: %v", err)
	}

	visitorID, err := r.Resolve(ctx, "s1")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if visitorID != "v1" {
		t.Errorf("Resolve = %q, want v1", visitorID)
	}
}

func TestBindEmptyIdentifiersIsNoOp(t *testing.T) {
	r := NewResolver(store.NewMemoryStore())
	ctx := context.Background()

	if err := r.Bind(ctx, "", "v1"); err != nil {
		t.Errorf("Bind with empty session: %v", err)
	}
	if err := r.Bind(ctx, "s1", ""); err != nil {
		t.Errorf("Bind with empty visitor: %v", err)
	}

	visitorID, _ := r.Resolve(ctx, "s1")
	if visitorID != "" {
		t.Errorf("Resolve after no-op bind = %q, want empty", visitorID)
	}
}

func TestResolveOrSelf(t *testing.T) {
	r := NewResolver(store.NewMemoryStore())
	ctx := context.Background()

	// Unresolvable identifiers fall back to themselves as a degraded
	// standalone identity.
	if got := r.ResolveOrSelf(ctx, "s-unknown"); got != "s-unknown" {
		t.Errorf("ResolveOrSelf(unknown) = %q, want the identifier back", got)
	}

	if err := r.Bind(ctx, "s1", "v1"); err != nil {
		t.Fatalf("Bind error: %v", err)
	}
	if got := r.ResolveOrSelf(ctx, "s1"); got != "v1" {
		t.Errorf("ResolveOrSelf(s1) = %q, want v1", got)
	}
}

func TestCurrentSessionFollowsNewestBinding(t *testing.T) {
	r := NewResolver(store.NewMemoryStore())
	ctx := context.Background()

	if err := r.Bind(ctx, "s1", "v1"); err != nil {
		t.Fatalf("Bind error: %v", err)
	}
	if err := r.Bind(ctx, "s2", "v1"); err != nil {
		t.Fatalf("Bind error: %v", err)
	}

	sessionID, err := r.CurrentSession(ctx, "v1")
	if err != nil {
		t.Fatalf("CurrentSession error: %v", err)
	}
	if sessionID != "s2" {
		t.Errorf("CurrentSession = %q, want s2 (newest)", sessionID)
	}
}
