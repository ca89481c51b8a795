package recovery_test

import (
	"context"
	"testing"
	"time"

	"github.com/visitly/handoff/internal/coordinator"
	"github.com/visitly/handoff/internal/models"
	"github.com/visitly/handoff/internal/recovery"
	"github.com/visitly/handoff/internal/testutil"
	"github.com/visitly/handoff/internal/timers"
)

func TestRecoverAllRearmsSurvivingRecords(t *testing.T) {
	stack := testutil.NewStack(t, coordinator.Config{HandoffTimeout: time.Hour})
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	stack.Coord.SetClock(func() time.Time { return base })

	// Records written before the simulated restart.
	if err := stack.Store.SavePending(ctx, models.PendingHandoff{
		VisitorID: "v1", SessionID: "s1", CreatedAt: base.Add(-10 * time.Minute),
	}); err != nil {
		t.Fatalf("SavePending error: %v", err)
	}
	if _, err := stack.Store.ClaimConnection(ctx, models.AgentConnection{
		VisitorID: "v2", SessionID: "s2", AgentID: "a1", AgentName: "Dana",
		ConnectedAt: base.Add(-5 * time.Minute),
	}); err != nil {
		t.Fatalf("ClaimConnection error: %v", err)
	}

	if err := recovery.NewManager(stack.Store, stack.Coord).RecoverAll(ctx); err != nil {
		t.Fatalf("RecoverAll error: %v", err)
	}

	if !stack.Timers.Active("v1", timers.KindHandoffTimeout) {
		t.Error("surviving request should have its timeout re-armed")
	}
	if !stack.Timers.Active("v1", timers.KindWaiting) {
		t.Error("surviving request should have its waiting ticker re-armed")
	}
	if !stack.Timers.Active("v2", timers.KindInactivity) {
		t.Error("surviving connection should have its inactivity timer re-armed")
	}
	if !stack.Timers.Active("v2", timers.KindDuration) {
		t.Error("surviving connection should have its duration ticker re-armed")
	}
}

func TestRecoverAllReclaimsExpiredRequest(t *testing.T) {
	stack := testutil.NewStack(t, coordinator.Config{HandoffTimeout: time.Hour})
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	stack.Coord.SetClock(func() time.Time { return base })

	// The process was down long enough for this request to pass its timeout.
	if err := stack.Store.SavePending(ctx, models.PendingHandoff{
		VisitorID: "v1", SessionID: "s1", CreatedAt: base.Add(-2 * time.Hour),
	}); err != nil {
		t.Fatalf("SavePending error: %v", err)
	}

	if err := recovery.NewManager(stack.Store, stack.Coord).RecoverAll(ctx); err != nil {
		t.Fatalf("RecoverAll error: %v", err)
	}

	if pending, _ := stack.Store.GetPending(ctx, "v1"); pending != nil {
		t.Error("expired request should be reclaimed during recovery")
	}
	conv, _ := stack.Sessions.State(ctx, "v1")
	if conv.State != models.StateSeekingHandoff {
		t.Errorf("state = %q, want SEEKING_HANDOFF after reclaim", conv.State)
	}
	if stack.Timers.Active("v1", timers.KindHandoffTimeout) {
		t.Error("reclaimed request should leave no timers behind")
	}
}

func TestRecoverAllEmptyStore(t *testing.T) {
	stack := testutil.NewStack(t, coordinator.Config{})

	if err := recovery.NewManager(stack.Store, stack.Coord).RecoverAll(context.Background()); err != nil {
		t.Fatalf("RecoverAll on empty store: %v", err)
	}
}
