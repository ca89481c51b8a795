package policy

import (
	"context"
	"testing"
	"time"

	"github.com/visitly/handoff/internal/models"
	"github.com/visitly/handoff/internal/session"
	"github.com/visitly/handoff/internal/store"
)

func newTestEvaluator(t *testing.T) (*Evaluator, *session.Manager) {
	t.Helper()
	st := store.NewMemoryStore()
	sessions := session.NewManager(st)
	return NewEvaluator(sessions, time.Hour), sessions
}

func TestCanOfferHandoffFreshVisitor(t *testing.T) {
	e, _ := newTestEvaluator(t)

	ok, err := e.CanOfferHandoff(context.Background(), "v1")
	if err != nil {
		t.Fatalf("CanOfferHandoff error: %v", err)
	}
	if !ok {
		t.Error("fresh visitor in SEEKING_HANDOFF should be eligible")
	}
}

func TestCanOfferHandoffSkipStates(t *testing.T) {
	for _, state := range []models.ConversationState{
		models.StateCallbackRequest, models.StateLeadCapture, models.StateHumanConnected,
	} {
		t.Run(string(state), func(t *testing.T) {
			e, sessions := newTestEvaluator(t)
			ctx := context.Background()
			if err := sessions.SetState(ctx, "v1", state); err != nil {
				t.Fatalf("seed state error: %v", err)
			}

			ok, err := e.CanOfferHandoff(ctx, "v1")
			if err != nil {
				t.Fatalf("CanOfferHandoff error: %v", err)
			}
			if ok {
				t.Errorf("state %s should never be eligible", state)
			}
		})
	}
}

func TestCanOfferHandoffAlreadyOffered(t *testing.T) {
	e, sessions := newTestEvaluator(t)
	ctx := context.Background()

	if err := sessions.MarkOffered(ctx, "v1"); err != nil {
		t.Fatalf("MarkOffered error: %v", err)
	}

	ok, err := e.CanOfferHandoff(ctx, "v1")
	if err != nil {
		t.Fatalf("CanOfferHandoff error: %v", err)
	}
	if ok {
		t.Error("an offer already made this episode must not repeat")
	}
}

func TestCanOfferHandoffCooldownBoundary(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{"inside cooldown", 59 * time.Minute, false},
		{"past cooldown", 61 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, sessions := newTestEvaluator(t)
			ctx := context.Background()

			if err := sessions.MarkLiveHandoff(ctx, "v1", base); err != nil {
				t.Fatalf("MarkLiveHandoff error: %v", err)
			}
			if err := sessions.SetState(ctx, "v1", models.StateNormalChat); err != nil {
				t.Fatalf("SetState error: %v", err)
			}
			e.SetClock(func() time.Time { return base.Add(tt.elapsed) })

			ok, err := e.CanOfferHandoff(ctx, "v1")
			if err != nil {
				t.Fatalf("CanOfferHandoff error: %v", err)
			}
			if ok != tt.want {
				t.Errorf("eligible after %v = %v, want %v", tt.elapsed, ok, tt.want)
			}

			conv, _ := sessions.State(ctx, "v1")
			if tt.want {
				if conv.State != models.StateSeekingHandoff {
					t.Errorf("state after elapsed cooldown = %q, want SEEKING_HANDOFF", conv.State)
				}
			} else {
				if conv.State != models.StateNormalChat {
					t.Errorf("state inside cooldown = %q, want NORMAL_CHAT", conv.State)
				}
			}
		})
	}
}

func TestNormalChatWithoutHandoffHistory(t *testing.T) {
	// NORMAL_CHAT with no recorded live handoff (a captured lead, for
	// example) returns to seeking on the next evaluated turn.
	e, sessions := newTestEvaluator(t)
	ctx := context.Background()

	if err := sessions.SetState(ctx, "v1", models.StateNormalChat); err != nil {
		t.Fatalf("SetState error: %v", err)
	}

	ok, err := e.CanOfferHandoff(ctx, "v1")
	if err != nil {
		t.Fatalf("CanOfferHandoff error: %v", err)
	}
	if !ok {
		t.Error("NORMAL_CHAT without handoff history should be eligible")
	}
}
