// Package policy decides whether a new human-handoff may be offered to a
// visitor right now.
//
// The cooldown rule applies to live handoff offers only; callback requests
// bypass it entirely through their own transition path. Business hours are a
// pure predicate consumed by the calling layer for messaging and never gate
// eligibility.
package policy

import (
	"context"
	"log/slog"
	"time"

	"github.com/visitly/handoff/internal/models"
	"github.com/visitly/handoff/internal/session"
)

// Evaluator applies the handoff eligibility rules.
type Evaluator struct {
	sessions *session.Manager
	cooldown time.Duration
	now      func() time.Time
}

// NewEvaluator creates an eligibility evaluator with the given cooldown
// between successive live handoffs.
func NewEvaluator(sessions *session.Manager, cooldown time.Duration) *Evaluator {
	if cooldown == 0 {
		cooldown = models.DefaultCooldown
	}
	return &Evaluator{sessions: sessions, cooldown: cooldown, now: time.Now}
}

// SetClock overrides the evaluator's time source (for tests).
func (e *Evaluator) SetClock(now func() time.Time) {
	e.now = now
}

// CanOfferHandoff reports whether a handoff may be offered to the visitor on
// this turn. Rules are evaluated in order:
//  1. In CALLBACK_REQUEST, LEAD_CAPTURE, and HUMAN_CONNECTED the evaluation
//     is skipped; callers route those states elsewhere, and the evaluator
//     answers false if asked anyway.
//  2. In NORMAL_CHAT the cooldown since the last live handoff must have
//     elapsed; if it has, the visitor moves back to SEEKING_HANDOFF and
//     evaluation proceeds, otherwise it stays in NORMAL_CHAT.
//  3. A handoff already offered this episode is not offered again.
func (e *Evaluator) CanOfferHandoff(ctx context.Context, visitorID string) (bool, error) {
	conv, err := e.sessions.State(ctx, visitorID)
	if err != nil {
		return false, err
	}

	switch conv.State {
	case models.StateCallbackRequest, models.StateLeadCapture, models.StateHumanConnected:
		return false, nil
	case models.StateNormalChat:
		if conv.LastLiveHandoffAt != nil && e.now().Sub(*conv.LastLiveHandoffAt) < e.cooldown {
			slog.Debug("Policy cooldown still active", "visitorID", visitorID, "lastLiveHandoffAt", *conv.LastLiveHandoffAt)
			return false, nil
		}
		if err := e.sessions.Transition(ctx, visitorID, models.StateSeekingHandoff); err != nil {
			return false, err
		}
		slog.Info("Policy cooldown elapsed, visitor seeking handoff again", "visitorID", visitorID)
		// The transition reset the episode's offered flag.
		return true, nil
	}

	if conv.HandoffOffered {
		slog.Debug("Policy handoff already offered this episode", "visitorID", visitorID)
		return false, nil
	}
	return true, nil
}
