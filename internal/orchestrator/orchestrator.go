// Package orchestrator routes each inbound visitor turn through identity
// reconciliation, the conversation state machine, the eligibility policy, and
// the automated responder, and applies the markers the responder emits.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/visitly/handoff/internal/coordinator"
	"github.com/visitly/handoff/internal/identity"
	"github.com/visitly/handoff/internal/models"
	"github.com/visitly/handoff/internal/policy"
	"github.com/visitly/handoff/internal/records"
	"github.com/visitly/handoff/internal/responder"
	"github.com/visitly/handoff/internal/session"
	"github.com/visitly/handoff/internal/transport"
	"github.com/visitly/handoff/internal/util"
)

// summaryTurns is how many recent transcript turns go into the agent-facing
// conversation summary.
const summaryTurns = 6

// AcceptOutcome is the result of a visitor accepting a handoff offer.
type AcceptOutcome string

const (
	// AcceptRequested means a new request was published for agents to claim.
	AcceptRequested AcceptOutcome = "requested"
	// AcceptPending means the visitor already had a waiting request.
	AcceptPending AcceptOutcome = "pending"
	// AcceptCallback means agents are off hours, so the visitor was routed to
	// callback collection instead. Business hours alter this affordance only;
	// they never gate eligibility.
	AcceptCallback AcceptOutcome = "callback"
)

// Orchestrator coordinates one visitor turn end to end.
type Orchestrator struct {
	ids       *identity.Resolver
	sessions  *session.Manager
	policy    *policy.Evaluator
	coord     *coordinator.Coordinator
	responder responder.Responder
	recorder  records.Recorder
	emitter   transport.Emitter
	hours     policy.Hours
	now       func() time.Time
}

// New creates an orchestrator.
func New(ids *identity.Resolver, sessions *session.Manager, eval *policy.Evaluator,
	coord *coordinator.Coordinator, resp responder.Responder, recorder records.Recorder,
	emitter transport.Emitter, hours policy.Hours) *Orchestrator {
	slog.Debug("Creating Orchestrator")
	return &Orchestrator{
		ids:       ids,
		sessions:  sessions,
		policy:    eval,
		coord:     coord,
		responder: resp,
		recorder:  recorder,
		emitter:   emitter,
		hours:     hours,
		now:       time.Now,
	}
}

// SetClock overrides the orchestrator's time source (for tests).
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// resolveIdentity returns the durable identity every lookup should use. A
// visitor identity supplied by the embedding site is bound to the session; an
// unbound session on first contact gets a freshly minted one. Only when the
// store cannot hold the binding does the session id serve as a degraded
// standalone identity.
func (o *Orchestrator) resolveIdentity(ctx context.Context, sessionID, visitorID string) string {
	if visitorID != "" {
		if err := o.ids.Bind(ctx, sessionID, visitorID); err != nil {
			slog.Error("Orchestrator identity bind failed", "error", err, "sessionID", sessionID)
		}
		return visitorID
	}
	if resolved, err := o.ids.Resolve(ctx, sessionID); err == nil && resolved != "" {
		return resolved
	}

	minted := util.GenerateVisitorID()
	if err := o.ids.Bind(ctx, sessionID, minted); err != nil {
		slog.Error("Orchestrator identity mint failed", "error", err, "sessionID", sessionID)
		return sessionID
	}
	slog.Debug("Orchestrator minted visitor identity", "visitorID", minted, "sessionID", sessionID)
	return minted
}

// HandleMessage processes one visitor turn.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg models.InboundMessage) error {
	visitorID := o.resolveIdentity(ctx, msg.SessionID, msg.VisitorID)
	slog.Debug("Orchestrator handling message", "visitorID", visitorID, "sessionID", msg.SessionID)

	if err := o.recorder.AddTranscript(ctx, models.TranscriptEntry{
		VisitorID: visitorID, Role: models.RoleVisitor, Body: msg.Body, Time: o.now(),
	}); err != nil {
		slog.Debug("Orchestrator transcript append failed", "error", err, "visitorID", visitorID)
	}
	if err := o.sessions.Touch(ctx, visitorID); err != nil {
		slog.Error("Orchestrator touch failed", "error", err, "visitorID", visitorID)
	}

	conv, err := o.sessions.State(ctx, visitorID)
	if err != nil {
		return err
	}

	if conv.State == models.StateHumanConnected {
		handled, err := o.coord.RecordVisitorActivity(ctx, visitorID, msg.SessionID, msg.Body)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
		// The connection record expired underneath the conversation state;
		// recover to automated mode and answer this turn normally.
		slog.Warn("Orchestrator connected state without connection record, recovering", "visitorID", visitorID)
		if err := o.sessions.Transition(ctx, visitorID, models.StateNormalChat); err != nil {
			return err
		}
		conv, err = o.sessions.State(ctx, visitorID)
		if err != nil {
			return err
		}
	}

	// Handoff evaluation is skipped entirely for collection modes; the
	// policy is consulted only in the seeking and cooldown states.
	offerAllowed := false
	if conv.State == models.StateSeekingHandoff || conv.State == models.StateNormalChat {
		offerAllowed, err = o.policy.CanOfferHandoff(ctx, visitorID)
		if err != nil {
			slog.Error("Orchestrator policy evaluation failed", "error", err, "visitorID", visitorID)
			offerAllowed = false
		}
		// The policy may have moved the visitor out of cooldown.
		conv, err = o.sessions.State(ctx, visitorID)
		if err != nil {
			return err
		}
	}

	reply, err := o.responder.Generate(ctx, conv, msg.Body, offerAllowed)
	if err != nil {
		// The visitor stays in automated mode with no reply this turn;
		// nothing here is fatal to the process.
		slog.Error("Orchestrator responder failed", "error", err, "visitorID", visitorID)
		return err
	}

	o.applyMarkers(ctx, visitorID, conv.State, reply, offerAllowed)

	if reply.Text != "" {
		o.emitter.Emit(msg.SessionID, models.EventBotMessage, map[string]interface{}{"body": reply.Text})
		if err := o.recorder.AddTranscript(ctx, models.TranscriptEntry{
			VisitorID: visitorID, Role: models.RoleBot, Body: reply.Text, Time: o.now(),
		}); err != nil {
			slog.Debug("Orchestrator transcript append failed", "error", err, "visitorID", visitorID)
		}
	}
	return nil
}

// applyMarkers drives state changes from the responder's structured markers.
func (o *Orchestrator) applyMarkers(ctx context.Context, visitorID string, state models.ConversationState, reply responder.Reply, offerAllowed bool) {
	switch state {
	case models.StateCallbackRequest:
		if reply.Lead != nil {
			lead := *reply.Lead
			lead.VisitorID = visitorID
			lead.CapturedAt = o.now()
			if err := o.recorder.AddLead(ctx, lead); err != nil {
				slog.Error("Orchestrator lead record failed", "error", err, "visitorID", visitorID)
			}
			if err := o.sessions.Transition(ctx, visitorID, models.StateNormalChat); err != nil {
				slog.Error("Orchestrator lead transition failed", "error", err, "visitorID", visitorID)
			}
			slog.Info("Orchestrator lead captured", "visitorID", visitorID)
		} else if reply.Escape {
			if err := o.sessions.Transition(ctx, visitorID, models.StateNormalChat); err != nil {
				slog.Error("Orchestrator escape transition failed", "error", err, "visitorID", visitorID)
			}
			slog.Info("Orchestrator visitor escaped callback collection", "visitorID", visitorID)
		}
	case models.StateLeadCapture:
		if reply.CallbackOptIn {
			if err := o.sessions.Transition(ctx, visitorID, models.StateCallbackRequest); err != nil {
				slog.Error("Orchestrator opt-in transition failed", "error", err, "visitorID", visitorID)
			}
		}
	default:
		if offerAllowed && reply.OfferedHandoff {
			if err := o.sessions.MarkOffered(ctx, visitorID); err != nil {
				slog.Error("Orchestrator offer mark failed", "error", err, "visitorID", visitorID)
			}
		}
	}
}

// summarize builds a short agent-facing summary from the visitor's most
// recent transcript turns.
func (o *Orchestrator) summarize(ctx context.Context, visitorID string) string {
	entries, err := o.recorder.GetTranscript(ctx, visitorID)
	if err != nil || len(entries) == 0 {
		return "No conversation recorded yet."
	}
	if len(entries) > summaryTurns {
		entries = entries[len(entries)-summaryTurns:]
	}
	var b strings.Builder
	for _, entry := range entries {
		fmt.Fprintf(&b, "%s: %s\n", entry.Role, entry.Body)
	}
	return strings.TrimSpace(b.String())
}

// AcceptHandoff handles the visitor accepting a handoff offer. During staffed
// hours it publishes (or re-points) a pending request; off hours it routes
// the visitor to callback collection instead.
func (o *Orchestrator) AcceptHandoff(ctx context.Context, sessionID string) (AcceptOutcome, error) {
	visitorID := o.resolveIdentity(ctx, sessionID, "")

	conv, err := o.sessions.State(ctx, visitorID)
	if err != nil {
		return "", err
	}
	// A visitor already talking to an agent has nothing to accept; letting
	// this through would publish a spurious request and arm its timers while
	// the conversation is live.
	if conv.State == models.StateHumanConnected {
		return "", fmt.Errorf("%w: %s -> pending handoff", models.ErrInvalidTransition, conv.State)
	}

	if !o.hours.Open(o.now()) {
		if err := o.beginCallback(ctx, visitorID); err != nil {
			return "", err
		}
		o.emitter.Emit(sessionID, models.EventBotMessage, map[string]interface{}{
			"body": "Our team is offline right now. Leave your details and we'll call you back.",
		})
		slog.Info("Orchestrator accept routed to callback, off hours", "visitorID", visitorID)
		return AcceptCallback, nil
	}

	status, err := o.coord.RequestHandoff(ctx, visitorID, sessionID, o.summarize(ctx, visitorID))
	if err != nil {
		return "", err
	}
	if status == coordinator.StatusPending {
		return AcceptPending, nil
	}
	return AcceptRequested, nil
}

// DeclineHandoff handles the visitor declining a handoff offer; the
// conversation moves to rapport-building lead capture.
func (o *Orchestrator) DeclineHandoff(ctx context.Context, sessionID string) error {
	visitorID := o.resolveIdentity(ctx, sessionID, "")
	return o.sessions.Transition(ctx, visitorID, models.StateLeadCapture)
}

// RequestCallback handles the visitor asking to be called back. The callback
// path is deliberately exempt from the handoff cooldown and moves to
// collection from any automated mode.
func (o *Orchestrator) RequestCallback(ctx context.Context, sessionID string) error {
	visitorID := o.resolveIdentity(ctx, sessionID, "")
	return o.beginCallback(ctx, visitorID)
}

// beginCallback moves a visitor into callback collection through the
// unconditional transition path. Only a live human conversation blocks it.
func (o *Orchestrator) beginCallback(ctx context.Context, visitorID string) error {
	conv, err := o.sessions.State(ctx, visitorID)
	if err != nil {
		return err
	}
	if conv.State == models.StateHumanConnected {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, conv.State, models.StateCallbackRequest)
	}
	if conv.State == models.StateCallbackRequest {
		return nil
	}
	return o.sessions.SetState(ctx, visitorID, models.StateCallbackRequest)
}

// VisitorDisconnected forwards a closed session to the coordinator.
func (o *Orchestrator) VisitorDisconnected(ctx context.Context, sessionID string) {
	o.coord.HandleVisitorDisconnect(ctx, sessionID)
}
