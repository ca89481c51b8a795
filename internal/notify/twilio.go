// Package notify abstracts the outward human-agent notification surface.
//
// This file implements an SMS surface over the Twilio API for teams whose
// agents are paged by text message. SMS has no in-place edit, so Update and
// NotifyThread send follow-up messages referencing the notice handle.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioOpts holds configuration options for the Twilio SMS surface.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	From       string
	AgentPhone string
}

// TwilioOption defines a configuration option for the Twilio SMS surface.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number.
func WithFromNumber(from string) TwilioOption {
	return func(o *TwilioOpts) { o.From = from }
}

// WithAgentPhone sets the on-call agent phone number notifications go to.
func WithAgentPhone(phone string) TwilioOption {
	return func(o *TwilioOpts) { o.AgentPhone = phone }
}

// TwilioSurface is a Surface that pages the on-call agent over SMS.
type TwilioSurface struct {
	client     *twilio.RestClient
	from       string
	agentPhone string
	counter    atomic.Int64
}

// NewTwilioSurface creates an SMS notification surface, falling back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM_NUMBER, and
// AGENT_PHONE_NUMBER environment variables for unset options.
func NewTwilioSurface(opts ...TwilioOption) (*TwilioSurface, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.AgentPhone == "" {
		cfg.AgentPhone = os.Getenv("AGENT_PHONE_NUMBER")
	}
	slog.Debug("Twilio surface config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.From != "",
		"AgentPhone_set", cfg.AgentPhone != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" || cfg.AgentPhone == "" {
		return nil, fmt.Errorf("from and agent phone numbers must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioSurface{client: client, from: cfg.From, agentPhone: cfg.AgentPhone}, nil
}

// send delivers one SMS to the on-call agent.
func (s *TwilioSurface) send(body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(s.agentPhone)
	params.SetFrom(s.from)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		slog.Error("TwilioSurface send failed", "error", err)
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	return nil
}

// Publish pages the agent and returns a short handle echoed in follow-ups.
func (s *TwilioSurface) Publish(ctx context.Context, content string) (string, error) {
	handle := fmt.Sprintf("sms-%d-%d", time.Now().Unix(), s.counter.Add(1))
	if err := s.send(fmt.Sprintf("[%s] %s", handle, content)); err != nil {
		return "", err
	}
	slog.Debug("TwilioSurface Publish succeeded", "handle", handle)
	return handle, nil
}

// Update sends a follow-up SMS referencing the original notice.
func (s *TwilioSurface) Update(ctx context.Context, handle, content string) error {
	return s.send(fmt.Sprintf("[%s update] %s", handle, content))
}

// NotifyThread sends a follow-up SMS referencing the original notice.
func (s *TwilioSurface) NotifyThread(ctx context.Context, handle, content string) error {
	return s.send(fmt.Sprintf("[%s] %s", handle, content))
}
