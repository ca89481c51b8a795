// Package responder provides automated reply generation using the OpenAI API.
package responder

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/visitly/handoff/internal/models"
)

// Responder generates one automated reply for the visitor's current mode.
type Responder interface {
	Generate(ctx context.Context, conv models.Conversation, message string, offerAllowed bool) (Reply, error)
}

// chatService defines the minimal interface for chat completions, so tests
// can substitute a stub.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration options for the OpenAI responder.
type Opts struct {
	APIKey string
	Model  string
}

// Option defines a configuration option for the OpenAI responder.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the OpenAI chat completion service for generating replies.
type Client struct {
	chat  chatService
	model string
}

// NewClient initializes an OpenAI responder, falling back to the
// OPENAI_API_KEY environment variable when no key option is given.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("Responder client created", "model", cfg.Model)
	return &Client{chat: &cli.Chat.Completions, model: cfg.Model}, nil
}

// systemPrompt returns the instruction set for the visitor's current mode.
// The marker contract lets the orchestrator act on structured results without
// interpreting the reply text.
func systemPrompt(state models.ConversationState, offerAllowed bool) string {
	switch state {
	case models.StateCallbackRequest:
		return "You are a website assistant collecting callback details. Ask for exactly one " +
			"missing field at a time, in this order: first name, last name, email, phone. Once all " +
			"four are collected, append the marker " + MarkerLead + " first, last, email, phone]. " +
			"If the visitor refuses to continue, append the marker " + MarkerEscape + "."
	case models.StateLeadCapture:
		return "You are a website assistant building rapport. Answer the visitor's questions and, " +
			"when natural, offer to have someone call them back. If the visitor agrees to leave " +
			"contact details, append the marker " + MarkerCallbackOptIn + "."
	default:
		prompt := "You are a website assistant answering visitor questions helpfully and briefly."
		if offerAllowed {
			prompt += " If the visitor's question would benefit from a human, offer to connect " +
				"them with an agent and append the marker " + MarkerOffer + "."
		}
		return prompt
	}
}

// Generate produces one reply for the visitor's turn and parses its markers.
func (c *Client) Generate(ctx context.Context, conv models.Conversation, message string, offerAllowed bool) (Reply, error) {
	slog.Debug("Responder Generate", "visitorID", conv.VisitorID, "state", conv.State, "offerAllowed", offerAllowed)

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(conv.State, offerAllowed)),
			openai.UserMessage(message),
		},
	})
	if err != nil {
		slog.Error("Responder Generate failed", "error", err, "visitorID", conv.VisitorID)
		return Reply{}, err
	}
	if len(resp.Choices) == 0 {
		return Reply{}, fmt.Errorf("no choices returned")
	}

	reply := ParseReply(resp.Choices[0].Message.Content)
	slog.Debug("Responder Generate succeeded", "visitorID", conv.VisitorID,
		"lead", reply.Lead != nil, "escape", reply.Escape, "offered", reply.OfferedHandoff)
	return reply, nil
}
