// Package twiliowhatsapp sends WhatsApp messages to reviewers through the Twilio API.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Sender sends a text message to a phone number.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string // sender in "whatsapp:+1234567890" form
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending WhatsApp number.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// messageCreator is the part of the Twilio REST API the client uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Client sends messages through the Twilio REST API.
type Client struct {
	api       messageCreator
	fromWhats string
}

// NewClient creates a Client. Unset options fall back to TWILIO_ACCOUNT_SID,
// TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("twiliowhatsapp.NewClient: config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{api: rest.Api, fromWhats: whatsAppAddress(cfg.FromWhats)}, nil
}

func whatsAppAddress(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	if !strings.HasPrefix(number, "+") {
		number = "+" + number
	}
	return "whatsapp:" + number
}

// SendMessage sends a WhatsApp message to a phone number given as digits.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(whatsAppAddress(to))
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	msg, err := c.api.CreateMessage(params)
	if err != nil {
		slog.Error("twiliowhatsapp.SendMessage: failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	if msg != nil && msg.Sid != nil {
		slog.Debug("twiliowhatsapp.SendMessage: sent", "to", to, "sid", *msg.Sid)
	}
	return nil
}

// SentMessage is a message recorded by MockClient.
type SentMessage struct {
	To   string
	Body string
}

// MockClient records sent messages instead of delivering them.
type MockClient struct {
	SentMessages []SentMessage
}

// NewMockClient creates a MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// SendMessage records the message.
func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}
