// Package whatsapp wraps the Whatsmeow client used to reach campaign reviewers.
//
// It sends review messages and turns incoming WhatsApp events into reviewer
// responses and delivery receipts.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/BTreeMap/PostPipe/internal/models"
	"github.com/BTreeMap/PostPipe/internal/store"
)

const (
	// DefaultSQLitePath is the default whatsmeow device database.
	DefaultSQLitePath = "/var/lib/postpipe/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID server for regular users.
	JIDSuffix = "s.whatsapp.net"
)

// Sender sends a text message to a phone number.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow device database connection string
	QRPath      string // path to write the login QR code
	NumericCode bool   // print the pairing code instead of a QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow device database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) { o.DBDSN = dsn }
}

// WithQRCodeOutput writes the login QR code to path instead of stdout.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) { o.QRPath = path }
}

// WithNumericCode prints the raw pairing code instead of rendering a QR code.
func WithNumericCode() Option {
	return func(o *Opts) { o.NumericCode = true }
}

// Client is a connected WhatsApp session.
type Client struct {
	wa *whatsmeow.Client
}

// NewClient opens the device store, logs in if needed and connects.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dsn := cfg.DBDSN
	if dsn == "" {
		dsn = DefaultSQLitePath
	}
	driver := deviceDriver(dsn)
	if driver == "sqlite3" && !strings.Contains(dsn, "foreign_keys") {
		slog.Warn("WhatsApp device database has foreign keys disabled; whatsmeow expects them on",
			"dsn_example", "file:"+dsn+"?_foreign_keys=on")
	}
	slog.Debug("whatsapp.NewClient: opening device store", "driver", driver)

	container, err := sqlstore.New(ctx, driver, dsn, waLog.Stdout("Database", "WARN", true))
	if err != nil {
		return nil, fmt.Errorf("failed to open WhatsApp device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load WhatsApp device: %w", err)
	}
	wa := whatsmeow.NewClient(device, waLog.Stdout("Client", "WARN", true))

	if wa.Store.ID != nil {
		if err := wa.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to WhatsApp: %w", err)
		}
		slog.Info("whatsapp.NewClient: connected")
		return &Client{wa: wa}, nil
	}

	slog.Info("whatsapp.NewClient: login required, waiting for pairing")
	qrChan, err := wa.GetQRChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start WhatsApp login: %w", err)
	}
	if err := wa.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to WhatsApp for login: %w", err)
	}
	out := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, err := os.Create(cfg.QRPath)
		if err != nil {
			wa.Disconnect()
			return nil, fmt.Errorf("failed to create QR file: %w", err)
		}
		defer f.Close()
		out = f
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			slog.Info("whatsapp.NewClient: login event", "event", evt.Event)
			continue
		}
		if cfg.NumericCode {
			fmt.Fprintln(out, evt.Code)
		} else {
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, out)
		}
	}
	slog.Info("whatsapp.NewClient: connected")
	return &Client{wa: wa}, nil
}

// deviceDriver picks the database/sql driver for the device store DSN.
func deviceDriver(dsn string) string {
	if store.DetectDSNType(dsn) == "postgres" {
		return "postgres"
	}
	return "sqlite3"
}

// SendMessage sends a text message to a phone number given as digits.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}
	msg := &waE2E.Message{Conversation: &body}
	if _, err := c.wa.SendMessage(ctx, types.NewJID(to, JIDSuffix), msg); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("whatsapp.SendMessage: sent", "to", to, "length", len(body))
	return nil
}

// Subscribe registers callbacks for incoming text messages and delivery receipts.
// Either callback may be nil.
func (c *Client) Subscribe(onResponse func(models.Response), onReceipt func(models.Receipt)) {
	c.wa.AddEventHandler(func(evt any) {
		switch v := evt.(type) {
		case *events.Message:
			if resp, ok := ResponseFromEvent(v); ok && onResponse != nil {
				onResponse(resp)
			}
		case *events.Receipt:
			if r, ok := ReceiptFromEvent(v); ok && onReceipt != nil {
				onReceipt(r)
			}
		}
	})
}

// Disconnect closes the WhatsApp connection.
func (c *Client) Disconnect() {
	c.wa.Disconnect()
}

// ResponseFromEvent extracts the sender and text of an incoming message. Non-text
// messages and our own messages are skipped.
func ResponseFromEvent(evt *events.Message) (models.Response, bool) {
	if evt == nil || evt.Message == nil || evt.Info.IsFromMe {
		return models.Response{}, false
	}
	var text string
	switch {
	case evt.Message.GetConversation() != "":
		text = evt.Message.GetConversation()
	case evt.Message.GetExtendedTextMessage().GetText() != "":
		text = evt.Message.GetExtendedTextMessage().GetText()
	default:
		return models.Response{}, false
	}
	return models.Response{
		From: evt.Info.Sender.User,
		Body: text,
		Time: evt.Info.Timestamp.Unix(),
	}, true
}

// ReceiptFromEvent converts a delivery receipt. Read and other receipt types are
// skipped.
func ReceiptFromEvent(evt *events.Receipt) (models.Receipt, bool) {
	if evt == nil || evt.Type != events.ReceiptTypeDelivered {
		return models.Receipt{}, false
	}
	return models.Receipt{
		To:     evt.MessageSource.Chat.User,
		Status: models.MessageStatusDelivered,
		Time:   evt.Timestamp.Unix(),
	}, true
}

// MockClient records sent messages instead of delivering them.
type MockClient struct {
	Sent []models.Response
	Err  error
}

// NewMockClient creates a MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// SendMessage records the message, or fails with Err when set.
func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, models.Response{From: to, Body: body})
	return nil
}
