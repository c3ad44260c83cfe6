// Package messaging connects campaign sessions to a reviewer over WhatsApp. It sends
// post digests to the reviewer and routes their replies back into the workflow.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/BTreeMap/PostPipe/internal/models"
)

const (
	// DefaultChannelBufferSize is the buffer size of the receipt and response channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long an event waits for a full channel.
	DefaultChannelTimeout = 1 * time.Second
	// minPhoneDigits is the shortest accepted phone number.
	minPhoneDigits = 6
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates a phone number and returns it as digits only.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)
	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error
	// Start begins background event processing.
	Start(ctx context.Context) error
	// Stop stops background processing and closes the event channels.
	Stop() error
	// Receipts returns a channel of delivery receipts.
	Receipts() <-chan models.Receipt
	// Responses returns a channel of incoming reviewer messages.
	Responses() <-chan models.Response
}

// CanonicalizePhone strips everything but digits from a phone number and checks
// that enough digits remain.
func CanonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < minPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, minPhoneDigits)
	}
	return canonical, nil
}

// eventChannels holds the receipt and response channels shared by the services.
// Emits after stop are dropped.
type eventChannels struct {
	name      string
	receipts  chan models.Receipt
	responses chan models.Response

	mu      sync.RWMutex
	stopped bool
}

func newEventChannels(name string) eventChannels {
	return eventChannels{
		name:      name,
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}
}

func (c *eventChannels) isStopped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopped
}

// stop closes both channels once.
func (c *eventChannels) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.receipts)
	close(c.responses)
	slog.Info(c.name+": stopped")
}

func (c *eventChannels) emitReceipt(r models.Receipt) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		return
	}
	select {
	case c.receipts <- r:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(c.name+": receipts channel blocked, dropping receipt", "to", r.To, "status", r.Status)
	}
}

func (c *eventChannels) emitResponse(r models.Response) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		slog.Warn(c.name+": dropping response, service stopped", "from", r.From)
		return
	}
	select {
	case c.responses <- r:
		slog.Debug(c.name+": response received", "from", r.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(c.name+": responses channel blocked, dropping message", "from", r.From)
	}
}

// Receipts returns the channel of delivery receipts.
func (c *eventChannels) Receipts() <-chan models.Receipt {
	return c.receipts
}

// Responses returns the channel of incoming reviewer messages.
func (c *eventChannels) Responses() <-chan models.Response {
	return c.responses
}
