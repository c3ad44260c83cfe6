package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/PostPipe/internal/models"
	"github.com/BTreeMap/PostPipe/internal/twiliowhatsapp"
)

// TwilioService implements Service over the Twilio API. Incoming messages arrive
// through WebhookHandler.
type TwilioService struct {
	eventChannels
	client twiliowhatsapp.Sender
}

var _ Service = (*TwilioService)(nil)

// NewTwilioService creates a TwilioService.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		eventChannels: newEventChannels("TwilioService"),
		client:        client,
	}
}

// ValidateAndCanonicalizeRecipient returns the recipient as digits only. A
// "whatsapp:" prefix is accepted.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(strings.TrimPrefix(recipient, "whatsapp:"))
}

// Start is a no-op; Twilio pushes events to the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the event channels.
func (s *TwilioService) Stop() error {
	s.stop()
	return nil
}

// SendMessage sends a message via Twilio and emits a receipt.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, canonical, body); err != nil {
		s.emitReceipt(models.Receipt{To: canonical, Status: models.MessageStatusFailed, Time: time.Now().Unix()})
		return err
	}
	s.emitReceipt(models.Receipt{To: canonical, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// WebhookHandler accepts Twilio inbound message webhooks and emits them as
// responses.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("TwilioService.WebhookHandler: bad form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	from, body := r.FormValue("From"), r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("TwilioService.WebhookHandler: missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.emitResponse(models.Response{From: canonical, Body: body, Time: time.Now().Unix()})

	// An empty TwiML document acknowledges the message without replying.
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`)
}
