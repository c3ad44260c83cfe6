package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/PostPipe/internal/models"
	"github.com/BTreeMap/PostPipe/internal/whatsapp"
)

// WhatsAppService implements Service over the Whatsmeow client.
type WhatsAppService struct {
	eventChannels
	client whatsapp.Sender
}

var _ Service = (*WhatsAppService)(nil)

// NewWhatsAppService creates a WhatsAppService. Incoming events are only received
// when client is a *whatsapp.Client.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	return &WhatsAppService{
		eventChannels: newEventChannels("WhatsAppService"),
		client:        client,
	}
}

// ValidateAndCanonicalizeRecipient returns the recipient as digits only.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// Start subscribes to WhatsApp message and receipt events.
func (s *WhatsAppService) Start(ctx context.Context) error {
	wa, ok := s.client.(*whatsapp.Client)
	if !ok {
		slog.Debug("WhatsAppService.Start: client does not deliver events, skipping subscription")
		return nil
	}
	wa.Subscribe(s.emitResponse, s.emitReceipt)
	slog.Info("WhatsAppService.Start: subscribed to events")
	return nil
}

// Stop closes the event channels.
func (s *WhatsAppService) Stop() error {
	s.stop()
	return nil
}

// SendMessage sends a message and emits a sent receipt.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, canonical, body); err != nil {
		slog.Error("WhatsAppService.SendMessage: send failed", "error", err, "to", canonical)
		s.emitReceipt(models.Receipt{To: canonical, Status: models.MessageStatusFailed, Time: time.Now().Unix()})
		return err
	}
	s.emitReceipt(models.Receipt{To: canonical, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}
