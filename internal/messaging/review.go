package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/PostPipe/internal/flow"
	"github.com/BTreeMap/PostPipe/internal/models"
	"github.com/BTreeMap/PostPipe/internal/store"
)

// Reply texts sent when a message cannot be applied to a session.
const (
	MsgNoActiveCampaign = "No campaign is waiting for your feedback."
	MsgUnknownSender    = "This number is not registered as a campaign reviewer."
)

// ReviewHandler sends campaign drafts to reviewers and applies their replies to the
// reviewer's most recent open session.
type ReviewHandler struct {
	svc      Service
	sessions *flow.SessionManager
	store    store.Store
}

// NewReviewHandler creates a ReviewHandler.
func NewReviewHandler(svc Service, sessions *flow.SessionManager, st store.Store) *ReviewHandler {
	return &ReviewHandler{svc: svc, sessions: sessions, store: st}
}

// CanonicalizeReviewer validates a reviewer number for use as a session reviewer.
func (h *ReviewHandler) CanonicalizeReviewer(reviewer string) (string, error) {
	return h.svc.ValidateAndCanonicalizeRecipient(reviewer)
}

// Notify sends the outcome of a session operation to its reviewer.
func (h *ReviewHandler) Notify(ctx context.Context, reviewer, sessionID string, out flow.Outcome) error {
	if reviewer == "" {
		return nil
	}
	if err := h.svc.SendMessage(ctx, reviewer, FormatOutcome(sessionID, out)); err != nil {
		slog.Error("ReviewHandler.Notify: send failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to notify reviewer: %w", err)
	}
	slog.Debug("ReviewHandler.Notify: reviewer notified", "sessionID", sessionID, "status", out.Status)
	return nil
}

// Run consumes receipts and responses until ctx is done or the service is stopped.
func (h *ReviewHandler) Run(ctx context.Context) {
	receipts, responses := h.svc.Receipts(), h.svc.Responses()
	for receipts != nil || responses != nil {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-receipts:
			if !ok {
				receipts = nil
				continue
			}
			if err := h.store.AddReceipt(r); err != nil {
				slog.Error("ReviewHandler.Run: failed to store receipt", "error", err)
			}
		case resp, ok := <-responses:
			if !ok {
				responses = nil
				continue
			}
			if err := h.HandleResponse(ctx, resp); err != nil {
				slog.Error("ReviewHandler.Run: failed to handle response", "error", err, "from", resp.From)
			}
		}
	}
}

// HandleResponse records a reviewer reply and applies it to the reviewer's open
// session: approval words finalize it, anything else is feedback.
func (h *ReviewHandler) HandleResponse(ctx context.Context, resp models.Response) error {
	if err := h.store.AddResponse(resp); err != nil {
		slog.Error("ReviewHandler.HandleResponse: failed to store response", "error", err)
	}
	from, err := h.svc.ValidateAndCanonicalizeRecipient(resp.From)
	if err != nil {
		return err
	}
	id, err := h.sessions.LatestForReviewer(ctx, from)
	if errors.Is(err, models.ErrSessionNotFound) {
		slog.Info("ReviewHandler.HandleResponse: no open session for sender", "from", from)
		return h.svc.SendMessage(ctx, from, MsgNoActiveCampaign)
	}
	if err != nil {
		return err
	}

	var out flow.Outcome
	if IsApproval(resp.Body) {
		out, err = h.sessions.Finalize(ctx, id)
	} else {
		out, err = h.sessions.Feedback(ctx, id, strings.TrimSpace(resp.Body))
	}
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return h.svc.SendMessage(ctx, from, "Feedback rejected: "+verr.Error())
	case err != nil:
		return err
	}
	slog.Info("ReviewHandler.HandleResponse: reply applied", "sessionID", id, "status", out.Status)
	return h.Notify(ctx, from, id, out)
}
