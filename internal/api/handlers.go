package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/PostPipe/internal/flow"
	"github.com/BTreeMap/PostPipe/internal/models"
)

// createCampaignRequest is the body of POST /campaigns.
type createCampaignRequest struct {
	models.RequestInput
	Reviewer string `json:"reviewer,omitempty"`
}

// campaignResult is the result of campaign operations.
type campaignResult struct {
	SessionID string `json:"session_id"`
	flow.Outcome
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"service": "postpipe"}))
}

func (s *Server) createCampaignHandler(w http.ResponseWriter, r *http.Request) {
	var body createCampaignRequest
	if err := decodeJSON(w, r, &body); err != nil {
		slog.Warn("Server.createCampaignHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if body.MaxIterations < 0 {
		writeError(w, "createCampaignHandler", &models.ValidationError{Field: "max_iterations", Err: models.ErrInvalidMaxIterations})
		return
	}
	req, err := body.ToRequest()
	if err != nil {
		writeError(w, "createCampaignHandler", err)
		return
	}

	reviewer := body.Reviewer
	if reviewer == "" {
		reviewer = s.opts.DefaultReviewer
	}
	if reviewer != "" && s.opts.Notifier != nil {
		canonical, err := s.opts.Notifier.CanonicalizeReviewer(reviewer)
		if err != nil {
			writeError(w, "createCampaignHandler", &models.ValidationError{Field: "reviewer", Err: err})
			return
		}
		reviewer = canonical
	}

	id, out, err := s.sessions.Start(r.Context(), req, body.MaxIterations, reviewer)
	if err != nil {
		writeError(w, "createCampaignHandler", err)
		return
	}
	s.notify(r.Context(), reviewer, id, out)
	writeJSONResponse(w, http.StatusCreated, models.Success(campaignResult{SessionID: id, Outcome: out}))
}

func (s *Server) listCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		writeError(w, "listCampaignsHandler", err)
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sessions))
}

func (s *Server) getCampaignHandler(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "getCampaignHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(view))
}

func (s *Server) deleteCampaignHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, "deleteCampaignHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Campaign deleted", nil))
}

func (s *Server) feedbackHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body feedbackRequest
	if err := decodeJSON(w, r, &body); err != nil {
		slog.Warn("Server.feedbackHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	view, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, "feedbackHandler", err)
		return
	}
	if view.Stage == models.StateDone {
		writeJSONResponse(w, http.StatusConflict, models.APIResponse{
			Status:  string(models.APIStatusError),
			Message: models.ErrSessionCompleted.Error(),
			Result:  campaignResult{SessionID: id, Outcome: view.Outcome},
		})
		return
	}
	out, err := s.sessions.Feedback(r.Context(), id, body.Feedback)
	if err != nil {
		writeError(w, "feedbackHandler", err)
		return
	}
	s.notify(r.Context(), view.Reviewer, id, out)
	writeJSONResponse(w, http.StatusOK, models.Success(campaignResult{SessionID: id, Outcome: out}))
}

func (s *Server) finalizeHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	view, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, "finalizeHandler", err)
		return
	}
	out, err := s.sessions.Finalize(r.Context(), id)
	if err != nil {
		writeError(w, "finalizeHandler", err)
		return
	}
	if view.Stage != models.StateDone {
		s.notify(r.Context(), view.Reviewer, id, out)
	}
	writeJSONResponse(w, http.StatusOK, models.Success(campaignResult{SessionID: id, Outcome: out}))
}

func (s *Server) generateHandler(w http.ResponseWriter, r *http.Request) {
	var body models.RequestInput
	if err := decodeJSON(w, r, &body); err != nil {
		slog.Warn("Server.generateHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if body.MaxIterations < 0 {
		writeError(w, "generateHandler", &models.ValidationError{Field: "max_iterations", Err: models.ErrInvalidMaxIterations})
		return
	}
	req, err := body.ToRequest()
	if err != nil {
		writeError(w, "generateHandler", err)
		return
	}
	result, err := s.sessions.Generate(r.Context(), req, body.MaxIterations)
	if err != nil {
		writeError(w, "generateHandler", err)
		return
	}
	if result.IsError() {
		writeJSONResponse(w, http.StatusBadGateway, models.APIResponse{
			Status:  string(models.APIStatusError),
			Message: result.Error,
			Result:  result,
		})
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// notify forwards an outcome to the session's reviewer. Delivery failures are
// logged and do not fail the request.
func (s *Server) notify(ctx context.Context, reviewer, id string, out flow.Outcome) {
	if s.opts.Notifier == nil || reviewer == "" {
		return
	}
	if err := s.opts.Notifier.Notify(ctx, reviewer, id, out); err != nil {
		slog.Warn("Server.notify: reviewer notification failed", "error", err, "sessionID", id)
	}
}
