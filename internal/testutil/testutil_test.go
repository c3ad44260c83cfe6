package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/PostPipe/internal/flow"
	"github.com/BTreeMap/PostPipe/internal/models"
)

func TestNewSessionManager(t *testing.T) {
	sm, st := NewSessionManager(t, flow.WithMaxIterations(2))
	id, out, err := sm.Start(context.Background(), SampleRequest(), 0, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != flow.OutcomeAwaitingFeedback || out.MaxIterations != 2 {
		t.Errorf("unexpected outcome %+v", out)
	}
	if sess, _ := st.GetSession(id); sess == nil {
		t.Error("expected the session to be stored")
	}
}

func TestSampleRequestIsValid(t *testing.T) {
	if err := SampleRequest().Validate(); err != nil {
		t.Errorf("expected a valid request, got %v", err)
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	req := CreateHTTPRequest(t, http.MethodPost, "/campaigns", map[string]string{"tone": "casual"})
	if req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("expected a JSON content type, got %q", req.Header.Get("Content-Type"))
	}
	body, _ := io.ReadAll(req.Body)
	var decoded map[string]string
	MustUnmarshalJSON(t, body, &decoded)
	if decoded["tone"] != "casual" {
		t.Errorf("unexpected body %s", body)
	}

	empty := CreateHTTPRequest(t, http.MethodGet, "/campaigns", nil)
	if empty.Header.Get("Content-Type") != "" {
		t.Error("expected no content type without a body")
	}
}

func TestAssertJSONResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.WriteString(`{"status":"ok","result":{"id":"abc"}}`)
	resp := AssertJSONResponse(t, rr, models.APIStatusOK)
	if resp["result"] == nil {
		t.Error("expected the decoded result")
	}
}

func TestAssertResponseCount(t *testing.T) {
	_, st := NewSessionManager(t)
	if err := st.AddResponse(models.Response{From: "15551234567", Body: "ok", Time: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	AssertResponseCount(t, st, 1, "after one response")
}
