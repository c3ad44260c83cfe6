// Package testutil provides common test helpers for PostPipe packages.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/PostPipe/internal/backend"
	"github.com/BTreeMap/PostPipe/internal/flow"
	"github.com/BTreeMap/PostPipe/internal/models"
	"github.com/BTreeMap/PostPipe/internal/store"
)

// NewSessionManager returns a SessionManager over an in-memory store and the
// template backend, together with the store.
func NewSessionManager(t *testing.T, opts ...flow.MachineOption) (*flow.SessionManager, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	sm, err := flow.NewSessionManager(st, backend.NewTemplate(), opts...)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	return sm, st
}

// SampleRequest returns a valid campaign request.
func SampleRequest() models.Request {
	return models.Request{
		CampaignMessage: "Our bakery opens Saturday with fresh sourdough and free samples.",
		TargetAudience:  "Local families",
		Tone:            models.ToneFriendly,
		UseEmojis:       true,
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes an API response envelope and checks its status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if status, ok := response["status"].(string); !ok {
		t.Error("response missing or invalid 'status' field")
	} else if status != string(expectedStatus) {
		t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
	}
	return response
}

// CreateHTTPRequest creates an HTTP request with an optional JSON body.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// AssertResponseCount checks the number of reviewer responses in the store.
func AssertResponseCount(t *testing.T, st store.Store, expected int, context string) {
	t.Helper()
	responses, err := st.GetResponses()
	if err != nil {
		t.Fatalf("%s: failed to get responses: %v", context, err)
	}
	if len(responses) != expected {
		t.Errorf("%s: expected %d responses, got %d", context, expected, len(responses))
	}
}

// MustUnmarshalJSON unmarshals JSON data into target and fails the test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
