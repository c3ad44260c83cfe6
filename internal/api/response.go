package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/PostPipe/internal/models"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// writeError maps an error to a status code and writes an error envelope. Internal
// errors are logged and reported without detail.
func writeError(w http.ResponseWriter, op string, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(verr.Error()))
	case errors.Is(err, models.ErrSessionNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
	case errors.Is(err, models.ErrSessionCompleted):
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
	default:
		slog.Error("Server."+op+": internal error", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
