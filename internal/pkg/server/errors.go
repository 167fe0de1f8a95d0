package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/anicoll/cloudage-integration/internal/pkg/cloudage"
)

type errorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Status: status, Message: message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cloudage.ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, cloudage.ErrEncoding):
		return http.StatusBadRequest
	case errors.Is(err, cloudage.ErrPublish):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func marshalEvent(eventType string, data any) ([]byte, error) {
	return json.Marshal(event{Type: eventType, Data: data})
}
