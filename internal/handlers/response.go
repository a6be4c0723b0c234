package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/vivoor/vivoor-api/internal/errs"
	"github.com/vivoor/vivoor-api/internal/services"
)

const maxBodyBytes = 64 << 10

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	State     string `json:"state,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeServiceError maps typed service failures onto status codes. Internal
// causes are logged, never returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var (
		ae *services.AuthError
		ve *services.VerificationError
	)
	switch {
	case errors.As(err, &ae):
		if ae.HTTPStatus() >= http.StatusInternalServerError {
			log.Error("authentication failed", zap.String("path", r.URL.Path), zap.Error(err))
		}
		writeJSON(w, ae.HTTPStatus(), ErrorResponse{Error: ae.Message(), Reason: string(ae.Reason)})

	case errors.As(err, &ve):
		if ve.HTTPStatus() >= http.StatusInternalServerError {
			log.Error("verification failed", zap.String("path", r.URL.Path), zap.Error(err))
		}
		writeJSON(w, ve.HTTPStatus(), ErrorResponse{
			Error:     ve.Message(),
			State:     string(ve.State),
			Retryable: ve.Retryable(),
		})

	case errors.Is(err, errs.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Invalid or expired session")

	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")

	default:
		log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
