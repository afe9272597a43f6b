package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/teamtasks/apiserver/internal/logging"
	"github.com/teamtasks/apiserver/internal/services"
	"github.com/teamtasks/apiserver/types"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type contextKey string

const contextIdentityKey contextKey = "identity"

// StatusResponse is the envelope for messages and errors.
type StatusResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

func withIdentity(ctx context.Context, identity types.Identity) context.Context {
	return context.WithValue(ctx, contextIdentityKey, identity)
}

// IdentityFromContext returns the caller attached by RequireAuth or OptionalAuth.
func IdentityFromContext(ctx context.Context) (types.Identity, bool) {
	identity, ok := ctx.Value(contextIdentityKey).(types.Identity)
	return identity, ok
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, StatusResponse{Status: false, Message: message})
}

func writeMessage(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: true, Message: message})
}

// errorWriter maps service errors to responses. Internal causes are only
// echoed to the client in development.
type errorWriter struct {
	verbose bool
}

func (e errorWriter) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrDuplicateEmail):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrAccountDisabled),
		errors.Is(err, services.ErrUnauthenticated),
		errors.Is(err, services.ErrForbidden):
		status = http.StatusUnauthorized
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	default:
		logging.FromContext(r.Context()).Error("request failed", zap.Error(err))
		message := "internal server error"
		if e.verbose {
			message = err.Error()
		}
		writeError(w, http.StatusInternalServerError, message)
		return
	}
	writeError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body", services.ErrValidation)
	}
	return nil
}

func parseUserID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: invalid user id", services.ErrValidation)
	}
	return id, nil
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, "ok")
}
