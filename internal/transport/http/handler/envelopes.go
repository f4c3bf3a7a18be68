package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pinion-app/api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// LoginEnvelope wraps responses that establish a session. The token is also
// set as a cookie; it is echoed in the body for clients that cannot hold one.
type LoginEnvelope struct {
	AuthToken string       `json:"auth_token"`
	User      *domain.User `json:"user"`
}

// UserEnvelope wraps single-user responses.
type UserEnvelope struct {
	User *domain.User `json:"user"`
}

// PhoneChecksEnvelope wraps contact-matching responses.
type PhoneChecksEnvelope struct {
	Checks []domain.PhoneCheck `json:"checks"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps a service error to its HTTP status and stable client key.
// The internal cause is logged server-side and never leaves the process.
func httpError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		slog.Error("unclassified error", "err", err)
		writeError(w, http.StatusInternalServerError, domain.KindInternal.ClientKey())
		return
	}
	status := de.Kind.Status()
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "key", de.ClientKey(), "err", err)
	}
	writeError(w, status, de.ClientKey())
}
