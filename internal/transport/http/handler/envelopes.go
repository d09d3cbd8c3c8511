package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/estatehub/realtime/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// PaginatedNotificationsEnvelope wraps a page of notifications.
type PaginatedNotificationsEnvelope struct {
	Data        []domain.Notification `json:"data"`
	Total       int                   `json:"total"`
	UnreadCount int                   `json:"unread_count"`
	Page        int                   `json:"page"`
	Limit       int                   `json:"limit"`
	MaxPage     int                   `json:"max_page"`
}

// UnreadCountEnvelope answers the unread badge query.
type UnreadCountEnvelope struct {
	UnreadCount int `json:"unread_count"`
}

// UpdatedEnvelope reports how many records a bulk operation changed.
type UpdatedEnvelope struct {
	Updated int `json:"updated"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg, ErrorCode: status})
}

// httpError maps domain sentinel errors to status codes. Unknown errors are
// reported as 500 without their text.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrPersistence):
		writeError(w, http.StatusServiceUnavailable, "notification store unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
