package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/estatehub/realtime/internal/application/delivery"
	"github.com/estatehub/realtime/internal/domain"
	"github.com/estatehub/realtime/internal/infrastructure/cache"
	"github.com/estatehub/realtime/internal/pkg/validate"
)

// Deliverer is the subset of *delivery.Coordinator the admin endpoints use.
type Deliverer interface {
	Notify(ctx context.Context, recipient string, spec delivery.NotificationSpec) (*domain.Notification, error)
	NotifyAdmins(ctx context.Context, spec delivery.NotificationSpec) (domain.NotificationEvent, error)
	Announce(ctx context.Context, spec delivery.NotificationSpec) (domain.NotificationEvent, error)
	PropertyUpdated(ctx context.Context, propertyID string, payload any) error
	PropertyCreated(ctx context.Context, summary any) error
	Invalidate(pattern string) int
}

// CacheStatter is satisfied by *cache.Cache.
type CacheStatter interface {
	Stats() cache.Stats
}

// CreateNotificationRequest targets a single recipient.
type CreateNotificationRequest struct {
	RecipientID string `json:"recipient_id" validate:"required"`
	delivery.NotificationSpec
}

// BroadcastRequest pushes an unsaved notification to admins or to everyone.
type BroadcastRequest struct {
	Audience string `json:"audience" validate:"required,oneof=admins all"`
	delivery.NotificationSpec
}

// PropertyEventRequest lets the listing service report a mutation.
type PropertyEventRequest struct {
	Kind       string          `json:"kind" validate:"required,oneof=updated created"`
	PropertyID string          `json:"property_id" validate:"required"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// InvalidatedEnvelope reports how many cache entries were dropped.
type InvalidatedEnvelope struct {
	Pattern string `json:"pattern"`
	Removed int    `json:"removed"`
}

// AdminHandler handles operator endpoints for delivery and the response cache.
type AdminHandler struct {
	deliver Deliverer
	cache   CacheStatter
}

func NewAdminHandler(d Deliverer, c CacheStatter) *AdminHandler {
	return &AdminHandler{deliver: d, cache: c}
}

func (h *AdminHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req CreateNotificationRequest
	if !decodeValid(w, r, &req) {
		return
	}
	n, err := h.deliver.Notify(r.Context(), req.RecipientID, req.NotificationSpec)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *AdminHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if !decodeValid(w, r, &req) {
		return
	}
	send := h.deliver.NotifyAdmins
	if req.Audience == "all" {
		send = h.deliver.Announce
	}
	ev, err := send(r.Context(), req.NotificationSpec)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ev)
}

func (h *AdminHandler) PropertyEvent(w http.ResponseWriter, r *http.Request) {
	var req PropertyEventRequest
	if !decodeValid(w, r, &req) {
		return
	}
	var payload any = map[string]string{"id": req.PropertyID}
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	var err error
	if req.Kind == "created" {
		err = h.deliver.PropertyCreated(r.Context(), payload)
	} else {
		err = h.deliver.PropertyUpdated(r.Context(), req.PropertyID, payload)
	}
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, MessageEnvelope{Message: "property " + req.Kind})
}

func (h *AdminHandler) CacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *AdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		writeError(w, http.StatusBadRequest, "pattern is required")
		return
	}
	writeJSON(w, http.StatusOK, InvalidatedEnvelope{Pattern: pattern, Removed: h.deliver.Invalidate(pattern)})
}

// decodeValid decodes and validates the JSON body, answering 400 or 422 on failure.
func decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}
