// Package memory holds process-local repository implementations used for
// local development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/estatehub/realtime/internal/domain"
)

// NotificationRepo keeps notifications in a map guarded by a RWMutex.
type NotificationRepo struct {
	mu    sync.RWMutex
	items map[string]domain.Notification
}

func NewNotificationRepo() *NotificationRepo {
	return &NotificationRepo{items: make(map[string]domain.Notification)}
}

func (r *NotificationRepo) Put(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[n.NotificationID] = clone(*n)
	return nil
}

func (r *NotificationRepo) Get(_ context.Context, notificationID string) (*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.items[notificationID]
	if !ok {
		return nil, fmt.Errorf("notification not found: %w", domain.ErrNotFound)
	}
	out := clone(n)
	return &out, nil
}

func (r *NotificationRepo) ListByRecipient(_ context.Context, recipientID string) ([]domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Notification
	for _, n := range r.items {
		if n.RecipientID == recipientID {
			out = append(out, clone(n))
		}
	}
	return out, nil
}

func (r *NotificationRepo) MarkRead(_ context.Context, notificationID string, readAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[notificationID]
	if !ok {
		return fmt.Errorf("notification not found: %w", domain.ErrNotFound)
	}
	n.MarkRead(readAt)
	r.items[notificationID] = n
	return nil
}

func (r *NotificationRepo) Delete(_ context.Context, notificationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[notificationID]; !ok {
		return fmt.Errorf("notification not found: %w", domain.ErrNotFound)
	}
	delete(r.items, notificationID)
	return nil
}

// clone copies the pointer fields so callers never share state with the map.
func clone(n domain.Notification) domain.Notification {
	if n.Data != nil {
		d := *n.Data
		n.Data = &d
	}
	if n.ReadAt != nil {
		t := *n.ReadAt
		n.ReadAt = &t
	}
	return n
}
