package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/estatehub/realtime/internal/domain"
	"github.com/estatehub/realtime/internal/pkg/id"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Service owns notification records and the unread-count invariant.
// Every operation is scoped to a recipient; another recipient's record is reported as not found.
type Service interface {
	Create(ctx context.Context, recipientID string, typ domain.NotificationType, title, message string, data *domain.NotificationData) (*domain.Notification, error)
	List(ctx context.Context, recipientID string, q ListQuery) (*Page, error)
	MarkRead(ctx context.Context, notificationID, recipientID string) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, recipientID string) (int, error)
	Delete(ctx context.Context, notificationID, recipientID string) error
	UnreadCount(ctx context.Context, recipientID string) (int, error)
}

// Repository is the persistence port. Get, MarkRead and Delete wrap domain.ErrNotFound for unknown ids.
type Repository interface {
	Put(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	ListByRecipient(ctx context.Context, recipientID string) ([]domain.Notification, error)
	MarkRead(ctx context.Context, notificationID string, readAt time.Time) error
	Delete(ctx context.Context, notificationID string) error
}

// ListQuery selects a page of a recipient's notifications. Page is 1-based.
type ListQuery struct {
	Page       int
	Limit      int
	UnreadOnly bool
}

// Page is one page of notifications plus the counters the client renders alongside it.
type Page struct {
	Items       []domain.Notification
	Total       int
	UnreadCount int
	Page        int
	Limit       int
	MaxPage     int
}

type ServiceDeps struct {
	Repo Repository
	// Now defaults to time.Now.
	Now func() time.Time
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{repo: deps.Repo, now: now}
}

func (s *service) Create(ctx context.Context, recipientID string, typ domain.NotificationType, title, message string, data *domain.NotificationData) (*domain.Notification, error) {
	if recipientID == "" {
		return nil, fmt.Errorf("missing recipient: %w", domain.ErrUnauthorized)
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown notification type %q: %w", typ, domain.ErrBadRequest)
	}
	n := &domain.Notification{
		NotificationID: id.New(),
		RecipientID:    recipientID,
		Type:           typ,
		Title:          title,
		Message:        message,
		Data:           data,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.repo.Put(ctx, n); err != nil {
		return nil, fmt.Errorf("store notification: %w: %w", domain.ErrPersistence, err)
	}
	return n, nil
}

func (s *service) List(ctx context.Context, recipientID string, q ListQuery) (*Page, error) {
	all, err := s.listAll(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}

	unread := 0
	matching := make([]domain.Notification, 0, len(all))
	for _, n := range all {
		if !n.Read {
			unread++
		}
		if q.UnreadOnly && n.Read {
			continue
		}
		matching = append(matching, n)
	}

	start := (q.Page - 1) * q.Limit
	if start > len(matching) {
		start = len(matching)
	}
	end := start + q.Limit
	if end > len(matching) {
		end = len(matching)
	}
	maxPage := 1
	if len(matching) > 0 {
		maxPage = (len(matching) + q.Limit - 1) / q.Limit
	}
	return &Page{
		Items:       matching[start:end],
		Total:       len(matching),
		UnreadCount: unread,
		Page:        q.Page,
		Limit:       q.Limit,
		MaxPage:     maxPage,
	}, nil
}

func (s *service) MarkRead(ctx context.Context, notificationID, recipientID string) (*domain.Notification, error) {
	n, err := s.owned(ctx, notificationID, recipientID)
	if err != nil {
		return nil, err
	}
	if n.Read {
		return n, nil
	}
	at := s.now().UTC()
	if err := s.repo.MarkRead(ctx, notificationID, at); err != nil {
		return nil, s.storeErr("mark notification read", err)
	}
	// A concurrent call may have won; report the stored read_at.
	if stored, err := s.repo.Get(ctx, notificationID); err == nil {
		return stored, nil
	}
	n.MarkRead(at)
	return n, nil
}

func (s *service) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	all, err := s.listAll(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	at := s.now().UTC()
	updated := 0
	for _, n := range all {
		if n.Read {
			continue
		}
		if err := s.repo.MarkRead(ctx, n.NotificationID, at); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Deleted concurrently.
				continue
			}
			return updated, s.storeErr("mark all notifications read", err)
		}
		updated++
	}
	return updated, nil
}

func (s *service) Delete(ctx context.Context, notificationID, recipientID string) error {
	if _, err := s.owned(ctx, notificationID, recipientID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, notificationID); err != nil {
		return s.storeErr("delete notification", err)
	}
	return nil
}

func (s *service) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	all, err := s.listAll(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	unread := 0
	for _, n := range all {
		if !n.Read {
			unread++
		}
	}
	return unread, nil
}

// owned fetches a notification and hides records owned by anyone else behind ErrNotFound.
func (s *service) owned(ctx context.Context, notificationID, recipientID string) (*domain.Notification, error) {
	if recipientID == "" {
		return nil, fmt.Errorf("missing recipient: %w", domain.ErrUnauthorized)
	}
	n, err := s.repo.Get(ctx, notificationID)
	if err != nil {
		return nil, s.storeErr("get notification", err)
	}
	if n.RecipientID != recipientID {
		return nil, fmt.Errorf("notification not found: %w", domain.ErrNotFound)
	}
	return n, nil
}

// listAll returns the recipient's notifications, newest first.
func (s *service) listAll(ctx context.Context, recipientID string) ([]domain.Notification, error) {
	if recipientID == "" {
		return nil, fmt.Errorf("missing recipient: %w", domain.ErrUnauthorized)
	}
	all, err := s.repo.ListByRecipient(ctx, recipientID)
	if err != nil {
		return nil, s.storeErr("list notifications", err)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].NotificationID > all[j].NotificationID
	})
	return all, nil
}

func (s *service) storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("notification not found: %w", domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}
