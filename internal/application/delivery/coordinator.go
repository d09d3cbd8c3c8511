package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/estatehub/realtime/internal/application/notification"
	"github.com/estatehub/realtime/internal/domain"
	"github.com/estatehub/realtime/internal/pkg/id"
	"github.com/estatehub/realtime/internal/pkg/validate"
)

// PatternProperties selects every cached response that depends on listings.
const PatternProperties = "properties"

const (
	defaultPersistTimeout = 5 * time.Second
	defaultMaxForwards    = 64
)

func init() {
	validate.Register("notification_type", func(s string) bool {
		return domain.NotificationType(s).Valid()
	})
}

// NotificationSpec is the content of a notification before it is stored.
type NotificationSpec struct {
	Type    domain.NotificationType  `json:"type" validate:"required,notification_type"`
	Title   string                   `json:"title" validate:"required,max=200"`
	Message string                   `json:"message" validate:"required,max=2000"`
	Data    *domain.NotificationData `json:"data,omitempty"`
}

// Request describes the side effects of one domain mutation. Any subset of
// the three parts may be set.
type Request struct {
	Recipient    string
	Notification *NotificationSpec

	Room    *domain.Room
	Event   string
	Payload any

	CachePattern string
}

// Publisher is satisfied by *realtime.Dispatcher.
type Publisher interface {
	Publish(room domain.Room, event string, payload any) int
}

// Invalidator is satisfied by *cache.Cache.
type Invalidator interface {
	Invalidate(pattern string) int
}

// Recorder receives delivery outcomes, typically for metrics.
type Recorder interface {
	NotificationCreated()
	PersistFailed()
	CacheInvalidated(pattern string, removed int)
}

// Forwarder hands a stored notification to an out-of-band channel. It is
// used only when the recipient has no live connection.
type Forwarder interface {
	Forward(ctx context.Context, n *domain.Notification) error
}

type CoordinatorDeps struct {
	Notifications notification.Service
	Publisher     Publisher
	Cache         Invalidator
	// Optional.
	Recorder       Recorder
	Forwarder      Forwarder
	PersistTimeout time.Duration
	// MaxForwards bounds in-flight forwards; extra ones are dropped. Defaults to 64.
	MaxForwards int
	Log            *slog.Logger
	Now            func() time.Time
}

// Coordinator runs the persist, push and invalidate sequence for domain mutations.
type Coordinator struct {
	notifications notification.Service
	pub           Publisher
	cache         Invalidator
	rec           Recorder
	fwd           Forwarder
	fwdSlots      chan struct{}
	forwards      sync.WaitGroup
	timeout       time.Duration
	log           *slog.Logger
	now           func() time.Time
}

func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	c := &Coordinator{
		notifications: deps.Notifications,
		pub:           deps.Publisher,
		cache:         deps.Cache,
		rec:           deps.Recorder,
		fwd:           deps.Forwarder,
		timeout:       deps.PersistTimeout,
		log:           deps.Log,
		now:           deps.Now,
	}
	if deps.MaxForwards <= 0 {
		deps.MaxForwards = defaultMaxForwards
	}
	c.fwdSlots = make(chan struct{}, deps.MaxForwards)
	if c.rec == nil {
		c.rec = nopRecorder{}
	}
	if c.timeout <= 0 {
		c.timeout = defaultPersistTimeout
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// NotifyAndInvalidate persists and pushes the notification, publishes the room
// event and drops matching cache entries, in that order. A failed write publishes
// nothing but still invalidates, since the mutation that triggered it already happened.
func (c *Coordinator) NotifyAndInvalidate(ctx context.Context, req Request) (*domain.Notification, error) {
	if req.CachePattern != "" {
		defer c.Invalidate(req.CachePattern)
	}
	if err := checkRequest(req); err != nil {
		return nil, err
	}

	var stored *domain.Notification
	if req.Notification != nil {
		n, err := c.persist(ctx, req.Recipient, req.Notification)
		if err != nil {
			return nil, err
		}
		stored = n
		if c.pub.Publish(domain.PersonalRoom(req.Recipient), domain.EventNotification, n.Event()) == 0 {
			c.forward(ctx, n)
		}
	}
	if req.Room != nil {
		c.pub.Publish(*req.Room, req.Event, req.Payload)
	}
	return stored, nil
}

// Notify stores a notification for recipient and pushes it to their personal room.
func (c *Coordinator) Notify(ctx context.Context, recipient string, spec NotificationSpec) (*domain.Notification, error) {
	return c.NotifyAndInvalidate(ctx, Request{Recipient: recipient, Notification: &spec})
}

// NotifyAdmins pushes an unsaved notification to the admin room.
func (c *Coordinator) NotifyAdmins(ctx context.Context, spec NotificationSpec) (domain.NotificationEvent, error) {
	return c.ephemeral(ctx, domain.AdminRoom(), domain.EventAdminNotification, spec)
}

// Announce pushes an unsaved system notification to every connection.
func (c *Coordinator) Announce(ctx context.Context, spec NotificationSpec) (domain.NotificationEvent, error) {
	return c.ephemeral(ctx, domain.GlobalRoom(), domain.EventSystem, spec)
}

func (c *Coordinator) ephemeral(ctx context.Context, room domain.Room, event string, spec NotificationSpec) (domain.NotificationEvent, error) {
	if err := validate.Struct(spec); err != nil {
		return domain.NotificationEvent{}, fmt.Errorf("%s: %w", err, domain.ErrBadRequest)
	}
	ev := domain.NotificationEvent{
		ID:        id.New(),
		Type:      spec.Type,
		Title:     spec.Title,
		Message:   spec.Message,
		Data:      spec.Data,
		CreatedAt: c.now().UTC(),
	}
	_, err := c.NotifyAndInvalidate(ctx, Request{Room: &room, Event: event, Payload: ev})
	return ev, err
}

// PropertyUpdated tells watchers of a listing about a change and drops cached listings.
func (c *Coordinator) PropertyUpdated(ctx context.Context, propertyID string, payload any) error {
	room := domain.PropertyRoom(propertyID)
	_, err := c.NotifyAndInvalidate(ctx, Request{
		Room:         &room,
		Event:        domain.EventPropertyUpdate,
		Payload:      payload,
		CachePattern: PatternProperties,
	})
	return err
}

// PropertyCreated announces a new listing to every connection and drops cached listings.
func (c *Coordinator) PropertyCreated(ctx context.Context, summary any) error {
	room := domain.GlobalRoom()
	_, err := c.NotifyAndInvalidate(ctx, Request{
		Room:         &room,
		Event:        domain.EventNewProperty,
		Payload:      summary,
		CachePattern: PatternProperties,
	})
	return err
}

// persist runs detached from the caller's cancellation but bounded by the persist timeout.
func (c *Coordinator) persist(ctx context.Context, recipient string, spec *NotificationSpec) (*domain.Notification, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	n, err := c.notifications.Create(ctx, recipient, spec.Type, spec.Title, spec.Message, spec.Data)
	if err != nil {
		c.rec.PersistFailed()
		c.log.Error("persist notification", "recipient_id", recipient, "type", spec.Type, "err", err)
		return nil, err
	}
	c.rec.NotificationCreated()
	return n, nil
}

// forward hands n to the forwarder on its own goroutine. It is best effort:
// the record is already stored and listed on reconnect, so when every slot
// is busy the forward is dropped.
func (c *Coordinator) forward(ctx context.Context, n *domain.Notification) {
	if c.fwd == nil {
		return
	}
	select {
	case c.fwdSlots <- struct{}{}:
	default:
		c.log.Warn("forward queue full, dropping", "notification_id", n.NotificationID, "recipient_id", n.RecipientID)
		return
	}
	cp := *n
	ctx = context.WithoutCancel(ctx)
	c.forwards.Add(1)
	go func() {
		defer func() {
			<-c.fwdSlots
			c.forwards.Done()
		}()
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		if err := c.fwd.Forward(ctx, &cp); err != nil {
			c.log.Warn("forward offline notification", "notification_id", cp.NotificationID, "recipient_id", cp.RecipientID, "err", err)
		}
	}()
}

// Wait blocks until in-flight forwards finish.
func (c *Coordinator) Wait() { c.forwards.Wait() }

// Invalidate drops every cached response whose key contains pattern.
func (c *Coordinator) Invalidate(pattern string) int {
	if pattern == "" {
		return 0
	}
	return c.invalidate(pattern)
}

func (c *Coordinator) invalidate(pattern string) int {
	removed := c.cache.Invalidate(pattern)
	c.rec.CacheInvalidated(pattern, removed)
	c.log.Debug("cache invalidated", "pattern", pattern, "removed", removed)
	return removed
}

func checkRequest(req Request) error {
	if req.Notification != nil {
		if req.Recipient == "" {
			return fmt.Errorf("notification without recipient: %w", domain.ErrBadRequest)
		}
		if err := validate.Struct(req.Notification); err != nil {
			return fmt.Errorf("%s: %w", err, domain.ErrBadRequest)
		}
	}
	if req.Room != nil {
		if !req.Room.Valid() {
			return fmt.Errorf("invalid room %q: %w", req.Room.Key(), domain.ErrBadRequest)
		}
		if req.Event == "" {
			return fmt.Errorf("room event without a name: %w", domain.ErrBadRequest)
		}
	}
	return nil
}

type nopRecorder struct{}

func (nopRecorder) NotificationCreated()         {}
func (nopRecorder) PersistFailed()               {}
func (nopRecorder) CacheInvalidated(string, int) {}
