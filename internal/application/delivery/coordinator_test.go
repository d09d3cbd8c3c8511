package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/estatehub/realtime/internal/application/notification"
	"github.com/estatehub/realtime/internal/application/realtime"
	"github.com/estatehub/realtime/internal/domain"
	"github.com/estatehub/realtime/internal/infrastructure/cache"
	"github.com/estatehub/realtime/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type recConn struct {
	id string

	mu     sync.Mutex
	frames []realtime.Frame
}

func (c *recConn) ID() string { return c.id }

func (c *recConn) Send(msg []byte) error {
	var f realtime.Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return err
	}
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
	return nil
}

func (c *recConn) received() []realtime.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]realtime.Frame(nil), c.frames...)
}

// failingRepo refuses every write.
type failingRepo struct {
	*memory.NotificationRepo
}

func (failingRepo) Put(context.Context, *domain.Notification) error {
	return errors.New("table unavailable")
}

// stallingRepo blocks writes until the context ends.
type stallingRepo struct {
	*memory.NotificationRepo
}

func (stallingRepo) Put(ctx context.Context, _ *domain.Notification) error {
	<-ctx.Done()
	return ctx.Err()
}

type recordingForwarder struct {
	mu  sync.Mutex
	err error
	got []string
}

func (f *recordingForwarder) Forward(_ context.Context, n *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, n.NotificationID)
	return f.err
}

// blockingForwarder holds every forward until release is closed.
type blockingForwarder struct {
	release chan struct{}
	calls   atomic.Int32
}

func (f *blockingForwarder) Forward(ctx context.Context, _ *domain.Notification) error {
	f.calls.Add(1)
	select {
	case <-f.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *recordingForwarder) forwarded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

type countingRecorder struct {
	mu          sync.Mutex
	created     int
	failed      int
	invalidated map[string]int
}

func (r *countingRecorder) NotificationCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
}

func (r *countingRecorder) PersistFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
}

func (r *countingRecorder) CacheInvalidated(pattern string, removed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.invalidated == nil {
		r.invalidated = map[string]int{}
	}
	r.invalidated[pattern] += removed
}

// --- harness ---

type harness struct {
	coord    *Coordinator
	svc      notification.Service
	registry *realtime.Registry
	cache    *cache.Cache
	rec      *countingRecorder
	fwd      *recordingForwarder
}

func newHarness(t *testing.T, repo notification.Repository, timeout time.Duration) *harness {
	t.Helper()
	if repo == nil {
		repo = memory.NewNotificationRepo()
	}
	reg := realtime.NewRegistry()
	c := cache.New(cache.Options{DefaultTTL: time.Minute})
	svc := notification.NewService(notification.ServiceDeps{Repo: repo})
	rec := &countingRecorder{}
	fwd := &recordingForwarder{}
	coord := NewCoordinator(CoordinatorDeps{
		Notifications:  svc,
		Publisher:      realtime.NewDispatcher(reg, nil),
		Cache:          c,
		Recorder:       rec,
		Forwarder:      fwd,
		PersistTimeout: timeout,
	})
	return &harness{coord: coord, svc: svc, registry: reg, cache: c, rec: rec, fwd: fwd}
}

func (h *harness) connect(id string, rooms ...domain.Room) *recConn {
	c := &recConn{id: id}
	h.registry.Register(c)
	for _, r := range rooms {
		h.registry.Join(id, r)
	}
	return c
}

func inquiry() *NotificationSpec {
	return &NotificationSpec{
		Type:    domain.NotificationInquiryReceived,
		Title:   "New inquiry",
		Message: "A buyer asked about Maple St",
		Data:    &domain.NotificationData{PropertyID: "p1", InquiryID: "i1"},
	}
}

// --- tests ---

func TestNotifyAndInvalidate_PersistsAndPushesOnce(t *testing.T) {
	h := newHarness(t, nil, 0)
	ctx := context.Background()
	mine := h.connect("c1", domain.PersonalRoom("u1"))
	other := h.connect("c2", domain.PersonalRoom("u2"))

	before, err := h.svc.List(ctx, "u1", notification.ListQuery{})
	require.NoError(t, err)
	require.Empty(t, before.Items)

	stored, err := h.coord.NotifyAndInvalidate(ctx, Request{Recipient: "u1", Notification: inquiry()})
	require.NoError(t, err)
	require.NotNil(t, stored)

	page, err := h.svc.List(ctx, "u1", notification.ListQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.False(t, page.Items[0].Read)
	count, err := h.svc.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	frames := mine.received()
	require.Len(t, frames, 1)
	assert.Equal(t, domain.EventNotification, frames[0].Event)
	var ev domain.NotificationEvent
	require.NoError(t, json.Unmarshal(frames[0].Data, &ev))
	assert.Equal(t, stored.NotificationID, ev.ID)
	assert.Equal(t, domain.NotificationInquiryReceived, ev.Type)
	assert.Equal(t, "p1", ev.Data.PropertyID)

	assert.Empty(t, other.received())
	assert.Equal(t, 1, h.rec.created)
}

func TestNotifyAndInvalidate_PersistFailurePublishesNothingButInvalidates(t *testing.T) {
	h := newHarness(t, failingRepo{memory.NewNotificationRepo()}, 0)
	conn := h.connect("c1", domain.PersonalRoom("u1"), domain.PropertyRoom("p1"))
	h.cache.Set("GET:/v1/properties?", []byte("[]"), 0)

	room := domain.PropertyRoom("p1")
	stored, err := h.coord.NotifyAndInvalidate(context.Background(), Request{
		Recipient:    "u1",
		Notification: inquiry(),
		Room:         &room,
		Event:        domain.EventPropertyUpdate,
		Payload:      map[string]string{"id": "p1"},
		CachePattern: PatternProperties,
	})
	assert.Nil(t, stored)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Empty(t, conn.received())

	_, hit := h.cache.Get("GET:/v1/properties?")
	assert.False(t, hit)
	assert.Equal(t, 1, h.rec.failed)
	assert.Equal(t, 1, h.rec.invalidated[PatternProperties])
}

func TestNotifyAndInvalidate_PersistTimeout(t *testing.T) {
	h := newHarness(t, stallingRepo{memory.NewNotificationRepo()}, 20*time.Millisecond)
	conn := h.connect("c1", domain.PersonalRoom("u1"))

	start := time.Now()
	_, err := h.coord.NotifyAndInvalidate(context.Background(), Request{Recipient: "u1", Notification: inquiry()})
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Empty(t, conn.received())
}

func TestNotifyAndInvalidate_CallerCancellationDoesNotAbortWrite(t *testing.T) {
	h := newHarness(t, nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stored, err := h.coord.NotifyAndInvalidate(ctx, Request{Recipient: "u1", Notification: inquiry()})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.NotificationID)
}

func TestNotifyAndInvalidate_RejectsBadInput(t *testing.T) {
	h := newHarness(t, nil, 0)
	ctx := context.Background()
	conn := h.connect("c1", domain.PersonalRoom("u1"))

	cases := map[string]Request{
		"missing recipient": {Notification: inquiry()},
		"unknown type":      {Recipient: "u1", Notification: &NotificationSpec{Type: "promo", Title: "x", Message: "y"}},
		"missing title":     {Recipient: "u1", Notification: &NotificationSpec{Type: domain.NotificationSystem, Message: "y"}},
		"room without id":   {Room: ptr(domain.PropertyRoom("")), Event: domain.EventPropertyUpdate},
		"room without name": {Room: ptr(domain.AdminRoom())},
	}
	for name, req := range cases {
		_, err := h.coord.NotifyAndInvalidate(ctx, req)
		assert.ErrorIs(t, err, domain.ErrBadRequest, name)
	}

	count, _ := h.svc.UnreadCount(ctx, "u1")
	assert.Equal(t, 0, count)
	assert.Empty(t, conn.received())
}

func TestNotifyAndInvalidate_CacheOnly(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.cache.Set("GET:/v1/properties?page=1", []byte("a"), 0)
	h.cache.Set("GET:/v1/stats?", []byte("b"), 0)

	stored, err := h.coord.NotifyAndInvalidate(context.Background(), Request{CachePattern: PatternProperties})
	require.NoError(t, err)
	assert.Nil(t, stored)

	_, hit := h.cache.Get("GET:/v1/properties?page=1")
	assert.False(t, hit)
	_, hit = h.cache.Get("GET:/v1/stats?")
	assert.True(t, hit)
}

func TestNotify(t *testing.T) {
	h := newHarness(t, nil, 0)
	conn := h.connect("c1", domain.PersonalRoom("u1"))

	n, err := h.coord.Notify(context.Background(), "u1", *inquiry())
	require.NoError(t, err)
	assert.Equal(t, "u1", n.RecipientID)
	assert.Len(t, conn.received(), 1)
}

func TestNotifyAdmins_EphemeralToAdminRoomOnly(t *testing.T) {
	h := newHarness(t, nil, 0)
	admin := h.connect("admin", domain.AdminRoom())
	user := h.connect("user", domain.PersonalRoom("u1"))

	ev, err := h.coord.NotifyAdmins(context.Background(), NotificationSpec{
		Type: domain.NotificationSystem, Title: "Listing flagged", Message: "Review p9",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)

	frames := admin.received()
	require.Len(t, frames, 1)
	assert.Equal(t, domain.EventAdminNotification, frames[0].Event)
	var got domain.NotificationEvent
	require.NoError(t, json.Unmarshal(frames[0].Data, &got))
	assert.Equal(t, ev.ID, got.ID)
	assert.Empty(t, user.received())
	assert.Equal(t, 0, h.rec.created)

	_, err = h.coord.NotifyAdmins(context.Background(), NotificationSpec{Type: domain.NotificationSystem})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestAnnounce_ReachesEveryConnection(t *testing.T) {
	h := newHarness(t, nil, 0)
	a := h.connect("a")
	b := h.connect("b", domain.AdminRoom())

	ev, err := h.coord.Announce(context.Background(), NotificationSpec{
		Type: domain.NotificationSystem, Title: "Maintenance", Message: "Back at 02:00 UTC",
	})
	require.NoError(t, err)
	for _, c := range []*recConn{a, b} {
		frames := c.received()
		require.Len(t, frames, 1, c.id)
		assert.Equal(t, domain.EventSystem, frames[0].Event)
		var got domain.NotificationEvent
		require.NoError(t, json.Unmarshal(frames[0].Data, &got))
		assert.Equal(t, ev.ID, got.ID)
	}
}

func TestPropertyUpdated(t *testing.T) {
	h := newHarness(t, nil, 0)
	watcher := h.connect("c1", domain.PropertyRoom("p1"))
	elsewhere := h.connect("c2", domain.PropertyRoom("p2"))
	h.cache.Set("GET:/v1/properties/p1?", []byte("old"), 0)
	h.cache.Set("GET:/v1/stats?", []byte("keep"), 0)

	require.NoError(t, h.coord.PropertyUpdated(context.Background(), "p1", map[string]any{"id": "p1", "price": 450000}))

	frames := watcher.received()
	require.Len(t, frames, 1)
	assert.Equal(t, domain.EventPropertyUpdate, frames[0].Event)
	assert.JSONEq(t, `{"id":"p1","price":450000}`, string(frames[0].Data))
	assert.Empty(t, elsewhere.received())

	_, hit := h.cache.Get("GET:/v1/properties/p1?")
	assert.False(t, hit)
	_, hit = h.cache.Get("GET:/v1/stats?")
	assert.True(t, hit)

	assert.ErrorIs(t, h.coord.PropertyUpdated(context.Background(), "", nil), domain.ErrBadRequest)
}

func TestPropertyCreated_ReachesEveryConnection(t *testing.T) {
	h := newHarness(t, nil, 0)
	a := h.connect("a")
	b := h.connect("b", domain.PersonalRoom("u2"))

	require.NoError(t, h.coord.PropertyCreated(context.Background(), map[string]string{"id": "p3"}))

	for _, c := range []*recConn{a, b} {
		frames := c.received()
		require.Len(t, frames, 1, c.id)
		assert.Equal(t, domain.EventNewProperty, frames[0].Event)
	}
}

func TestDisconnectedWatcherReceivesNothing(t *testing.T) {
	h := newHarness(t, nil, 0)
	conn := h.connect("c1", domain.PropertyRoom("p1"))
	h.registry.UnregisterAll("c1")

	require.NoError(t, h.coord.PropertyUpdated(context.Background(), "p1", map[string]string{"id": "p1"}))
	assert.Empty(t, conn.received())
	assert.Empty(t, h.registry.MembersOf(domain.PropertyRoom("p1")))
}

func ptr[T any](v T) *T { return &v }

func TestNotify_OfflineRecipientIsForwarded(t *testing.T) {
	h := newHarness(t, nil, time.Second)
	online := h.connect("c1", domain.PersonalRoom("online"))

	live, err := h.coord.Notify(context.Background(), "online", *inquiry())
	require.NoError(t, err)
	offline, err := h.coord.Notify(context.Background(), "offline", *inquiry())
	require.NoError(t, err)

	assert.Len(t, online.received(), 1)
	h.coord.Wait()
	assert.Equal(t, []string{offline.NotificationID}, h.fwd.forwarded())
	assert.NotContains(t, h.fwd.forwarded(), live.NotificationID)
}

func TestNotify_ForwardFailureIsNotReturned(t *testing.T) {
	h := newHarness(t, nil, time.Second)
	h.fwd.err = errors.New("topic not found")

	n, err := h.coord.Notify(context.Background(), "offline", *inquiry())
	require.NoError(t, err)
	require.NotNil(t, n)

	count, err := h.svc.UnreadCount(context.Background(), "offline")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNotify_SlowForwarderDoesNotBlockCaller(t *testing.T) {
	fwd := &blockingForwarder{release: make(chan struct{})}
	coord := NewCoordinator(CoordinatorDeps{
		Notifications:  notification.NewService(notification.ServiceDeps{Repo: memory.NewNotificationRepo()}),
		Publisher:      realtime.NewDispatcher(realtime.NewRegistry(), nil),
		Cache:          cache.New(cache.Options{}),
		Forwarder:      fwd,
		PersistTimeout: 10 * time.Second,
	})

	start := time.Now()
	n, err := coord.Notify(context.Background(), "offline", *inquiry())
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Less(t, time.Since(start), time.Second)

	assert.Eventually(t, func() bool { return fwd.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(fwd.release)
	coord.Wait()
}

func TestNotify_ForwardsBeyondLimitAreDropped(t *testing.T) {
	fwd := &blockingForwarder{release: make(chan struct{})}
	coord := NewCoordinator(CoordinatorDeps{
		Notifications:  notification.NewService(notification.ServiceDeps{Repo: memory.NewNotificationRepo()}),
		Publisher:      realtime.NewDispatcher(realtime.NewRegistry(), nil),
		Cache:          cache.New(cache.Options{}),
		Forwarder:      fwd,
		PersistTimeout: 10 * time.Second,
		MaxForwards:    1,
	})

	for i := 0; i < 3; i++ {
		_, err := coord.Notify(context.Background(), "offline", *inquiry())
		require.NoError(t, err)
	}
	close(fwd.release)
	coord.Wait()
	assert.EqualValues(t, 1, fwd.calls.Load())
}
