package domain

import "time"

// NotificationType is the closed set of notification kinds.
type NotificationType string

const (
	NotificationInquiryReceived   NotificationType = "inquiry_received"
	NotificationPropertyApproved  NotificationType = "property_approved"
	NotificationPropertyRejected  NotificationType = "property_rejected"
	NotificationNewMessage        NotificationType = "new_message"
	NotificationPaymentReceived   NotificationType = "payment_received"
	NotificationPropertyViewed    NotificationType = "property_viewed"
	NotificationPriceChange       NotificationType = "price_change"
	NotificationMaintenanceUpdate NotificationType = "maintenance_update"
	NotificationSystem            NotificationType = "system"
)

// Valid reports whether t belongs to the enumeration.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationInquiryReceived, NotificationPropertyApproved, NotificationPropertyRejected,
		NotificationNewMessage, NotificationPaymentReceived, NotificationPropertyViewed,
		NotificationPriceChange, NotificationMaintenanceUpdate, NotificationSystem:
		return true
	}
	return false
}

// NotificationData carries optional references attached to a notification.
type NotificationData struct {
	PropertyID string `json:"property_id,omitempty" dynamodbav:"property_id,omitempty"`
	InquiryID  string `json:"inquiry_id,omitempty" dynamodbav:"inquiry_id,omitempty"`
	UserID     string `json:"user_id,omitempty" dynamodbav:"user_id,omitempty"`
	Link       string `json:"link,omitempty" dynamodbav:"link,omitempty"`
}

// Notification is a durable message owned by a single recipient.
// ReadAt is set if and only if Read is true.
type Notification struct {
	NotificationID string            `json:"id" dynamodbav:"notification_id"`
	RecipientID    string            `json:"recipient_id" dynamodbav:"recipient_id"`
	Type           NotificationType  `json:"type" dynamodbav:"type"`
	Title          string            `json:"title" dynamodbav:"title"`
	Message        string            `json:"message" dynamodbav:"message"`
	Data           *NotificationData `json:"data,omitempty" dynamodbav:"data,omitempty"`
	Read           bool              `json:"read" dynamodbav:"read"`
	ReadAt         *time.Time        `json:"read_at,omitempty" dynamodbav:"read_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at" dynamodbav:"created_at"`
}

// MarkRead flips the read flag and stamps ReadAt. Already-read notifications keep their first ReadAt.
func (n *Notification) MarkRead(at time.Time) {
	if n.Read {
		return
	}
	n.Read = true
	n.ReadAt = &at
}

// NotificationEvent is the wire shape pushed to live connections for
// "notification" and "adminNotification" events.
type NotificationEvent struct {
	ID        string            `json:"id"`
	Type      NotificationType  `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Data      *NotificationData `json:"data,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Event returns the live-event projection of n.
func (n *Notification) Event() NotificationEvent {
	return NotificationEvent{
		ID:        n.NotificationID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		CreatedAt: n.CreatedAt,
	}
}
