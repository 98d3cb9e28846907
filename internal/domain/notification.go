package domain

import "time"

// NotificationType is the severity shown to the recipient.
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationAlert   NotificationType = "alert"
	NotificationWarning NotificationType = "warning"
)

// Notification is a per-recipient message. It moves from unread to read, or is
// removed by the recipient's clear-all.
type Notification struct {
	ID          string
	RecipientID string
	Message     string
	Type        NotificationType
	RelatedLink *string
	Read        bool
	CreatedAt   time.Time
}
