package dto

import (
	"time"

	"github.com/loopio/feedback-tracker/internal/domain"
)

// NotificationResponse is both the list item and the notification_new push payload.
type NotificationResponse struct {
	ID          string                  `json:"id"`
	RecipientID string                  `json:"recipient_id"`
	Message     string                  `json:"message"`
	Type        domain.NotificationType `json:"type"`
	RelatedLink *string                 `json:"related_link"`
	IsRead      bool                    `json:"is_read"`
	CreatedAt   time.Time               `json:"created_at"`
}

// NewNotificationResponse maps a stored notification.
func NewNotificationResponse(n *domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Message:     n.Message,
		Type:        n.Type,
		RelatedLink: n.RelatedLink,
		IsRead:      n.Read,
		CreatedAt:   n.CreatedAt,
	}
}

// NotificationListResponse wraps a recipient's notifications, newest first.
type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	UnreadCount   int                    `json:"unread_count"`
}
