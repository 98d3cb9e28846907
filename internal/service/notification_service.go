package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/loopio/feedback-tracker/internal/domain"
	"github.com/loopio/feedback-tracker/internal/repository"
	apperrors "github.com/loopio/feedback-tracker/pkg/util/errorutil"
)

// NotificationService exposes a recipient's own notifications.
type NotificationService struct {
	notifications repository.NotificationRepository
	logger        *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(notifications repository.NotificationRepository, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{notifications: notifications, logger: logger}
}

// List returns the recipient's notifications, newest first.
func (n *NotificationService) List(ctx context.Context, recipientID string) ([]domain.Notification, error) {
	items, err := n.notifications.ListByRecipient(ctx, recipientID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return items, nil
}

// MarkRead flips a notification to read. Only its recipient may do so.
func (n *NotificationService) MarkRead(ctx context.Context, recipientID, id string) (*domain.Notification, error) {
	if !validID(id) {
		return nil, apperrors.NewNotFound("notification", nil)
	}
	item, err := n.notifications.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "notification")
	}
	if item.RecipientID != recipientID {
		return nil, apperrors.NewForbidden("not authorized")
	}
	if item.Read {
		return item, nil
	}
	if err := n.notifications.MarkRead(ctx, id); err != nil {
		return nil, storeErr(err, "notification")
	}
	item.Read = true
	return item, nil
}

// ClearAll deletes every notification addressed to the recipient.
func (n *NotificationService) ClearAll(ctx context.Context, recipientID string) (int64, error) {
	removed, err := n.notifications.DeleteByRecipient(ctx, recipientID)
	if err != nil {
		return 0, apperrors.NewInternalError(err)
	}
	n.logger.Debug("notifications cleared", zap.String("recipient_id", recipientID), zap.Int64("removed", removed))
	return removed, nil
}

// UnreadCount counts unread items.
func UnreadCount(items []domain.Notification) int {
	count := 0
	for _, item := range items {
		if !item.Read {
			count++
		}
	}
	return count
}
