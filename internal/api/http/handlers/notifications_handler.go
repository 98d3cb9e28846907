package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/loopio/feedback-tracker/internal/api/dto"
	"github.com/loopio/feedback-tracker/internal/service"
)

// NotificationsHandler serves the caller's own notifications.
type NotificationsHandler struct {
	service *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notificationService *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{service: notificationService}
}

// List GET /notifications.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	items, err := h.service.List(c.UserContext(), user.ID)
	if err != nil {
		return err
	}
	resp := dto.NotificationListResponse{
		Notifications: make([]dto.NotificationResponse, 0, len(items)),
		UnreadCount:   service.UnreadCount(items),
	}
	for i := range items {
		resp.Notifications = append(resp.Notifications, dto.NewNotificationResponse(&items[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// MarkRead PUT /notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	item, err := h.service.MarkRead(c.UserContext(), user.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewNotificationResponse(item)})
}

// ClearAll DELETE /notifications.
func (h *NotificationsHandler) ClearAll(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	removed, err := h.service.ClearAll(c.UserContext(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"message": "All notifications cleared", "removed": removed}})
}
