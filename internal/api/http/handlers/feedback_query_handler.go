package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/loopio/feedback-tracker/internal/api/dto"
	"github.com/loopio/feedback-tracker/internal/service"
)

// FeedbackQueryHandler serves ticket listings, analytics and attachments.
type FeedbackQueryHandler struct {
	service *service.FeedbackService
}

// NewFeedbackQueryHandler constructs handler.
func NewFeedbackQueryHandler(feedbackService *service.FeedbackService) *FeedbackQueryHandler {
	return &FeedbackQueryHandler{service: feedbackService}
}

// List GET /feedbacks.
func (h *FeedbackQueryHandler) List(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	page, err := h.service.List(c.UserContext(), user, service.ListQuery{
		Page:        parseInt(c.Query("page"), 1),
		Limit:       parseInt(c.Query("limit"), 0),
		Status:      c.Query("status"),
		Priority:    c.Query("priority"),
		Category:    c.Query("category"),
		Search:      c.Query("search"),
		SubmittedBy: c.Query("submittedBy", c.Query("submitted_by")),
	})
	if err != nil {
		return err
	}
	items := make([]dto.FeedbackResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, dto.NewFeedbackResponse(&page.Items[i]))
	}
	return c.JSON(fiber.Map{"data": dto.FeedbackListResponse{
		Feedbacks: items,
		Page:      page.Page,
		Limit:     page.Limit,
		Total:     page.Total,
		Pages:     page.Pages,
	}})
}

// Get GET /feedbacks/:id.
func (h *FeedbackQueryHandler) Get(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	view, err := h.service.Get(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewFeedbackResponse(view)})
}

// Analytics GET /feedbacks/analytics?year=.
func (h *FeedbackQueryHandler) Analytics(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	stats, err := h.service.Analytics(c.UserContext(), user, parseInt(c.Query("year"), 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": analyticsResponse(stats)})
}

// Attachment GET /feedbacks/:id/attachment. Public.
func (h *FeedbackQueryHandler) Attachment(c *fiber.Ctx) error {
	content, err := h.service.Attachment(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if content.Path != "" {
		return c.SendFile(content.Path)
	}
	contentType := content.ContentType
	if contentType == "" {
		contentType = fiber.MIMEOctetStream
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", content.Filename))
	return c.Send(content.Data)
}

func analyticsResponse(a *service.Analytics) dto.AnalyticsResponse {
	monthly := make([]dto.MonthlyCount, 0, len(a.Monthly))
	for _, m := range a.Monthly {
		monthly = append(monthly, dto.MonthlyCount{Month: m.Month, Count: m.Count})
	}
	return dto.AnalyticsResponse{
		Year:     a.Year,
		Total:    a.Total,
		Status:   a.Status,
		Priority: a.Priority,
		Category: a.Category,
		Monthly:  monthly,
	}
}
