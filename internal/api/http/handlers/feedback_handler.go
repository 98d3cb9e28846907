package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/loopio/feedback-tracker/internal/api/dto"
	"github.com/loopio/feedback-tracker/internal/service"
	apperrors "github.com/loopio/feedback-tracker/pkg/util/errorutil"
)

// FeedbackHandler manages ticket mutation endpoints.
type FeedbackHandler struct {
	service   *service.FeedbackService
	maxUpload int64
}

// NewFeedbackHandler constructs handler.
func NewFeedbackHandler(feedbackService *service.FeedbackService, maxUpload int64) *FeedbackHandler {
	return &FeedbackHandler{service: feedbackService, maxUpload: maxUpload}
}

// Create POST /feedbacks. Accepts JSON or multipart with an optional "file".
func (h *FeedbackHandler) Create(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	input, err := parseFeedbackCreate(c, h.maxUpload)
	if err != nil {
		return err
	}
	view, err := h.service.Create(c.UserContext(), user, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewFeedbackResponse(view)})
}

// Update PUT /feedbacks/:id.
func (h *FeedbackHandler) Update(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	input, err := parseFeedbackUpdate(c, h.maxUpload)
	if err != nil {
		return err
	}
	view, err := h.service.Update(c.UserContext(), user, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewFeedbackResponse(view)})
}

// Delete DELETE /feedbacks/:id.
func (h *FeedbackHandler) Delete(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	if err := h.service.Delete(c.UserContext(), user, id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.DeleteFeedbackResponse{ID: id, Message: "Feedback deleted"}})
}

// AddComment POST /feedbacks/:id/comments.
func (h *FeedbackHandler) AddComment(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.AddCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	view, err := h.service.AddComment(c.UserContext(), user, c.Params("id"), req.Text)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewFeedbackResponse(view)})
}

// DeleteComment DELETE /feedbacks/:id/comments/:commentId.
func (h *FeedbackHandler) DeleteComment(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	view, err := h.service.DeleteComment(c.UserContext(), user, c.Params("id"), c.Params("commentId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewFeedbackResponse(view)})
}

func parseFeedbackCreate(c *fiber.Ctx, maxUpload int64) (service.FeedbackCreateInput, error) {
	var req dto.CreateFeedbackRequest
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return service.FeedbackCreateInput{}, apperrors.NewValidationError("invalid multipart payload", nil)
		}
		req.Title, _ = formField(form, "title")
		req.Description, _ = formField(form, "description")
		req.Category, _ = formField(form, "category")
		req.Priority, _ = formField(form, "priority")
		req.EstimatedResolutionDate = formPtr(form, "estimated_resolution_date")
	} else if err := c.BodyParser(&req); err != nil {
		return service.FeedbackCreateInput{}, apperrors.NewValidationError("invalid payload", nil)
	}

	date, err := parseDate(req.EstimatedResolutionDate)
	if err != nil {
		return service.FeedbackCreateInput{}, err
	}
	file, err := readUpload(c, "file", maxUpload)
	if err != nil {
		return service.FeedbackCreateInput{}, err
	}
	return service.FeedbackCreateInput{
		Title:                   req.Title,
		Description:             req.Description,
		Category:                req.Category,
		Priority:                req.Priority,
		EstimatedResolutionDate: date,
		File:                    file,
	}, nil
}

// parseFeedbackUpdate builds the edit from JSON or multipart. For multipart
// an assigned_to key that is present but empty (or "null") unassigns.
func parseFeedbackUpdate(c *fiber.Ctx, maxUpload int64) (service.FeedbackUpdate, error) {
	var req dto.UpdateFeedbackRequest
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return service.FeedbackUpdate{}, apperrors.NewValidationError("invalid multipart payload", nil)
		}
		req.Title = formPtr(form, "title")
		req.Description = formPtr(form, "description")
		req.Category = formPtr(form, "category")
		req.Priority = formPtr(form, "priority")
		req.Status = formPtr(form, "status")
		req.EstimatedResolutionDate = formPtr(form, "estimated_resolution_date")
		if v, ok := formField(form, "assigned_to"); ok {
			req.AssignedTo.Set = true
			if v = strings.TrimSpace(v); v != "" && v != "null" {
				req.AssignedTo.Value = &v
			}
		}
	} else if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return service.FeedbackUpdate{}, apperrors.NewValidationError("invalid payload", nil)
		}
	}

	date, err := parseDate(req.EstimatedResolutionDate)
	if err != nil {
		return service.FeedbackUpdate{}, err
	}
	file, err := readUpload(c, "file", maxUpload)
	if err != nil {
		return service.FeedbackUpdate{}, err
	}
	return service.FeedbackUpdate{
		Title:                   req.Title,
		Description:             req.Description,
		Category:                req.Category,
		Priority:                req.Priority,
		Status:                  req.Status,
		EstimatedResolutionDate: date,
		AssignedTo:              service.OptionalID{Set: req.AssignedTo.Set, Value: req.AssignedTo.Value},
		File:                    file,
	}, nil
}
