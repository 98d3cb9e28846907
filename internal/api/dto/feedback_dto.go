package dto

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/loopio/feedback-tracker/internal/domain"
)

// OptionalString records whether a JSON field was present at all, so that an
// explicit null can be told apart from an omitted field.
type OptionalString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// CreateFeedbackRequest is the JSON form of ticket creation. Multipart
// requests carry the same field names.
type CreateFeedbackRequest struct {
	Title                   string  `json:"title"`
	Description             string  `json:"description"`
	Category                string  `json:"category"`
	Priority                string  `json:"priority"`
	EstimatedResolutionDate *string `json:"estimated_resolution_date"`
}

// UpdateFeedbackRequest is the JSON form of a ticket edit. assigned_to may be
// null to unassign.
type UpdateFeedbackRequest struct {
	Title                   *string        `json:"title"`
	Description             *string        `json:"description"`
	Category                *string        `json:"category"`
	Priority                *string        `json:"priority"`
	Status                  *string        `json:"status"`
	EstimatedResolutionDate *string        `json:"estimated_resolution_date"`
	AssignedTo              OptionalString `json:"assigned_to"`
}

// AddCommentRequest payload.
type AddCommentRequest struct {
	Text string `json:"text"`
}

// UserSummary is the display form of a submitter or assignee.
type UserSummary struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Email             string      `json:"email"`
	Role              domain.Role `json:"role"`
	ProfilePictureURL *string     `json:"profile_picture_url,omitempty"`
}

func newUserSummary(u *domain.User) *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{
		ID:                u.ID,
		Name:              u.Name,
		Email:             u.Email,
		Role:              u.Role,
		ProfilePictureURL: AvatarURL(u),
	}
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	Kind        string `json:"kind"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	URL         string `json:"url"`
}

// CommentResponse represents one comment.
type CommentResponse struct {
	ID         string      `json:"id"`
	Text       string      `json:"text"`
	AuthorID   string      `json:"author_id"`
	AuthorName string      `json:"author_name"`
	AuthorRole domain.Role `json:"author_role"`
	Timestamp  time.Time   `json:"timestamp"`
}

// FeedbackResponse provides full ticket info with resolved display fields.
type FeedbackResponse struct {
	ID                      string                  `json:"id"`
	Title                   string                  `json:"title"`
	Description             string                  `json:"description"`
	Category                domain.FeedbackCategory `json:"category"`
	Priority                domain.FeedbackPriority `json:"priority"`
	Status                  domain.FeedbackStatus   `json:"status"`
	SubmittedBy             string                  `json:"submitted_by"`
	Submitter               *UserSummary            `json:"submitter"`
	AssignedTo              *string                 `json:"assigned_to"`
	Assignee                *UserSummary            `json:"assignee"`
	EstimatedResolutionDate *time.Time              `json:"estimated_resolution_date"`
	Attachment              *AttachmentResponse     `json:"attachment"`
	Comments                []CommentResponse       `json:"comments"`
	CreatedAt               time.Time               `json:"created_at"`
	UpdatedAt               time.Time               `json:"updated_at"`
}

// NewFeedbackResponse maps a hydrated ticket.
func NewFeedbackResponse(view *domain.HydratedFeedback) FeedbackResponse {
	fb := view.Feedback
	resp := FeedbackResponse{
		ID:                      fb.ID,
		Title:                   fb.Title,
		Description:             fb.Description,
		Category:                fb.Category,
		Priority:                fb.Priority,
		Status:                  fb.Status,
		SubmittedBy:             fb.SubmittedBy,
		Submitter:               newUserSummary(view.Submitter),
		AssignedTo:              fb.AssignedTo,
		Assignee:                newUserSummary(view.Assignee),
		EstimatedResolutionDate: fb.EstimatedResolutionDate,
		Comments:                make([]CommentResponse, 0, len(fb.Comments)),
		CreatedAt:               fb.CreatedAt,
		UpdatedAt:               fb.UpdatedAt,
	}
	if fb.Attachment != nil {
		att := &AttachmentResponse{
			Kind:     domain.AttachmentKind(fb.Attachment),
			FileName: fb.Attachment.DisplayName(),
			URL:      "/feedbacks/" + fb.ID + "/attachment",
		}
		if stored, ok := fb.Attachment.(domain.StoredAttachment); ok {
			att.ContentType = stored.ContentType
			att.SizeBytes = stored.Size
		}
		resp.Attachment = att
	}
	for _, c := range fb.Comments {
		resp.Comments = append(resp.Comments, CommentResponse{
			ID:         c.ID,
			Text:       c.Text,
			AuthorID:   c.AuthorID,
			AuthorName: c.AuthorName,
			AuthorRole: c.AuthorRole,
			Timestamp:  c.Timestamp,
		})
	}
	return resp
}

// FeedbackListResponse is one page of tickets.
type FeedbackListResponse struct {
	Feedbacks []FeedbackResponse `json:"feedbacks"`
	Page      int                `json:"page"`
	Limit     int                `json:"limit"`
	Total     int                `json:"total"`
	Pages     int                `json:"pages"`
}

// DeleteFeedbackResponse acknowledges a deletion.
type DeleteFeedbackResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// MonthlyCount is one bucket of the creation series.
type MonthlyCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// AnalyticsResponse aggregates ticket counts.
type AnalyticsResponse struct {
	Year     int            `json:"year"`
	Total    int            `json:"total"`
	Status   map[string]int `json:"status"`
	Priority map[string]int `json:"priority"`
	Category map[string]int `json:"category"`
	Monthly  []MonthlyCount `json:"monthly"`
}
