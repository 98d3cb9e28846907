package domain

import "time"

// FeedbackStatus enumerates lifecycle states for tickets.
type FeedbackStatus string

const (
	StatusSubmitted  FeedbackStatus = "Submitted"
	StatusPending    FeedbackStatus = "Pending"
	StatusOpen       FeedbackStatus = "Open"
	StatusInProgress FeedbackStatus = "In Progress"
	StatusWorking    FeedbackStatus = "Working"
	StatusResolved   FeedbackStatus = "Resolved"
	StatusClosed     FeedbackStatus = "Closed"
	StatusDeclined   FeedbackStatus = "Declined"
)

// AllStatuses lists every status in display order.
var AllStatuses = []FeedbackStatus{
	StatusSubmitted, StatusPending, StatusOpen, StatusInProgress,
	StatusWorking, StatusResolved, StatusClosed, StatusDeclined,
}

// Valid reports whether s is one of the known statuses.
func (s FeedbackStatus) Valid() bool {
	for _, candidate := range AllStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// FeedbackPriority enumerates urgency.
type FeedbackPriority string

const (
	PriorityLow    FeedbackPriority = "Low"
	PriorityMedium FeedbackPriority = "Medium"
	PriorityHigh   FeedbackPriority = "High"
)

func (p FeedbackPriority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// FeedbackCategory classifies a ticket.
type FeedbackCategory string

const (
	CategoryBug            FeedbackCategory = "Bug"
	CategoryFeatureRequest FeedbackCategory = "Feature Request"
	CategoryImprovement    FeedbackCategory = "Improvement"
	CategoryOther          FeedbackCategory = "Other"
	CategorySoftwareIssue  FeedbackCategory = "Software Issue"
	CategoryHRIssue        FeedbackCategory = "HR Issue"
	CategoryProjectIssue   FeedbackCategory = "Project Issue"
	CategoryWorkplaceIssue FeedbackCategory = "Workplace Issue"
)

var allCategories = []FeedbackCategory{
	CategoryBug, CategoryFeatureRequest, CategoryImprovement, CategoryOther,
	CategorySoftwareIssue, CategoryHRIssue, CategoryProjectIssue, CategoryWorkplaceIssue,
}

func (c FeedbackCategory) Valid() bool {
	for _, candidate := range allCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// Feedback is the ticket aggregate. SubmittedBy is set once at creation.
// Comments are embedded and share the ticket's lifetime.
type Feedback struct {
	ID                      string
	Title                   string
	Description             string
	Category                FeedbackCategory
	Priority                FeedbackPriority
	Status                  FeedbackStatus
	SubmittedBy             string
	AssignedTo              *string
	EstimatedResolutionDate *time.Time
	Attachment              Attachment
	Comments                []Comment
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// IsAssignedTo reports whether userID is the current assignee.
func (f *Feedback) IsAssignedTo(userID string) bool {
	return f.AssignedTo != nil && *f.AssignedTo == userID
}

// FindComment returns the comment with the given id.
func (f *Feedback) FindComment(id string) (*Comment, bool) {
	for i := range f.Comments {
		if f.Comments[i].ID == id {
			return &f.Comments[i], true
		}
	}
	return nil, false
}

// Comment is an append-only note on a ticket.
type Comment struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	AuthorRole Role      `json:"author_role"`
	Timestamp  time.Time `json:"timestamp"`
}

// HydratedFeedback is a ticket with its submitter and assignee resolved. A
// nil Submitter means the account no longer exists.
type HydratedFeedback struct {
	Feedback  *Feedback
	Submitter *User
	Assignee  *User
}
