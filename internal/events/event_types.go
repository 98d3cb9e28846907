package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/loopio/feedback-tracker/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated    EventType = "ticket_created"
	EventTicketUpdated    EventType = "ticket_updated"
	EventTicketDeleted    EventType = "ticket_deleted"
	EventAnalyticsChanged EventType = "analytics_changed"
)

// AllTypes lists every ticket event, for subscribers that want all of them.
var AllTypes = []EventType{EventTicketCreated, EventTicketUpdated, EventTicketDeleted, EventAnalyticsChanged}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
}

// Event represents a ticket-wide change emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id,omitempty"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(typ EventType, ticketID string, actor Actor, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// TicketDeletedPayload identifies the removed ticket.
type TicketDeletedPayload struct {
	ID string `json:"id"`
}
