// Package lifecycle maps ticket mutations to the notifications they produce.
// Everything here is pure: callers resolve admins and display names first and
// hand the engine plain values.
package lifecycle

import (
	"fmt"

	"github.com/loopio/feedback-tracker/internal/domain"
)

// Mutation names the kind of change that produced a set of intents.
type Mutation string

const (
	MutationCreate          Mutation = "create"
	MutationUpdate          Mutation = "update"
	MutationComment         Mutation = "comment"
	MutationDelete          Mutation = "delete"
	MutationAccountDeletion Mutation = "account_deletion"
)

// Actor is the identity performing a mutation.
type Actor struct {
	ID   string
	Name string
	Role domain.Role
}

// ActorFromUser builds an Actor from a loaded identity.
func ActorFromUser(u *domain.User) Actor {
	return Actor{ID: u.ID, Name: u.Name, Role: u.Role}
}

// Intent is a notification that has been decided but not yet persisted.
type Intent struct {
	RecipientID string
	Message     string
	Type        domain.NotificationType
	Link        *string
}

func feedbackLink(feedbackID string) *string {
	link := fmt.Sprintf("/feedbacks/%s", feedbackID)
	return &link
}

type builder struct {
	intents []Intent
	link    *string
}

func newBuilder(link *string) *builder {
	return &builder{link: link}
}

func (b *builder) add(recipient string, typ domain.NotificationType, format string, args ...any) {
	if recipient == "" {
		return
	}
	b.intents = append(b.intents, Intent{
		RecipientID: recipient,
		Message:     fmt.Sprintf(format, args...),
		Type:        typ,
		Link:        b.link,
	})
}

func (b *builder) each(recipients []string, typ domain.NotificationType, format string, args ...any) {
	for _, r := range recipients {
		b.add(r, typ, format, args...)
	}
}
