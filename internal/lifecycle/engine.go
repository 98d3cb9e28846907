package lifecycle

import (
	"strings"

	"github.com/loopio/feedback-tracker/internal/domain"
)

// OnCreate returns the intents for a newly submitted ticket: every admin hears
// about it, again separately when it is High priority, and the submitter gets
// a confirmation.
func OnCreate(fb *domain.Feedback, actor Actor, admins []string) []Intent {
	b := newBuilder(feedbackLink(fb.ID))
	b.each(admins, domain.NotificationInfo, "New feedback submitted: \"%s\" by %s", fb.Title, actor.Name)
	if fb.Priority == domain.PriorityHigh {
		b.each(admins, domain.NotificationAlert, "HIGH PRIORITY Feedback: \"%s\"", fb.Title)
	}
	b.add(actor.ID, domain.NotificationSuccess, "Feedback \"%s\" submitted successfully", fb.Title)
	return b.intents
}

// UpdateInput describes a ticket update. Before and After are the ticket as
// loaded and as it will be committed. AssigneeName is the display name of
// After.AssignedTo, resolved by the caller.
type UpdateInput struct {
	Before       *domain.Feedback
	After        *domain.Feedback
	Actor        Actor
	Admins       []string
	AssigneeName string
}

// OnUpdate returns status, assignment and priority intents in that order.
func OnUpdate(in UpdateInput) []Intent {
	b := newBuilder(feedbackLink(in.After.ID))
	statusIntents(b, in)
	assignmentIntents(b, in)
	priorityIntents(b, in)
	return b.intents
}

func statusIntents(b *builder, in UpdateInput) {
	before, after, actor := in.Before, in.After, in.Actor
	if before.Status == after.Status {
		return
	}
	if after.SubmittedBy != actor.ID {
		b.add(after.SubmittedBy, domain.NotificationInfo, "Status updated: \"%s\" is now %s", after.Title, after.Status)
	}
	switch actor.Role {
	case domain.RoleDeveloper:
		b.each(in.Admins, domain.NotificationInfo, "Dev %s updated \"%s\" to %s", actor.Name, after.Title, after.Status)
	case domain.RoleAdmin:
		if after.AssignedTo != nil {
			b.add(*after.AssignedTo, domain.NotificationInfo, "Admin updated \"%s\" to %s", after.Title, after.Status)
		}
	}
}

func assignmentIntents(b *builder, in UpdateInput) {
	before, after, actor := in.Before, in.After, in.Actor
	prev, next := deref(before.AssignedTo), deref(after.AssignedTo)
	if prev == next {
		return
	}

	if next != "" {
		name := in.AssigneeName
		if strings.TrimSpace(name) == "" {
			name = "a developer"
		}
		b.add(next, domain.NotificationAlert, "You have been assigned to feedback \"%s\"", after.Title)
		b.add(after.SubmittedBy, domain.NotificationInfo, "Developer %s assigned to your feedback \"%s\"", name, after.Title)
		if prev != "" && prev != actor.ID {
			b.add(prev, domain.NotificationWarning, "You were unassigned from \"%s\"", after.Title)
		}
		b.each(in.Admins, domain.NotificationInfo, "Feedback \"%s\" assigned to %s", after.Title, name)
		return
	}

	if prev == actor.ID {
		b.add(prev, domain.NotificationInfo, "You have unassigned yourself from \"%s\"", after.Title)
	}
	b.each(in.Admins, domain.NotificationAlert, "Task DECLINED by %s: \"%s\"", actor.Name, after.Title)
	b.add(after.SubmittedBy, domain.NotificationInfo, "Your feedback \"%s\" is back to Open status", after.Title)
}

func priorityIntents(b *builder, in UpdateInput) {
	before, after := in.Before, in.After
	if before.Priority == domain.PriorityHigh || after.Priority != domain.PriorityHigh {
		return
	}
	if after.AssignedTo != nil {
		b.add(*after.AssignedTo, domain.NotificationAlert, "URGENT: Feedback \"%s\" priority set to HIGH", after.Title)
	}
}

// OnComment notifies the parties a commenter's role addresses. The commenter is
// never among the recipients and each recipient appears once.
func OnComment(fb *domain.Feedback, actor Actor, admins []string) []Intent {
	var (
		recipients []string
		label      string
	)
	assignee := deref(fb.AssignedTo)
	switch actor.Role {
	case domain.RoleUser:
		label = "User"
		recipients = append(append(recipients, admins...), assignee)
	case domain.RoleAdmin:
		label = "Admin"
		recipients = []string{fb.SubmittedBy, assignee}
	case domain.RoleDeveloper:
		label = "Developer"
		recipients = append([]string{fb.SubmittedBy}, admins...)
	default:
		return nil
	}

	b := newBuilder(feedbackLink(fb.ID))
	for _, r := range dedupe(recipients, actor.ID) {
		b.add(r, domain.NotificationInfo, "%s commented on \"%s\"", label, fb.Title)
	}
	return b.intents
}

// OnDelete tells the submitter when an admin other than themselves removed
// their ticket. The link is omitted because the ticket no longer exists.
func OnDelete(fb *domain.Feedback, actor Actor) []Intent {
	if actor.Role != domain.RoleAdmin || actor.ID == fb.SubmittedBy {
		return nil
	}
	b := newBuilder(nil)
	b.add(fb.SubmittedBy, domain.NotificationAlert, "Your feedback \"%s\" was removed by Admin", fb.Title)
	return b.intents
}

// OnAccountDeleted alerts every admin that an account went away.
func OnAccountDeleted(deleted *domain.User, admins []string) []Intent {
	b := newBuilder(nil)
	for _, admin := range admins {
		if admin == deleted.ID {
			continue
		}
		b.add(admin, domain.NotificationAlert, "Account Deleted: %s (%s)", deleted.Name, deleted.Role)
	}
	return b.intents
}

func dedupe(ids []string, exclude string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == exclude {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
