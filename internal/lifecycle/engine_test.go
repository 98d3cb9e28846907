package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopio/feedback-tracker/internal/domain"
)

var (
	userU  = Actor{ID: "u1", Name: "Uma", Role: domain.RoleUser}
	adminA = Actor{ID: "a1", Name: "Ada", Role: domain.RoleAdmin}
	adminB = Actor{ID: "a2", Name: "Bob", Role: domain.RoleAdmin}
	devD1  = Actor{ID: "d1", Name: "Dee", Role: domain.RoleDeveloper}
	devD2  = Actor{ID: "d2", Name: "Dan", Role: domain.RoleDeveloper}
	admins = []string{adminA.ID, adminB.ID}
)

func ptr(s string) *string { return &s }

func ticket(priority domain.FeedbackPriority) *domain.Feedback {
	return &domain.Feedback{
		ID:          "f1",
		Title:       "Login broken",
		Priority:    priority,
		Status:      domain.StatusSubmitted,
		SubmittedBy: userU.ID,
	}
}

func clone(fb *domain.Feedback) *domain.Feedback {
	cp := *fb
	if fb.AssignedTo != nil {
		cp.AssignedTo = ptr(*fb.AssignedTo)
	}
	return &cp
}

func countFor(intents []Intent, recipient string) int {
	n := 0
	for _, in := range intents {
		if in.RecipientID == recipient {
			n++
		}
	}
	return n
}

func ofType(intents []Intent, typ domain.NotificationType) []Intent {
	var out []Intent
	for _, in := range intents {
		if in.Type == typ {
			out = append(out, in)
		}
	}
	return out
}

func TestOnCreate_MediumPriority(t *testing.T) {
	intents := OnCreate(ticket(domain.PriorityMedium), userU, admins)

	require.Len(t, intents, 3)
	assert.Equal(t, []string{"a1", "a2", "u1"}, recipients(intents))
	assert.Equal(t, `New feedback submitted: "Login broken" by Uma`, intents[0].Message)
	assert.Equal(t, domain.NotificationInfo, intents[0].Type)
	assert.Equal(t, domain.NotificationSuccess, intents[2].Type)
	assert.Equal(t, `Feedback "Login broken" submitted successfully`, intents[2].Message)
	assert.Empty(t, ofType(intents, domain.NotificationAlert))
	require.NotNil(t, intents[0].Link)
	assert.Equal(t, "/feedbacks/f1", *intents[0].Link)
}

func TestOnCreate_HighPriorityYieldsSeparateAlert(t *testing.T) {
	intents := OnCreate(ticket(domain.PriorityHigh), userU, admins)

	require.Len(t, intents, 5)
	for _, admin := range admins {
		assert.Equal(t, 2, countFor(intents, admin), "admin %s gets info and alert", admin)
	}
	alerts := ofType(intents, domain.NotificationAlert)
	require.Len(t, alerts, 2)
	assert.Equal(t, `HIGH PRIORITY Feedback: "Login broken"`, alerts[0].Message)
	assert.Equal(t, "u1", intents[len(intents)-1].RecipientID)
}

func TestOnUpdate_NoopStatusProducesNothing(t *testing.T) {
	before := ticket(domain.PriorityLow)
	after := clone(before)
	after.Description = "more detail"

	intents := OnUpdate(UpdateInput{Before: before, After: after, Actor: adminA, Admins: admins})
	assert.Empty(t, intents)
}

func TestOnUpdate_AdminStatusChangeNotifiesSubmitterOnly(t *testing.T) {
	before := ticket(domain.PriorityMedium)
	after := clone(before)
	after.Status = domain.StatusInProgress

	intents := OnUpdate(UpdateInput{Before: before, After: after, Actor: adminA, Admins: admins})

	require.Len(t, intents, 1)
	assert.Equal(t, "u1", intents[0].RecipientID)
	assert.Equal(t, `Status updated: "Login broken" is now In Progress`, intents[0].Message)
	assert.Zero(t, countFor(intents, adminA.ID))
}

func TestOnUpdate_AdminStatusChangeNotifiesAssignee(t *testing.T) {
	before := ticket(domain.PriorityMedium)
	before.AssignedTo = ptr(devD1.ID)
	after := clone(before)
	after.Status = domain.StatusOpen

	intents := OnUpdate(UpdateInput{Before: before, After: after, Actor: adminA, Admins: admins})

	assert.Equal(t, []string{"u1", "d1"}, recipients(intents))
	assert.Equal(t, `Admin updated "Login broken" to Open`, intents[1].Message)
}

func TestOnUpdate_DeveloperStatusChangeNotifiesAdmins(t *testing.T) {
	before := ticket(domain.PriorityMedium)
	before.AssignedTo = ptr(devD1.ID)
	after := clone(before)
	after.Status = domain.StatusResolved

	intents := OnUpdate(UpdateInput{Before: before, After: after, Actor: devD1, Admins: admins})

	assert.Equal(t, []string{"u1", "a1", "a2"}, recipients(intents))
	assert.Equal(t, `Dev Dee updated "Login broken" to Resolved`, intents[1].Message)
}

func TestOnUpdate_SubmitterChangingOwnStatusIsNotNotified(t *testing.T) {
	before := ticket(domain.PriorityMedium)
	after := clone(before)
	after.Status = domain.StatusClosed

	intents := OnUpdate(UpdateInput{Before: before, After: after, Actor: userU, Admins: admins})
	assert.Zero(t, countFor(intents, userU.ID))
}

func TestOnUpdate_FirstAssignment(t *testing.T) {
	before := ticket(domain.PriorityMedium)
	after := clone(before)
	after.AssignedTo = ptr(devD1.ID)

	intents := OnUpdate(UpdateInput{Before: before, After: after, Actor: adminA, Admins: admins, AssigneeName: devD1.Name})

	require.Len(t, intents, 4)
	assert.Equal(t, "d1", intents[0].RecipientID)
	assert.Equal(t, domain.NotificationAlert, intents[0].Type)
	assert.Equal(t, "u1", intents[1].RecipientID)
	assert.Equal(t, domain.NotificationInfo, intents[1].Type)
	assert.Empty(t, ofType(intents, domain.NotificationWarning))
	for _, in := range intents[2:] {
		assert.Contains(t, admins, in.RecipientID)
		assert.Equal(t, `Feedback "Login broken" assigned to Dee`, in.Message)
	}
}

func TestOnUpdate_Reassignment(t *testing.T) {
	before := ticket(domain.PriorityMedium)
	before.AssignedTo = ptr(devD1.ID)
	after := clone(before)
	after.AssignedTo = ptr(devD2.ID)

	intents := OnUpdate(UpdateInput{Before: before, After: after, Actor: adminA, Admins: admins, AssigneeName: devD2.Name})

	assert.Equal(t, 1, countFor(intents, devD1.ID))
	assert.Equal(t, 1, countFor(intents, devD2.ID))
	warnings := ofType(intents, domain.NotificationWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, "d1", warnings[0].RecipientID)
	assert.Equal(t, `You were unassigned from "Login broken"`, warnings[0].Message)
}

func TestOnUpdate_ReassignmentByPreviousAssigneeSkipsWarning(t *testing.T) {
	before := ticket(domain.PriorityMedium)
	before.AssignedTo = ptr(devD1.ID)
	after := clone(before)
	after.AssignedTo = ptr(devD2.ID)

	intents := OnUpdate(UpdateInput{Before: before, After: after, Actor: devD1, Admins: admins, AssigneeName: devD2.Name})
	assert.Zero(t, countFor(intents, devD1.ID))
	assert.Equal(t, 1, countFor(intents, devD2.ID))
}

func TestOnUpdate_DeveloperDeclines(t *testing.T) {
	before := ticket(domain.PriorityMedium)
	before.AssignedTo = ptr(devD1.ID)
	after := clone(before)
	after.AssignedTo = nil

	intents := OnUpdate(UpdateInput{Before: before, After: after, Actor: devD1, Admins: admins})

	require.Len(t, intents, 4)
	assert.Equal(t, "d1", intents[0].RecipientID)
	assert.Equal(t, `You have unassigned yourself from "Login broken"`, intents[0].Message)
	assert.Equal(t, domain.NotificationInfo, intents[0].Type)
	for _, in := range intents[1:3] {
		assert.Equal(t, domain.NotificationAlert, in.Type)
		assert.Equal(t, `Task DECLINED by Dee: "Login broken"`, in.Message)
	}
	assert.Equal(t, "u1", intents[3].RecipientID)
	assert.Equal(t, `Your feedback "Login broken" is back to Open status`, intents[3].Message)
}

func TestOnUpdate_AdminUnassignsDeveloper(t *testing.T) {
	before := ticket(domain.PriorityMedium)
	before.AssignedTo = ptr(devD1.ID)
	after := clone(before)
	after.AssignedTo = nil

	intents := OnUpdate(UpdateInput{Before: before, After: after, Actor: adminA, Admins: admins})
	assert.Zero(t, countFor(intents, devD1.ID))
	assert.Len(t, ofType(intents, domain.NotificationAlert), 2)
}

func TestOnUpdate_PriorityRaisedToHigh(t *testing.T) {
	before := ticket(domain.PriorityLow)
	before.AssignedTo = ptr(devD1.ID)
	after := clone(before)
	after.Priority = domain.PriorityHigh

	intents := OnUpdate(UpdateInput{Before: before, After: after, Actor: adminA, Admins: admins})
	require.Len(t, intents, 1)
	assert.Equal(t, "d1", intents[0].RecipientID)
	assert.Equal(t, domain.NotificationAlert, intents[0].Type)
	assert.Equal(t, `URGENT: Feedback "Login broken" priority set to HIGH`, intents[0].Message)

	stillHigh := clone(after)
	assert.Empty(t, OnUpdate(UpdateInput{Before: after, After: stillHigh, Actor: adminA, Admins: admins}))

	unassigned := ticket(domain.PriorityLow)
	raised := clone(unassigned)
	raised.Priority = domain.PriorityHigh
	assert.Empty(t, OnUpdate(UpdateInput{Before: unassigned, After: raised, Actor: adminA, Admins: admins}))
}

func TestOnUpdate_OrderIsStatusAssignmentPriority(t *testing.T) {
	before := ticket(domain.PriorityLow)
	after := clone(before)
	after.Status = domain.StatusOpen
	after.AssignedTo = ptr(devD1.ID)
	after.Priority = domain.PriorityHigh

	intents := OnUpdate(UpdateInput{Before: before, After: after, Actor: adminA, Admins: admins, AssigneeName: "Dee"})

	require.NotEmpty(t, intents)
	assert.Contains(t, intents[0].Message, "Status updated")
	assert.Contains(t, intents[len(intents)-1].Message, "URGENT")
}

func TestOnUpdate_SubmitterNeverChanges(t *testing.T) {
	before := ticket(domain.PriorityLow)
	after := clone(before)
	after.Status = domain.StatusResolved
	after.AssignedTo = ptr(devD1.ID)

	_ = OnUpdate(UpdateInput{Before: before, After: after, Actor: adminA, Admins: admins})
	assert.Equal(t, before.SubmittedBy, after.SubmittedBy)
}

func TestOnComment_RecipientsByRole(t *testing.T) {
	fb := ticket(domain.PriorityLow)
	fb.AssignedTo = ptr(devD1.ID)

	cases := []struct {
		name  string
		actor Actor
		want  []string
		label string
	}{
		{"user", userU, []string{"a1", "a2", "d1"}, "User"},
		{"admin", adminA, []string{"u1", "d1"}, "Admin"},
		{"developer", devD1, []string{"u1", "a1", "a2"}, "Developer"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			intents := OnComment(fb, tc.actor, admins)
			assert.Equal(t, tc.want, recipients(intents))
			assert.NotContains(t, recipients(intents), tc.actor.ID)
			assert.Equal(t, tc.label+` commented on "Login broken"`, intents[0].Message)
		})
	}
}

func TestOnComment_ActorExcludedAndDeduplicated(t *testing.T) {
	fb := ticket(domain.PriorityLow)
	fb.SubmittedBy = adminB.ID
	fb.AssignedTo = ptr(devD1.ID)

	intents := OnComment(fb, devD1, admins)
	assert.Equal(t, []string{"a2", "a1"}, recipients(intents))

	fb.SubmittedBy = adminA.ID
	intents = OnComment(fb, adminA, admins)
	assert.Equal(t, []string{"d1"}, recipients(intents))
}

func TestOnComment_UnassignedTicket(t *testing.T) {
	intents := OnComment(ticket(domain.PriorityLow), adminA, admins)
	assert.Equal(t, []string{"u1"}, recipients(intents))
}

func TestOnDelete(t *testing.T) {
	fb := ticket(domain.PriorityLow)

	intents := OnDelete(fb, adminA)
	require.Len(t, intents, 1)
	assert.Equal(t, "u1", intents[0].RecipientID)
	assert.Equal(t, domain.NotificationAlert, intents[0].Type)
	assert.Nil(t, intents[0].Link)

	assert.Empty(t, OnDelete(fb, userU))
	assert.Empty(t, OnDelete(fb, devD1))

	own := ticket(domain.PriorityLow)
	own.SubmittedBy = adminA.ID
	assert.Empty(t, OnDelete(own, adminA))
}

func TestOnAccountDeleted(t *testing.T) {
	deleted := &domain.User{ID: "d1", Name: "Dee", Role: domain.RoleDeveloper}

	intents := OnAccountDeleted(deleted, admins)
	require.Len(t, intents, 2)
	assert.Equal(t, "Account Deleted: Dee (developer)", intents[0].Message)
	assert.Equal(t, domain.NotificationAlert, intents[0].Type)

	self := &domain.User{ID: "a1", Name: "Ada", Role: domain.RoleAdmin}
	assert.Equal(t, []string{"a2"}, recipients(OnAccountDeleted(self, admins)))
}

func recipients(intents []Intent) []string {
	out := make([]string, 0, len(intents))
	for _, in := range intents {
		out = append(out, in.RecipientID)
	}
	return out
}
