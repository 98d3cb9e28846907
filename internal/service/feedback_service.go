package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loopio/feedback-tracker/internal/config"
	"github.com/loopio/feedback-tracker/internal/domain"
	"github.com/loopio/feedback-tracker/internal/events"
	"github.com/loopio/feedback-tracker/internal/lifecycle"
	"github.com/loopio/feedback-tracker/internal/notify"
	"github.com/loopio/feedback-tracker/internal/repository"
	"github.com/loopio/feedback-tracker/internal/storage"
	apperrors "github.com/loopio/feedback-tracker/pkg/util/errorutil"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// FeedbackService coordinates ticket workflows.
type FeedbackService struct {
	feedbacks repository.FeedbackRepository
	users     repository.UserRepository
	notifier  Notifier
	bus       events.Dispatcher
	legacy    *storage.LegacyFiles
	logger    *zap.Logger
	maxUpload int64
	now       func() time.Time
}

// FeedbackDependencies bundles collaborators for the feedback service.
type FeedbackDependencies struct {
	FeedbackRepo repository.FeedbackRepository
	UserRepo     repository.UserRepository
	Notifier     Notifier
	Bus          events.Dispatcher
	LegacyFiles  *storage.LegacyFiles
	Logger       *zap.Logger
}

// NewFeedbackService builds the service.
func NewFeedbackService(cfg config.Config, deps FeedbackDependencies) *FeedbackService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedbackService{
		feedbacks: deps.FeedbackRepo,
		users:     deps.UserRepo,
		notifier:  deps.Notifier,
		bus:       deps.Bus,
		legacy:    deps.LegacyFiles,
		logger:    logger,
		maxUpload: cfg.Storage.MaxUploadBytes,
		now:       time.Now,
	}
}

// FeedbackCreateInput describes ticket creation payload.
type FeedbackCreateInput struct {
	Title                   string
	Description             string
	Category                string
	Priority                string
	EstimatedResolutionDate *time.Time
	File                    *FileUpload
}

// OptionalID distinguishes "not sent" from "sent as null".
type OptionalID struct {
	Set   bool
	Value *string
}

// FeedbackUpdate describes a ticket edit. Empty strings leave a field as it is.
type FeedbackUpdate struct {
	Title                   *string
	Description             *string
	Category                *string
	Priority                *string
	Status                  *string
	EstimatedResolutionDate *time.Time
	AssignedTo              OptionalID
	File                    *FileUpload
}

// ListQuery carries list parameters as received.
type ListQuery struct {
	Page        int
	Limit       int
	Status      string
	Priority    string
	Category    string
	Search      string
	SubmittedBy string
}

// FeedbackPage is one page of tickets.
type FeedbackPage struct {
	Items []domain.HydratedFeedback
	Page  int
	Limit int
	Total int
	Pages int
}

// MonthCount is one bucket of the monthly creation series.
type MonthCount struct {
	Month string
	Count int
}

// Analytics aggregates ticket counts.
type Analytics struct {
	Year     int
	Total    int
	Status   map[string]int
	Priority map[string]int
	Category map[string]int
	Monthly  []MonthCount
}

// AttachmentContent is a resolved attachment. Exactly one of Data or Path is set.
type AttachmentContent struct {
	Filename    string
	ContentType string
	Data        []byte
	Path        string
}

// Create stores a new ticket submitted by actor.
func (s *FeedbackService) Create(ctx context.Context, actor *domain.User, in FeedbackCreateInput) (*domain.HydratedFeedback, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	if title == "" || description == "" || strings.TrimSpace(in.Category) == "" || strings.TrimSpace(in.Priority) == "" {
		return nil, apperrors.NewValidationError("please add all fields", nil)
	}
	category := domain.FeedbackCategory(strings.TrimSpace(in.Category))
	if !category.Valid() {
		return nil, apperrors.NewValidationError("invalid category", map[string]any{"category": in.Category})
	}
	priority := domain.FeedbackPriority(strings.TrimSpace(in.Priority))
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": in.Priority})
	}
	if err := s.checkAttachment(in.File); err != nil {
		return nil, err
	}

	fb := &domain.Feedback{
		Title:                   title,
		Description:             description,
		Category:                category,
		Priority:                priority,
		Status:                  domain.StatusSubmitted,
		SubmittedBy:             actor.ID,
		EstimatedResolutionDate: in.EstimatedResolutionDate,
	}
	if in.File != nil {
		fb.Attachment = storedAttachment(in.File)
	}
	if err := s.feedbacks.Create(ctx, fb); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if stored, ok := fb.Attachment.(domain.StoredAttachment); ok {
		stored.Data = nil
		fb.Attachment = stored
	}

	s.logger.Info("feedback created", zap.String("ticket_id", fb.ID), zap.String("actor_id", actor.ID))

	admins := s.admins(ctx, lifecycle.MutationCreate, fb.ID, actor.ID)
	s.dispatch(ctx, lifecycle.MutationCreate, fb.ID, actor, lifecycle.OnCreate(fb, lifecycle.ActorFromUser(actor), admins))

	view := s.hydrate(ctx, fb)
	s.publish(ctx, events.EventTicketCreated, fb.ID, actor, view)
	s.publish(ctx, events.EventAnalyticsChanged, fb.ID, actor, nil)
	return view, nil
}

// Update applies an edit after role and ownership checks.
func (s *FeedbackService) Update(ctx context.Context, actor *domain.User, id string, in FeedbackUpdate) (*domain.HydratedFeedback, error) {
	before, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeUpdate(actor, before, in); err != nil {
		return nil, err
	}
	after, err := applyUpdate(before, in)
	if err != nil {
		return nil, err
	}
	if err := s.checkAttachment(in.File); err != nil {
		return nil, err
	}

	var assigneeName string
	if next := after.AssignedTo; next != nil && !before.IsAssignedTo(*next) {
		assignee, err := s.developer(ctx, *next)
		if err != nil {
			return nil, err
		}
		assigneeName = assignee.Name
	}

	var replacement *domain.StoredAttachment
	if in.File != nil {
		stored := storedAttachment(in.File)
		replacement = &stored
	}
	if err := s.feedbacks.Update(ctx, after, replacement); err != nil {
		return nil, storeErr(err, "feedback")
	}
	if replacement != nil {
		s.removeLegacy(before)
		stored := *replacement
		stored.Data = nil
		after.Attachment = stored
	}

	admins := s.admins(ctx, lifecycle.MutationUpdate, after.ID, actor.ID)
	s.dispatch(ctx, lifecycle.MutationUpdate, after.ID, actor, lifecycle.OnUpdate(lifecycle.UpdateInput{
		Before:       before,
		After:        after,
		Actor:        lifecycle.ActorFromUser(actor),
		Admins:       admins,
		AssigneeName: assigneeName,
	}))

	view := s.hydrate(ctx, after)
	s.publish(ctx, events.EventTicketUpdated, after.ID, actor, view)
	s.publish(ctx, events.EventAnalyticsChanged, after.ID, actor, nil)
	return view, nil
}

// authorizeUpdate enforces who may touch what. Admins may change anything;
// developers only work on tickets assigned to them and may only decline;
// users edit the content of their own tickets.
func authorizeUpdate(actor *domain.User, fb *domain.Feedback, in FeedbackUpdate) error {
	switch actor.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleDeveloper:
		if !fb.IsAssignedTo(actor.ID) {
			return apperrors.NewForbidden("feedback is not assigned to you")
		}
		if in.AssignedTo.Set {
			if next := trimmed(in.AssignedTo.Value); next != "" && next != actor.ID {
				return apperrors.NewForbidden("developers can only decline an assignment")
			}
		}
		return nil
	case domain.RoleUser:
		if fb.SubmittedBy != actor.ID {
			return apperrors.NewForbidden("not authorized to update this feedback")
		}
		if status := trimmed(in.Status); status != "" && domain.FeedbackStatus(status) != fb.Status {
			return apperrors.NewForbidden("users cannot change the status")
		}
		if in.AssignedTo.Set && trimmed(in.AssignedTo.Value) != trimmed(fb.AssignedTo) {
			return apperrors.NewForbidden("users cannot change the assignment")
		}
		return nil
	default:
		return apperrors.NewForbidden("unknown role")
	}
}

// applyUpdate returns the ticket as it will be committed. before is not modified.
func applyUpdate(before *domain.Feedback, in FeedbackUpdate) (*domain.Feedback, error) {
	after := *before

	if v := trimmed(in.Title); v != "" {
		after.Title = v
	}
	if v := trimmed(in.Description); v != "" {
		after.Description = v
	}
	if v := trimmed(in.Category); v != "" {
		category := domain.FeedbackCategory(v)
		if !category.Valid() {
			return nil, apperrors.NewValidationError("invalid category", map[string]any{"category": v})
		}
		after.Category = category
	}
	if v := trimmed(in.Priority); v != "" {
		priority := domain.FeedbackPriority(v)
		if !priority.Valid() {
			return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": v})
		}
		after.Priority = priority
	}
	if v := trimmed(in.Status); v != "" {
		status := domain.FeedbackStatus(v)
		if !status.Valid() {
			return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": v})
		}
		after.Status = status
	}
	if in.EstimatedResolutionDate != nil {
		date := *in.EstimatedResolutionDate
		after.EstimatedResolutionDate = &date
	}
	if in.AssignedTo.Set {
		if v := trimmed(in.AssignedTo.Value); v != "" {
			after.AssignedTo = &v
		} else {
			after.AssignedTo = nil
		}
	}
	return &after, nil
}

// Delete removes a ticket. Allowed for the submitter, an admin or the
// assigned developer.
func (s *FeedbackService) Delete(ctx context.Context, actor *domain.User, id string) error {
	fb, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if fb.SubmittedBy != actor.ID && !actor.IsAdmin() && !fb.IsAssignedTo(actor.ID) {
		return apperrors.NewForbidden("not authorized to delete this feedback")
	}

	intents := lifecycle.OnDelete(fb, lifecycle.ActorFromUser(actor))
	if err := s.feedbacks.Delete(ctx, fb.ID); err != nil {
		return storeErr(err, "feedback")
	}
	s.removeLegacy(fb)
	s.logger.Info("feedback deleted", zap.String("ticket_id", fb.ID), zap.String("actor_id", actor.ID))

	s.dispatch(ctx, lifecycle.MutationDelete, fb.ID, actor, intents)
	s.publish(ctx, events.EventTicketDeleted, fb.ID, actor, events.TicketDeletedPayload{ID: fb.ID})
	s.publish(ctx, events.EventAnalyticsChanged, fb.ID, actor, nil)
	return nil
}

// AddComment appends a comment and notifies the parties the commenter's
// role addresses.
func (s *FeedbackService) AddComment(ctx context.Context, actor *domain.User, id, text string) (*domain.HydratedFeedback, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("comment text is required", nil)
	}
	fb, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	comment := domain.Comment{
		ID:         uuid.NewString(),
		Text:       text,
		AuthorID:   actor.ID,
		AuthorName: actor.Name,
		AuthorRole: actor.Role,
		Timestamp:  s.now().UTC(),
	}
	if err := s.feedbacks.AppendComment(ctx, fb.ID, comment); err != nil {
		return nil, storeErr(err, "feedback")
	}

	admins := s.admins(ctx, lifecycle.MutationComment, fb.ID, actor.ID)
	s.dispatch(ctx, lifecycle.MutationComment, fb.ID, actor, lifecycle.OnComment(fb, lifecycle.ActorFromUser(actor), admins))

	return s.reloadAndPublish(ctx, actor, fb.ID)
}

// DeleteComment removes a comment. Allowed for its author or an admin.
func (s *FeedbackService) DeleteComment(ctx context.Context, actor *domain.User, id, commentID string) (*domain.HydratedFeedback, error) {
	fb, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	comment, ok := fb.FindComment(commentID)
	if !ok {
		return nil, apperrors.NewNotFound("comment", map[string]any{"comment_id": commentID})
	}
	if comment.AuthorID != actor.ID && !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("not authorized to delete this comment")
	}
	if err := s.feedbacks.RemoveComment(ctx, fb.ID, commentID); err != nil {
		return nil, storeErr(err, "comment")
	}
	return s.reloadAndPublish(ctx, actor, fb.ID)
}

func (s *FeedbackService) reloadAndPublish(ctx context.Context, actor *domain.User, id string) (*domain.HydratedFeedback, error) {
	fb, err := s.feedbacks.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "feedback")
	}
	view := s.hydrate(ctx, fb)
	s.publish(ctx, events.EventTicketUpdated, fb.ID, actor, view)
	return view, nil
}

// Get returns one ticket.
func (s *FeedbackService) Get(ctx context.Context, actor *domain.User, id string) (*domain.HydratedFeedback, error) {
	fb, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleUser && fb.SubmittedBy != actor.ID {
		return nil, apperrors.NewNotFound("feedback", nil)
	}
	return s.hydrate(ctx, fb), nil
}

// List returns a page of tickets. Users only ever see their own.
func (s *FeedbackService) List(ctx context.Context, actor *domain.User, q ListQuery) (*FeedbackPage, error) {
	page, limit, offset := paginate(q.Page, q.Limit)
	filter := repository.FeedbackFilter{Limit: limit, Offset: offset}

	if v := strings.TrimSpace(q.Status); v != "" {
		status := domain.FeedbackStatus(v)
		filter.Status = &status
	}
	if v := strings.TrimSpace(q.Priority); v != "" {
		priority := domain.FeedbackPriority(v)
		filter.Priority = &priority
	}
	if v := strings.TrimSpace(q.Category); v != "" {
		category := domain.FeedbackCategory(v)
		filter.Category = &category
	}
	if v := strings.TrimSpace(q.Search); v != "" {
		filter.SearchTerm = &v
	}
	filter.SubmittedBy = scopeSubmitter(actor, q.SubmittedBy)
	if filter.SubmittedBy != nil && !validID(*filter.SubmittedBy) {
		return &FeedbackPage{Items: []domain.HydratedFeedback{}, Page: page, Limit: limit}, nil
	}

	items, total, err := s.feedbacks.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &FeedbackPage{
		Items: s.hydrateAll(ctx, items),
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: pageCount(total, limit),
	}, nil
}

// Analytics returns role-scoped aggregates with a Jan..Dec series for year.
// A zero year means the current one.
func (s *FeedbackService) Analytics(ctx context.Context, actor *domain.User, year int) (*Analytics, error) {
	if year <= 0 {
		year = s.now().Year()
	}
	counts, err := s.feedbacks.Analytics(ctx, scopeSubmitter(actor, ""), year)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return buildAnalytics(year, counts), nil
}

// Attachment resolves a ticket's attachment for download.
func (s *FeedbackService) Attachment(ctx context.Context, id string) (*AttachmentContent, error) {
	if !validID(id) {
		return nil, apperrors.NewNotFound("feedback", nil)
	}
	att, err := s.feedbacks.GetAttachment(ctx, id)
	if err != nil {
		return nil, storeErr(err, "feedback")
	}
	switch a := att.(type) {
	case domain.StoredAttachment:
		return &AttachmentContent{Filename: a.Filename, ContentType: a.ContentType, Data: a.Data}, nil
	case domain.LegacyPath:
		if s.legacy == nil {
			return nil, apperrors.NewNotFound("attachment", nil)
		}
		path, err := s.legacy.Resolve(a.Path)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				return nil, apperrors.NewNotFound("attachment", nil)
			}
			return nil, apperrors.NewInternalError(err)
		}
		return &AttachmentContent{Filename: a.DisplayName(), Path: path}, nil
	default:
		return nil, apperrors.NewNotFound("attachment", nil)
	}
}

func (s *FeedbackService) load(ctx context.Context, id string) (*domain.Feedback, error) {
	if !validID(id) {
		return nil, apperrors.NewNotFound("feedback", map[string]any{"id": id})
	}
	fb, err := s.feedbacks.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "feedback")
	}
	return fb, nil
}

func (s *FeedbackService) developer(ctx context.Context, id string) (*domain.User, error) {
	invalid := apperrors.NewValidationError("assignee must be a developer", map[string]any{"assigned_to": id})
	if !validID(id) {
		return nil, invalid
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, invalid
		}
		return nil, apperrors.NewInternalError(err)
	}
	if !user.IsDeveloper() {
		return nil, invalid
	}
	return user, nil
}

func (s *FeedbackService) checkAttachment(f *FileUpload) error {
	if f == nil {
		return nil
	}
	if !strings.HasPrefix(f.ContentType, "image/") && f.ContentType != "application/pdf" {
		return apperrors.NewValidationError("only images and PDF files are allowed", map[string]any{"content_type": f.ContentType})
	}
	if s.maxUpload > 0 && f.Size() > s.maxUpload {
		return apperrors.NewValidationError("file too large", map[string]any{"max_bytes": s.maxUpload})
	}
	return nil
}

func (s *FeedbackService) removeLegacy(fb *domain.Feedback) {
	legacy, ok := fb.Attachment.(domain.LegacyPath)
	if !ok || s.legacy == nil {
		return
	}
	if err := s.legacy.Remove(legacy.Path); err != nil {
		s.logger.Warn("remove legacy attachment", zap.String("ticket_id", fb.ID), zap.String("path", legacy.Path), zap.Error(err))
	}
}

// admins resolves the admin ids for a mutation. A lookup failure is logged and
// the admin-addressed intents are skipped; the mutation itself stands.
func (s *FeedbackService) admins(ctx context.Context, mutation lifecycle.Mutation, ticketID, actorID string) []string {
	ids, err := adminIDs(ctx, s.users)
	if err != nil {
		s.logger.Error("list admins for dispatch",
			zap.String("ticket_id", ticketID),
			zap.String("actor_id", actorID),
			zap.String("mutation", string(mutation)),
			zap.Error(err))
		return nil
	}
	return ids
}

func (s *FeedbackService) dispatch(ctx context.Context, mutation lifecycle.Mutation, ticketID string, actor *domain.User, intents []lifecycle.Intent) {
	if len(intents) == 0 || s.notifier == nil {
		return
	}
	s.notifier.Dispatch(ctx, notify.Batch{
		Mutation: mutation,
		TicketID: ticketID,
		ActorID:  actor.ID,
		Intents:  intents,
	})
}

func (s *FeedbackService) publish(ctx context.Context, typ events.EventType, ticketID string, actor *domain.User, payload any) {
	if s.bus == nil {
		return
	}
	event := events.NewEvent(typ, ticketID, events.Actor{UserID: actor.ID, Role: actor.Role}, payload)
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event", zap.String("event_type", string(typ)), zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (s *FeedbackService) hydrate(ctx context.Context, fb *domain.Feedback) *domain.HydratedFeedback {
	views := s.hydrateAll(ctx, []domain.Feedback{*fb})
	return &views[0]
}

// hydrateAll resolves submitters and assignees with one identity lookup. If
// the lookup fails the tickets are returned without display fields.
func (s *FeedbackService) hydrateAll(ctx context.Context, items []domain.Feedback) []domain.HydratedFeedback {
	ids := make([]string, 0, len(items)*2)
	for _, fb := range items {
		ids = append(ids, fb.SubmittedBy)
		if fb.AssignedTo != nil {
			ids = append(ids, *fb.AssignedTo)
		}
	}

	byID := map[string]*domain.User{}
	if len(ids) > 0 {
		users, err := s.users.GetByIDs(ctx, ids)
		if err != nil {
			s.logger.Warn("hydrate feedback users", zap.Error(err))
		}
		for i := range users {
			byID[users[i].ID] = &users[i]
		}
	}

	out := make([]domain.HydratedFeedback, 0, len(items))
	for i := range items {
		fb := items[i]
		view := domain.HydratedFeedback{Feedback: &fb, Submitter: byID[fb.SubmittedBy]}
		if fb.AssignedTo != nil {
			view.Assignee = byID[*fb.AssignedTo]
		}
		out = append(out, view)
	}
	return out
}

// scopeSubmitter returns the submitter filter for actor: users are pinned to
// themselves, everyone else gets the requested filter if any.
func scopeSubmitter(actor *domain.User, requested string) *string {
	if actor.Role == domain.RoleUser {
		id := actor.ID
		return &id
	}
	if v := strings.TrimSpace(requested); v != "" {
		return &v
	}
	return nil
}

// paginate normalizes page and limit and returns the row offset.
func paginate(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit, (page - 1) * limit
}

func pageCount(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

func buildAnalytics(year int, counts *repository.GroupCounts) *Analytics {
	out := &Analytics{
		Year:     year,
		Status:   map[string]int{},
		Priority: map[string]int{},
		Category: map[string]int{},
	}
	var byMonth map[int]int
	if counts != nil {
		out.Total = counts.Total
		copyCounts(out.Status, counts.ByStatus)
		copyCounts(out.Priority, counts.ByPriority)
		copyCounts(out.Category, counts.ByCategory)
		byMonth = counts.ByMonth
	}
	out.Monthly = monthlySeries(byMonth)
	return out
}

// monthlySeries always yields twelve buckets, Jan through Dec.
func monthlySeries(byMonth map[int]int) []MonthCount {
	series := make([]MonthCount, 0, 12)
	for m := time.January; m <= time.December; m++ {
		series = append(series, MonthCount{Month: m.String()[:3], Count: byMonth[int(m)]})
	}
	return series
}

func copyCounts(dst, src map[string]int) {
	for k, v := range src {
		dst[k] = v
	}
}

func storedAttachment(f *FileUpload) domain.StoredAttachment {
	return domain.StoredAttachment{
		Filename:    f.Filename,
		ContentType: f.ContentType,
		Size:        f.Size(),
		Data:        f.Data,
	}
}
