package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/loopio/feedback-tracker/internal/config"
	"github.com/loopio/feedback-tracker/internal/domain"
	"github.com/loopio/feedback-tracker/internal/events"
	"github.com/loopio/feedback-tracker/internal/notify"
	"github.com/loopio/feedback-tracker/internal/repository"
	"github.com/loopio/feedback-tracker/internal/storage"
	apperrors "github.com/loopio/feedback-tracker/pkg/util/errorutil"
)

func testConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{
			JWTSecret:               "test-secret",
			AccessTokenTTLMinutes:   60,
			PasswordResetTTLMinutes: 10,
			BcryptCost:              4,
		},
		Storage: config.StorageConfig{MaxUploadBytes: 1024},
		Mail:    config.MailConfig{PasswordResetURL: "http://localhost:5173/resetpassword/"},
	}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, apperrors.ToDomainError(err).Code, err.Error())
}

type memUsers struct {
	mu    sync.Mutex
	items map[string]*domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{items: map[string]*domain.User{}}
}

func (m *memUsers) add(name string, role domain.Role) *domain.User {
	u := &domain.User{
		ID:    uuid.NewString(),
		Name:  name,
		Email: strings.ToLower(name) + "@example.com",
		Role:  role,
	}
	m.mu.Lock()
	m.items[u.ID] = u
	m.mu.Unlock()
	clone := *u
	return &clone
}

func (m *memUsers) Create(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.items {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	clone := *user
	m.items[user.ID] = &clone
	return nil
}

func (m *memUsers) Update(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.items[user.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	for id, u := range m.items {
		if id != user.ID && strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	clone := *user
	clone.ResetTokenHash, clone.ResetTokenExpiry = current.ResetTokenHash, current.ResetTokenExpiry
	m.items[user.ID] = &clone
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *u
	return &clone, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.items {
		if strings.EqualFold(u.Email, email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memUsers) GetByIDs(_ context.Context, ids []string) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.User
	seen := map[string]bool{}
	for _, id := range ids {
		if u, ok := m.items[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *memUsers) ListByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.User
	for _, u := range m.items {
		if u.Role == role {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memUsers) ListAll(_ context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.User, 0, len(m.items))
	for _, u := range m.items {
		out = append(out, *u)
	}
	return out, nil
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

// memResets keeps reset tokens on the shared user records.
type memResets struct {
	users *memUsers
}

func (r memResets) Set(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	r.users.mu.Lock()
	defer r.users.mu.Unlock()
	u, ok := r.users.items[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	u.ResetTokenHash, u.ResetTokenExpiry = &tokenHash, &expiresAt
	return nil
}

func (r memResets) Clear(_ context.Context, userID string) error {
	r.users.mu.Lock()
	defer r.users.mu.Unlock()
	u, ok := r.users.items[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	u.ResetTokenHash, u.ResetTokenExpiry = nil, nil
	return nil
}

func (r memResets) FindUser(_ context.Context, tokenHash string) (*domain.User, error) {
	r.users.mu.Lock()
	defer r.users.mu.Unlock()
	for _, u := range r.users.items {
		if u.ResetTokenHash != nil && *u.ResetTokenHash == tokenHash &&
			u.ResetTokenExpiry != nil && u.ResetTokenExpiry.After(time.Now()) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type memFeedbacks struct {
	mu    sync.Mutex
	items map[string]*domain.Feedback
	// attachmentErr fails any update that carries an attachment, leaving the row as it was.
	attachmentErr error
}

func newMemFeedbacks() *memFeedbacks {
	return &memFeedbacks{items: map[string]*domain.Feedback{}}
}

func cloneFeedback(fb *domain.Feedback) *domain.Feedback {
	clone := *fb
	clone.Comments = append([]domain.Comment(nil), fb.Comments...)
	if stored, ok := fb.Attachment.(domain.StoredAttachment); ok {
		stored.Data = nil
		clone.Attachment = stored
	}
	return &clone
}

func (m *memFeedbacks) seed(fb domain.Feedback) *domain.Feedback {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now()
	}
	m.mu.Lock()
	m.items[fb.ID] = &fb
	m.mu.Unlock()
	return cloneFeedback(&fb)
}

func (m *memFeedbacks) Create(_ context.Context, fb *domain.Feedback) error {
	fb.ID = uuid.NewString()
	fb.CreatedAt = time.Now()
	fb.UpdatedAt = fb.CreatedAt
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *fb
	m.items[fb.ID] = &clone
	return nil
}

func (m *memFeedbacks) Update(_ context.Context, fb *domain.Feedback, attachment *domain.StoredAttachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.items[fb.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if attachment != nil && m.attachmentErr != nil {
		return m.attachmentErr
	}
	current.Title, current.Description = fb.Title, fb.Description
	current.Category, current.Priority, current.Status = fb.Category, fb.Priority, fb.Status
	current.AssignedTo, current.EstimatedResolutionDate = fb.AssignedTo, fb.EstimatedResolutionDate
	if attachment != nil {
		current.Attachment = *attachment
	}
	current.UpdatedAt = time.Now()
	fb.UpdatedAt = current.UpdatedAt
	return nil
}

func (m *memFeedbacks) GetByID(_ context.Context, id string) (*domain.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fb, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneFeedback(fb), nil
}

func (m *memFeedbacks) GetAttachment(_ context.Context, id string) (domain.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fb, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return fb.Attachment, nil
}

func (m *memFeedbacks) List(_ context.Context, filter repository.FeedbackFilter) ([]domain.Feedback, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []domain.Feedback
	for _, fb := range m.items {
		if filter.SubmittedBy != nil && fb.SubmittedBy != *filter.SubmittedBy {
			continue
		}
		if filter.Status != nil && fb.Status != *filter.Status {
			continue
		}
		if filter.Priority != nil && fb.Priority != *filter.Priority {
			continue
		}
		if filter.Category != nil && fb.Category != *filter.Category {
			continue
		}
		if filter.SearchTerm != nil {
			term := strings.ToLower(*filter.SearchTerm)
			if !strings.Contains(strings.ToLower(fb.Title), term) && !strings.Contains(strings.ToLower(fb.Description), term) {
				continue
			}
		}
		matched = append(matched, *cloneFeedback(fb))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *memFeedbacks) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

func (m *memFeedbacks) AppendComment(_ context.Context, id string, comment domain.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fb, ok := m.items[id]
	if !ok {
		return pgx.ErrNoRows
	}
	fb.Comments = append(fb.Comments, comment)
	return nil
}

func (m *memFeedbacks) RemoveComment(_ context.Context, id, commentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fb, ok := m.items[id]
	if !ok {
		return pgx.ErrNoRows
	}
	kept := fb.Comments[:0]
	for _, c := range fb.Comments {
		if c.ID != commentID {
			kept = append(kept, c)
		}
	}
	fb.Comments = kept
	return nil
}

func (m *memFeedbacks) Analytics(_ context.Context, submittedBy *string, year int) (*repository.GroupCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &repository.GroupCounts{
		ByStatus:   map[string]int{},
		ByPriority: map[string]int{},
		ByCategory: map[string]int{},
		ByMonth:    map[int]int{},
	}
	for _, fb := range m.items {
		if submittedBy != nil && fb.SubmittedBy != *submittedBy {
			continue
		}
		out.Total++
		out.ByStatus[string(fb.Status)]++
		out.ByPriority[string(fb.Priority)]++
		out.ByCategory[string(fb.Category)]++
		if fb.CreatedAt.Year() == year {
			out.ByMonth[int(fb.CreatedAt.Month())]++
		}
	}
	return out, nil
}

type memNotifications struct {
	mu    sync.Mutex
	items []domain.Notification
}

func (m *memNotifications) Create(_ context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now()
	m.items = append(m.items, *n)
	return nil
}

func (m *memNotifications) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id {
			clone := m.items[i]
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memNotifications) ListByRecipient(_ context.Context, recipientID string) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for i := len(m.items) - 1; i >= 0; i-- {
		if m.items[i].RecipientID == recipientID {
			out = append(out, m.items[i])
		}
	}
	return out, nil
}

func (m *memNotifications) MarkRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id {
			m.items[i].Read = true
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *memNotifications) DeleteByRecipient(_ context.Context, recipientID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.items[:0]
	var removed int64
	for _, n := range m.items {
		if n.RecipientID == recipientID {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	m.items = kept
	return removed, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	batches []notify.Batch
}

func (r *recordingNotifier) Dispatch(_ context.Context, batch notify.Batch) notify.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
	return notify.Result{Persisted: len(batch.Intents)}
}

func (r *recordingNotifier) last() notify.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.batches) == 0 {
		return notify.Batch{}
	}
	return r.batches[len(r.batches)-1]
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *recordingBus) Subscribe(events.EventType, events.EventHandler) {}

func (b *recordingBus) types() []events.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.EventType, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

type memAvatars struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memAvatars) Put(_ context.Context, userID, _, _ string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	ref := "avatars/" + userID + "/" + uuid.NewString()
	m.objects[ref] = data
	return ref, nil
}

func (m *memAvatars) Get(_ context.Context, ref string) (io.ReadCloser, storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[ref]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), storage.ObjectInfo{ContentType: "image/png", Size: int64(len(data))}, nil
}

func (m *memAvatars) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[ref]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(m.objects, ref)
	return nil
}

type stubMailer struct {
	err  error
	sent []string
}

func (s *stubMailer) Send(_ context.Context, to, _, body string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, to+"|"+body)
	return nil
}

var errMailDown = errors.New("smtp down")
