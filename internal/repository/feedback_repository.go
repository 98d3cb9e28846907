package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopio/feedback-tracker/internal/domain"
)

// FeedbackFilter captures list parameters. A nil field is not filtered on.
type FeedbackFilter struct {
	SubmittedBy *string
	Status      *domain.FeedbackStatus
	Priority    *domain.FeedbackPriority
	Category    *domain.FeedbackCategory
	SearchTerm  *string
	Limit       int
	Offset      int
}

// GroupCounts holds grouped ticket counts for analytics.
type GroupCounts struct {
	Total      int
	ByStatus   map[string]int
	ByPriority map[string]int
	ByCategory map[string]int
	// ByMonth is keyed 1..12 for the requested year.
	ByMonth map[int]int
}

// FeedbackRepository encapsulates ticket persistence.
type FeedbackRepository interface {
	Create(ctx context.Context, fb *domain.Feedback) error
	Update(ctx context.Context, fb *domain.Feedback, attachment *domain.StoredAttachment) error
	GetByID(ctx context.Context, id string) (*domain.Feedback, error)
	GetAttachment(ctx context.Context, id string) (domain.Attachment, error)
	List(ctx context.Context, filter FeedbackFilter) ([]domain.Feedback, int, error)
	Delete(ctx context.Context, id string) error
	AppendComment(ctx context.Context, id string, comment domain.Comment) error
	RemoveComment(ctx context.Context, id, commentID string) error
	Analytics(ctx context.Context, submittedBy *string, year int) (*GroupCounts, error)
}

type feedbackRepository struct {
	pool *pgxpool.Pool
}

// NewFeedbackRepository instantiates repository.
func NewFeedbackRepository(pool *pgxpool.Pool) FeedbackRepository {
	return &feedbackRepository{pool: pool}
}

// feedbackColumns never selects attachment_data; listings only need its size.
const feedbackColumns = `id, title, description, category, priority, status, submitted_by, assigned_to,
               estimated_resolution_date, attachment_path, attachment_filename, attachment_content_type,
               octet_length(attachment_data), comments, created_at, updated_at`

func (r *feedbackRepository) Create(ctx context.Context, fb *domain.Feedback) error {
	var filename, contentType *string
	var data []byte
	if stored, ok := fb.Attachment.(domain.StoredAttachment); ok {
		filename, contentType, data = &stored.Filename, &stored.ContentType, stored.Data
	}

	const query = `
        INSERT INTO feedbacks (title, description, category, priority, status, submitted_by, assigned_to,
            estimated_resolution_date, attachment_filename, attachment_content_type, attachment_data)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		fb.Title,
		fb.Description,
		fb.Category,
		fb.Priority,
		fb.Status,
		fb.SubmittedBy,
		fb.AssignedTo,
		fb.EstimatedResolutionDate,
		filename,
		contentType,
		data,
	).Scan(&fb.ID, &fb.CreatedAt, &fb.UpdatedAt)
}

// Update writes the mutable fields in one statement. A non-nil attachment
// replaces the current one and drops any legacy path. submitted_by and
// comments are not touched.
func (r *feedbackRepository) Update(ctx context.Context, fb *domain.Feedback, attachment *domain.StoredAttachment) error {
	query, args := buildFeedbackUpdate(fb, attachment)
	return r.pool.QueryRow(ctx, query, args...).Scan(&fb.UpdatedAt)
}

func buildFeedbackUpdate(fb *domain.Feedback, attachment *domain.StoredAttachment) (string, []any) {
	query := `UPDATE feedbacks SET title=$1, description=$2, category=$3, priority=$4, status=$5,
            assigned_to=$6, estimated_resolution_date=$7, updated_at=NOW()`
	args := []any{
		fb.Title,
		fb.Description,
		fb.Category,
		fb.Priority,
		fb.Status,
		fb.AssignedTo,
		fb.EstimatedResolutionDate,
	}
	if attachment != nil {
		query += `,
            attachment_filename=$8, attachment_content_type=$9, attachment_data=$10, attachment_path=NULL`
		args = append(args, attachment.Filename, attachment.ContentType, attachment.Data)
	}
	args = append(args, fb.ID)
	query += fmt.Sprintf(`
        WHERE id=$%d
        RETURNING updated_at`, len(args))
	return query, args
}

func (r *feedbackRepository) GetByID(ctx context.Context, id string) (*domain.Feedback, error) {
	query := `SELECT ` + feedbackColumns + ` FROM feedbacks WHERE id=$1`
	return scanFeedback(r.pool.QueryRow(ctx, query, id))
}

func (r *feedbackRepository) GetAttachment(ctx context.Context, id string) (domain.Attachment, error) {
	const query = `
        SELECT attachment_path, attachment_filename, attachment_content_type, octet_length(attachment_data), attachment_data
        FROM feedbacks WHERE id=$1`
	var cols attachmentColumns
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&cols.path,
		&cols.filename,
		&cols.contentType,
		&cols.size,
		&cols.data,
	); err != nil {
		return nil, err
	}
	return cols.resolve(), nil
}

func (r *feedbackRepository) List(ctx context.Context, filter FeedbackFilter) ([]domain.Feedback, int, error) {
	where, args := buildFeedbackWhere(filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM feedbacks WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM feedbacks WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		feedbackColumns, where, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items, err := scanFeedbacks(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *feedbackRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM feedbacks WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *feedbackRepository) AppendComment(ctx context.Context, id string, comment domain.Comment) error {
	payload, err := json.Marshal([]domain.Comment{comment})
	if err != nil {
		return err
	}
	cmd, err := r.pool.Exec(ctx,
		`UPDATE feedbacks SET comments = comments || $1::jsonb, updated_at=NOW() WHERE id=$2`,
		string(payload), id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *feedbackRepository) RemoveComment(ctx context.Context, id, commentID string) error {
	const query = `
        UPDATE feedbacks SET comments = COALESCE(
            (SELECT jsonb_agg(c) FROM jsonb_array_elements(comments) AS c WHERE c->>'id' <> $1),
            '[]'::jsonb), updated_at=NOW()
        WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, commentID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *feedbackRepository) Analytics(ctx context.Context, submittedBy *string, year int) (*GroupCounts, error) {
	scope, args := "1=1", []any{}
	if submittedBy != nil {
		scope, args = "submitted_by=$1", []any{*submittedBy}
	}

	counts := &GroupCounts{}
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM feedbacks WHERE `+scope, args...).Scan(&counts.Total); err != nil {
		return nil, err
	}

	var err error
	if counts.ByStatus, err = r.groupBy(ctx, "status", scope, args); err != nil {
		return nil, err
	}
	if counts.ByPriority, err = r.groupBy(ctx, "priority", scope, args); err != nil {
		return nil, err
	}
	if counts.ByCategory, err = r.groupBy(ctx, "category", scope, args); err != nil {
		return nil, err
	}

	monthArgs := append(append([]any{}, args...), year)
	query := fmt.Sprintf(`
        SELECT EXTRACT(MONTH FROM created_at)::int AS month, COUNT(*)
        FROM feedbacks WHERE %s AND EXTRACT(YEAR FROM created_at)::int = $%d
        GROUP BY month`, scope, len(monthArgs))
	rows, err := r.pool.Query(ctx, query, monthArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts.ByMonth = make(map[int]int)
	for rows.Next() {
		var month, n int
		if err := rows.Scan(&month, &n); err != nil {
			return nil, err
		}
		counts.ByMonth[month] = n
	}
	return counts, rows.Err()
}

// groupBy counts rows per distinct value of column. column is never user input.
func (r *feedbackRepository) groupBy(ctx context.Context, column, scope string, args []any) (map[string]int, error) {
	query := fmt.Sprintf(`SELECT %s, COUNT(*) FROM feedbacks WHERE %s GROUP BY %s`, column, scope, column)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

func buildFeedbackWhere(filter FeedbackFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.SubmittedBy != nil {
		args = append(args, *filter.SubmittedBy)
		clauses = append(clauses, fmt.Sprintf("submitted_by=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		args = append(args, "%"+escapeLike(strings.TrimSpace(*filter.SearchTerm))+"%")
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(title ILIKE %s OR description ILIKE %s)", placeholder, placeholder))
	}
	return strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type attachmentColumns struct {
	path        *string
	filename    *string
	contentType *string
	size        *int64
	data        []byte
}

// resolve decides the attachment variant for a row.
func (a attachmentColumns) resolve() domain.Attachment {
	if a.filename != nil && *a.filename != "" {
		stored := domain.StoredAttachment{Filename: *a.filename, Data: a.data}
		if a.contentType != nil {
			stored.ContentType = *a.contentType
		}
		if a.size != nil {
			stored.Size = *a.size
		}
		return stored
	}
	if a.path != nil && *a.path != "" {
		return domain.LegacyPath{Path: *a.path}
	}
	return nil
}

func scanFeedback(row pgx.Row) (*domain.Feedback, error) {
	var (
		fb       domain.Feedback
		cols     attachmentColumns
		comments []byte
	)
	if err := row.Scan(
		&fb.ID,
		&fb.Title,
		&fb.Description,
		&fb.Category,
		&fb.Priority,
		&fb.Status,
		&fb.SubmittedBy,
		&fb.AssignedTo,
		&fb.EstimatedResolutionDate,
		&cols.path,
		&cols.filename,
		&cols.contentType,
		&cols.size,
		&comments,
		&fb.CreatedAt,
		&fb.UpdatedAt,
	); err != nil {
		return nil, err
	}
	fb.Attachment = cols.resolve()
	if len(comments) > 0 {
		if err := json.Unmarshal(comments, &fb.Comments); err != nil {
			return nil, fmt.Errorf("decode comments for %s: %w", fb.ID, err)
		}
	}
	return &fb, nil
}

func scanFeedbacks(rows pgx.Rows) ([]domain.Feedback, error) {
	var result []domain.Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *fb)
	}
	return result, rows.Err()
}

