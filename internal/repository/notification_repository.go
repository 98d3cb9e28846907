package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopio/feedback-tracker/internal/domain"
)

// NotificationRepository stores per-recipient notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	ListByRecipient(ctx context.Context, recipientID string) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id string) error
	DeleteByRecipient(ctx context.Context, recipientID string) (int64, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	const query = `
        INSERT INTO notifications (recipient_id, message, type, related_link)
        VALUES ($1,$2,$3,$4)
        RETURNING id, is_read, created_at`
	return r.pool.QueryRow(ctx, query,
		n.RecipientID,
		n.Message,
		n.Type,
		n.RelatedLink,
	).Scan(&n.ID, &n.Read, &n.CreatedAt)
}

func (r *notificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	const query = `
        SELECT id, recipient_id, message, type, related_link, is_read, created_at
        FROM notifications WHERE id=$1`
	var n domain.Notification
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&n.ID,
		&n.RecipientID,
		&n.Message,
		&n.Type,
		&n.RelatedLink,
		&n.Read,
		&n.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]domain.Notification, error) {
	const query = `
        SELECT id, recipient_id, message, type, related_link, is_read, created_at
        FROM notifications WHERE recipient_id=$1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.Message,
			&n.Type,
			&n.RelatedLink,
			&n.Read,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *notificationRepository) MarkRead(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *notificationRepository) DeleteByRecipient(ctx context.Context, recipientID string) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE recipient_id=$1`, recipientID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
