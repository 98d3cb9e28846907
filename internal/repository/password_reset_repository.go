package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopio/feedback-tracker/internal/domain"
)

// PasswordResetRepository manages the single outstanding reset token of a
// user. Only the token's sha256 hash is stored.
type PasswordResetRepository interface {
	Set(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	Clear(ctx context.Context, userID string) error
	FindUser(ctx context.Context, tokenHash string) (*domain.User, error)
}

type passwordResetRepository struct {
	pool *pgxpool.Pool
}

// NewPasswordResetRepository constructs repository.
func NewPasswordResetRepository(pool *pgxpool.Pool) PasswordResetRepository {
	return &passwordResetRepository{pool: pool}
}

func (r *passwordResetRepository) Set(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	const query = `
        UPDATE users SET reset_token_hash=$1, reset_token_expiry=$2, updated_at=NOW()
        WHERE id=$3`
	return execOne(ctx, r.pool, query, tokenHash, expiresAt, userID)
}

func (r *passwordResetRepository) Clear(ctx context.Context, userID string) error {
	const query = `
        UPDATE users SET reset_token_hash=NULL, reset_token_expiry=NULL, updated_at=NOW()
        WHERE id=$1`
	return execOne(ctx, r.pool, query, userID)
}

// FindUser only matches tokens that have not expired.
func (r *passwordResetRepository) FindUser(ctx context.Context, tokenHash string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE reset_token_hash=$1 AND reset_token_expiry > NOW()`
	return scanUser(r.pool.QueryRow(ctx, query, tokenHash))
}

func execOne(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) error {
	cmd, err := pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
