// Package service holds the identity, ticket and notification workflows that
// sit between the HTTP handlers and the stores.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/loopio/feedback-tracker/internal/notify"
	apperrors "github.com/loopio/feedback-tracker/pkg/util/errorutil"
)

// Notifier fans a mutation's intents out to their recipients.
type Notifier interface {
	Dispatch(ctx context.Context, batch notify.Batch) notify.Result
}

// FileUpload is a multipart file already read into memory.
type FileUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Size returns the upload length in bytes.
func (f *FileUpload) Size() int64 { return int64(len(f.Data)) }

// storeErr maps a repository error for resource into the error taxonomy.
func storeErr(err error, resource string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(resource, nil)
	}
	return apperrors.NewInternalError(err)
}

// validID reports whether raw is a uuid. Path ids that are not cannot match
// any row, so callers answer NotFound without a round trip.
func validID(raw string) bool {
	_, err := uuid.Parse(raw)
	return err == nil
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
