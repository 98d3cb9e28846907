package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/loopio/feedback-tracker/internal/auth"
	"github.com/loopio/feedback-tracker/internal/domain"
	"github.com/loopio/feedback-tracker/internal/service"
	apperrors "github.com/loopio/feedback-tracker/pkg/util/errorutil"
)

func currentUser(c *fiber.Ctx) (*domain.User, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return nil, apperrors.NewUnauthorized("user required")
	}
	return principal.User, nil
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm)
}

// readUpload returns the named multipart file, or nil when the request is
// not multipart or carries no such file. maxBytes bounds how much is read.
func readUpload(c *fiber.Ctx, field string, maxBytes int64) (*service.FileUpload, error) {
	if !isMultipart(c) {
		return nil, nil
	}
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, multipart.ErrMessageTooLarge) {
			return nil, apperrors.NewValidationError("file too large", nil)
		}
		return nil, nil
	}
	if maxBytes > 0 && header.Size > maxBytes {
		return nil, apperrors.NewValidationError("file too large", map[string]any{"max_bytes": maxBytes})
	}
	f, err := header.Open()
	if err != nil {
		return nil, apperrors.NewValidationError("unreadable upload", nil)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, apperrors.NewValidationError("unreadable upload", nil)
	}
	return &service.FileUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get(fiber.HeaderContentType),
		Data:        data,
	}, nil
}

// formField reports a multipart value and whether the key was sent at all.
func formField(form *multipart.Form, key string) (string, bool) {
	if form == nil {
		return "", false
	}
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return "", ok
	}
	return values[0], true
}

func formPtr(form *multipart.Form, key string) *string {
	if v, ok := formField(form, key); ok {
		return &v
	}
	return nil
}

// parseDate accepts RFC 3339 or a bare YYYY-MM-DD. Empty input yields nil.
func parseDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	val := strings.TrimSpace(*raw)
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", val)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid date", map[string]any{"value": val})
	}
	return &t, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}
