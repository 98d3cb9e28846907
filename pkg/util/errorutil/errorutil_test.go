package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestToDomainError_PassesThroughDomainErrors(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewForbidden("nope"))
	de := ToDomainError(err)
	assert.Equal(t, "FORBIDDEN", de.Code)
	assert.Equal(t, http.StatusForbidden, de.HTTPStatus)
}

func TestToDomainError_NoRowsIsNotFound(t *testing.T) {
	de := ToDomainError(pgx.ErrNoRows)
	assert.Equal(t, "NOT_FOUND", de.Code)
	assert.Equal(t, http.StatusNotFound, de.HTTPStatus)
}

func TestToDomainError_FiberError(t *testing.T) {
	de := ToDomainError(fiber.NewError(http.StatusForbidden, "insufficient role"))
	assert.Equal(t, "FORBIDDEN", de.Code)
	assert.Equal(t, "insufficient role", de.Message)
}

func TestToDomainError_UnknownIsInternal(t *testing.T) {
	cause := errors.New("connection refused")
	de := ToDomainError(cause)
	assert.Equal(t, "INTERNAL_ERROR", de.Code)
	assert.Equal(t, "internal server error", de.Message)
	assert.ErrorIs(t, de, cause)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(pgx.ErrNoRows))
	assert.True(t, IsNotFound(NewNotFound("feedback", nil)))
	assert.False(t, IsNotFound(NewValidationError("bad", nil)))
	assert.False(t, IsNotFound(nil))
}
