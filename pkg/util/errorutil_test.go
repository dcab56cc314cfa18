package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))

	notFound := NewNotFound("ticket", map[string]any{"ticket_id": int64(4)})
	wrapped := fmt.Errorf("assign: %w", notFound)
	de := ToDomainError(wrapped)
	require.NotNil(t, de)
	assert.Equal(t, CodeNotFound, de.Code)
	assert.Equal(t, "ticket not found", de.Message)
	assert.Equal(t, http.StatusNotFound, de.HTTPStatus)

	de = ToDomainError(pgx.ErrNoRows)
	assert.Equal(t, CodeNotFound, de.Code)

	boom := errors.New("boom")
	de = ToDomainError(boom)
	assert.Equal(t, CodeInternal, de.Code)
	assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
	assert.ErrorIs(t, de, boom)
}

func TestStatusCodes(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{NewValidationError("bad", nil), CodeValidation, http.StatusUnprocessableEntity},
		{NewConflict("dup", nil), CodeConflict, http.StatusBadRequest},
		{NewInvalidState("closed", nil), CodeInvalidState, http.StatusBadRequest},
	}
	for _, tc := range cases {
		de := ToDomainError(tc.err)
		assert.Equal(t, tc.code, de.Code)
		assert.Equal(t, tc.status, de.HTTPStatus)
		assert.True(t, HasCode(tc.err, tc.code))
	}
	assert.False(t, HasCode(errors.New("plain"), CodeConflict))
}
