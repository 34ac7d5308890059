package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNotFound, CodeOf(ErrNotFound("x")))
	assert.Equal(t, CodeInsufficientStock, CodeOf(ErrInsufficientStock("x")))

	// ラップされていても取り出せる
	wrapped := fmt.Errorf("approve: %w", ErrInvalidState("x"))
	assert.Equal(t, CodeInvalidState, CodeOf(wrapped))

	// APIError以外は INTERNAL
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeInternal, CodeOf(nil))
}

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrInvalid("x"), http.StatusBadRequest},
		{ErrUnauthorized("x"), http.StatusForbidden},
		{ErrNotFound("x"), http.StatusNotFound},
		{ErrConflict("x"), http.StatusConflict},
		{ErrItemUnavailable("x"), http.StatusConflict},
		{ErrInsufficientStock("x"), http.StatusConflict},
		{ErrDuplicateRequest("x"), http.StatusConflict},
		{ErrInvalidState("x"), http.StatusConflict},
		{ErrInternal("x"), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToHTTPStatus(tt.err), "%v", tt.err)
	}
}
