package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	cause := errors.New("connection refused")

	t.Run("matches outer code", func(t *testing.T) {
		err := Wrap(cause, CodeDependencyFailure, "failed to save duty")
		assert.True(t, HasCode(err, CodeDependencyFailure))
		assert.ErrorIs(t, err, cause)
	})

	t.Run("matches nested code through fmt wrapping", func(t *testing.T) {
		inner := New(CodeInvalidState, "duty is not in pending approval state")
		err := fmt.Errorf("approve: %w", Wrap(inner, CodeInternal, "outer"))
		assert.True(t, HasCode(err, CodeInvalidState))
		assert.True(t, HasCode(err, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		assert.False(t, HasCode(cause, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(cause))
		assert.Empty(t, MessageOf(cause))
	})
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:        http.StatusBadRequest,
		CodeNotFound:          http.StatusNotFound,
		CodeInvalidState:      http.StatusConflict,
		CodeDependencyFailure: http.StatusBadGateway,
		CodeForbidden:         http.StatusForbidden,
		CodeUnauthorized:      http.StatusUnauthorized,
		CodeInternal:          http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), string(code))
	}
}
