package service

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthErrorStatus(t *testing.T) {
	cases := map[ErrorKind]int{
		KindRateLimited:    http.StatusTooManyRequests,
		KindValidation:     http.StatusBadRequest,
		KindAuthentication: http.StatusUnauthorized,
		KindAuthorization:  http.StatusForbidden,
		KindUpstream:       http.StatusInternalServerError,
	}
	for kind, status := range cases {
		err := &AuthError{Kind: kind}
		require.Equal(t, status, err.Status(), kind.String())
	}
}

func TestAsAuthErrorWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("pq: connection refused")
	authErr := AsAuthError(cause)
	require.Equal(t, KindUpstream, authErr.Kind)
	require.ErrorIs(t, authErr, cause)

	wrapped := fmt.Errorf("outer: %w", validationError("bad"))
	require.Equal(t, KindValidation, AsAuthError(wrapped).Kind)
	require.Nil(t, AsAuthError(nil))
}

func TestNewActionResult(t *testing.T) {
	ok := NewActionResult("done", nil)
	require.Equal(t, "done", *ok.Message)
	require.Nil(t, ok.ErrorMessage)

	empty := NewActionResult("", nil)
	require.Nil(t, empty.Message)
	require.Nil(t, empty.ErrorMessage)

	failed := NewActionResult("ignored", errors.New("db password is hunter2"))
	require.Nil(t, failed.Message)
	require.Equal(t, MsgUpstream, *failed.ErrorMessage)

	limited := NewActionResult("", rateLimitedError())
	require.Equal(t, MsgTooManyRequests, *limited.ErrorMessage)
}

func TestUsernameFromEmail(t *testing.T) {
	require.Equal(t, "shopper", usernameFromEmail("shopper@example.com", 1))
	require.Equal(t, "user123456", usernameFromEmail("a@b.com", 99123456))
	require.Len(t, usernameFromEmail("abcdefghijklmnopqrstuvwxyz0123456789@x.com", 1), 31)
}

func TestGenerateVerificationCode(t *testing.T) {
	code, err := generateVerificationCode()
	require.NoError(t, err)
	require.Regexp(t, `^[A-Z2-7]{8}$`, code)
}
