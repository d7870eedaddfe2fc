package service

import (
	"errors"
	"fmt"
	"net/http"
)

// User-facing messages shared by several flows.
const (
	MsgTooManyRequests = "Too many requests"
	MsgUpstream        = "Something went wrong. Please try again."
)

// ErrorKind classifies an AuthError.
type ErrorKind int

const (
	KindRateLimited ErrorKind = iota + 1
	KindValidation
	KindAuthentication
	KindAuthorization
	KindUpstream
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// AuthError is the only error type returned by the auth flows. Message is
// safe to show to the client; Err is for logs.
type AuthError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Status maps the error kind to an HTTP status code.
func (e *AuthError) Status() int {
	switch e.Kind {
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func rateLimitedError() *AuthError {
	return &AuthError{Kind: KindRateLimited, Message: MsgTooManyRequests}
}

func validationError(msg string) *AuthError {
	return &AuthError{Kind: KindValidation, Message: msg}
}

func authenticationError(msg string) *AuthError {
	return &AuthError{Kind: KindAuthentication, Message: msg}
}

// AuthorizationError reports an authenticated caller lacking the required role.
func AuthorizationError(msg string) *AuthError {
	return &AuthError{Kind: KindAuthorization, Message: msg}
}

// UpstreamError hides err behind the generic failure message.
func UpstreamError(err error) *AuthError {
	return &AuthError{Kind: KindUpstream, Message: MsgUpstream, Err: err}
}

// AsAuthError returns err as an AuthError, treating anything else as an
// upstream failure.
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return UpstreamError(err)
}

// IsKind reports whether err is an AuthError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Kind == kind
}

// ActionResult is the uniform response of user-facing actions.
type ActionResult struct {
	Message      *string `json:"message"`
	ErrorMessage *string `json:"error_message"`
}

// NewActionResult converts the outcome of an action into an ActionResult.
// Upstream causes are never exposed.
func NewActionResult(message string, err error) ActionResult {
	if err != nil {
		msg := AsAuthError(err).Message
		return ActionResult{ErrorMessage: &msg}
	}
	if message == "" {
		return ActionResult{}
	}
	return ActionResult{Message: &message}
}
