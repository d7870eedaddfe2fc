package oauth

import "errors"

var (
	// ErrProviderNotFound signals a provider that is not configured.
	ErrProviderNotFound = errors.New("oauth: provider not found")
	// ErrInvalidRequest indicates caller input validation errors.
	ErrInvalidRequest = errors.New("oauth: invalid request")
	// ErrInvalidState indicates the OAuth state is missing, mismatched or expired.
	ErrInvalidState = errors.New("oauth: invalid state")
	// ErrTokenInvalid indicates malformed or unverifiable tokens.
	ErrTokenInvalid = errors.New("oauth: token invalid")
	// ErrEmailMissing signals an identity without a usable email address.
	ErrEmailMissing = errors.New("oauth: email missing")
)
