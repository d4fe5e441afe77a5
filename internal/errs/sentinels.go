// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates a write lost against a concurrent change.
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates a malformed request.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Account core sentinels.
var (
	// ErrNotLoggedIn indicates that no provider session is active.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrNotFederated indicates that no federated identity is resolved yet.
	ErrNotFederated = errors.New("no federated identity")

	// ErrDigitsSessionRequired indicates an operation that needs a Digits session.
	ErrDigitsSessionRequired = errors.New("digits session required")

	// ErrUnknownProvider indicates an unsupported identity provider.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrProviderMismatch indicates a session stored under the wrong provider key.
	ErrProviderMismatch = errors.New("provider mismatch")

	// ErrCanceled indicates that the user abandoned an interactive login.
	ErrCanceled = errors.New("canceled by user")

	// ErrContactsUnavailable indicates that the local address book cannot be read.
	ErrContactsUnavailable = errors.New("contacts unavailable")
)
