package config

import "errors"

// Configuration validation errors.
//
// Package-level sentinel errors rather than error values created inside
// Validate() so that callers can branch with errors.Is while still
// getting human-readable messages.
var (
	// ErrNoServiceURL is returned when the annotation-service base URL
	// is empty. Every component ultimately talks to the service, so a
	// missing URL makes the whole client inert.
	ErrNoServiceURL = errors.New("no service URL: set ServiceBaseURL")

	// ErrInvalidServiceURL is returned when the base URL cannot be
	// parsed or is not absolute.
	ErrInvalidServiceURL = errors.New("invalid service URL: must be an absolute http(s) URL")

	// ErrInvalidRequestTimeout is returned when the HTTP request
	// timeout is not positive. A zero timeout would make every remote
	// call hang on an unreachable server instead of reporting it.
	ErrInvalidRequestTimeout = errors.New("invalid request timeout: must be positive")

	// ErrInvalidCallTimeout is returned when the cross-context call
	// timeout is not positive. The messaging channel has no inherent
	// timeout; a caller without one can pend forever on a responder
	// that never completes.
	ErrInvalidCallTimeout = errors.New("invalid call timeout: must be positive")

	// ErrInvalidPollInterval is returned when the popup status poll
	// interval is not positive.
	ErrInvalidPollInterval = errors.New("invalid poll interval: must be positive")

	// ErrInvalidFlushAckTimeout is returned when the end-task flush
	// acknowledgment bound is not positive.
	ErrInvalidFlushAckTimeout = errors.New("invalid flush ack timeout: must be positive")
)
