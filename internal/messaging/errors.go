package messaging

import "errors"

// Transport errors observable by callers and responders.
var (
	// ErrNoReceiver is returned when the destination endpoint is not
	// registered or has been closed. This is the protocol's
	// "no receiving end" transport failure: the page-instrumentation
	// path degrades silently on it, the popup's action path surfaces
	// it as an alert.
	ErrNoReceiver = errors.New("messaging: no receiving end")

	// ErrTimeout is returned when no response arrives within the
	// caller-imposed bound. The channel itself never times out, so a
	// responder that fails to complete would otherwise leave the
	// caller pending forever.
	ErrTimeout = errors.New("messaging: call timed out")

	// ErrAlreadyResponded is returned by a completion function invoked
	// more than once. Each call is answered at most once; the first
	// completion wins and later completions are dropped.
	ErrAlreadyResponded = errors.New("messaging: call already responded")

	// ErrInboxOverflow is returned when the destination inbox is full.
	// The channel is at-most-once: an envelope that cannot be queued
	// is dropped, never retried.
	ErrInboxOverflow = errors.New("messaging: destination inbox overflow")

	// ErrBadPayload is returned when an envelope payload cannot be
	// decoded into the type the command requires.
	ErrBadPayload = errors.New("messaging: malformed payload")
)
