package remote

import "errors"

// Client errors. Application-level outcomes (no active task) are data,
// not errors; these sentinels cover the cases a caller must branch on.
var (
	// ErrServerUnavailable is returned when the annotation service
	// cannot be reached at the transport level. Consumers translate it
	// into the TaskIDUnreachable (-2) sentinel.
	ErrServerUnavailable = errors.New("remote: annotation service unreachable")

	// ErrUnauthenticated is returned when the service rejects the
	// supplied credentials.
	ErrUnauthenticated = errors.New("remote: credentials rejected")

	// ErrUnexpectedStatus is returned for any other non-success HTTP
	// status. The status code is attached via fmt wrapping.
	ErrUnexpectedStatus = errors.New("remote: unexpected response status")
)
