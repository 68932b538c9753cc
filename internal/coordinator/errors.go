package coordinator

import "errors"

// Coordinator errors.
var (
	// ErrValidation is returned when a command payload is missing
	// required fields or carries an unusable page view.
	ErrValidation = errors.New("coordinator: invalid payload")

	// ErrNoTabController is returned when a close-or-redirect request
	// arrives but no tab controller was configured.
	ErrNoTabController = errors.New("coordinator: no tab controller configured")

	// ErrUntrustedOrigin is returned when a privileged command arrives
	// from a context that may not issue it.
	ErrUntrustedOrigin = errors.New("coordinator: command from untrusted origin")
)
