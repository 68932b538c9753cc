package popup

import "errors"

var (
	// ErrNoActiveTab is returned when an action needs the focused
	// browser tab and the navigator cannot name one.
	ErrNoActiveTab = errors.New("popup: no active browser tab")

	// ErrTaskAlreadyActive is returned when a start is requested while
	// the re-validation query reports a task already running.
	ErrTaskAlreadyActive = errors.New("popup: a task is already active")

	// ErrNoActiveTask is returned when an end, cancel, or view action
	// finds no task running at re-validation time.
	ErrNoActiveTask = errors.New("popup: no task is active")

	// ErrBackgroundUnavailable is returned when the coordinator cannot
	// be reached over the extension channel.
	ErrBackgroundUnavailable = errors.New("popup: background coordinator unavailable")

	// ErrServiceUnreachable is returned when the coordinator answered
	// but reported the annotation service unreachable (the -2
	// sentinel at re-validation time).
	ErrServiceUnreachable = errors.New("popup: annotation service unreachable")
)
