package model

import "fmt"

// Task ID sentinel values used on the wire by the annotation service.
// The active-task endpoint answers with a plain integer task ID; the two
// negative values are reserved to encode the absence of a task and an
// unreachable server. Every client component interprets the same
// encoding, so the sentinels live here rather than in the remote client.
const (
	// TaskIDNone means the user has no active annotation task.
	TaskIDNone = -1

	// TaskIDUnreachable means the annotation service could not be
	// reached. It never originates from the server; the remote client
	// substitutes it when the active-task query fails at the transport
	// level so that downstream consumers handle exactly one encoding.
	TaskIDUnreachable = -2
)

// TaskStatus classifies a task session snapshot.
type TaskStatus int

const (
	// TaskStatusNone means no task is currently active.
	TaskStatusNone TaskStatus = iota

	// TaskStatusActive means a task is active and capture may proceed.
	TaskStatusActive

	// TaskStatusUnreachable means the task state could not be
	// determined because the annotation service was unreachable.
	TaskStatusUnreachable
)

// String returns a human-readable status name for logging.
func (s TaskStatus) String() string {
	switch s {
	case TaskStatusNone:
		return "none"
	case TaskStatusActive:
		return "active"
	case TaskStatusUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// TaskSession is a point-in-time snapshot of the user's active task.
//
// A TaskSession is never cached across queries: the background
// coordinator may be torn down and restarted without warning, so every
// consumer re-derives the session from the annotation service on
// demand. Treat a value of this type as stale the moment the call that
// produced it returns.
type TaskSession struct {
	// TaskID is the numeric task identifier, or one of the sentinel
	// values TaskIDNone and TaskIDUnreachable.
	TaskID int `json:"task_id"`
}

// TaskSessionFromID builds a TaskSession from a wire task ID.
func TaskSessionFromID(id int) TaskSession {
	return TaskSession{TaskID: id}
}

// Status classifies the session according to the sentinel encoding.
func (t TaskSession) Status() TaskStatus {
	switch t.TaskID {
	case TaskIDNone:
		return TaskStatusNone
	case TaskIDUnreachable:
		return TaskStatusUnreachable
	default:
		return TaskStatusActive
	}
}

// Active reports whether a task is currently active.
func (t TaskSession) Active() bool {
	return t.Status() == TaskStatusActive
}

// String implements fmt.Stringer for log output.
func (t TaskSession) String() string {
	if t.Status() == TaskStatusActive {
		return fmt.Sprintf("task %d", t.TaskID)
	}
	return t.Status().String()
}

// TaskInfo describes the currently active task for display purposes.
// It is returned by the coordinator's task-info query and rendered by
// the page overlay and the popup.
type TaskInfo struct {
	// TaskID is the task the description belongs to.
	TaskID int `json:"task_id"`

	// Question is the descriptive prompt shown to the annotator.
	// Empty when no task is active.
	Question string `json:"question"`
}
