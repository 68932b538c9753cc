package messaging

import "github.com/annolab/webmark/internal/model"

// Typed payload bodies for each command. Both ends of every call decode
// into these shapes, so the contract lives in one place.

// LoggingStatusResult answers CommandCheckLoggingStatus.
type LoggingStatusResult struct {
	// LogStatus is true when stored credentials were valid at last check.
	LogStatus bool `json:"log_status"`
}

// ActiveTaskResult answers CommandGetActiveTask.
type ActiveTaskResult struct {
	// TaskID is the wire task ID, including the -1/-2 sentinels.
	TaskID int `json:"task_id"`

	// IsActive is true when TaskID names a real task.
	IsActive bool `json:"is_active"`
}

// Session converts the result back into a model snapshot.
func (r ActiveTaskResult) Session() model.TaskSession {
	return model.TaskSessionFromID(r.TaskID)
}

// TaskInfoResult answers CommandGetTaskInfo.
type TaskInfoResult struct {
	// TaskID is the task the question belongs to, or model.TaskIDNone.
	TaskID int `json:"task_id"`

	// Question is the task prompt; empty when no task is active.
	Question string `json:"question"`
}

// AlterLoggingStatusRequest carries CommandAlterLoggingStatus.
type AlterLoggingStatusRequest struct {
	// Status is the new login flag.
	Status bool `json:"status"`
}

// CloseOrRedirectRequest carries CommandCloseOrRedirect.
type CloseOrRedirectRequest struct {
	// TabID is the requesting page's tab, filled in by its tracker.
	TabID int `json:"tab_id"`

	// NewPage is the URL to navigate the tab to. Empty means close
	// the tab instead.
	NewPage string `json:"new_page"`
}

// SubmitTelemetryRequest carries CommandSubmitTelemetry.
type SubmitTelemetryRequest struct {
	// View is the sealed page view being committed.
	View model.PageView `json:"view"`
}

// StartTaskRequest carries CommandStartTask.
type StartTaskRequest struct {
	// TaskID is the task the user asked to start.
	TaskID int `json:"task_id"`
}

// Ack is the generic success/failure response body. It reports
// application-level outcomes; transport outcomes travel as errors on
// the call itself.
type Ack struct {
	// Success reports whether the responder performed the operation.
	Success bool `json:"success"`

	// Reason explains a false Success. A tracker in a hidden document
	// answers {false, "document hidden"} to a forced flush, which the
	// popup treats as a soft outcome rather than a fault.
	Reason string `json:"reason,omitempty"`
}
