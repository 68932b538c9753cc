package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Origin identifies which execution context produced an envelope.
type Origin string

const (
	// OriginContent is the per-page-load tracker context.
	OriginContent Origin = "content"

	// OriginBackground is the long-lived coordinator context.
	OriginBackground Origin = "background"

	// OriginPopup is the transient popup UI context.
	OriginPopup Origin = "popup"
)

// Command names the operation an envelope requests.
type Command string

// Commands understood by the background coordinator.
const (
	// CommandCheckLoggingStatus asks whether the user is logged in.
	CommandCheckLoggingStatus Command = "check_logging_status"

	// CommandGetActiveTask asks the coordinator to re-derive the
	// active task from the annotation service.
	CommandGetActiveTask Command = "get_active_task"

	// CommandGetTaskInfo asks for the active task's question text.
	CommandGetTaskInfo Command = "get_task_info"

	// CommandAlterLoggingStatus updates the cached login flag that
	// gates tracker initialization.
	CommandAlterLoggingStatus Command = "alter_logging_status"

	// CommandCloseOrRedirect relays a page-initiated reset-and-navigate
	// request into a tab navigation or close action.
	CommandCloseOrRedirect Command = "close_or_redirect"

	// CommandSubmitTelemetry transmits a sealed page view to the
	// coordinator for delivery to the annotation service.
	CommandSubmitTelemetry Command = "submit_telemetry"

	// CommandStartTask starts an annotation task for the user.
	CommandStartTask Command = "start_task"

	// CommandCancelTask cancels the user's active task.
	CommandCancelTask Command = "cancel_task"
)

// Commands understood by the page tracker.
const (
	// CommandFlushNow forces the tracker to flush its current view.
	// Issued by the popup's end-task flow so the telemetry commit is
	// ordered before the user leaves the page.
	CommandFlushNow Command = "flush_now"
)

// Envelope is the wire unit of the cross-context protocol.
type Envelope struct {
	// ID correlates a response with its call. Fire-and-forget sends
	// also carry an ID for log correlation.
	ID string `json:"id"`

	// Origin is the sending context.
	Origin Origin `json:"origin"`

	// Command is the requested operation.
	Command Command `json:"command"`

	// Payload is the command-specific body. May be nil for commands
	// that take no arguments.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope builds an envelope with a fresh correlation ID and the
// given payload marshaled to JSON. A nil payload produces an envelope
// with no body.
func NewEnvelope(origin Origin, command Command, payload any) (Envelope, error) {
	env := Envelope{
		ID:      uuid.NewString(),
		Origin:  origin,
		Command: command,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", command, err)
		}
		env.Payload = data
	}
	return env, nil
}

// DecodePayload unmarshals an envelope payload into dst. It returns
// ErrBadPayload (wrapped) when the payload does not fit the expected
// shape, so responders can reject malformed requests uniformly.
func DecodePayload(payload json.RawMessage, dst any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrBadPayload)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}
