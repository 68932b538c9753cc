package model

import (
	"encoding/json"
	"time"
)

// MaxReplayRecords caps the number of session-replay records retained
// per page view. Replay streams can emit thousands of records on busy
// pages; the cap bounds memory in long-lived tabs. Records past the cap
// are dropped, oldest kept, because the beginning of a replay stream
// contains the full-snapshot record later records delta against.
const MaxReplayRecords = 5000

// MaxMouseMoves caps the number of mouse-move samples retained per page
// view. Mouse sampling is the highest-frequency input source.
const MaxMouseMoves = 20000

// CaptureEvent is a single user-interaction event observed on a page.
type CaptureEvent struct {
	// TS is the event timestamp in Unix milliseconds.
	TS int64 `json:"ts"`

	// Type is the interaction kind: click, input, scroll, keypress,
	// focus, blur, select.
	Type string `json:"type"`

	// Target identifies the DOM element the event fired on, as a CSS
	// selector path. May be empty for document-level events.
	Target string `json:"target,omitempty"`

	// Data carries event-specific details (key codes, scroll offsets,
	// input lengths). Arbitrary JSON-shaped values.
	Data map[string]any `json:"data,omitempty"`
}

// validCaptureEventTypes enumerates the interaction kinds the tracker
// records. Unknown types are rejected at append time so malformed
// events never reach the annotation service.
var validCaptureEventTypes = map[string]bool{
	"click":    true,
	"input":    true,
	"scroll":   true,
	"keypress": true,
	"focus":    true,
	"blur":     true,
	"select":   true,
}

// ValidCaptureEventType reports whether t is a recognized interaction
// event type.
func ValidCaptureEventType(t string) bool {
	return validCaptureEventTypes[t]
}

// MouseMove is a single sampled cursor position.
type MouseMove struct {
	// TS is the sample timestamp in Unix milliseconds.
	TS int64 `json:"ts"`

	// X and Y are viewport coordinates in CSS pixels.
	X int `json:"x"`
	Y int `json:"y"`
}

// ReplayRecord is one opaque record from the external session-replay
// stream. The tracker subscribes to the stream but never interprets
// record contents; they are forwarded verbatim to the annotation
// service.
type ReplayRecord struct {
	// TS is the record timestamp in Unix milliseconds.
	TS int64 `json:"ts"`

	// Data is the raw replay record as emitted by the capture source.
	Data json.RawMessage `json:"data"`
}

// PageView is the telemetry unit for one logical page: one URL viewed
// without a full document reload boundary. A PageView is created when a
// document becomes ready or when an in-page navigation boundary is
// detected, accumulates telemetry while the page is viewed, and is
// sealed by exactly one flush. After sealing it is immutable and
// superseded by a new PageView.
type PageView struct {
	// URL is the address of the viewed page.
	URL string `json:"url"`

	// Referrer is the URL of the preceding page view. For the first
	// view in a page-load context this is the document referrer; for
	// views created at an in-page navigation boundary it is the URL of
	// the view that just ended.
	Referrer string `json:"referrer"`

	// Start is when the view began.
	Start time.Time `json:"start"`

	// End is when the view was sealed. Zero until flushed.
	End time.Time `json:"end"`

	// Dwell is End minus Start, computed once at seal time.
	Dwell time.Duration `json:"dwell_ms"`

	// Events are the interaction events captured during the view.
	Events []CaptureEvent `json:"events"`

	// MouseMoves are the sampled cursor positions.
	MouseMoves []MouseMove `json:"mouse_moves"`

	// ReplayRecords are the raw session-replay records.
	ReplayRecords []ReplayRecord `json:"replay_records"`
}

// Sealed reports whether the view has already been flushed.
func (p *PageView) Sealed() bool {
	return !p.End.IsZero()
}

// Seal fixes the view's end timestamp and dwell time. Sealing an
// already-sealed view is a no-op so that a navigation boundary and an
// unload handler racing to seal the same view cannot double-count.
func (p *PageView) Seal(now time.Time) {
	if p.Sealed() {
		return
	}
	if now.Before(p.Start) {
		// Clock skew between the start and seal reads must never
		// produce a negative dwell; clamp to zero.
		now = p.Start
	}
	p.End = now
	p.Dwell = p.End.Sub(p.Start)
}
