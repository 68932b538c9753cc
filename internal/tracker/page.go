package tracker

import "github.com/annolab/webmark/internal/model"

// PageDocument abstracts the hosted page the tracker instruments. The
// host environment (the content-script shim in production, a fake in
// tests) implements it.
type PageDocument interface {
	// URL returns the document's current address.
	URL() string

	// Referrer returns the document referrer at load time.
	Referrer() string

	// Hidden reports whether the document is currently hidden (a
	// background tab). A hidden document declines externally issued
	// flush commands.
	Hidden() bool

	// TabID identifies the browser tab hosting the document.
	TabID() int

	// Window returns the page's window identity token. Same-window
	// message validation compares a message's source against it.
	Window() any

	// ShowOverlay renders the active-task decoration with the task's
	// question text.
	ShowOverlay(question string)

	// RemoveOverlay tears the decoration down.
	RemoveOverlay()
}

// EventSource delivers the page's interaction telemetry. Handlers are
// invoked synchronously on the page's event loop, which is what lets a
// flush at a navigation boundary include every event that preceded the
// boundary and none that followed it.
type EventSource interface {
	// SubscribeEvents registers an interaction-event handler and
	// returns a cancel that unregisters it.
	SubscribeEvents(handler func(model.CaptureEvent)) (cancel func())

	// SubscribeMouseMoves registers a cursor-sample handler.
	SubscribeMouseMoves(handler func(model.MouseMove)) (cancel func())
}

// ReplaySource is the external session-replay stream the tracker
// subscribes to but does not implement.
type ReplaySource interface {
	// Subscribe registers a record handler and returns a cancel.
	Subscribe(handler func(model.ReplayRecord)) (cancel func())
}
