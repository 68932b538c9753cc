// Package tracker implements the page session tracker: the component
// that lives inside one page-load context, detects navigation
// boundaries, and owns the telemetry buffer for the page views seen in
// that context.
//
// A page-load context is destroyed and recreated on every full document
// load, but single-page applications also navigate by mutating history
// without a reload. The tracker therefore watches for navigation
// through a NavigationObserver strategy chosen by capability detection,
// and treats a URL change as a boundary: flush the current view, tear
// down the page decorations, and re-run initialization for the new URL
// with the old URL as referrer.
//
// Initialization is gated: no login, no active task, or an unreachable
// coordinator all mean the page is simply not instrumented. Failures on
// this path degrade silently; nothing is surfaced to the hosted page.
//
// Cross-context responses can arrive after the boundary that made them
// irrelevant. Every outstanding call is tagged with the generation
// counter current at issue time, and responses from an earlier
// generation are discarded rather than applied to the new view.
package tracker
