package tracker

import (
	"fmt"
	"sync"
	"time"

	"github.com/annolab/webmark/internal/model"
)

// ViewState holds the current in-progress page view and its dirty flag.
// There is at most one ViewState per page-load context; successive page
// views reuse it through Begin/Flush cycles.
//
// The dirty flag is the single-flush guard: Flush seals and hands out
// the view only when an unflushed view is in progress, so a navigation
// boundary and an unload handler racing to flush the same view produce
// exactly one sealed snapshot between them.
type ViewState struct {
	mu    sync.Mutex
	view  *model.PageView
	dirty bool
}

// NewViewState creates an empty ViewState with no view in progress.
func NewViewState() *ViewState {
	return &ViewState{}
}

// Begin starts accumulating a new page view. Any unflushed previous
// view is discarded; callers flush before beginning the next view.
func (v *ViewState) Begin(url, referrer string, now time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.view = &model.PageView{
		URL:      url,
		Referrer: referrer,
		Start:    now,
	}
	v.dirty = true
}

// CurrentURL returns the in-progress view's URL, or empty when no view
// is in progress. Navigation boundary detection compares against this.
func (v *ViewState) CurrentURL() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.view == nil {
		return ""
	}
	return v.view.URL
}

// AddEvent appends an interaction event to the in-progress view.
// Events with unrecognized types and events arriving with no view in
// progress are rejected.
func (v *ViewState) AddEvent(e model.CaptureEvent) error {
	if !model.ValidCaptureEventType(e.Type) {
		return fmt.Errorf("unknown capture event type %q", e.Type)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.dirty {
		return fmt.Errorf("no page view in progress")
	}
	v.view.Events = append(v.view.Events, e)
	return nil
}

// AddMouseMove appends a cursor sample to the in-progress view. Samples
// beyond the per-view cap are dropped silently; mouse moves are the
// highest-volume, lowest-value record and losing the tail is preferable
// to unbounded growth.
func (v *ViewState) AddMouseMove(m model.MouseMove) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.dirty || len(v.view.MouseMoves) >= model.MaxMouseMoves {
		return
	}
	v.view.MouseMoves = append(v.view.MouseMoves, m)
}

// AddReplayRecord appends a session-replay record to the in-progress
// view, up to the per-view cap. The head of the stream is kept on
// overflow because replay streams front-load the full snapshot that
// later records delta against.
func (v *ViewState) AddReplayRecord(r model.ReplayRecord) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.dirty || len(v.view.ReplayRecords) >= model.MaxReplayRecords {
		return
	}
	v.view.ReplayRecords = append(v.view.ReplayRecords, r)
}

// Flush seals the in-progress view and returns it for transmission.
// When no view is in progress (never begun, or already flushed) it
// reports false and does nothing: the second of two racing flushes is a
// no-op, never a duplicate.
//
// Flush is synchronous: every append that completed before the call is
// in the sealed snapshot, and none that starts after will be, because
// the same mutex orders them.
func (v *ViewState) Flush(now time.Time) (model.PageView, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.dirty {
		return model.PageView{}, false
	}
	v.view.Seal(now)
	sealed := *v.view
	v.view = nil
	v.dirty = false
	return sealed, true
}

// InProgress reports whether an unflushed view exists.
func (v *ViewState) InProgress() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dirty
}
