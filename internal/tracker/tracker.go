package tracker

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annolab/webmark/internal/config"
	"github.com/annolab/webmark/internal/messaging"
	"github.com/annolab/webmark/internal/model"
)

// WindowCommandCloseOrRedirect is the same-window message command a
// hosted page uses to request a reset-and-navigate. Only messages whose
// source is the window itself are honored; an inline script in a framed
// document cannot forge one.
const WindowCommandCloseOrRedirect = "webmark:close_or_redirect"

// errStaleGeneration marks a response that arrived after the navigation
// boundary that made it irrelevant.
var errStaleGeneration = errors.New("tracker: response from a previous generation")

// Tracker owns telemetry capture for one page-load context.
type Tracker struct {
	cfg      config.Config
	bus      *messaging.Bus
	page     PageDocument
	events   EventSource
	replay   ReplaySource
	observer NavigationObserver
	logger   *slog.Logger
	clock    func() time.Time

	state *ViewState

	// generation increments at every navigation boundary. Responses to
	// calls issued under an older generation are discarded.
	generation atomic.Uint64

	// mu serializes lifecycle transitions: initialization, navigation
	// boundaries, flushes, and teardown.
	mu           sync.Mutex
	subCancels   []func()
	observerStop func()
	endpoint     *messaging.Endpoint
	instrumented bool
	stopped      bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithClock replaces the time source. Tests use it to make dwell times
// deterministic.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) {
		t.clock = clock
	}
}

// New creates a Tracker for one page-load context. The observer should
// come from ComposeObservers over the strategies the environment
// supports.
func New(cfg config.Config, bus *messaging.Bus, page PageDocument, events EventSource, replay ReplaySource, observer NavigationObserver, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:      cfg,
		bus:      bus,
		page:     page,
		events:   events,
		replay:   replay,
		observer: observer,
		logger:   slog.Default(),
		clock:    time.Now,
		state:    NewViewState(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start registers the tracker on the bus and runs the gated
// initialization sequence. It returns only hard setup errors; an
// initialization that aborts because the user is logged out, no task is
// active, or the coordinator is unreachable returns nil, and the page
// is simply left uninstrumented.
func (t *Tracker) Start() error {
	e := t.bus.Register(messaging.ContentAddress(t.page.TabID()))
	e.Handle(messaging.CommandFlushNow, t.handleFlushNow)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.endpoint = e
	t.initLocked(t.page.Referrer())
	return nil
}

// Stop tears the tracker down: subscriptions cancelled, observer
// stopped, endpoint closed. Any in-progress view is flushed first so a
// deliberate teardown never discards captured telemetry.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.flushLocked(false)
	t.teardownInstrumentationLocked()
	observerStop := t.observerStop
	endpoint := t.endpoint
	t.observerStop = nil
	t.endpoint = nil
	t.mu.Unlock()

	// Endpoint close waits for the dispatch loop's in-flight handler;
	// that handler may itself be waiting on t.mu, so the mutex must be
	// released before closing. The flush above already cleared the
	// dirty flag, so a handler slipping in here flushes nothing.
	if observerStop != nil {
		observerStop()
	}
	if endpoint != nil {
		endpoint.Close()
	}
}

// Unload handles the document being torn down by the browser. Same as
// Stop; the name documents the second flush source the dirty flag
// guards against.
func (t *Tracker) Unload() {
	t.Stop()
}

// Instrumented reports whether the current page passed the gates and is
// accumulating telemetry.
func (t *Tracker) Instrumented() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.instrumented
}

// OnWindowMessage handles a message posted on the page's own window.
// Messages whose source is not the window itself are dropped: an
// embedded frame or injected script must not be able to steer the tab.
func (t *Tracker) OnWindowMessage(source any, command, newPage string) {
	if source != t.page.Window() {
		t.logger.Warn("window message from foreign source dropped", "command", command)
		return
	}
	if command != WindowCommandCloseOrRedirect {
		return
	}

	env, err := messaging.NewEnvelope(messaging.OriginContent, messaging.CommandCloseOrRedirect,
		messaging.CloseOrRedirectRequest{TabID: t.page.TabID(), NewPage: newPage})
	if err != nil {
		t.logger.Warn("failed to build close-or-redirect", "error", err)
		return
	}
	if err := t.bus.Send(messaging.AddrBackground, env); err != nil {
		t.logger.Debug("close-or-redirect not delivered", "error", err)
	}
}

// ----------------------------------------------------------------------------
// Initialization
// ----------------------------------------------------------------------------

// initLocked runs the gated initialization sequence for the current
// URL. Each step short-circuits: pages that should not be instrumented
// cost one or two status calls and nothing else. Callers hold t.mu.
func (t *Tracker) initLocked(referrer string) {
	pageURL := t.page.URL()
	if !t.cfg.InstrumentHost(hostOf(pageURL)) {
		t.logger.Debug("host excluded from instrumentation", "url", pageURL)
		return
	}

	gen := t.generation.Load()

	var status messaging.LoggingStatusResult
	if err := t.callBackground(gen, messaging.CommandCheckLoggingStatus, nil, &status); err != nil {
		t.logger.Debug("logging status check failed", "error", err)
		return
	}
	if !status.LogStatus {
		return
	}

	var task messaging.ActiveTaskResult
	if err := t.callBackground(gen, messaging.CommandGetActiveTask, nil, &task); err != nil {
		t.logger.Debug("active task check failed", "error", err)
		return
	}
	if !task.IsActive {
		return
	}

	// Overlay question is decoration; an empty question still gets an
	// overlay so the annotator can see capture is on.
	var info messaging.TaskInfoResult
	if err := t.callBackground(gen, messaging.CommandGetTaskInfo, nil, &info); err != nil {
		if errors.Is(err, errStaleGeneration) {
			return
		}
		info = messaging.TaskInfoResult{TaskID: task.TaskID}
	}

	t.page.ShowOverlay(info.Question)
	t.state.Begin(pageURL, referrer, t.clock())
	t.subscribeLocked()
	t.instrumented = true

	if t.observerStop == nil && t.observer != nil {
		t.observerStop = t.observer.Watch(t.onNavigationSignal)
	}

	t.logger.Debug("page instrumented",
		"url", pageURL, "referrer", referrer, "task_id", task.TaskID,
		"observer", observerName(t.observer))
}

// subscribeLocked attaches the capture sources to the view state.
func (t *Tracker) subscribeLocked() {
	cancelEvents := t.events.SubscribeEvents(func(e model.CaptureEvent) {
		if err := t.state.AddEvent(e); err != nil {
			t.logger.Debug("event dropped", "type", e.Type, "error", err)
		}
	})
	cancelMouse := t.events.SubscribeMouseMoves(t.state.AddMouseMove)
	cancelReplay := t.replay.Subscribe(t.state.AddReplayRecord)
	t.subCancels = append(t.subCancels, cancelEvents, cancelMouse, cancelReplay)
}

// teardownInstrumentationLocked cancels subscriptions and removes the
// overlay. The navigation observer stays: it belongs to the page-load
// context, not to one page view.
func (t *Tracker) teardownInstrumentationLocked() {
	for _, cancel := range t.subCancels {
		cancel()
	}
	t.subCancels = nil
	if t.instrumented {
		t.page.RemoveOverlay()
	}
	t.instrumented = false
}

// ----------------------------------------------------------------------------
// Navigation boundaries
// ----------------------------------------------------------------------------

// onNavigationSignal runs after each candidate navigation. The observer
// fires once the underlying history mutation has completed, so reading
// the page URL here is the deferred check: an unchanged URL means the
// router mutated history without going anywhere, and nothing happens.
func (t *Tracker) onNavigationSignal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}

	newURL := t.page.URL()
	previousURL := t.state.CurrentURL()
	if newURL == previousURL {
		return
	}

	// Boundary: invalidate outstanding calls, seal and transmit the
	// ending view, then re-run the gates for the new URL with the
	// ended view's URL as referrer.
	t.generation.Add(1)
	t.flushLocked(false)
	t.teardownInstrumentationLocked()
	t.initLocked(previousURL)
}

// ----------------------------------------------------------------------------
// Flush paths
// ----------------------------------------------------------------------------

// handleFlushNow answers the popup's forced flush. A hidden document
// declines with an application-level negative, distinguishable from a
// broken channel, because the popup wants the telemetry of the tab the
// user is looking at, not of every background tab that happens to host
// a tracker.
func (t *Tracker) handleFlushNow(env messaging.Envelope, respond messaging.RespondFunc) {
	if t.page.Hidden() {
		t.respondOrLog(env, respond, messaging.Ack{Success: false, Reason: "document hidden"})
		return
	}

	t.mu.Lock()
	ok := t.flushLocked(true)
	t.mu.Unlock()
	if !ok {
		t.respondOrLog(env, respond, messaging.Ack{Success: false, Reason: "telemetry commit failed"})
		return
	}
	t.respondOrLog(env, respond, messaging.Ack{Success: true})
}

// flushLocked seals the in-progress view, if any, and transmits it to
// the coordinator. With awaitAck set the call blocks until the
// coordinator confirms the commit and reports whether it succeeded;
// without it the envelope is fire-and-forget and loss degrades
// silently. A flush with no view in progress succeeds trivially.
// Callers hold t.mu.
func (t *Tracker) flushLocked(awaitAck bool) bool {
	view, ok := t.state.Flush(t.clock())
	if !ok {
		return true
	}

	env, err := messaging.NewEnvelope(messaging.OriginContent, messaging.CommandSubmitTelemetry,
		messaging.SubmitTelemetryRequest{View: view})
	if err != nil {
		t.logger.Warn("failed to build telemetry envelope", "error", err)
		return false
	}

	if !awaitAck {
		if err := t.bus.Send(messaging.AddrBackground, env); err != nil {
			t.logger.Debug("telemetry flush not delivered", "url", view.URL, "error", err)
			return false
		}
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.CallTimeout)
	defer cancel()
	raw, err := t.bus.Call(ctx, messaging.AddrBackground, env)
	if err != nil {
		t.logger.Debug("telemetry flush failed", "url", view.URL, "error", err)
		return false
	}
	var ack messaging.Ack
	if err := messaging.DecodePayload(raw, &ack); err != nil {
		return false
	}
	if !ack.Success {
		t.logger.Debug("telemetry flush rejected", "url", view.URL, "reason", ack.Reason)
	}
	return ack.Success
}

// ----------------------------------------------------------------------------
// Cross-context calls
// ----------------------------------------------------------------------------

// callBackground issues one call to the coordinator under the given
// generation and decodes the response into result. A response that
// lands after the generation moved on is discarded and reported as
// errStaleGeneration: applying it would attribute the old page's status
// to the new page view.
func (t *Tracker) callBackground(gen uint64, command messaging.Command, payload, result any) error {
	env, err := messaging.NewEnvelope(messaging.OriginContent, command, payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.CallTimeout)
	defer cancel()
	raw, err := t.bus.Call(ctx, messaging.AddrBackground, env)
	if err != nil {
		return err
	}
	if t.generation.Load() != gen {
		return errStaleGeneration
	}
	return messaging.DecodePayload(raw, result)
}

// respondOrLog completes a call and logs the rare completion failure.
func (t *Tracker) respondOrLog(env messaging.Envelope, respond messaging.RespondFunc, payload any) {
	if err := respond(payload); err != nil {
		t.logger.Warn("failed to respond",
			"command", string(env.Command), "envelope", env.ID, "error", err)
	}
}

// hostOf extracts the host from a page URL; a malformed URL yields an
// empty host, which no ignore pattern matches.
func hostOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// observerName names an observer for logs, tolerating nil.
func observerName(o NavigationObserver) string {
	if o == nil {
		return "none"
	}
	return o.Name()
}
