package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/annolab/webmark/internal/log"
	"github.com/annolab/webmark/internal/messaging"
	"github.com/annolab/webmark/internal/model"
	"github.com/annolab/webmark/internal/remote"
)

// handlerConcurrency is the background endpoint's dispatch limit. The
// coordinator is stateless and its operations idempotent, so parallel
// handling is safe and keeps one slow remote round trip from stalling
// every other caller's timeout budget.
const handlerConcurrency = 8

// TaskService is the annotation-service surface the coordinator needs.
// Implemented by *remote.Client.
type TaskService interface {
	ActiveTask(ctx context.Context) (remote.ActiveTaskResponse, error)
	StartTask(ctx context.Context, taskID int) (remote.ActiveTaskResponse, error)
	CancelTask(ctx context.Context) error
	SubmitTelemetry(ctx context.Context, view model.PageView) error
	Login(ctx context.Context, creds model.Credentials) error
}

// Storage is the persistent-store surface the coordinator needs.
// Implemented by *storage.Store.
type Storage interface {
	LoadCredentials(ctx context.Context) (model.Credentials, error)
	SaveCredentials(ctx context.Context, creds model.Credentials) error
	ClearCredentials(ctx context.Context) error
	JournalPageView(ctx context.Context, view model.PageView) (int64, error)
}

// TabController performs browser-tab actions on behalf of a page. The
// host environment provides it; a nil controller declines every
// close-or-redirect request.
type TabController interface {
	// NavigateTab points the tab at url.
	NavigateTab(tabID int, url string) error

	// CloseTab closes the tab.
	CloseTab(tabID int) error
}

// Coordinator is the background context's controller. Create one per
// background lifetime with New; a restarted background creates a fresh
// Coordinator that re-derives everything it needs.
type Coordinator struct {
	service TaskService
	store   Storage
	tabs    TabController
	logger  *slog.Logger

	// flight collapses concurrent identical remote queries. Results
	// are never retained beyond the in-flight window.
	flight singleflight.Group

	// mu guards the advisory credential-validity flag below.
	mu sync.Mutex

	// validityKnown is false until the service has confirmed or
	// rejected the stored credentials within this coordinator
	// lifetime. After a restart it is false again by construction.
	validityKnown bool
	lastValid     bool

	endpoint *messaging.Endpoint
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger. The default is a stderr
// logger with credential masking; the coordinator handles stored
// credentials and must not leak them into its own records.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithTabController provides the browser-tab action surface.
func WithTabController(tabs TabController) Option {
	return func(c *Coordinator) {
		c.tabs = tabs
	}
}

// New creates a Coordinator over the given service and store.
func New(service TaskService, store Storage, opts ...Option) *Coordinator {
	c := &Coordinator{
		service: service,
		store:   store,
		logger:  log.NewLogger(os.Stderr, false),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach registers the coordinator's command handlers on the bus at the
// background address and starts serving.
func (c *Coordinator) Attach(bus *messaging.Bus) {
	e := bus.Register(messaging.AddrBackground, messaging.WithConcurrency(handlerConcurrency))
	e.Handle(messaging.CommandCheckLoggingStatus, c.handleCheckLoggingStatus)
	e.Handle(messaging.CommandGetActiveTask, c.handleGetActiveTask)
	e.Handle(messaging.CommandGetTaskInfo, c.handleGetTaskInfo)
	e.Handle(messaging.CommandAlterLoggingStatus, c.handleAlterLoggingStatus)
	e.Handle(messaging.CommandCloseOrRedirect, c.handleCloseOrRedirect)
	e.Handle(messaging.CommandSubmitTelemetry, c.handleSubmitTelemetry)
	e.Handle(messaging.CommandStartTask, c.handleStartTask)
	e.Handle(messaging.CommandCancelTask, c.handleCancelTask)
	c.endpoint = e
}

// Detach tears the coordinator off the bus, modeling a background
// restart. Pending callers observe transport failures or timeouts.
func (c *Coordinator) Detach() {
	if c.endpoint != nil {
		c.endpoint.Close()
		c.endpoint = nil
	}
}

// LoggingStatus reports whether the user counts as logged in: stored
// credentials exist and the service has not rejected them since this
// coordinator started. No remote call is made; this is the cheap gate
// the tracker consults on every page load.
func (c *Coordinator) LoggingStatus(ctx context.Context) bool {
	creds, err := c.store.LoadCredentials(ctx)
	if err != nil {
		c.logger.Warn("failed to load credentials", "error", err)
		return false
	}
	if creds.Empty() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.validityKnown {
		return c.lastValid
	}
	// Credentials present and no contrary evidence this lifetime.
	return true
}

// SetLoggingStatus updates the advisory validity flag.
func (c *Coordinator) SetLoggingStatus(valid bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validityKnown = true
	c.lastValid = valid
}

// ActiveTask re-derives the active task from the annotation service.
// Concurrent calls share one remote round trip. A transport failure
// yields the TaskIDUnreachable sentinel and remote.ErrServerUnavailable.
func (c *Coordinator) ActiveTask(ctx context.Context) (remote.ActiveTaskResponse, error) {
	v, err, _ := c.flight.Do("active_task", func() (any, error) {
		resp, err := c.service.ActiveTask(ctx)
		if err != nil {
			// Hand the response through with the error: it carries
			// the sentinel the caller renders.
			return resp, err
		}
		return resp, nil
	})
	resp, _ := v.(remote.ActiveTaskResponse)

	switch {
	case err == nil:
		c.SetLoggingStatus(true)
	case errors.Is(err, remote.ErrUnauthenticated):
		c.SetLoggingStatus(false)
	}
	return resp, err
}

// Login verifies credentials with the service and persists them on
// success. The validity flag flips accordingly.
func (c *Coordinator) Login(ctx context.Context, creds model.Credentials) error {
	if err := c.service.Login(ctx, creds); err != nil {
		if errors.Is(err, remote.ErrUnauthenticated) {
			c.SetLoggingStatus(false)
		}
		return err
	}
	if err := c.store.SaveCredentials(ctx, creds); err != nil {
		return fmt.Errorf("login verified but not persisted: %w", err)
	}
	c.SetLoggingStatus(true)
	return nil
}

// Logout removes the stored credentials entirely and marks the session
// logged out.
func (c *Coordinator) Logout(ctx context.Context) error {
	if err := c.store.ClearCredentials(ctx); err != nil {
		return err
	}
	c.SetLoggingStatus(false)
	return nil
}

// ----------------------------------------------------------------------------
// Bus handlers. Each handler answers exactly once; application-level
// negatives travel inside the payload, never as silence.
// ----------------------------------------------------------------------------

func (c *Coordinator) handleCheckLoggingStatus(env messaging.Envelope, respond messaging.RespondFunc) {
	status := c.LoggingStatus(context.Background())
	c.respondOrLog(env, respond, messaging.LoggingStatusResult{LogStatus: status})
}

func (c *Coordinator) handleGetActiveTask(env messaging.Envelope, respond messaging.RespondFunc) {
	resp, err := c.ActiveTask(context.Background())
	if err != nil && !errors.Is(err, remote.ErrServerUnavailable) {
		c.logger.Warn("active task query failed", "error", err, "origin", string(env.Origin))
	}
	c.respondOrLog(env, respond, messaging.ActiveTaskResult{
		TaskID:   resp.TaskID,
		IsActive: resp.Session().Active(),
	})
}

func (c *Coordinator) handleGetTaskInfo(env messaging.Envelope, respond messaging.RespondFunc) {
	resp, err := c.ActiveTask(context.Background())
	if err != nil || !resp.Session().Active() {
		c.respondOrLog(env, respond, messaging.TaskInfoResult{TaskID: model.TaskIDNone})
		return
	}
	c.respondOrLog(env, respond, messaging.TaskInfoResult{
		TaskID:   resp.TaskID,
		Question: resp.Question,
	})
}

func (c *Coordinator) handleAlterLoggingStatus(env messaging.Envelope, respond messaging.RespondFunc) {
	var req messaging.AlterLoggingStatusRequest
	if err := messaging.DecodePayload(env.Payload, &req); err != nil {
		c.respondOrLog(env, respond, messaging.Ack{Success: false, Reason: ErrValidation.Error()})
		return
	}
	c.SetLoggingStatus(req.Status)
	c.respondOrLog(env, respond, messaging.Ack{Success: true})
}

func (c *Coordinator) handleCloseOrRedirect(env messaging.Envelope, respond messaging.RespondFunc) {
	// Only a page's own tracker may ask for its tab to be moved. The
	// tracker has already rejected cross-origin window messages; this
	// is the second gate.
	if env.Origin != messaging.OriginContent {
		c.logger.Warn("close-or-redirect from untrusted origin", "origin", string(env.Origin))
		c.respondOrLog(env, respond, messaging.Ack{Success: false, Reason: ErrUntrustedOrigin.Error()})
		return
	}

	var req messaging.CloseOrRedirectRequest
	if err := messaging.DecodePayload(env.Payload, &req); err != nil {
		c.respondOrLog(env, respond, messaging.Ack{Success: false, Reason: ErrValidation.Error()})
		return
	}
	if c.tabs == nil {
		c.respondOrLog(env, respond, messaging.Ack{Success: false, Reason: ErrNoTabController.Error()})
		return
	}

	var err error
	if req.NewPage == "" {
		err = c.tabs.CloseTab(req.TabID)
	} else {
		err = c.tabs.NavigateTab(req.TabID, req.NewPage)
	}
	if err != nil {
		c.respondOrLog(env, respond, messaging.Ack{Success: false, Reason: err.Error()})
		return
	}
	c.respondOrLog(env, respond, messaging.Ack{Success: true})
}

func (c *Coordinator) handleSubmitTelemetry(env messaging.Envelope, respond messaging.RespondFunc) {
	var req messaging.SubmitTelemetryRequest
	if err := messaging.DecodePayload(env.Payload, &req); err != nil {
		c.respondOrLog(env, respond, messaging.Ack{Success: false, Reason: ErrValidation.Error()})
		return
	}

	if err := c.intakeTelemetry(context.Background(), req.View); err != nil {
		c.logger.Warn("telemetry intake failed", "url", req.View.URL, "error", err)
		c.respondOrLog(env, respond, messaging.Ack{Success: false, Reason: err.Error()})
		return
	}
	c.respondOrLog(env, respond, messaging.Ack{Success: true})
}

func (c *Coordinator) handleStartTask(env messaging.Envelope, respond messaging.RespondFunc) {
	var req messaging.StartTaskRequest
	if err := messaging.DecodePayload(env.Payload, &req); err != nil {
		c.respondOrLog(env, respond, messaging.ActiveTaskResult{TaskID: model.TaskIDNone})
		return
	}

	resp, err := c.service.StartTask(context.Background(), req.TaskID)
	if err != nil && !errors.Is(err, remote.ErrServerUnavailable) {
		c.logger.Warn("start task failed", "task_id", req.TaskID, "error", err)
	}
	c.respondOrLog(env, respond, messaging.ActiveTaskResult{
		TaskID:   resp.TaskID,
		IsActive: resp.Session().Active(),
	})
}

func (c *Coordinator) handleCancelTask(env messaging.Envelope, respond messaging.RespondFunc) {
	if err := c.service.CancelTask(context.Background()); err != nil {
		c.respondOrLog(env, respond, messaging.Ack{Success: false, Reason: err.Error()})
		return
	}
	c.respondOrLog(env, respond, messaging.Ack{Success: true})
}

// respondOrLog completes a call and logs the rare completion failure.
func (c *Coordinator) respondOrLog(env messaging.Envelope, respond messaging.RespondFunc, payload any) {
	if err := respond(payload); err != nil {
		c.logger.Warn("failed to respond",
			"command", string(env.Command), "envelope", env.ID, "error", err)
	}
}
