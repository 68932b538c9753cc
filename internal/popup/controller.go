package popup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/annolab/webmark/internal/config"
	"github.com/annolab/webmark/internal/messaging"
	"github.com/annolab/webmark/internal/model"
)

// Session is the slice of the background coordinator the popup calls
// directly for credential handling, the way a popup page grabs its
// background page. Everything else goes over the bus.
type Session interface {
	Login(ctx context.Context, creds model.Credentials) error
	Logout(ctx context.Context) error
}

// URLProvider builds the annotation-service page URLs the popup opens.
// Implemented by *remote.Client.
type URLProvider interface {
	HomeURL() string
	FeedbackURL() string
	TaskURL(taskID int) string
	SubmissionURL(taskID int) string
}

// Controller drives one popup lifetime: Open starts the poll loop,
// the action methods answer button presses, Close tears it down.
type Controller struct {
	cfg     config.Config
	bus     *messaging.Bus
	session Session
	urls    URLProvider
	nav     Navigator
	view    View
	alerter Alerter
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController wires a popup controller. view and alerter must be
// non-nil; nav may be nil when the host offers no tab control, which
// disables the open/navigate actions.
func NewController(cfg config.Config, bus *messaging.Bus, session Session, urls URLProvider, nav Navigator, view View, alerter Alerter, opts ...Option) *Controller {
	c := &Controller{
		cfg:     cfg,
		bus:     bus,
		session: session,
		urls:    urls,
		nav:     nav,
		view:    view,
		alerter: alerter,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open renders the first snapshot and starts the poll loop that keeps
// the popup current while it stays open.
func (c *Controller) Open() {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	c.refresh(ctx)
	go c.poll(ctx, done)
}

// Close stops the poll loop and waits for it to finish. Closing a
// never-opened controller is a no-op.
func (c *Controller) Close() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Controller) poll(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refresh(ctx)
		}
	}
}

// refresh queries the coordinator and renders the result. Transport
// failures on the poll path render a logged-out snapshot without
// alerting; the next tick retries.
func (c *Controller) refresh(ctx context.Context) {
	c.view.Render(c.fetchState(ctx))
}

// fetchState assembles one State from fresh coordinator queries.
func (c *Controller) fetchState(ctx context.Context) State {
	var status messaging.LoggingStatusResult
	if err := c.call(ctx, messaging.CommandCheckLoggingStatus, nil, &status); err != nil {
		c.logger.Debug("logging status query failed", "error", err)
		return State{Task: model.TaskSessionFromID(model.TaskIDUnreachable)}
	}
	state := State{LoggedIn: status.LogStatus, Task: model.TaskSessionFromID(model.TaskIDNone)}
	if !state.LoggedIn {
		return state
	}

	task, err := c.activeTask(ctx)
	if err != nil {
		state.Task = model.TaskSessionFromID(model.TaskIDUnreachable)
		return state
	}
	state.Task = task
	if !task.Active() {
		return state
	}

	var info messaging.TaskInfoResult
	if err := c.call(ctx, messaging.CommandGetTaskInfo, nil, &info); err == nil {
		state.Question = info.Question
	}
	return state
}

// ----------------------------------------------------------------------------
// Credential actions
// ----------------------------------------------------------------------------

// Login verifies and stores credentials, then re-renders.
func (c *Controller) Login(ctx context.Context, creds model.Credentials) error {
	if err := creds.Validate(); err != nil {
		c.alerter.Alert(err.Error())
		return err
	}
	if err := c.session.Login(ctx, creds); err != nil {
		c.alerter.Alert(fmt.Sprintf("login failed: %v", err))
		return err
	}
	c.refresh(ctx)
	return nil
}

// Logout clears stored credentials and re-renders. The poll loop keeps
// running but stops querying for tasks once the coordinator reports
// logged out.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.session.Logout(ctx); err != nil {
		c.alerter.Alert(fmt.Sprintf("logout failed: %v", err))
		return err
	}
	c.refresh(ctx)
	return nil
}

// ----------------------------------------------------------------------------
// Task actions. Each one re-validates the active task immediately
// before acting; the rendered buttons are advisory, never authoritative.
// ----------------------------------------------------------------------------

// revalidate queries the current task right before an action runs and
// distinguishes the unreachable sentinel from a plain no-task answer:
// a reachable coordinator whose service is down must be reported as
// unreachable, not as "no active task".
func (c *Controller) revalidate(ctx context.Context) (model.TaskSession, error) {
	task, err := c.activeTask(ctx)
	if err != nil {
		c.alerter.Alert("cannot reach the annotation service")
		return task, err
	}
	if task.Status() == model.TaskStatusUnreachable {
		c.alerter.Alert("cannot reach the annotation service")
		return task, ErrServiceUnreachable
	}
	return task, nil
}

// StartTask starts the given task and opens its page in a new tab.
func (c *Controller) StartTask(ctx context.Context, taskID int) error {
	task, err := c.revalidate(ctx)
	if err != nil {
		return err
	}
	if task.Active() {
		c.alerter.Alert("a task is already active; finish or cancel it first")
		c.refresh(ctx)
		return ErrTaskAlreadyActive
	}

	var result messaging.ActiveTaskResult
	if err := c.call(ctx, messaging.CommandStartTask, messaging.StartTaskRequest{TaskID: taskID}, &result); err != nil {
		c.alerter.Alert("cannot reach the annotation service")
		return err
	}
	if !result.IsActive {
		c.alerter.Alert("the task could not be started")
		c.refresh(ctx)
		return ErrNoActiveTask
	}

	if c.nav != nil {
		if err := c.nav.OpenTab(c.urls.TaskURL(result.TaskID)); err != nil {
			c.logger.Warn("failed to open task page", "task_id", result.TaskID, "error", err)
		}
	}
	c.refresh(ctx)
	return nil
}

// EndTask finishes the active task: the focused tab's tracker is told
// to flush, and only after that call resolves is the tab navigated to
// the submission page. The flush call is bounded by the flush-ack
// timeout; a tab with no tracker (transport failure) or a tracker that
// declines both leave nothing committed to lose, so navigation
// proceeds either way.
func (c *Controller) EndTask(ctx context.Context) error {
	task, err := c.revalidate(ctx)
	if err != nil {
		return err
	}
	if !task.Active() {
		c.alerter.Alert("no task is active")
		c.refresh(ctx)
		return ErrNoActiveTask
	}
	if c.nav == nil {
		return ErrNoActiveTab
	}
	tabID, ok := c.nav.ActiveTab()
	if !ok {
		c.alerter.Alert("no active tab to submit from")
		return ErrNoActiveTab
	}

	c.flushTab(ctx, tabID)

	if err := c.nav.NavigateActiveTab(c.urls.SubmissionURL(task.TaskID)); err != nil {
		c.alerter.Alert(fmt.Sprintf("failed to open the submission page: %v", err))
		return err
	}
	c.refresh(ctx)
	return nil
}

// CancelTask abandons the active task without submission.
func (c *Controller) CancelTask(ctx context.Context) error {
	task, err := c.revalidate(ctx)
	if err != nil {
		return err
	}
	if !task.Active() {
		c.refresh(ctx)
		return ErrNoActiveTask
	}

	var ack messaging.Ack
	if err := c.call(ctx, messaging.CommandCancelTask, nil, &ack); err != nil {
		c.alerter.Alert("cannot reach the annotation service")
		return err
	}
	if !ack.Success {
		c.alerter.Alert(fmt.Sprintf("cancel failed: %s", ack.Reason))
		c.refresh(ctx)
		return fmt.Errorf("cancel rejected: %s", ack.Reason)
	}
	c.refresh(ctx)
	return nil
}

// ViewTask opens the active task's page in a new tab.
func (c *Controller) ViewTask(ctx context.Context) error {
	task, err := c.revalidate(ctx)
	if err != nil {
		return err
	}
	if !task.Active() {
		c.alerter.Alert("no task is active")
		c.refresh(ctx)
		return ErrNoActiveTask
	}
	if c.nav == nil {
		return ErrNoActiveTab
	}
	return c.nav.OpenTab(c.urls.TaskURL(task.TaskID))
}

// OpenHome opens the annotation service's home page in a new tab.
func (c *Controller) OpenHome() error {
	if c.nav == nil {
		return ErrNoActiveTab
	}
	return c.nav.OpenTab(c.urls.HomeURL())
}

// OpenFeedback opens the feedback page in a new tab.
func (c *Controller) OpenFeedback() error {
	if c.nav == nil {
		return ErrNoActiveTab
	}
	return c.nav.OpenTab(c.urls.FeedbackURL())
}

// ----------------------------------------------------------------------------
// Coordinator plumbing
// ----------------------------------------------------------------------------

// flushTab asks the tab's tracker to flush and waits for the outcome.
// All three outcomes end the wait: an ack means the telemetry is
// committed, a decline means the tracker chose not to flush, and a
// transport failure or timeout means no tracker was listening. The
// caller needs the ordering, not a guarantee.
func (c *Controller) flushTab(ctx context.Context, tabID int) {
	env, err := messaging.NewEnvelope(messaging.OriginPopup, messaging.CommandFlushNow, nil)
	if err != nil {
		c.logger.Warn("failed to build flush envelope", "error", err)
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.FlushAckTimeout)
	defer cancel()
	raw, err := c.bus.Call(callCtx, messaging.ContentAddress(tabID), env)
	if err != nil {
		c.logger.Debug("flush call failed", "tab_id", tabID, "error", err)
		return
	}
	var ack messaging.Ack
	if err := messaging.DecodePayload(raw, &ack); err != nil {
		return
	}
	if !ack.Success {
		c.logger.Debug("flush declined", "tab_id", tabID, "reason", ack.Reason)
	}
}

// activeTask queries the coordinator for the current task.
func (c *Controller) activeTask(ctx context.Context) (model.TaskSession, error) {
	var result messaging.ActiveTaskResult
	if err := c.call(ctx, messaging.CommandGetActiveTask, nil, &result); err != nil {
		return model.TaskSessionFromID(model.TaskIDUnreachable), err
	}
	return result.Session(), nil
}

// call issues one bus call to the coordinator under the call timeout.
func (c *Controller) call(ctx context.Context, command messaging.Command, payload, result any) error {
	env, err := messaging.NewEnvelope(messaging.OriginPopup, command, payload)
	if err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	raw, err := c.bus.Call(callCtx, messaging.AddrBackground, env)
	if err != nil {
		if errors.Is(err, messaging.ErrNoReceiver) || errors.Is(err, messaging.ErrTimeout) {
			return fmt.Errorf("%w: %v", ErrBackgroundUnavailable, err)
		}
		return err
	}
	return messaging.DecodePayload(raw, result)
}
