package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/annolab/webmark/internal/config"
	"github.com/annolab/webmark/internal/coordinator"
	"github.com/annolab/webmark/internal/messaging"
	"github.com/annolab/webmark/internal/model"
	"github.com/annolab/webmark/internal/remote"
)

// memService is an in-memory annotation service.
type memService struct {
	mu        sync.Mutex
	task      remote.ActiveTaskResponse
	submitted chan model.PageView
}

func (m *memService) ActiveTask(context.Context) (remote.ActiveTaskResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.task, nil
}

func (m *memService) StartTask(_ context.Context, taskID int) (remote.ActiveTaskResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.task.Session().Active() {
		m.task = remote.ActiveTaskResponse{TaskID: taskID, Question: "Is this page trustworthy?"}
	}
	return m.task, nil
}

func (m *memService) CancelTask(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.task = remote.ActiveTaskResponse{TaskID: model.TaskIDNone}
	return nil
}

func (m *memService) SubmitTelemetry(_ context.Context, view model.PageView) error {
	m.submitted <- view
	return nil
}

func (m *memService) Login(context.Context, model.Credentials) error { return nil }

// memStore is an in-memory credential store and journal.
type memStore struct {
	mu        sync.Mutex
	creds     model.Credentials
	journaled []model.PageView
}

func (m *memStore) LoadCredentials(context.Context) (model.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds, nil
}

func (m *memStore) SaveCredentials(_ context.Context, creds model.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = creds
	return nil
}

func (m *memStore) ClearCredentials(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = model.Credentials{}
	return nil
}

func (m *memStore) JournalPageView(_ context.Context, view model.PageView) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journaled = append(m.journaled, view)
	return int64(len(m.journaled)), nil
}

func (m *memStore) journalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.journaled)
}

// stepClock is an advanceable time source.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestStartTaskToFirstFlush runs the whole task-start flow against a
// real coordinator on a real bus: stored credentials gate the login
// check, starting a task activates instrumentation on the next page
// load with the pre-task URL as referrer, and the first SPA navigation
// flushes exactly one sealed view through the intake pipeline.
func TestStartTaskToFirstFlush(t *testing.T) {
	t.Parallel()

	bus := messaging.New()
	svc := &memService{
		task:      remote.ActiveTaskResponse{TaskID: model.TaskIDNone},
		submitted: make(chan model.PageView, 4),
	}
	store := &memStore{creds: model.Credentials{Username: "ann", Password: "secret"}}
	coord := coordinator.New(svc, store, coordinator.WithLogger(discardLogger()))
	coord.Attach(bus)
	t.Cleanup(coord.Detach)

	callBG := func(t *testing.T, command messaging.Command, payload, result any) {
		t.Helper()
		env, err := messaging.NewEnvelope(messaging.OriginPopup, command, payload)
		if err != nil {
			t.Fatalf("NewEnvelope() error = %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		raw, err := bus.Call(ctx, messaging.AddrBackground, env)
		if err != nil {
			t.Fatalf("Call(%s) error = %v", command, err)
		}
		if err := messaging.DecodePayload(raw, result); err != nil {
			t.Fatalf("DecodePayload(%s) error = %v", command, err)
		}
	}

	// Stored credentials count as logged in, and no task is active yet.
	var status messaging.LoggingStatusResult
	callBG(t, messaging.CommandCheckLoggingStatus, nil, &status)
	if !status.LogStatus {
		t.Fatal("stored credentials did not count as logged in")
	}
	var before messaging.ActiveTaskResult
	callBG(t, messaging.CommandGetActiveTask, nil, &before)
	if before.TaskID != model.TaskIDNone || before.IsActive {
		t.Fatalf("initial task = %+v, want the none sentinel", before)
	}

	// A page loaded before the task starts must not be instrumented.
	preTaskURL := "https://news.example.com/article"
	clock := &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	idle := New(config.Default(), bus,
		&fakePage{url: preTaskURL, tabID: 1, window: new(struct{})},
		&fakeSources{}, &fakeSources{},
		&scriptedObserver{name: "history-hook", supported: true},
		WithLogger(discardLogger()), WithClock(clock.Now))
	if err := idle.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(idle.Stop)
	if idle.Instrumented() {
		t.Fatal("page instrumented before any task was started")
	}

	// The user starts a task from the popup.
	var started messaging.ActiveTaskResult
	callBG(t, messaging.CommandStartTask, messaging.StartTaskRequest{TaskID: 7}, &started)
	if !started.IsActive || started.TaskID != 7 {
		t.Fatalf("started task = %+v", started)
	}

	// The next page load lands with the pre-task URL as referrer.
	page := &fakePage{url: "https://news.example.com/article", referrer: preTaskURL, tabID: 2, window: new(struct{})}
	sources := &fakeSources{}
	observer := &scriptedObserver{name: "history-hook", supported: true}
	tr := New(config.Default(), bus, page, sources, sources, observer,
		WithLogger(discardLogger()), WithClock(clock.Now))
	if err := tr.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(tr.Stop)
	if !tr.Instrumented() {
		t.Fatal("page not instrumented with an active task")
	}
	if page.question != "Is this page trustworthy?" {
		t.Errorf("overlay question = %q", page.question)
	}

	sources.emitEvent(model.CaptureEvent{TS: 1, Type: "click", Target: "#cite"})
	clock.advance(4 * time.Second)

	// First SPA navigation: exactly one flush, sealed, committed
	// through journal and submit, before the next view accumulates.
	page.setURL("https://news.example.com/article/2")
	observer.fire()

	view := <-svc.submitted
	if view.URL != "https://news.example.com/article" {
		t.Errorf("flushed URL = %q", view.URL)
	}
	if view.Referrer != preTaskURL {
		t.Errorf("flushed Referrer = %q, want the pre-task URL %q", view.Referrer, preTaskURL)
	}
	if view.Dwell != 4*time.Second {
		t.Errorf("Dwell = %v, want %v", view.Dwell, 4*time.Second)
	}
	if len(view.Events) != 1 {
		t.Errorf("flushed view carried %d events, want 1", len(view.Events))
	}
	if store.journalCount() != 1 {
		t.Errorf("journal holds %d views, want 1", store.journalCount())
	}
	if got := tr.state.CurrentURL(); got != "https://news.example.com/article/2" {
		t.Errorf("next view URL = %q", got)
	}
	if len(svc.submitted) != 0 {
		t.Errorf("%d extra flushes", len(svc.submitted))
	}
}
