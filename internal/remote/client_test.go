package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/annolab/webmark/internal/model"
)

// staticCredentials is a CredentialSource backed by a fixed value.
type staticCredentials struct {
	creds model.Credentials
}

func (s staticCredentials) LoadCredentials(context.Context) (model.Credentials, error) {
	return s.creds, nil
}

// newTestClient builds a client against the fixture server.
func newTestClient(t *testing.T, server *httptest.Server, creds model.Credentials) *Client {
	t.Helper()
	client, err := New(server.URL, 2*time.Second, staticCredentials{creds: creds})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

// TestCredentialAutoAttach tests that stored credentials are added to
// request bodies that do not carry their own.
func TestCredentialAutoAttach(t *testing.T) {
	t.Parallel()

	var gotUsername, gotPassword string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, expected POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("content type = %q, expected urlencoded", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		gotUsername = r.PostForm.Get("username")
		gotPassword = r.PostForm.Get("password")
		w.Write([]byte(`{"active_task_id":-1}`)) //nolint:errcheck
	}))
	defer server.Close()

	client := newTestClient(t, server, model.Credentials{Username: "ann", Password: "hunter2"})
	if _, err := client.ActiveTask(context.Background()); err != nil {
		t.Fatalf("ActiveTask() error = %v", err)
	}
	if gotUsername != "ann" || gotPassword != "hunter2" {
		t.Errorf("credentials not attached: username=%q password=%q", gotUsername, gotPassword)
	}
}

// TestActiveTask tests decoding of the three task states.
func TestActiveTask(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		responseBody string
		expectedID   int
		expectActive bool
	}{
		{"no active task", `{"active_task_id":-1}`, model.TaskIDNone, false},
		{"active task", `{"active_task_id":17,"question":"Find the pricing page"}`, 17, true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(tc.responseBody)) //nolint:errcheck
			}))
			defer server.Close()

			client := newTestClient(t, server, model.Credentials{Username: "ann", Password: "x"})
			resp, err := client.ActiveTask(context.Background())
			if err != nil {
				t.Fatalf("ActiveTask() error = %v", err)
			}
			if resp.TaskID != tc.expectedID {
				t.Errorf("TaskID = %d, expected %d", resp.TaskID, tc.expectedID)
			}
			if resp.Session().Active() != tc.expectActive {
				t.Errorf("Active() = %v, expected %v", resp.Session().Active(), tc.expectActive)
			}
		})
	}
}

// TestActiveTaskUnreachable tests the -2 sentinel on transport failure.
func TestActiveTaskUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // Guarantee connection refused.

	client := newTestClient(t, server, model.Credentials{Username: "ann", Password: "x"})
	resp, err := client.ActiveTask(context.Background())
	if !errors.Is(err, ErrServerUnavailable) {
		t.Fatalf("ActiveTask() error = %v, expected ErrServerUnavailable", err)
	}
	if resp.TaskID != model.TaskIDUnreachable {
		t.Errorf("TaskID = %d, expected the unreachable sentinel %d",
			resp.TaskID, model.TaskIDUnreachable)
	}
}

// TestActiveTaskUnauthenticated tests the 401 mapping.
func TestActiveTaskUnauthenticated(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server, model.Credentials{Username: "ann", Password: "bad"})
	if _, err := client.ActiveTask(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("ActiveTask() error = %v, expected ErrUnauthenticated", err)
	}
}

// TestCheckCredentials tests the valid/invalid/unreachable outcomes.
func TestCheckCredentials(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"valid":true}`)) //nolint:errcheck
		}))
		defer server.Close()

		client := newTestClient(t, server, model.Credentials{Username: "ann", Password: "x"})
		valid, err := client.CheckCredentials(context.Background())
		if err != nil || !valid {
			t.Errorf("CheckCredentials() = %v, %v; expected true, nil", valid, err)
		}
	})

	t.Run("rejected is not an error", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		client := newTestClient(t, server, model.Credentials{Username: "ann", Password: "bad"})
		valid, err := client.CheckCredentials(context.Background())
		if err != nil {
			t.Fatalf("CheckCredentials() error = %v", err)
		}
		if valid {
			t.Error("rejected credentials reported valid")
		}
	})

	t.Run("unreachable is an error", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		server.Close()

		client := newTestClient(t, server, model.Credentials{Username: "ann", Password: "x"})
		if _, err := client.CheckCredentials(context.Background()); !errors.Is(err, ErrServerUnavailable) {
			t.Errorf("CheckCredentials() error = %v, expected ErrServerUnavailable", err)
		}
	})
}

// TestStartTaskIdempotent tests that the client surfaces the server's
// answer when another task is already active.
func TestStartTaskIdempotent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		if got := r.PostForm.Get("task_id"); got != "9" {
			t.Errorf("task_id = %q, expected 9", got)
		}
		// Another tab won the race; task 4 is already active.
		w.Write([]byte(`{"active_task_id":4,"question":"other"}`)) //nolint:errcheck
	}))
	defer server.Close()

	client := newTestClient(t, server, model.Credentials{Username: "ann", Password: "x"})
	resp, err := client.StartTask(context.Background(), 9)
	if err != nil {
		t.Fatalf("StartTask() error = %v", err)
	}
	if resp.TaskID != 4 {
		t.Errorf("TaskID = %d, expected the server's authoritative 4", resp.TaskID)
	}
}

// TestSubmitTelemetry tests the URL-encoded JSON envelope.
func TestSubmitTelemetry(t *testing.T) {
	t.Parallel()

	received := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		received <- r.PostForm.Get("data")
	}))
	defer server.Close()

	view := model.PageView{
		URL:      "https://example.com/a",
		Referrer: "https://example.com",
		Start:    time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	view.Seal(view.Start.Add(time.Minute))

	client := newTestClient(t, server, model.Credentials{Username: "ann", Password: "x"})
	if err := client.SubmitTelemetry(context.Background(), view); err != nil {
		t.Fatalf("SubmitTelemetry() error = %v", err)
	}

	data := <-received
	if data == "" {
		t.Fatal("submit request carried no data field")
	}
}

// TestPageURLs tests the navigation URL builders.
func TestPageURLs(t *testing.T) {
	t.Parallel()

	client, err := New("https://app.webmark.dev", time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name     string
		got      string
		expected string
	}{
		{"home", client.HomeURL(), "https://app.webmark.dev/home"},
		{"feedback", client.FeedbackURL(), "https://app.webmark.dev/feedback"},
		{"task", client.TaskURL(5), "https://app.webmark.dev/task?task_id=5"},
		{"submission", client.SubmissionURL(5), "https://app.webmark.dev/submission?task_id=5"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if tc.got != tc.expected {
				t.Errorf("got %q, expected %q", tc.got, tc.expected)
			}
		})
	}
}
