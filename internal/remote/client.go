package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/annolab/webmark/internal/model"
)

// Annotation service endpoint paths.
const (
	pathCheckCredentials = "/api/check_credentials"
	pathLogin            = "/api/login"
	pathSignup           = "/api/signup"
	pathActiveTask       = "/api/active_task"
	pathStartTask        = "/api/start_task"
	pathCancelTask       = "/api/cancel_task"
	pathSubmitData       = "/api/submit_data"

	pathHome       = "/home"
	pathFeedback   = "/feedback"
	pathSubmission = "/submission"
	pathTask       = "/task"
)

// maxResponseSize bounds response bodies. Service answers are small
// JSON documents; anything larger indicates a misrouted request.
const maxResponseSize = 1 << 20 // 1 MB

// CredentialSource supplies the stored login for auto-attachment.
// Implemented by *storage.Store.
type CredentialSource interface {
	LoadCredentials(ctx context.Context) (model.Credentials, error)
}

// Client is the annotation-service HTTP client.
type Client struct {
	// baseURL is the service root; endpoint paths resolve against it.
	baseURL *url.URL

	// httpClient carries the request timeout and a public-suffix-aware
	// cookie jar, so service-set session cookies behave as a browser's
	// would.
	httpClient *http.Client

	// credentials supplies the stored login attached to requests that
	// do not carry their own.
	credentials CredentialSource

	// userAgent identifies the client in service logs.
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Used by tests to
// point the client at a fixture server transport.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a Client for the service at baseURL. The timeout applies
// per request; there is no overall budget because nothing here retries.
func New(baseURL string, timeout time.Duration, credentials CredentialSource, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid service URL: %w", err)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("invalid service URL %q: must be absolute", baseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		baseURL: parsed,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		credentials: credentials,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ActiveTaskResponse is the service's answer to the active-task query
// and to start-task.
type ActiveTaskResponse struct {
	// TaskID is the active task, or model.TaskIDNone.
	TaskID int `json:"active_task_id"`

	// Question is the active task's prompt; empty when none.
	Question string `json:"question,omitempty"`
}

// Session converts the response into a task-session snapshot.
func (r ActiveTaskResponse) Session() model.TaskSession {
	return model.TaskSessionFromID(r.TaskID)
}

// CheckCredentials verifies the stored login against the service.
// Returns false with a nil error when the service answers but rejects
// the credentials; an error is reserved for an unreachable server.
func (c *Client) CheckCredentials(ctx context.Context) (bool, error) {
	body, err := c.postForm(ctx, pathCheckCredentials, nil)
	if err != nil {
		if err == errStatusUnauthorized {
			return false, nil
		}
		return false, err
	}
	var result struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return false, fmt.Errorf("malformed check-credentials response: %w", err)
	}
	return result.Valid, nil
}

// Login verifies the supplied credentials with the service. It does not
// store them; persistence is the caller's decision after success.
func (c *Client) Login(ctx context.Context, creds model.Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)
	_, err := c.postForm(ctx, pathLogin, form)
	if err == errStatusUnauthorized {
		return ErrUnauthenticated
	}
	return err
}

// Signup registers a new account with the supplied credentials.
func (c *Client) Signup(ctx context.Context, creds model.Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)
	_, err := c.postForm(ctx, pathSignup, form)
	if err == errStatusUnauthorized {
		return ErrUnauthenticated
	}
	return err
}

// ActiveTask queries the user's active task. On transport failure the
// returned response carries model.TaskIDUnreachable alongside
// ErrServerUnavailable, so callers that ignore the error still see a
// coherent sentinel rather than a zero value that reads as "task 0".
func (c *Client) ActiveTask(ctx context.Context) (ActiveTaskResponse, error) {
	body, err := c.postForm(ctx, pathActiveTask, nil)
	if err != nil {
		if err == errStatusUnauthorized {
			return ActiveTaskResponse{TaskID: model.TaskIDNone}, ErrUnauthenticated
		}
		return ActiveTaskResponse{TaskID: model.TaskIDUnreachable}, err
	}

	var result ActiveTaskResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return ActiveTaskResponse{TaskID: model.TaskIDUnreachable},
			fmt.Errorf("malformed active-task response: %w", err)
	}
	return result, nil
}

// StartTask asks the service to activate the given task. The operation
// is idempotent on the server: if another task is already active (for
// example, started from a second tab), the response names that task
// rather than activating a second one. Callers compare the response
// against what they asked for.
func (c *Client) StartTask(ctx context.Context, taskID int) (ActiveTaskResponse, error) {
	form := url.Values{}
	form.Set("task_id", strconv.Itoa(taskID))
	body, err := c.postForm(ctx, pathStartTask, form)
	if err != nil {
		if err == errStatusUnauthorized {
			return ActiveTaskResponse{TaskID: model.TaskIDNone}, ErrUnauthenticated
		}
		return ActiveTaskResponse{TaskID: model.TaskIDUnreachable}, err
	}
	var result ActiveTaskResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return ActiveTaskResponse{TaskID: model.TaskIDUnreachable},
			fmt.Errorf("malformed start-task response: %w", err)
	}
	return result, nil
}

// CancelTask cancels the user's active task.
func (c *Client) CancelTask(ctx context.Context) error {
	_, err := c.postForm(ctx, pathCancelTask, nil)
	if err == errStatusUnauthorized {
		return ErrUnauthenticated
	}
	return err
}

// SubmitTelemetry delivers a sealed page view to the service. The view
// travels as a JSON document in the URL-encoded "data" field, matching
// the service's form-based intake.
func (c *Client) SubmitTelemetry(ctx context.Context, view model.PageView) error {
	payload, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal page view: %w", err)
	}
	form := url.Values{}
	form.Set("data", string(payload))
	_, err = c.postForm(ctx, pathSubmitData, form)
	if err == errStatusUnauthorized {
		return ErrUnauthenticated
	}
	return err
}

// HomeURL returns the service home page address.
func (c *Client) HomeURL() string {
	return c.pageURL(pathHome, nil)
}

// FeedbackURL returns the feedback page address.
func (c *Client) FeedbackURL() string {
	return c.pageURL(pathFeedback, nil)
}

// TaskURL returns the tool-use page address for the given task.
func (c *Client) TaskURL(taskID int) string {
	return c.pageURL(pathTask, url.Values{"task_id": {strconv.Itoa(taskID)}})
}

// SubmissionURL returns the submission page for the given task. The
// popup navigates here only after the active tab acknowledged its
// telemetry flush.
func (c *Client) SubmissionURL(taskID int) string {
	return c.pageURL(pathSubmission, url.Values{"task_id": {strconv.Itoa(taskID)}})
}

// pageURL resolves a page path with optional query parameters.
func (c *Client) pageURL(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// errStatusUnauthorized is an internal marker for a 401/403 answer so
// each endpoint can map it to its own sentinel. It never escapes the
// package.
var errStatusUnauthorized = fmt.Errorf("unauthorized")

// postForm issues one POST with a URL-encoded body and returns the
// response body. Stored credentials are attached unless the form
// already names a username. Transport failures map to
// ErrServerUnavailable; HTTP statuses map to the marker or sentinel
// errors.
func (c *Client) postForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	if form == nil {
		form = url.Values{}
	}
	if form.Get("username") == "" && c.credentials != nil {
		creds, err := c.credentials.LoadCredentials(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load stored credentials: %w", err)
		}
		if !creds.Empty() {
			form.Set("username", creds.Username)
			form.Set("password", creds.Password)
		}
	}

	endpoint := c.pageURL(path, nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrServerUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errStatusUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: %s from %s", ErrUnexpectedStatus, resp.Status, path)
	}
	return body, nil
}
