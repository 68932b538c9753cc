package config

import (
	"net/url"
	"path"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// These mirror the behavior of the production annotation service and
// the timing constraints of the extension messaging channel.
const (
	// DefaultServiceBaseURL is the production annotation service.
	DefaultServiceBaseURL = "https://app.webmark.dev"

	// DefaultRequestTimeout bounds each HTTP request to the annotation
	// service. 15 seconds is generous for the small URL-encoded bodies
	// the service exchanges while still failing fast enough for the
	// popup's explicit action path to surface an alert.
	DefaultRequestTimeout = 15 * time.Second

	// DefaultCallTimeout bounds a cross-context message call. The
	// messaging channel is fire-and-forget with no inherent timeout; a
	// responder that never completes would otherwise leave the caller
	// pending forever. 5 seconds covers a coordinator that must make
	// one remote round trip before answering.
	DefaultCallTimeout = 5 * time.Second

	// DefaultFlushAckTimeout bounds how long the popup waits for the
	// active tab to acknowledge a forced telemetry flush before
	// opening the submission page anyway. Shorter than DefaultCallTimeout:
	// the flush is local buffer sealing plus one send, and the user is
	// actively waiting on a button press.
	DefaultFlushAckTimeout = 3 * time.Second

	// DefaultPollInterval is the popup's status refresh cadence while
	// visible. Task state can change out-of-band (ended from the task
	// page itself), so the popup re-polls rather than trusting its
	// last render. 2 seconds keeps the UI honest without hammering
	// the service.
	DefaultPollInterval = 2 * time.Second

	// DefaultUserAgent identifies the client in annotation-service logs.
	DefaultUserAgent = "webmark-client/1.0 (+https://github.com/annolab/webmark)"

	// AppName is the application name used for XDG directory paths.
	AppName = "webmark"
)

// Config holds all configuration for the webmark client. It is
// populated from defaults, optionally overlaid from a YAML file, and
// passed through the application via dependency injection rather than
// global state.
type Config struct {
	// ServiceBaseURL is the annotation service root, e.g.
	// "https://app.webmark.dev". All endpoint paths are resolved
	// relative to it.
	ServiceBaseURL string `yaml:"serviceBaseURL,omitempty"`

	// RequestTimeout is the per-request timeout for remote service
	// calls. Applies to individual HTTP requests, not to retries
	// (the client never retries; retry policy belongs to the user).
	RequestTimeout time.Duration `yaml:"requestTimeout,omitempty"`

	// CallTimeout is the default bound a caller imposes on a
	// cross-context message call.
	CallTimeout time.Duration `yaml:"callTimeout,omitempty"`

	// FlushAckTimeout is how long the popup's end-task flow waits for
	// the active tab's flush acknowledgment before proceeding.
	FlushAckTimeout time.Duration `yaml:"flushAckTimeout,omitempty"`

	// PollInterval is the popup's task-status polling cadence.
	PollInterval time.Duration `yaml:"pollInterval,omitempty"`

	// UserAgent is sent with every remote service request.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Verbose enables slog.LevelDebug output. When false, only
	// warnings and errors are logged.
	Verbose bool `yaml:"verbose,omitempty"`

	// IgnoreHosts lists host glob patterns that are never
	// instrumented, regardless of login and task state. Useful for
	// keeping banking or webmail tabs out of capture entirely.
	IgnoreHosts []string `yaml:"ignoreHosts,omitempty"`
}

// Default returns a Config populated with the default values.
func Default() Config {
	return Config{
		ServiceBaseURL:  DefaultServiceBaseURL,
		RequestTimeout:  DefaultRequestTimeout,
		CallTimeout:     DefaultCallTimeout,
		FlushAckTimeout: DefaultFlushAckTimeout,
		PollInterval:    DefaultPollInterval,
		UserAgent:       DefaultUserAgent,
	}
}

// Validate checks the configuration for internal consistency.
// It returns one of the package sentinel errors on failure.
func (c Config) Validate() error {
	if c.ServiceBaseURL == "" {
		return ErrNoServiceURL
	}
	u, err := url.Parse(c.ServiceBaseURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidServiceURL
	}
	if c.RequestTimeout <= 0 {
		return ErrInvalidRequestTimeout
	}
	if c.CallTimeout <= 0 {
		return ErrInvalidCallTimeout
	}
	if c.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	if c.FlushAckTimeout <= 0 {
		return ErrInvalidFlushAckTimeout
	}
	return nil
}

// InstrumentHost reports whether pages on the given host may be
// instrumented. Hosts matching any IgnoreHosts glob pattern are
// excluded before any login or task check runs.
func (c Config) InstrumentHost(host string) bool {
	for _, pattern := range c.IgnoreHosts {
		if ok, err := path.Match(pattern, host); err == nil && ok {
			return false
		}
	}
	return true
}

// DataDir returns the XDG data directory for the client, used for the
// credential store and telemetry journal.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// ConfigDir returns the XDG config directory for the client.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}
