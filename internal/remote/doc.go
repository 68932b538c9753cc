// Package remote implements the HTTP client for the annotation
// service. Every endpoint is a single-shot POST with a URL-encoded
// body; stored credentials are attached automatically when the caller
// does not supply them.
//
// The client never retries. A failed active-task query is reported as
// ErrServerUnavailable together with the TaskIDUnreachable sentinel,
// and the retry decision stays with the user-facing caller: an
// automatic retry loop here would turn a server outage into invisible
// background traffic and stale "active" answers.
package remote
