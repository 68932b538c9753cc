// Package messaging implements the cross-context message protocol that
// connects the page tracker, the background coordinator, and the popup
// controller.
//
// The underlying channel is asynchronous, at-most-once, and
// fire-and-forget: a sent envelope may be delivered or silently lost,
// and nothing retries on the sender's behalf. Package messaging layers
// a request/response discipline on top of that channel:
//
//   - Send delivers an envelope without expecting an answer.
//   - Call delivers an envelope and waits for the single response,
//     distinguishing three failure modes the caller must handle
//     separately: an application-level negative answer (carried in the
//     response payload), a transport failure (no receiving end), and a
//     timeout (a responder that never completed).
//   - Responders receive a completion function that must be invoked
//     exactly once; additional invocations are rejected with
//     ErrAlreadyResponded rather than corrupting a second caller.
//
// Each endpoint processes its inbox on a single goroutine, mirroring
// the single-threaded cooperative event loop of a real execution
// context: handlers for one endpoint never run concurrently with each
// other, but ordering across endpoints is unspecified.
package messaging
