// Package popup implements the popup UI controller: the short-lived
// context opened from the toolbar that shows login and task state and
// drives the task lifecycle.
//
// The popup never trusts its own cached view of the world. It exists
// for seconds at a time while the background coordinator and the
// annotation service keep moving, so every state it renders comes from
// a fresh query, refreshed on a poll ticker, and every action
// re-validates the active task immediately before acting. Unlike the
// page tracker, the popup path is user-initiated: failures here surface
// through the Alerter instead of degrading silently.
//
// Ending a task is the one ordered operation: the active tab's tracker
// is told to flush first, and only after that call resolves (ack,
// decline, or timeout) does the popup navigate the tab to the
// submission page that destroys the page-load context.
package popup
