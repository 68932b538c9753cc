// Package model defines the core data types shared across the webmark
// client: page-view telemetry units, task-session snapshots, and stored
// credentials.
//
// The package is intentionally free of I/O and side effects. Types here
// are exchanged between the page tracker, the background coordinator,
// and the popup controller; keeping them pure makes every component
// independently testable and avoids import cycles between the context
// packages.
package model
