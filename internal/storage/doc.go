// Package storage provides the client's persistent local storage: the
// stored annotation-service credentials and a journal of flushed
// page-view telemetry.
//
// Storage is SQLite-backed (modernc.org/sqlite, no CGO) under the XDG
// data directory. The background coordinator is the only writer; it is
// deliberately stateless in memory across restarts, so anything that
// must survive a restart lives here and nowhere else. The journal
// records every telemetry submission the coordinator accepted, which
// lets a restarted coordinator answer "what did I already submit"
// without trusting any retained in-memory value.
package storage
