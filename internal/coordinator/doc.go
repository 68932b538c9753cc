// Package coordinator implements the background coordinator: the
// single authoritative query surface for login and task status within
// the client, and the relay between the other contexts and the
// annotation service.
//
// The coordinator may be torn down and restarted without warning, so it
// never trusts its own memory across queries. Task status is re-derived
// from the annotation service on every ask; the only in-memory state is
// the last-known credential validity, which is advisory (it gates
// tracker initialization) and is rebuilt from stored credentials after
// a restart. Concurrent identical active-task queries are collapsed
// with singleflight (deduplication of in-flight work, not caching):
// every completed result is handed out once and forgotten.
package coordinator
