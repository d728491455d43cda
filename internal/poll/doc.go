// Package poll keeps an in-memory snapshot consistent with server state by
// fetching it on a fixed interval.
//
// A Synchronizer owns exactly one snapshot and replaces it wholesale after
// every successful fetch; readers receive the value under a read lock and
// never observe a partial update. Fetches never overlap: scheduled ticks are
// skipped while a fetch is in flight, and a manual Refresh waits for it.
// Every fetch carries a sequence number and a result is applied only when it
// is newer than the visible snapshot.
//
// Background failures are logged and counted; only Refresh returns errors.
package poll
