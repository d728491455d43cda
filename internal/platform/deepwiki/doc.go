// Package deepwiki is the REST client for the documentation generation
// server. It covers the task monitor, task actions, document versions and
// cross-server sync endpoints.
//
// Idempotent GET requests are retried on 429 and 5xx responses with bounded
// exponential backoff that honors Retry-After. Mutating requests are sent
// exactly once.
package deepwiki
