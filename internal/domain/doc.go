// Package domain contains the entities the client mirrors from the
// generation server (tasks, documents, sync jobs, queue status) together with
// the small pieces of pure logic that belong to them: status classification,
// progress and elapsed-time rules, and the shared error values.
package domain
