// Package replication drives cross-server sync jobs: it validates a start
// request locally, starts the job on the server and polls its status until
// the job is completed or failed, folding every snapshot into a progress
// view with a de-duplicated log.
package replication
