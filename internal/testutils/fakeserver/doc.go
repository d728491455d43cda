// Package fakeserver provides an in-memory implementation of the generation
// server's REST and log stream endpoints for tests.
//
// The server keeps tasks, documents and sync jobs in memory, records every
// request it receives, and can be told to fail specific calls so that error
// paths can be exercised without a real backend.
package fakeserver
