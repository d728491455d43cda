// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It provides type-safe
// access to the server address, polling cadence, stream settings and log
// level, and can hot-reload the file when it changes on disk.
package config
