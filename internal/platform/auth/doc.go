// Package auth supplies the bearer token attached to REST calls and log
// stream URLs.
//
// The client never verifies token signatures, since it does not hold the
// server's key. When the configured token is a JWT its registered claims are
// inspected so that an expired token is reported before a request is sent.
package auth
