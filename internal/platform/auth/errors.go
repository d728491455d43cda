package auth

import "errors"

// Common token errors
var (
	// ErrMissingToken indicates a token was required but none is configured
	ErrMissingToken = errors.New("authentication token is missing")

	// ErrExpiredToken indicates the configured JWT has expired
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrInvalidToken indicates the token looks like a JWT but cannot be decoded
	ErrInvalidToken = errors.New("invalid authentication token")
)
