// Package redact provides utilities for redacting sensitive information from strings
// before they are logged. Stream URLs carry the bearer token as a query parameter
// and transport errors frequently echo the request URL, so both go through this
// package before reaching a log handler.
package redact

import (
	"net/url"
	"regexp"
	"strings"
)

// Constants for redaction placeholders
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedJWTPlaceholder        = "[REDACTED_JWT]"
	RedactedEmailPlaceholder      = "[REDACTED_EMAIL]"
)

// sensitiveParams are query parameter names whose values are always hidden.
var sensitiveParams = map[string]bool{
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"api_key":       true,
	"apikey":        true,
	"key":           true,
	"secret":        true,
	"password":      true,
}

type rule struct {
	re   *regexp.Regexp
	repl string
}

// Precompiled patterns, applied in order.
var rules = []rule{
	// user:password@ in any URL
	{
		re:   regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*://)[^/\s:@]+:[^/\s@]+@`),
		repl: "${1}" + RedactedCredentialPlaceholder + "@",
	},
	// token-bearing query parameters inside free text
	{
		re:   regexp.MustCompile(`(?i)([?&](?:token|access_token|refresh_token|api_key|apikey|key|secret|password)=)[^&\s"']+`),
		repl: "${1}" + RedactionPlaceholder,
	},
	// Authorization header values
	{
		re:   regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9_\-.~+/]+=*`),
		repl: "Bearer " + RedactedKeyPlaceholder,
	},
	// JWT token pattern - matches the standard three-part base64url-encoded JWT token format
	{
		re:   regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
		repl: RedactedJWTPlaceholder,
	},
	{
		re:   regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*['"]?[^'"&\s]{3,}`),
		repl: RedactedCredentialPlaceholder,
	},
	{
		re:   regexp.MustCompile(`(?i)(api[_-]?key|token|secret)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`),
		repl: RedactedKeyPlaceholder,
	},
	{
		re:   regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		repl: RedactedEmailPlaceholder,
	},
	// Stack trace fragments
	{
		re:   regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`),
		repl: "[STACK_TRACE_REDACTED]",
	},
}

// String redacts sensitive information from the input string
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, r := range rules {
		result = r.re.ReplaceAllString(result, r.repl)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output
func Error(err error) string {
	if err == nil {
		return ""
	}

	return String(err.Error())
}

// URL hides userinfo and sensitive query parameter values in raw while
// leaving the rest of the URL readable. Unparseable input falls back to
// String.
func URL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return String(raw)
	}
	if u.User != nil {
		u.User = url.User("redacted")
	}
	if u.RawQuery != "" {
		parts := strings.Split(u.RawQuery, "&")
		for i, p := range parts {
			k, _, found := strings.Cut(p, "=")
			if found && sensitiveParams[strings.ToLower(k)] {
				parts[i] = k + "=" + RedactionPlaceholder
			}
		}
		u.RawQuery = strings.Join(parts, "&")
	}
	return u.String()
}
