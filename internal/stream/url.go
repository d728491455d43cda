package stream

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	"github.com/phrazzld/taskwatch/internal/domain"
)

var placeholderRegex = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// BuildURL expands ${name} placeholders in template with path-escaped vars,
// then appends tailLines (when positive) and token (when non-empty) as query
// parameters. Unknown placeholders are an error.
func BuildURL(template string, vars map[string]string, token string, tailLines int) (string, error) {
	var missing string
	expanded := placeholderRegex.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholderRegex.FindStringSubmatch(m)[1]
		v, ok := vars[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return url.PathEscape(v)
	})
	if missing != "" {
		return "", fmt.Errorf("%w: no value for stream URL placeholder %q", domain.ErrValidation, missing)
	}

	u, err := url.Parse(expanded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid stream URL: %v", domain.ErrValidation, err)
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("%w: stream URL must be absolute", domain.ErrValidation)
	}

	q := u.Query()
	if tailLines > 0 {
		q.Set("tailLines", strconv.Itoa(tailLines))
	}
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
