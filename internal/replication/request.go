package replication

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/taskwatch/internal/domain"
	"github.com/phrazzld/taskwatch/internal/platform/deepwiki"
)

// Mode selects the replication direction.
type Mode string

// Supported modes
const (
	// ModePush copies the local repository to the target server.
	ModePush Mode = "push"
	// ModePull copies the repository from the target server.
	ModePull Mode = "pull"
)

// StartRequest describes a replication run.
type StartRequest struct {
	TargetServer string  `json:"target_server" validate:"required,url"`
	RepositoryID int64   `json:"repository_id" validate:"gt=0"`
	DocumentIDs  []int64 `json:"document_ids"  validate:"omitempty,dive,gt=0"`
	// ClearTarget wipes the remote repository before a push.
	ClearTarget bool `json:"clear_target"`
	// ClearLocal wipes the local repository before a pull.
	ClearLocal bool `json:"clear_local"`
	Mode       Mode `json:"mode" validate:"omitempty,oneof=push pull"`
}

var validate = validator.New()

// NormalizeTarget trims whitespace and trailing slashes from a server URL.
func NormalizeTarget(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// Normalize returns a copy with the target normalized and the default mode
// filled in.
func (r StartRequest) Normalize() StartRequest {
	r.TargetServer = NormalizeTarget(r.TargetServer)
	if r.Mode == "" {
		r.Mode = ModePush
	}
	return r
}

// Validate checks the request locally. Every failure wraps
// domain.ErrValidation.
func (r StartRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if !IsHTTPURL(r.TargetServer) {
		return fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrInvalidTargetURL)
	}
	return nil
}

// IsHTTPURL reports whether raw is an absolute http or https URL with a host.
func IsHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func fieldError(fe validator.FieldError) error {
	switch fe.Field() {
	case "TargetServer":
		return fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrInvalidTargetURL)
	case "RepositoryID":
		return fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrEmptyRepository)
	}
	return fmt.Errorf("%w: invalid %s: %s", domain.ErrValidation, fe.Field(), tagMessage(fe.Tag()))
}

// tagMessage maps validation tags to user-facing messages.
func tagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "gt":
		return "must be positive"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

func (r StartRequest) toClient() deepwiki.SyncRequest {
	return deepwiki.SyncRequest{
		TargetServer: r.TargetServer,
		RepositoryID: r.RepositoryID,
		DocumentIDs:  r.DocumentIDs,
		ClearTarget:  r.ClearTarget,
		ClearLocal:   r.ClearLocal,
	}
}
