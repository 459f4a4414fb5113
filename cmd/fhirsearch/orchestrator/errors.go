package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/SanteonNL/fhirsearch/models/fhir"
)

var ErrAmbiguousQuery = errors.New("exactly one of a raw query or a resource type with parameters must be given")

// ConfigurationError reports a request that cannot run as configured.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// UpstreamError reports a failed primary search request. StatusCode is zero when no
// response was received.
type UpstreamError struct {
	URL          string
	StatusCode   int
	Authenticate string // WWW-Authenticate challenge on 401 and 403
	ScopeHint    string
	Outcome      *fhir.OperationOutcome
	Err          error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "upstream search %s responded with status %d", e.URL, e.StatusCode)
	} else {
		fmt.Fprintf(&b, "upstream search %s failed", e.URL)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	if diagnostics := e.Diagnostics(); diagnostics != "" {
		b.WriteString(": " + diagnostics)
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Diagnostics joins the diagnostics of the server's OperationOutcome.
func (e *UpstreamError) Diagnostics() string {
	if e.Outcome == nil {
		return ""
	}
	var parts []string
	for _, issue := range e.Outcome.Issue {
		switch {
		case issue.Diagnostics != nil && *issue.Diagnostics != "":
			parts = append(parts, *issue.Diagnostics)
		case issue.Details != nil && issue.Details.Text != nil:
			parts = append(parts, *issue.Details.Text)
		}
	}
	return strings.Join(parts, "; ")
}
