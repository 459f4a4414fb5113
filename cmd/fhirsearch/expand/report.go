package expand

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/client"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/resource"
	"github.com/rs/zerolog"
)

// Expander rewrites references inside a result set in place. Records it changes keep
// their server form through resource.Record.Preserve.
type Expander interface {
	Applies(resourceType string) bool
	Expand(ctx context.Context, set resource.Set, cache *Cache) Report
}

// Report counts references, not records.
type Report struct {
	Attempted int
	Expanded  int
	Failed    int
}

// Incomplete reports whether any reference could not be expanded.
func (r Report) Incomplete() bool {
	return r.Failed > 0
}

func (r Report) Add(other Report) Report {
	return Report{
		Attempted: r.Attempted + other.Attempted,
		Expanded:  r.Expanded + other.Expanded,
		Failed:    r.Failed + other.Failed,
	}
}

// logFetchFailure logs a failed reference fetch. scope is the SMART scope that would
// allow reading the target, shown when the server answers 403.
func logFetchFailure(log zerolog.Logger, url, scope string, resp *client.Response, err error) {
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("Reference request failed")
		return
	}

	log.Error().
		Str("url", url).
		Int("status", resp.StatusCode).
		Msg("Reference query responded with a non-success status")

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		event := log.Error().Str("url", url)
		if challenge := resp.Authenticate(); challenge != "" {
			event = event.Str("www_authenticate", challenge)
		}
		if resp.StatusCode == http.StatusForbidden {
			event.Msgf("Scope does not allow retrieving this resource, check that it includes %s", scope)
		} else {
			event.Msg("Server requires authentication for this resource")
		}
	case http.StatusBadRequest:
		if resp.IsJSON() && json.Valid(resp.Body) {
			log.Error().RawJSON("outcome", resp.Body).Str("url", url).Msg("Server rejected reference request")
		}
	}
}

// logOutcome reports an OperationOutcome found among the results.
func logOutcome(log zerolog.Logger, record *resource.Record) {
	raw, err := record.MarshalJSON()
	if err != nil {
		log.Warn().Msg("OperationOutcome in result set")
		return
	}
	log.Warn().RawJSON("outcome", raw).Msg("OperationOutcome in result set")
}
