package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/resource"
	"github.com/SanteonNL/fhirsearch/models/fhir"
	"github.com/SanteonNL/fhirsearch/util"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BundleService reads search-set bundles from the server and builds the bundles returned to callers.
type BundleService struct {
	log zerolog.Logger
}

// SearchIssue represents a validation or processing issue
type SearchIssue struct {
	Severity fhir.IssueSeverity
	Code     fhir.IssueType
	Details  string
}

func NewBundleService(log zerolog.Logger) *BundleService {
	return &BundleService{
		log: log.With().Str("component", "BundleService").Logger(),
	}
}

// ParseSearchSet decodes a bundle into records. Entries without a resource are skipped;
// entries whose resource cannot be decoded fail the whole bundle.
func (s *BundleService) ParseSearchSet(data []byte) (resource.Set, error) {
	b, err := fhir.UnmarshalBundle(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search bundle: %w", err)
	}

	set := make(resource.Set, 0, len(b.Entry))
	for i, entry := range b.Entry {
		if len(entry.Resource) == 0 {
			s.log.Debug().Int("entry", i).Msg("Skipping bundle entry without resource")
			continue
		}

		record, err := resource.NewRecord(entry.Resource)
		if err != nil {
			return nil, fmt.Errorf("bundle entry %d: %w", i, err)
		}
		if entry.FullUrl != nil {
			record.FullURL = *entry.FullUrl
		}
		if entry.Search != nil {
			if record.Search, err = json.Marshal(entry.Search); err != nil {
				return nil, fmt.Errorf("bundle entry %d: failed to encode search: %w", i, err)
			}
		}
		set = append(set, record)
	}

	if b.Total != nil && *b.Total > len(set) {
		s.log.Info().
			Int("total", *b.Total).
			Int("returned", len(set)).
			Msg("Server reports more matches than the first page holds, only the first page is used")
	}

	return set, nil
}

// CreateSearchBundle builds a searchset bundle holding records, followed by one
// OperationOutcome entry per issue. total counts records only.
func (s *BundleService) CreateSearchBundle(records resource.Set, selfURL string, issues ...SearchIssue) (*fhir.Bundle, error) {
	b := &fhir.Bundle{
		ResourceType: "Bundle",
		Id:           util.StringPtr(uuid.NewString()),
		Type:         fhir.BundleTypeSearchset,
		Timestamp:    util.StringPtr(fhir.NewDateTime(time.Now().UTC()).String()),
		Total:        util.IntPtr(len(records)),
		Entry:        make([]fhir.BundleEntry, 0, len(records)+len(issues)),
	}
	if selfURL != "" {
		b.Link = []fhir.BundleLink{{Relation: "self", Url: selfURL}}
	}

	for _, record := range records {
		raw, err := record.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal resource: %w", err)
		}
		entry := fhir.BundleEntry{Resource: raw}
		if record.FullURL != "" {
			entry.FullUrl = util.StringPtr(record.FullURL)
		}
		if len(record.Search) > 0 {
			var search fhir.BundleEntrySearch
			if err := json.Unmarshal(record.Search, &search); err != nil {
				return nil, fmt.Errorf("failed to decode entry search: %w", err)
			}
			entry.Search = &search
		}
		b.Entry = append(b.Entry, entry)
	}

	for _, issue := range issues {
		raw, err := MarshalOutcome(issue)
		if err != nil {
			return nil, err
		}
		b.Entry = append(b.Entry, fhir.BundleEntry{
			Resource: raw,
			Search:   &fhir.BundleEntrySearch{Mode: util.StringPtr("outcome")},
		})
	}

	return b, nil
}

// NewOutcome wraps issues in an OperationOutcome.
func NewOutcome(issues ...SearchIssue) *fhir.OperationOutcome {
	outcome := &fhir.OperationOutcome{ResourceType: "OperationOutcome"}
	for _, issue := range issues {
		outcome.Issue = append(outcome.Issue, fhir.OperationOutcomeIssue{
			Severity: issue.Severity,
			Code:     issue.Code,
			Details: &fhir.CodeableConcept{
				Text: util.StringPtr(issue.Details),
			},
		})
	}
	return outcome
}

// MarshalOutcome encodes issues as an OperationOutcome without HTML escaping.
func MarshalOutcome(issues ...SearchIssue) (json.RawMessage, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(NewOutcome(issues...)); err != nil {
		return nil, fmt.Errorf("failed to marshal operation outcome: %w", err)
	}
	return json.RawMessage(bytes.TrimSpace(buf.Bytes())), nil
}

// Marshal encodes a bundle without HTML escaping.
func Marshal(b *fhir.Bundle) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(b); err != nil {
		return nil, fmt.Errorf("failed to marshal bundle: %w", err)
	}
	return buf.Bytes(), nil
}

// Processing failure
func NewProcessingError(details string) SearchIssue {
	return SearchIssue{
		Severity: fhir.IssueSeverityError,
		Code:     fhir.IssueTypeProcessing,
		Details:  details,
	}
}

// Not supported by the server
func NewNotSupportedIssue(details string) SearchIssue {
	return SearchIssue{
		Severity: fhir.IssueSeverityWarning,
		Code:     fhir.IssueTypeNotSupported,
		Details:  details,
	}
}

// Query would return too much
func NewTooCostlyIssue(details string) SearchIssue {
	return SearchIssue{
		Severity: fhir.IssueSeverityError,
		Code:     fhir.IssueTypeTooCostly,
		Details:  details,
	}
}

// Invalid parameter
func NewInvalidParameterIssue(details string) SearchIssue {
	return SearchIssue{
		Severity: fhir.IssueSeverityError,
		Code:     fhir.IssueTypeInvalid,
		Details:  details,
	}
}

// Security issue
func NewSecurityIssue(details string) SearchIssue {
	return SearchIssue{
		Severity: fhir.IssueSeverityError,
		Code:     fhir.IssueTypeSecurity,
		Details:  details,
	}
}

// Results may be missing expanded content
func NewIncompleteIssue(details string) SearchIssue {
	return SearchIssue{
		Severity: fhir.IssueSeverityWarning,
		Code:     fhir.IssueTypeIncomplete,
		Details:  details,
	}
}

// Informational note
func NewInformationalIssue(details string) SearchIssue {
	return SearchIssue{
		Severity: fhir.IssueSeverityInformation,
		Code:     fhir.IssueTypeInformational,
		Details:  details,
	}
}
