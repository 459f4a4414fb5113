package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/client"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/expand"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/fhir/bundle"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/fhir/searchparameter"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/metrics"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/query"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/resource"
	"github.com/SanteonNL/fhirsearch/models/fhir"
)

// NewService creates a new orchestrator with all required dependencies
func NewService(config ServiceConfig) (*Service, error) {
	switch {
	case config.Transport == nil:
		return nil, fmt.Errorf("transport is required")
	case config.Repository == nil:
		return nil, fmt.Errorf("repository is required")
	case config.SearchParamSvc == nil:
		return nil, fmt.Errorf("searchParamSvc is required")
	case config.ProcessorSvc == nil:
		return nil, fmt.Errorf("processorSvc is required")
	case config.BundleSvc == nil:
		return nil, fmt.Errorf("bundleSvc is required")
	case config.Settings.BaseURL == "":
		return nil, fmt.Errorf("base URL is required")
	}

	svc := &Service{
		settings:       config.Settings,
		transport:      config.Transport,
		repo:           config.Repository,
		searchParamSvc: config.SearchParamSvc,
		processorSvc:   config.ProcessorSvc,
		bundleSvc:      config.BundleSvc,
		log:            config.Log.With().Str("component", "Orchestrator").Logger(),
	}
	if config.Settings.ExpandBinaries {
		svc.expanders = append(svc.expanders, expand.NewBinaryExpander(config.Log))
	}
	if config.Settings.ExpandMedications {
		svc.expanders = append(svc.expanders, expand.NewMedicationExpander(config.Log))
	}
	return svc, nil
}

// Run loads the server's capabilities, sends the query without the parameters the server
// does not support, expands references in what comes back and re-applies every original
// parameter locally.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	spec, err := s.receive(req)
	if err != nil {
		return nil, err
	}

	source := req.Capability
	if source.IsZero() {
		source = s.settings.Capability
	}
	if source.IsZero() {
		return nil, &ConfigurationError{Err: searchparameter.ErrNoCapabilitySource}
	}

	headers := s.headers(req.Headers)
	selfURL := client.JoinURL(s.settings.BaseURL, spec.Encode())

	catalog, err := s.repo.LoadCatalog(ctx, source, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to load capability statement: %w", err)
	}

	if !catalog.HasResource(spec.ResourceType) {
		s.log.Warn().
			Str("resource_type", spec.ResourceType).
			Msg("Resource type not supported by server, returning empty result")
		return s.finish(&Result{Outcome: OutcomeUnsupportedResource}, selfURL, bundle.NewNotSupportedIssue(
			fmt.Sprintf("The server does not support searching %s", spec.ResourceType)))
	}

	gap := s.searchParamSvc.Analyze(catalog, spec)
	reduced := query.Reduce(spec, gap)
	result := &Result{GapSet: gap, ReducedQuery: reduced.String()}

	if reduced.IsBroad() && !s.settings.AllowUnfilteredSearch {
		s.log.Warn().
			Str("query", spec.String()).
			Str("reduced_query", reduced.String()).
			Msg("No parameter left to send to the server, refusing unfiltered search")
		result.Outcome = OutcomeTooBroad
		return s.finish(result, selfURL, bundle.NewTooCostlyIssue(fmt.Sprintf(
			"Query %s would retrieve every %s resource on the server", spec.String(), spec.ResourceType)))
	}

	set, err := s.fetch(ctx, reduced, headers)
	if err != nil {
		return nil, err
	}

	cache := expand.NewCache(s.transport, s.settings.BaseURL, headers, s.log)
	defer cache.Clear()
	result.Expansion = s.expand(ctx, set, cache)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("query interrupted: %w", err)
	}

	filtered, err := s.processorSvc.Filter(ctx, set, spec, catalog)
	if err != nil {
		return nil, err
	}
	result.Records = filtered.Records
	result.Diagnostics = filtered.Outcomes
	result.Outcome = OutcomeMatched

	var issues []bundle.SearchIssue
	if !gap.IsEmpty() {
		issues = append(issues, bundle.NewInformationalIssue(fmt.Sprintf(
			"Parameters not supported by the server were applied to the results: %s", strings.Join(gap.Keys(), ", "))))
	}
	if unevaluated := unevaluatedGap(gap, filtered.Skipped); len(unevaluated) > 0 {
		issues = append(issues, bundle.NewNotSupportedIssue(fmt.Sprintf(
			"Parameters could not be applied and did not restrict the results: %s", strings.Join(unevaluated, ", "))))
	}
	if result.Expansion.Incomplete() {
		issues = append(issues, bundle.NewIncompleteIssue(fmt.Sprintf(
			"%d of %d references could not be expanded", result.Expansion.Failed, result.Expansion.Attempted)))
	}

	s.log.Info().
		Str("query", spec.String()).
		Str("reduced_query", result.ReducedQuery).
		Int("fetched", len(set)).
		Int("returned", len(result.Records)).
		Msg("Query complete")

	return s.finish(result, selfURL, issues...)
}

// receive validates the request and builds the query from whichever form was given.
func (s *Service) receive(req Request) (query.Spec, error) {
	raw := req.Query != ""
	structured := req.ResourceType != "" || len(req.Params) > 0
	if raw == structured {
		return query.Spec{}, &ConfigurationError{Err: ErrAmbiguousQuery}
	}
	if raw {
		return query.Parse(req.Query)
	}
	return query.FromValues(req.ResourceType, req.Params)
}

func (s *Service) headers(extra map[string]string) map[string]string {
	headers := make(map[string]string, len(s.settings.Headers)+len(extra))
	for name, value := range s.settings.Headers {
		headers[name] = value
	}
	for name, value := range extra {
		headers[name] = value
	}
	return headers
}

func (s *Service) fetch(ctx context.Context, reduced query.Spec, headers map[string]string) (resource.Set, error) {
	url := client.JoinURL(s.settings.BaseURL, reduced.Encode())
	s.log.Debug().Str("url", url).Msg("Querying server")

	resp, err := s.transport.Get(ctx, url, headers)
	if err != nil {
		return nil, &UpstreamError{URL: url, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, s.upstreamError(url, reduced.ResourceType, resp)
	}

	set, err := s.bundleSvc.ParseSearchSet(resp.Body)
	if err != nil {
		return nil, &UpstreamError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	return set, nil
}

func (s *Service) upstreamError(url, resourceType string, resp *client.Response) *UpstreamError {
	upErr := &UpstreamError{URL: url, StatusCode: resp.StatusCode}

	if resp.IsJSON() {
		var outcome fhir.OperationOutcome
		if err := json.Unmarshal(resp.Body, &outcome); err == nil && outcome.ResourceType == resource.OperationOutcomeType {
			upErr.Outcome = &outcome
		}
	}

	event := s.log.Error().Str("url", url).Int("status", resp.StatusCode)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		upErr.Authenticate = resp.Authenticate()
		upErr.ScopeHint = resourceType + ".read"
		event.
			Str("www_authenticate", upErr.Authenticate).
			Msgf("Server refused the query, check that the scope includes %s", upErr.ScopeHint)
	case http.StatusBadRequest:
		event.
			Str("diagnostics", upErr.Diagnostics()).
			Msg("Server rejected the query")
	default:
		event.Msg("Query responded with a non-success status")
	}

	return upErr
}

// expand runs every applicable expander in turn. The cache is cleared after each one.
func (s *Service) expand(ctx context.Context, set resource.Set, cache *expand.Cache) expand.Report {
	var report expand.Report
	for _, expander := range s.expanders {
		if !appliesToAny(expander, set) {
			continue
		}
		report = report.Add(expander.Expand(ctx, set, cache))
		s.log.Debug().
			Int("cached", cache.Len()).
			Int("hits", cache.Hits()).
			Int("misses", cache.Misses()).
			Msg("Expansion finished")
		cache.Clear()
	}
	return report
}

// unevaluatedGap returns the gap keys the filter could not evaluate either: nothing
// restricted the results on them.
func unevaluatedGap(gap searchparameter.GapSet, skipped []string) []string {
	var keys []string
	for _, key := range skipped {
		if gap.Contains(key) {
			keys = append(keys, key)
		}
	}
	return keys
}

func appliesToAny(expander expand.Expander, set resource.Set) bool {
	for _, record := range set {
		if expander.Applies(record.ResourceType()) {
			return true
		}
	}
	return false
}

func (s *Service) finish(result *Result, selfURL string, issues ...bundle.SearchIssue) (*Result, error) {
	b, err := s.bundleSvc.CreateSearchBundle(result.Records, selfURL, issues...)
	if err != nil {
		return nil, err
	}
	result.Bundle = b
	metrics.QueriesTotal.WithLabelValues(string(result.Outcome)).Inc()
	return result, nil
}
