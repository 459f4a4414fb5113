package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/fhir/bundle"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/metrics"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/orchestrator"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/query"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Searcher runs one orchestrated query.
type Searcher interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

type FHIRRouter struct {
	searcher Searcher
	log      zerolog.Logger
}

func NewFHIRRouter(searcher Searcher, log zerolog.Logger) *FHIRRouter {
	return &FHIRRouter{
		searcher: searcher,
		log:      log.With().Str("component", "FHIRRouter").Logger(),
	}
}

func (fr *FHIRRouter) SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/r4", func(r chi.Router) {
		r.Get("/{resourceType}", fr.handleSearch)
	})

	return r
}

func (fr *FHIRRouter) handleSearch(w http.ResponseWriter, r *http.Request) {
	resourceType := chi.URLParam(r, "resourceType")

	raw := resourceType
	if r.URL.RawQuery != "" {
		raw += "?" + r.URL.RawQuery
	}

	req := orchestrator.Request{Query: raw, Headers: map[string]string{}}
	if auth := r.Header.Get("Authorization"); auth != "" {
		req.Headers["Authorization"] = auth
	}

	result, err := fr.searcher.Run(r.Context(), req)
	if err != nil {
		fr.respondWithError(w, err)
		return
	}

	if result.Outcome == orchestrator.OutcomeTooBroad {
		respondWithOutcome(w, http.StatusBadRequest, bundle.NewTooCostlyIssue(
			fmt.Sprintf("Search on %s needs at least one parameter the server supports", resourceType)))
		return
	}

	respondWithJSON(w, http.StatusOK, result.Bundle)
}

func (fr *FHIRRouter) respondWithError(w http.ResponseWriter, err error) {
	var (
		upErr  *orchestrator.UpstreamError
		cfgErr *orchestrator.ConfigurationError
	)

	switch {
	case errors.Is(err, query.ErrInvalidQuery):
		respondWithOutcome(w, http.StatusBadRequest, bundle.NewInvalidParameterIssue(err.Error()))

	case errors.As(err, &upErr):
		switch upErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			if upErr.Authenticate != "" {
				w.Header().Set("WWW-Authenticate", upErr.Authenticate)
			}
			respondWithOutcome(w, upErr.StatusCode, bundle.NewSecurityIssue(err.Error()))
		case http.StatusBadRequest:
			respondWithOutcome(w, http.StatusBadRequest, bundle.NewInvalidParameterIssue(err.Error()))
		default:
			respondWithOutcome(w, http.StatusBadGateway, bundle.NewProcessingError(err.Error()))
		}

	case errors.As(err, &cfgErr):
		fr.log.Error().Err(err).Msg("Search misconfigured")
		respondWithOutcome(w, http.StatusInternalServerError, bundle.NewProcessingError(err.Error()))

	default:
		fr.log.Error().Err(err).Msg("Search failed")
		respondWithOutcome(w, http.StatusInternalServerError, bundle.NewProcessingError(err.Error()))
	}
}

func respondWithOutcome(w http.ResponseWriter, status int, issues ...bundle.SearchIssue) {
	respondWithJSON(w, status, bundle.NewOutcome(issues...))
}

func respondWithJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/fhir+json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(data)
}
