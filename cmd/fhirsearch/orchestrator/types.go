package orchestrator

import (
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/client"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/expand"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/fhir/bundle"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/fhir/searchparameter"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/processor"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/query"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/resource"
	"github.com/SanteonNL/fhirsearch/models/fhir"
	"github.com/rs/zerolog"
)

// Outcome tells how a query ended when it did not fail.
type Outcome string

const (
	OutcomeMatched             Outcome = "matched"
	OutcomeUnsupportedResource Outcome = "unsupported-resource"
	OutcomeTooBroad            Outcome = "too-broad"
)

// Request is one query. Give either Query or ResourceType with Params, not both.
type Request struct {
	Query        string
	ResourceType string
	Params       []query.Param
	Capability   searchparameter.Source // falls back to the service default when empty
	Headers      map[string]string      // passed through to every upstream request
}

type Result struct {
	Outcome      Outcome
	Bundle       *fhir.Bundle
	Records      resource.Set
	GapSet       searchparameter.GapSet
	ReducedQuery string
	Expansion    expand.Report
	Diagnostics  resource.Set // OperationOutcome entries taken out of the server's results
}

type Settings struct {
	BaseURL               string
	Capability            searchparameter.Source
	Headers               map[string]string
	AllowUnfilteredSearch bool
	ExpandBinaries        bool
	ExpandMedications     bool
}

// ServiceConfig holds all the configuration needed to create a new Service
type ServiceConfig struct {
	Log            zerolog.Logger
	Settings       Settings
	Transport      client.Transport
	Repository     *searchparameter.SearchParameterRepository
	SearchParamSvc *searchparameter.SearchParameterService
	ProcessorSvc   *processor.ProcessorService
	BundleSvc      *bundle.BundleService
}

// Service runs queries. It holds no per-query state and is safe for concurrent use.
type Service struct {
	settings       Settings
	transport      client.Transport
	repo           *searchparameter.SearchParameterRepository
	searchParamSvc *searchparameter.SearchParameterService
	processorSvc   *processor.ProcessorService
	bundleSvc      *bundle.BundleService
	expanders      []expand.Expander
	log            zerolog.Logger
}
