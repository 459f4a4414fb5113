package processor

import (
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/fhir/fhirpathinfo"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/resource"
	"github.com/SanteonNL/fhirsearch/models/fhir"
	"github.com/rs/zerolog"
)

// ProcessorService re-applies search criteria to records the server returned.
type ProcessorService struct {
	log         zerolog.Logger
	pathInfoSvc *fhirpathinfo.PathInfoService
}

// ProcessorConfig holds all the configuration needed to create a new processor
type ProcessorConfig struct {
	Log         zerolog.Logger
	PathInfoSvc *fhirpathinfo.PathInfoService
}

// FilterResult holds the records that satisfy every criterion, in input order, and the
// OperationOutcome entries that were taken out of the set.
type FilterResult struct {
	Records  resource.Set
	Outcomes resource.Set
	Skipped  []string // parameter keys that could not be evaluated locally
}

// criterion is one compiled query parameter.
type criterion struct {
	key       string
	paramType fhir.SearchParamType
	paths     []string
	match     func(nodes []*resource.Node) bool
}
