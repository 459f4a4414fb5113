package searchparameter

import (
	"errors"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/client"
	"github.com/SanteonNL/fhirsearch/models/fhir"
	"github.com/rs/zerolog"
)

var ErrNoCapabilitySource = errors.New("no capability statement source: provide a url or a preloaded name")

// Source names where the CapabilityStatement comes from. URL wins when both are set.
type Source struct {
	URL  string
	Name string
}

func (s Source) IsZero() bool {
	return s.URL == "" && s.Name == ""
}

// SupportedSearchParam is one search parameter the server declares for a resource type.
type SupportedSearchParam struct {
	ResourceType string
	Name         string
	Type         fhir.SearchParamType
}

// Catalog holds the declared search parameters per resource type. It is not modified after loading.
type Catalog struct {
	params map[string]map[string]SupportedSearchParam // resourceType -> name -> param
}

// GapSet is the set of requested parameter keys the server does not support.
type GapSet struct {
	keys  []string
	index map[string]struct{}
}

type SearchParameterRepository struct {
	transport    client.Transport
	preloadedDir string
	log          zerolog.Logger
}

// SearchParameterService compares queries against a catalog.
type SearchParameterService struct {
	log zerolog.Logger
}
