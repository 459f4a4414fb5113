package fhirpathinfo

import (
	"sync"

	"github.com/SanteonNL/fhirsearch/models/fhir"
	"github.com/rs/zerolog"
)

// PathInfo tells the filter where a search parameter looks inside a resource.
type PathInfo struct {
	Param string
	Type  fhir.SearchParamType
	Paths []string // dot paths relative to the resource root, "[x]" marks a choice element
}

type fieldEntry struct {
	Type  fhir.SearchParamType `yaml:"type"`
	Paths []string             `yaml:"paths"`
}

type fieldMap struct {
	Common    map[string]fieldEntry            `yaml:"common"`
	Resources map[string]map[string]fieldEntry `yaml:"resources"`
}

type PathInfoService struct {
	fields fieldMap
	mu     sync.RWMutex
	log    zerolog.Logger
}
