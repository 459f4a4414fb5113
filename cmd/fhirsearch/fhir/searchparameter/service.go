package searchparameter

import (
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/query"
	"github.com/rs/zerolog"
)

// NewSearchParameterService creates a new search parameter service
func NewSearchParameterService(log zerolog.Logger) *SearchParameterService {
	return &SearchParameterService{
		log: log.With().Str("component", "SearchParameterService").Logger(),
	}
}

// Analyze returns the keys of spec whose base name the catalog does not declare for the
// resource type. An undeclared resource type puts every key in the gap set.
func (svc *SearchParameterService) Analyze(catalog *Catalog, spec query.Spec) GapSet {
	gap := GapSet{index: make(map[string]struct{})}

	for _, p := range spec.Params {
		if catalog.Supports(spec.ResourceType, p.Name) {
			continue
		}
		gap.add(p.Key())
	}

	if !gap.IsEmpty() {
		svc.log.Info().
			Str("resource_type", spec.ResourceType).
			Strs("unsupported", gap.Keys()).
			Msg("Search parameters not supported by server, applying locally")
	}

	return gap
}

func (g *GapSet) add(key string) {
	if g.index == nil {
		g.index = make(map[string]struct{})
	}
	if _, ok := g.index[key]; ok {
		return
	}
	g.index[key] = struct{}{}
	g.keys = append(g.keys, key)
}

func (g GapSet) Contains(key string) bool {
	_, ok := g.index[key]
	return ok
}

// Keys returns the gap keys in the order they first appear in the query.
func (g GapSet) Keys() []string {
	keys := make([]string, len(g.keys))
	copy(keys, g.keys)
	return keys
}

func (g GapSet) Len() int {
	return len(g.keys)
}

func (g GapSet) IsEmpty() bool {
	return len(g.keys) == 0
}
