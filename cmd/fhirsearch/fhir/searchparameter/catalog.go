package searchparameter

import (
	"strings"

	"github.com/SanteonNL/fhirsearch/models/fhir"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// NewCatalog builds a catalog from the server-mode rest entries of a CapabilityStatement.
// Parameters declared at rest level apply to every resource type of that entry.
func NewCatalog(cs fhir.CapabilityStatement) *Catalog {
	catalog := &Catalog{params: make(map[string]map[string]SupportedSearchParam)}

	for _, rest := range cs.Rest {
		if rest.Mode != "" && rest.Mode != fhir.RestfulCapabilityModeServer {
			continue
		}
		for _, res := range rest.Resource {
			if res.Type == "" {
				continue
			}
			if _, ok := catalog.params[res.Type]; !ok {
				catalog.params[res.Type] = make(map[string]SupportedSearchParam)
			}
			for _, sp := range res.SearchParam {
				catalog.add(res.Type, sp)
			}
			for _, sp := range rest.SearchParam {
				catalog.add(res.Type, sp)
			}
		}
	}

	return catalog
}

func (c *Catalog) add(resourceType string, sp fhir.CapabilityStatementRestResourceSearchParam) {
	if sp.Name == "" {
		return
	}
	// Resource-specific declarations win over rest-level ones.
	if _, exists := c.params[resourceType][sp.Name]; exists {
		return
	}
	c.params[resourceType][sp.Name] = SupportedSearchParam{
		ResourceType: resourceType,
		Name:         sp.Name,
		Type:         sp.Type,
	}
}

func (c *Catalog) HasResource(resourceType string) bool {
	if c == nil {
		return false
	}
	_, ok := c.params[resourceType]
	return ok
}

// Supports reports whether name (without modifier) is declared for the resource type.
func (c *Catalog) Supports(resourceType, name string) bool {
	_, ok := c.lookup(resourceType, name)
	return ok
}

func (c *Catalog) ParamType(resourceType, name string) (fhir.SearchParamType, bool) {
	sp, ok := c.lookup(resourceType, name)
	return sp.Type, ok
}

func (c *Catalog) lookup(resourceType, name string) (SupportedSearchParam, bool) {
	if c == nil {
		return SupportedSearchParam{}, false
	}
	sp, ok := c.params[resourceType][name]
	return sp, ok
}

// ResourceTypes returns the declared resource types, sorted.
func (c *Catalog) ResourceTypes() []string {
	if c == nil {
		return nil
	}
	types := maps.Keys(c.params)
	slices.Sort(types)
	return types
}

// Params returns the declared parameters of a resource type, sorted by name.
func (c *Catalog) Params(resourceType string) []SupportedSearchParam {
	if c == nil {
		return nil
	}
	params := maps.Values(c.params[resourceType])
	slices.SortFunc(params, func(a, b SupportedSearchParam) int {
		return strings.Compare(a.Name, b.Name)
	})
	return params
}
