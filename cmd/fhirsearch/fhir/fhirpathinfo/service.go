package fhirpathinfo

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rs/zerolog"
)

//go:embed fieldmap.yaml
var defaultFieldMap []byte

// NewPathInfoService creates a PathInfoService backed by the built-in field map.
func NewPathInfoService(log zerolog.Logger) (*PathInfoService, error) {
	svc := &PathInfoService{
		log: log.With().Str("component", "PathInfoService").Logger(),
	}
	if err := svc.load(defaultFieldMap, "built-in"); err != nil {
		return nil, err
	}
	return svc, nil
}

// LoadFromFile replaces the field map with the one in filePath.
func (svc *PathInfoService) LoadFromFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read field map %s: %w", filePath, err)
	}
	return svc.load(data, filePath)
}

func (svc *PathInfoService) load(data []byte, source string) error {
	var fm fieldMap
	if err := yaml.Unmarshal(data, &fm); err != nil {
		return fmt.Errorf("failed to parse field map %s: %w", source, err)
	}

	count := len(fm.Common)
	for resourceType, params := range fm.Resources {
		for name, entry := range params {
			if entry.Type != "" && !entry.Type.Valid() {
				return fmt.Errorf("field map %s: %s.%s has invalid type %q", source, resourceType, name, entry.Type)
			}
		}
		count += len(params)
	}
	for name, entry := range fm.Common {
		if entry.Type != "" && !entry.Type.Valid() {
			return fmt.Errorf("field map %s: common %s has invalid type %q", source, name, entry.Type)
		}
	}

	svc.mu.Lock()
	svc.fields = fm
	svc.mu.Unlock()

	svc.log.Debug().
		Str("source", source).
		Int("entries", count).
		Msg("Loaded search parameter field map")

	return nil
}

// Lookup returns where param is found for resourceType. Resource specific entries win
// over the common ones.
func (svc *PathInfoService) Lookup(resourceType, param string) (*PathInfo, bool) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	entry, ok := svc.fields.Resources[resourceType][param]
	if !ok {
		entry, ok = svc.fields.Common[param]
	}
	if !ok || len(entry.Paths) == 0 {
		return nil, false
	}

	paths := make([]string, len(entry.Paths))
	copy(paths, entry.Paths)
	return &PathInfo{Param: param, Type: entry.Type, Paths: paths}, true
}
