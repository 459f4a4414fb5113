package searchparameter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/client"
	"github.com/SanteonNL/fhirsearch/models/fhir"
	"github.com/rs/zerolog"
)

func NewSearchParameterRepository(transport client.Transport, preloadedDir string, log zerolog.Logger) *SearchParameterRepository {
	return &SearchParameterRepository{
		transport:    transport,
		preloadedDir: preloadedDir,
		log:          log.With().Str("component", "SearchParameterRepository").Logger(),
	}
}

// LoadCatalog fetches or reads the CapabilityStatement named by src and builds its catalog.
// Nothing is cached between calls.
func (repo *SearchParameterRepository) LoadCatalog(ctx context.Context, src Source, headers map[string]string) (*Catalog, error) {
	if src.IsZero() {
		return nil, ErrNoCapabilitySource
	}

	var (
		data []byte
		err  error
	)
	if src.URL != "" {
		if src.Name != "" {
			repo.log.Warn().
				Str("url", src.URL).
				Str("name", src.Name).
				Msg("Both capability statement url and name given, defaulting to url")
		}
		data, err = repo.fetch(ctx, src.URL, headers)
	} else {
		data, err = repo.readPreloaded(src.Name)
	}
	if err != nil {
		return nil, err
	}

	cs, err := fhir.UnmarshalCapabilityStatement(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse capability statement: %w", err)
	}

	catalog := NewCatalog(cs)
	repo.log.Debug().
		Int("resource_types", len(catalog.ResourceTypes())).
		Msg("Loaded capability statement")

	return catalog, nil
}

func (repo *SearchParameterRepository) fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if repo.transport == nil {
		return nil, fmt.Errorf("no transport configured to fetch capability statement %s", url)
	}

	resp, err := repo.transport.Get(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch capability statement: %w", err)
	}
	if !resp.OK() {
		repo.log.Error().
			Str("url", url).
			Int("status", resp.StatusCode).
			Msg("Capability statement request failed")
		return nil, fmt.Errorf("failed to fetch capability statement %s: status %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

// readPreloaded reads <preloadedDir>/<name>, appending .json when the name has no extension.
func (repo *SearchParameterRepository) readPreloaded(name string) ([]byte, error) {
	if strings.ContainsAny(name, `/\`) || name == ".." {
		return nil, fmt.Errorf("invalid capability statement name %q", name)
	}
	if filepath.Ext(name) == "" {
		name += ".json"
	}

	filePath := filepath.Join(repo.preloadedDir, name)
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read capability statement %s: %w", filePath, err)
	}

	repo.log.Debug().Str("file", filePath).Msg("Read preloaded capability statement")
	return data, nil
}
