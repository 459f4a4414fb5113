package searchparameter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/client/clienttest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metadataURL = "https://fhir.example.org/r4/metadata"

func TestLoadCatalog_NoSource(t *testing.T) {
	repo := NewSearchParameterRepository(clienttest.NewTransport(), t.TempDir(), zerolog.Nop())
	_, err := repo.LoadCatalog(context.Background(), Source{}, nil)
	assert.ErrorIs(t, err, ErrNoCapabilitySource)
}

func TestLoadCatalog_Preloaded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hospital.json"), []byte(capabilityStatement), 0o644))

	transport := clienttest.NewTransport()
	repo := NewSearchParameterRepository(transport, dir, zerolog.Nop())

	catalog, err := repo.LoadCatalog(context.Background(), Source{Name: "hospital"}, nil)
	require.NoError(t, err)
	assert.True(t, catalog.Supports("Patient", "birthdate"))

	catalog, err = repo.LoadCatalog(context.Background(), Source{Name: "hospital.json"}, nil)
	require.NoError(t, err)
	assert.True(t, catalog.HasResource("Observation"))

	assert.Empty(t, transport.Calls())
}

func TestLoadCatalog_PreloadedErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "patient.json"), []byte(`{"resourceType":"Patient"}`), 0o644))
	repo := NewSearchParameterRepository(nil, dir, zerolog.Nop())

	_, err := repo.LoadCatalog(context.Background(), Source{Name: "missing"}, nil)
	assert.Error(t, err)

	_, err = repo.LoadCatalog(context.Background(), Source{Name: "../etc/passwd"}, nil)
	assert.Error(t, err)

	_, err = repo.LoadCatalog(context.Background(), Source{Name: "patient"}, nil)
	assert.Error(t, err)
}

func TestLoadCatalog_FromURL(t *testing.T) {
	transport := clienttest.NewTransport().RespondJSON(metadataURL, 200, capabilityStatement)
	repo := NewSearchParameterRepository(transport, t.TempDir(), zerolog.Nop())

	headers := map[string]string{"Authorization": "Bearer abc"}
	catalog, err := repo.LoadCatalog(context.Background(), Source{URL: metadataURL}, headers)
	require.NoError(t, err)
	assert.True(t, catalog.Supports("Observation", "code"))

	calls := transport.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Bearer abc", calls[0].Headers["Authorization"])
}

func TestLoadCatalog_URLWinsOverName(t *testing.T) {
	transport := clienttest.NewTransport().RespondJSON(metadataURL, 200, capabilityStatement)
	repo := NewSearchParameterRepository(transport, t.TempDir(), zerolog.Nop())

	catalog, err := repo.LoadCatalog(context.Background(), Source{URL: metadataURL, Name: "not-on-disk"}, nil)
	require.NoError(t, err)
	assert.True(t, catalog.HasResource("Patient"))
	assert.Equal(t, 1, transport.CallCount(metadataURL))
}

func TestLoadCatalog_FetchErrors(t *testing.T) {
	transport := clienttest.NewTransport().
		RespondJSON(metadataURL, 401, `{"resourceType":"OperationOutcome"}`).
		Fail("https://down.example.org/metadata", errors.New("connection refused"))
	repo := NewSearchParameterRepository(transport, t.TempDir(), zerolog.Nop())

	_, err := repo.LoadCatalog(context.Background(), Source{URL: metadataURL}, nil)
	assert.Error(t, err)

	_, err = repo.LoadCatalog(context.Background(), Source{URL: "https://down.example.org/metadata"}, nil)
	assert.Error(t, err)
}
