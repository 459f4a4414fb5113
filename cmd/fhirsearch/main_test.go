package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/SanteonNL/fhirsearch/models/fhir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCapabilityStatement = `{"resourceType":"CapabilityStatement","rest":[{"mode":"server","resource":[
	{"type":"Patient","searchParam":[{"name":"name","type":"string"}]}]}]}`

func TestQueryCommand(t *testing.T) {
	var seenAuth, seenQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/fhir+json")
		switch r.URL.Path {
		case "/fhir/metadata":
			_, _ = w.Write([]byte(testCapabilityStatement))
		case "/fhir/Patient":
			seenAuth = r.Header.Get("Authorization")
			seenQuery = r.URL.RawQuery
			_, _ = w.Write([]byte(`{"resourceType":"Bundle","type":"searchset","entry":[
				{"resource":{"resourceType":"Patient","id":"1","name":[{"family":"Smith"}],"gender":"male"}},
				{"resource":{"resourceType":"Patient","id":"2","name":[{"family":"Smith"}],"gender":"female"}}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	t.Setenv("FHIR_BASE_URL", server.URL+"/fhir")
	t.Setenv("CAPABILITY_URL", "")
	t.Setenv("CAPABILITY_NAME", "")
	t.Setenv("FHIR_HEADERS", "")

	outputDir := t.TempDir()
	var stdout bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{
		"query", "Patient?name=Smith&gender=female",
		"--capability-url", server.URL + "/fhir/metadata",
		"--header", "Authorization=Bearer cli",
		"--output-dir", outputDir,
	})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "Bearer cli", seenAuth)
	assert.Equal(t, "name=Smith", seenQuery)

	var b fhir.Bundle
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &b))
	require.NotNil(t, b.Total)
	assert.Equal(t, 1, *b.Total)

	written, err := filepath.Glob(filepath.Join(outputDir, "*", "Patient_name-Smith_gender-female_*.json"))
	require.NoError(t, err)
	require.Len(t, written, 1)
	data, err := os.ReadFile(written[0])
	require.NoError(t, err)
	assert.JSONEq(t, stdout.String(), string(data))
}

func TestQueryCommand_RequiresBaseURL(t *testing.T) {
	t.Setenv("FHIR_BASE_URL", "")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"query", "Patient?name=Smith"})
	assert.Error(t, cmd.Execute())
}

func TestQueryCommand_InvalidHeader(t *testing.T) {
	t.Setenv("FHIR_BASE_URL", "https://fhir.example.org/r4")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"query", "Patient?name=Smith", "--capability-name", "x", "--header", "no-value"})
	assert.Error(t, cmd.Execute())
}
