package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FHIR_BASE_URL", "https://fhir.example.org/r4")
	for _, key := range []string{"CAPABILITY_URL", "CAPABILITY_NAME", "PRELOADED_DIR", "HTTP_TIMEOUT", "EXPAND_BINARIES", "EXPAND_MEDICATIONS", "PORT", "FHIR_HEADERS", "ALLOW_UNFILTERED_SEARCH"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://fhir.example.org/r4", cfg.FHIRBaseURL)
	assert.Equal(t, "config/capabilitystatements", cfg.PreloadedDir)
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
	assert.True(t, cfg.ExpandBinaries)
	assert.True(t, cfg.ExpandMedications)
	assert.False(t, cfg.AllowUnfilteredSearch)
	assert.Equal(t, "8080", cfg.Port)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("FHIR_BASE_URL", "http://localhost:8080/fhir")
	t.Setenv("CAPABILITY_NAME", "hapi")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("EXPAND_BINARIES", "false")
	t.Setenv("ALLOW_UNFILTERED_SEARCH", "true")
	t.Setenv("FHIR_HEADERS", "Authorization=Bearer abc, X-Tenant=t1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "hapi", cfg.CapabilityName)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.False(t, cfg.ExpandBinaries)
	assert.True(t, cfg.AllowUnfilteredSearch)
	assert.Equal(t, map[string]string{"Authorization": "Bearer abc", "X-Tenant": "t1"}, cfg.Headers())
}

func TestValidate(t *testing.T) {
	valid := Config{FHIRBaseURL: "https://fhir.example.org", HTTPTimeout: time.Second}
	assert.NoError(t, valid.Validate())

	missing := valid
	missing.FHIRBaseURL = ""
	assert.Error(t, missing.Validate())

	scheme := valid
	scheme.FHIRBaseURL = "ftp://fhir.example.org"
	assert.Error(t, scheme.Validate())

	timeout := valid
	timeout.HTTPTimeout = 0
	assert.Error(t, timeout.Validate())

	headers := valid
	headers.FHIRHeaders = "no-equals-sign"
	assert.Error(t, headers.Validate())
	assert.Empty(t, headers.Headers())
}

func TestParseHeaders(t *testing.T) {
	headers, err := ParseHeaders("")
	require.NoError(t, err)
	assert.Empty(t, headers)

	headers, err = ParseHeaders("Accept-Language=nl,Prefer=handling=strict")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Accept-Language": "nl", "Prefer": "handling=strict"}, headers)

	_, err = ParseHeaders("=value")
	assert.Error(t, err)
}

func TestAddHeader(t *testing.T) {
	headers := map[string]string{"Authorization": "Bearer old"}
	require.NoError(t, AddHeader(headers, "Authorization=Bearer new"))
	assert.Equal(t, "Bearer new", headers["Authorization"])
	assert.Error(t, AddHeader(headers, "Authorization"))
}
