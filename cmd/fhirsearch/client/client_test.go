package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFHIRClient_Get(t *testing.T) {
	var gotAuth, gotAccept, gotCustom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotCustom = r.Header.Get("X-Tenant")
		w.Header().Set("Content-Type", "application/fhir+json; charset=utf-8")
		_, _ = w.Write([]byte(`{"resourceType":"Bundle"}`))
	}))
	defer server.Close()

	c := NewFHIRClient(Config{}, zerolog.Nop())
	resp, err := c.Get(context.Background(), server.URL+"/Patient", map[string]string{
		"Authorization": "Bearer token",
		"X-Tenant":      "t1",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer token", gotAuth)
	assert.Equal(t, FHIRJSON, gotAccept)
	assert.Equal(t, "t1", gotCustom)
	assert.True(t, resp.OK())
	assert.True(t, resp.IsJSON())
	assert.Equal(t, "application/fhir+json", resp.ContentType())
	assert.JSONEq(t, `{"resourceType":"Bundle"}`, string(resp.Body))
}

func TestFHIRClient_ErrorStatusIsNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewFHIRClient(Config{}, zerolog.Nop())
	resp, err := c.Get(context.Background(), server.URL+"/Binary/1", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.False(t, resp.OK())
	assert.Equal(t, `Bearer error="insufficient_scope"`, resp.Authenticate())
}

func TestFHIRClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewFHIRClient(Config{}, zerolog.Nop())
	_, err := c.Get(context.Background(), url+"/Patient", nil)
	assert.Error(t, err)
}

func TestResponse_ContentType(t *testing.T) {
	tests := []struct {
		header string
		want   string
		json   bool
	}{
		{"application/json", "application/json", true},
		{"Application/FHIR+JSON; fhirVersion=4.0", "application/fhir+json", true},
		{"text/html; charset=UTF-8", "text/html", false},
		{"application/pdf", "application/pdf", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			resp := &Response{Header: http.Header{}}
			if tt.header != "" {
				resp.Header.Set("Content-Type", tt.header)
			}
			assert.Equal(t, tt.want, resp.ContentType())
			assert.Equal(t, tt.json, resp.IsJSON())
		})
	}
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "https://fhir.example.org/r4/Binary/42", JoinURL("https://fhir.example.org/r4/", "Binary/42"))
	assert.Equal(t, "https://fhir.example.org/r4/Binary/42", JoinURL("https://fhir.example.org/r4", "/Binary/42"))
	assert.Equal(t, "https://other.example.org/Binary/1", JoinURL("https://fhir.example.org/r4", "https://other.example.org/Binary/1"))
	assert.Equal(t, "HTTP://other.example.org/Binary/1", JoinURL("https://fhir.example.org/r4", "HTTP://other.example.org/Binary/1"))
}
