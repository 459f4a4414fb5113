package expand

import (
	"context"
	"errors"
	"testing"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/client/clienttest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseURL = "https://fhir.example.org/r4"

func TestCache_FetchesEachURLOnce(t *testing.T) {
	transport := clienttest.NewTransport().
		RespondJSON(baseURL+"/Binary/42", 200, `{"resourceType":"Binary","contentType":"text/plain","data":"aGk="}`)
	cache := NewCache(transport, baseURL, map[string]string{"Authorization": "Bearer x"}, zerolog.Nop())

	first, url, err := cache.Fetch(context.Background(), "Binary/42")
	require.NoError(t, err)
	assert.Equal(t, baseURL+"/Binary/42", url)

	second, _, err := cache.Fetch(context.Background(), baseURL+"/Binary/42")
	require.NoError(t, err)
	assert.Same(t, first, second)

	assert.Equal(t, 1, transport.CallCount(baseURL+"/Binary/42"))
	assert.Equal(t, "Bearer x", transport.Calls()[0].Headers["Authorization"])
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 1, cache.Hits())
	assert.Equal(t, 1, cache.Misses())
}

func TestCache_RemembersFailures(t *testing.T) {
	boom := errors.New("connection reset")
	transport := clienttest.NewTransport().Fail(baseURL+"/Binary/1", boom)
	cache := NewCache(transport, baseURL, nil, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, _, err := cache.Fetch(context.Background(), "Binary/1")
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, 1, transport.CallCount(baseURL+"/Binary/1"))
}

func TestCache_Clear(t *testing.T) {
	transport := clienttest.NewTransport()
	cache := NewCache(transport, baseURL, nil, zerolog.Nop())

	_, _, err := cache.Fetch(context.Background(), "Medication/1")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, 1, cache.Misses())

	_, _, err = cache.Fetch(context.Background(), "Medication/1")
	require.NoError(t, err)
	assert.Equal(t, 2, transport.CallCount(baseURL+"/Medication/1"))
}
