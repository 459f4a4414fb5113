// Package clienttest provides an in-memory client.Transport for tests.
package clienttest

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/client"
)

// Call is one recorded request.
type Call struct {
	URL     string
	Headers map[string]string
}

// Transport answers from a fixed table of URLs. Unknown URLs get a 404.
type Transport struct {
	mu        sync.Mutex
	responses map[string]*client.Response
	errors    map[string]error
	calls     []Call
	onCall    func(url string)
}

func NewTransport() *Transport {
	return &Transport{
		responses: make(map[string]*client.Response),
		errors:    make(map[string]error),
	}
}

// Respond registers a raw response for url.
func (t *Transport) Respond(url string, status int, contentType string, body []byte) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	t.responses[url] = &client.Response{StatusCode: status, Header: header, Body: body}
	return t
}

// RespondJSON registers a FHIR JSON document for url.
func (t *Transport) RespondJSON(url string, status int, doc string) *Transport {
	return t.Respond(url, status, client.FHIRJSON, []byte(doc))
}

// RespondWithHeader adds a header to an already registered response.
func (t *Transport) RespondWithHeader(url, name, value string) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	if resp, ok := t.responses[url]; ok {
		resp.Header.Set(name, value)
	}
	return t
}

// Fail makes every request to url return err.
func (t *Transport) Fail(url string, err error) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors[url] = err
	return t
}

// OnCall registers fn to run after each request has been answered.
func (t *Transport) OnCall(fn func(url string)) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCall = fn
	return t
}

// Get records the request and answers it. A done context fails the request the way a
// real client would.
func (t *Transport) Get(ctx context.Context, url string, headers map[string]string) (*client.Response, error) {
	copied := make(map[string]string, len(headers))
	for name, value := range headers {
		copied[name] = value
	}

	t.mu.Lock()
	t.calls = append(t.calls, Call{URL: url, Headers: copied})
	onCall := t.onCall
	t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := t.answer(url)
	if onCall != nil {
		onCall(url)
	}
	return resp, err
}

func (t *Transport) answer(url string) (*client.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err, ok := t.errors[url]; ok {
		return nil, err
	}
	if resp, ok := t.responses[url]; ok {
		return resp, nil
	}
	body, _ := json.Marshal(map[string]interface{}{
		"resourceType": "OperationOutcome",
		"issue": []map[string]string{{
			"severity":    "error",
			"code":        "not-found",
			"diagnostics": "no response registered for " + url,
		}},
	})
	return &client.Response{
		StatusCode: http.StatusNotFound,
		Header:     http.Header{"Content-Type": []string{client.FHIRJSON}},
		Body:       body,
	}, nil
}

// Calls returns the recorded requests in order.
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	calls := make([]Call, len(t.calls))
	copy(calls, t.calls)
	return calls
}

// CallCount returns how often url was requested.
func (t *Transport) CallCount(url string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for _, call := range t.calls {
		if call.URL == url {
			count++
		}
	}
	return count
}
