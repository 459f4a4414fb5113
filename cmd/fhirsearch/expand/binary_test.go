package expand

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/client/clienttest"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/resource"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSet(t *testing.T, docs ...string) resource.Set {
	t.Helper()
	set := make(resource.Set, 0, len(docs))
	for _, doc := range docs {
		record, err := resource.NewRecord([]byte(doc))
		require.NoError(t, err)
		set = append(set, record)
	}
	return set
}

func decode(t *testing.T, node *resource.Node) string {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(node.StringField("data"))
	require.NoError(t, err)
	return string(data)
}

const htmlDocument = `<html><head><title>Letter</title><style>p{}</style></head>
<body><h1>Discharge   letter</h1><p>Patient is <b>well</b>.</p><script>alert(1)</script></body></html>`

func TestBinaryExpander_HTMLAttachment(t *testing.T) {
	transport := clienttest.NewTransport().
		Respond(baseURL+"/Binary/42", http.StatusOK, "text/html; charset=utf-8", []byte(htmlDocument))
	cache := NewCache(transport, baseURL, nil, zerolog.Nop())
	set := newSet(t, `{"resourceType":"DocumentReference","id":"d1","status":"current",
		"content":[{"attachment":{"contentType":"text/html","url":"Binary/42"}}]}`)

	report := NewBinaryExpander(zerolog.Nop()).Expand(context.Background(), set, cache)
	assert.Equal(t, Report{Attempted: 1, Expanded: 1}, report)
	assert.False(t, report.Incomplete())

	content := set[0].Root.Get("content").Items
	require.Len(t, content, 2)

	original := content[0].Get("attachment")
	assert.False(t, original.Has("url"))
	assert.Equal(t, "text/html", original.StringField("contentType"))
	assert.Equal(t, htmlDocument, decode(t, original))

	sibling := content[1].Get("attachment")
	require.NotNil(t, sibling)
	assert.Equal(t, "text/plain", sibling.StringField("contentType"))
	assert.Equal(t, "Discharge letter\nPatient is well.", decode(t, sibling))
}

func TestBinaryExpander_FHIRBinary(t *testing.T) {
	transport := clienttest.NewTransport().
		RespondJSON(baseURL+"/Binary/7", http.StatusOK, `{"resourceType":"Binary","id":"7","contentType":"application/pdf","data":"JVBERi0="}`)
	cache := NewCache(transport, baseURL, nil, zerolog.Nop())
	set := newSet(t, `{"resourceType":"DiagnosticReport","id":"r1","presentedForm":[{"url":"Binary/7","title":"Report"}]}`)

	report := NewBinaryExpander(zerolog.Nop()).Expand(context.Background(), set, cache)
	assert.Equal(t, 1, report.Expanded)

	forms := set[0].Root.Get("presentedForm").Items
	require.Len(t, forms, 1)
	assert.Equal(t, "JVBERi0=", forms[0].StringField("data"))
	assert.Equal(t, "application/pdf", forms[0].StringField("contentType"))
	assert.Equal(t, []string{"title", "data", "contentType"}, forms[0].Keys())
}

func TestBinaryExpander_SharedBinaryFetchedOnce(t *testing.T) {
	transport := clienttest.NewTransport().
		Respond(baseURL+"/Binary/42", http.StatusOK, "text/plain", []byte("shared"))
	cache := NewCache(transport, baseURL, nil, zerolog.Nop())
	set := newSet(t,
		`{"resourceType":"DocumentReference","id":"d1","content":[{"attachment":{"url":"Binary/42"}}]}`,
		`{"resourceType":"DocumentReference","id":"d2","content":[{"attachment":{"url":"Binary/42"}}]}`,
	)

	report := NewBinaryExpander(zerolog.Nop()).Expand(context.Background(), set, cache)
	assert.Equal(t, Report{Attempted: 2, Expanded: 2}, report)
	assert.Equal(t, 1, transport.CallCount(baseURL+"/Binary/42"))

	for _, record := range set {
		attachment := record.Root.Get("content").Items[0].Get("attachment")
		assert.Equal(t, "shared", decode(t, attachment))
		assert.Equal(t, "text/plain", attachment.StringField("contentType"))
	}

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
}

func TestBinaryExpander_FailedFetch(t *testing.T) {
	transport := clienttest.NewTransport().
		RespondJSON(baseURL+"/Binary/9", http.StatusForbidden, `{"resourceType":"OperationOutcome","issue":[{"severity":"error","code":"forbidden"}]}`).
		RespondWithHeader(baseURL+"/Binary/9", "WWW-Authenticate", `Bearer error="insufficient_scope"`)
	cache := NewCache(transport, baseURL, nil, zerolog.Nop())
	set := newSet(t, `{"resourceType":"DocumentReference","id":"d1","content":[{"attachment":{"contentType":"text/html","url":"Binary/9"}}]}`)

	report := NewBinaryExpander(zerolog.Nop()).Expand(context.Background(), set, cache)
	assert.Equal(t, Report{Attempted: 1, Failed: 1}, report)
	assert.True(t, report.Incomplete())

	content := set[0].Root.Get("content").Items
	require.Len(t, content, 1)
	attachment := content[0].Get("attachment")
	assert.False(t, attachment.Has("url"))
	assert.Equal(t, "", attachment.StringField("data"))
	assert.True(t, attachment.Has("data"))
}

func TestBinaryExpander_InterruptedFetchLeavesAttachment(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := clienttest.NewTransport().
		Respond(baseURL+"/Binary/1", http.StatusOK, "text/plain", []byte("first")).
		Respond(baseURL+"/Binary/2", http.StatusOK, "text/plain", []byte("second")).
		OnCall(func(url string) {
			if url == baseURL+"/Binary/1" {
				cancel()
			}
		})
	cache := NewCache(transport, baseURL, nil, zerolog.Nop())
	set := newSet(t, `{"resourceType":"DocumentReference","id":"d1","content":[
		{"attachment":{"contentType":"text/plain","url":"Binary/1"}},
		{"attachment":{"contentType":"text/plain","url":"Binary/2"}}]}`)

	report := NewBinaryExpander(zerolog.Nop()).Expand(ctx, set, cache)
	assert.Equal(t, Report{Attempted: 2, Expanded: 1}, report)
	assert.Equal(t, 1, cache.Len())

	content := set[0].Root.Get("content").Items
	assert.Equal(t, "first", decode(t, content[0].Get("attachment")))

	untouched := content[1].Get("attachment")
	assert.Equal(t, "Binary/2", untouched.StringField("url"))
	assert.False(t, untouched.Has("data"))
}

func TestBinaryExpander_PreservesServerForm(t *testing.T) {
	transport := clienttest.NewTransport().
		Respond(baseURL+"/Binary/1", http.StatusOK, "text/plain", []byte("first"))
	cache := NewCache(transport, baseURL, nil, zerolog.Nop())
	set := newSet(t,
		`{"resourceType":"DocumentReference","id":"d1","content":[{"attachment":{"url":"Binary/1"}}]}`,
		`{"resourceType":"DocumentReference","id":"d2","content":[{"attachment":{"data":"aGk="}}]}`,
	)

	NewBinaryExpander(zerolog.Nop()).Expand(context.Background(), set, cache)

	require.NotNil(t, set[0].Original)
	assert.Equal(t, "Binary/1", set[0].ResolveOriginal("content.attachment.url")[0].Str)
	assert.Nil(t, set[1].Original)
}

func TestBinaryExpander_SkipsInlineAndOtherTypes(t *testing.T) {
	transport := clienttest.NewTransport()
	cache := NewCache(transport, baseURL, nil, zerolog.Nop())
	set := newSet(t,
		`{"resourceType":"DocumentReference","id":"d1","content":[{"attachment":{"url":"Binary/1","data":"aGk="}},{"attachment":{"title":"no url"}}]}`,
		`{"resourceType":"Patient","id":"p1","photo":[{"url":"Binary/2"}]}`,
		`{"resourceType":"OperationOutcome","issue":[{"severity":"information","code":"informational"}]}`,
	)

	expander := NewBinaryExpander(zerolog.Nop())
	assert.True(t, expander.Applies("DocumentReference"))
	assert.True(t, expander.Applies("DiagnosticReport"))
	assert.False(t, expander.Applies("Patient"))

	report := expander.Expand(context.Background(), set, cache)
	assert.Equal(t, Report{}, report)
	assert.Empty(t, transport.Calls())
	assert.Equal(t, "Binary/1", set[0].Root.Get("content").Items[0].Get("attachment").StringField("url"))
}

func TestHTMLToText(t *testing.T) {
	text, err := htmlToText(`<div><ul><li>one</li><li>two  three</li></ul>tail<br>end</div>`)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo three\ntail\nend", text)
}
