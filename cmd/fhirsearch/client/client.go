package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/metrics"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

const FHIRJSON = "application/fhir+json"

// Transport performs GET requests against a FHIR server. Header names are sent as given.
type Transport interface {
	Get(ctx context.Context, url string, headers map[string]string) (*Response, error)
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ContentType returns the media type without parameters, lower-cased.
func (r *Response) ContentType() string {
	if r == nil || r.Header == nil {
		return ""
	}
	raw := r.Header.Get("Content-Type")
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		mediaType, _, _ = strings.Cut(raw, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func (r *Response) IsJSON() bool {
	ct := r.ContentType()
	return ct == "application/json" || strings.HasSuffix(ct, "+json")
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Authenticate returns the WWW-Authenticate challenge, if any.
func (r *Response) Authenticate() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get("WWW-Authenticate")
}

type Config struct {
	Timeout time.Duration
}

type FHIRClient struct {
	httpClient *retryablehttp.Client
	log        zerolog.Logger
}

// NewFHIRClient returns a client that never retries: every reference is fetched at most
// once per invocation and failures are reported to the caller as they are.
func NewFHIRClient(config Config, log zerolog.Logger) *FHIRClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	log = log.With().Str("component", "FHIRClient").Logger()

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.HTTPClient = &http.Client{Timeout: timeout}
	retryClient.Logger = &leveledLogger{log: log}

	return &FHIRClient{
		httpClient: retryClient,
		log:        log,
	}
}

func (c *FHIRClient) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	req, err := c.prepareRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	c.signRequest(req, headers)
	return c.sendRequest(req)
}

func (c *FHIRClient) prepareRequest(ctx context.Context, method, url string) (*retryablehttp.Request, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	req.Header.Set("Accept", FHIRJSON)
	return req, nil
}

// signRequest copies caller headers, such as Authorization, onto the request.
func (c *FHIRClient) signRequest(req *retryablehttp.Request, headers map[string]string) {
	for name, value := range headers {
		req.Header.Set(name, value)
	}
}

func (c *FHIRClient) sendRequest(req *retryablehttp.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("request to %s failed: %w", req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to read response from %s: %w", req.URL.Redacted(), err)
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	c.log.Debug().
		Str("url", req.URL.Redacted()).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Msg("Upstream response")

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// JoinURL resolves a reference against the server base. Absolute references are returned unchanged.
func JoinURL(base, ref string) string {
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return ref
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(ref, "/")
}

type leveledLogger struct {
	log zerolog.Logger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Trace().Fields(keysAndValues).Msg(msg)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}
