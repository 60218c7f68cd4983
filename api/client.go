package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	interrors "github.com/jrsteele09/go-dashboard-client/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jrsteele09/go-dashboard-client/api"

// TokenSource supplies the internal access token for each request. An empty
// token means the request is sent unauthenticated.
type TokenSource interface {
	AccessToken() string
}

// RequestOptions describes a single call. Body is sent as-is when it is a
// []byte or string, otherwise it is JSON encoded.
type RequestOptions struct {
	Method  string
	Headers map[string]string
	Query   url.Values
	Body    any
}

// Client executes authenticated requests against the backend API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	tracer     trace.Tracer
	strict     bool

	Auth          *AuthEndpoints
	User          *UserEndpoints
	Global        *GlobalEndpoints
	Notifications *NotificationEndpoints
	Emissions     *EmissionEndpoints
	Validation    *ValidationEndpoints
	Export        *ExportEndpoints
	Developer     *DeveloperEndpoints
}

// Option defines a function type to modify the Client instance.
type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// WithStrictDecoding makes endpoint groups return ErrMalformedPayload instead
// of degrading to the adapter's zero shape.
func WithStrictDecoding(strict bool) Option {
	return func(c *Client) {
		c.strict = strict
	}
}

// New creates a client for baseURL. tokens may be nil for an anonymous client.
func New(baseURL string, tokens TokenSource, options ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		tokens:     tokens,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}

	c.Auth = &AuthEndpoints{c: c}
	c.User = &UserEndpoints{c: c}
	c.Global = &GlobalEndpoints{c: c}
	c.Notifications = &NotificationEndpoints{c: c}
	c.Emissions = &EmissionEndpoints{c: c}
	c.Validation = &ValidationEndpoints{c: c}
	c.Export = &ExportEndpoints{c: c}
	c.Developer = &DeveloperEndpoints{c: c}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request performs the call and returns the parsed body. An absolute endpoint
// URL is used as-is instead of being joined to the base URL. A body that is not
// valid JSON is returned as a string; an empty body as nil. Transport failures
// return *NetworkError, non-2xx statuses *HTTPError.
func (c *Client) Request(ctx context.Context, endpoint string, opts RequestOptions) (any, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	fullURL := c.baseURL + endpoint
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		fullURL = endpoint
	}
	if len(opts.Query) > 0 {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		fullURL += sep + opts.Query.Encode()
	}

	ctx, span := c.tracer.Start(ctx, method+" "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", endpoint),
		))
	defer span.End()

	body, err := encodeBody(opts.Body)
	if err != nil {
		span.SetStatus(codes.Error, "encode body")
		return nil, errors.Wrap(interrors.ErrInvalidRequest, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		span.SetStatus(codes.Error, "build request")
		return nil, errors.Wrap(interrors.ErrInvalidRequest, err.Error())
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Authorization") == "" && c.tokens != nil {
		if token := c.tokens.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return nil, &NetworkError{Method: method, URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	data, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		log.Warn().Err(readErr).Str("endpoint", endpoint).Msg("Failed to read response body")
	}
	parsed := parseBody(data)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := newHTTPError(resp.StatusCode, statusText(resp), parsed)
		span.SetStatus(codes.Error, httpErr.Message)
		return nil, httpErr
	}
	return parsed, nil
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.NewReader(b), nil
	case string:
		return strings.NewReader(b), nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	return bytes.NewReader(data), nil
}

// parseBody decodes JSON keeping numbers as json.Number, falling back to the
// raw text.
func parseBody(data []byte) any {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return string(data)
	}
	return v
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

// decode runs an adapter's validating decoder over raw. Outside strict mode a
// rejected payload is logged and the adapter's fallback value returned.
func decode[T any](c *Client, endpoint string, raw any, decodeFn func(any) (T, error)) (T, error) {
	v, err := decodeFn(raw)
	if err == nil {
		return v, nil
	}
	if c.strict {
		return v, errors.Wrapf(interrors.ErrMalformedPayload, "[%s] %v", endpoint, err)
	}
	log.Warn().Err(err).Str("endpoint", endpoint).Msg("Malformed payload, using defaults")
	return v, nil
}
