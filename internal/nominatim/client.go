// Package nominatim is a typed client for the Nominatim geocoding API
// (https://nominatim.org/release-docs/develop/api/Overview/).
//
// Every method issues exactly one GET request and returns either a typed result
// or an *APIError. The client never retries, caches or throttles; those are
// decisions for the caller.
package nominatim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public OpenStreetMap Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org/"

const (
	defaultTimeout     = 10 * time.Second
	defaultSearchLimit = 10
)

// HTTPClient defines the interface for making HTTP requests.
// *http.Client satisfies it; tests substitute a double.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a single Nominatim server. It holds only configuration
// fixed at construction, so one Client may be shared by any number of goroutines.
type Client struct {
	client  HTTPClient
	baseURL *url.URL
	ident   Identification
	email   string
	limit   int
	log     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*clientSettings) error

type clientSettings struct {
	client  HTTPClient
	baseURL string
	timeout time.Duration
	ident   Identification
	email   string
	limit   int
	log     *slog.Logger
}

// WithBaseURL points the client at a different Nominatim server, e.g. a self-hosted one.
func WithBaseURL(baseURL string) ClientOption {
	return func(s *clientSettings) error {
		s.baseURL = baseURL
		return nil
	}
}

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(client HTTPClient) ClientOption {
	return func(s *clientSettings) error {
		if client == nil {
			return errors.New("http client must not be nil")
		}
		s.client = client
		return nil
	}
}

// WithTimeout sets the timeout of the default *http.Client. It has no effect
// together with WithHTTPClient.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(s *clientSettings) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", timeout)
		}
		s.timeout = timeout
		return nil
	}
}

// WithIdentification sets the header used to identify the application.
func WithIdentification(ident Identification) ClientOption {
	return func(s *clientSettings) error {
		s.ident = ident
		return nil
	}
}

// WithEmail adds the email parameter Nominatim asks heavy users to provide.
func WithEmail(email string) ClientOption {
	return func(s *clientSettings) error {
		s.email = email
		return nil
	}
}

// WithLimit sets the maximum number of results returned by Search and SearchStructured.
func WithLimit(limit int) ClientOption {
	return func(s *clientSettings) error {
		if limit < 1 || limit > 40 {
			return fmt.Errorf("limit must be between 1 and 40, got %d", limit)
		}
		s.limit = limit
		return nil
	}
}

// WithLogger sets the logger used for debug tracing of requests.
func WithLogger(log *slog.Logger) ClientOption {
	return func(s *clientSettings) error {
		if log != nil {
			s.log = log
		}
		return nil
	}
}

// NewClient creates a Client for DefaultBaseURL unless WithBaseURL is given.
func NewClient(opts ...ClientOption) (*Client, error) {
	settings := clientSettings{
		baseURL: DefaultBaseURL,
		timeout: defaultTimeout,
		ident:   UserAgent(DefaultUserAgent),
		limit:   defaultSearchLimit,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if err := opt(&settings); err != nil {
			return nil, fmt.Errorf("invalid client option: %w", err)
		}
	}

	base, err := url.Parse(settings.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https, got %q", settings.baseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base URL has no host: %q", settings.baseURL)
	}

	if settings.client == nil {
		settings.client = &http.Client{Timeout: settings.timeout}
	}

	return &Client{
		client:  settings.client,
		baseURL: base,
		ident:   settings.ident,
		email:   settings.email,
		limit:   settings.limit,
		log:     settings.log,
	}, nil
}

// BaseURL returns the server the client sends requests to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Lookup resolves a single query into the best matching place.
//
// Reverse queries hit /reverse, search queries hit /search with limit=1.
// An invalid query fails with KindInvalidInput before any request is made.
// A successful answer without a place is reported as KindService wrapping ErrNotFound.
func (c *Client) Lookup(ctx context.Context, query Query) (*GeocodeResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	path, values := query.params(1)
	status, body, err := c.get(ctx, path, values)
	if err != nil {
		return nil, err
	}

	if query.IsReverse() {
		return decodeReverse(status, body)
	}

	results, err := decodeList(status, body)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, notFound(status, body, "search returned no results")
	}

	return &results[0], nil
}

// Search returns all places matching a search query, up to the client limit.
// An empty slice is not an error.
//
// See https://nominatim.org/release-docs/develop/api/Search/.
func (c *Client) Search(ctx context.Context, query Query) ([]GeocodeResult, error) {
	if query.IsReverse() {
		return nil, invalidInput("Search needs a query built with SearchQuery")
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	path, values := query.params(c.limit)
	status, body, err := c.get(ctx, path, values)
	if err != nil {
		return nil, err
	}

	return decodeList(status, body)
}

// SearchStructured runs a forward search from separate address parts.
func (c *Client) SearchStructured(ctx context.Context, query StructuredQuery) ([]GeocodeResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	status, body, err := c.get(ctx, "search", query.params(c.limit))
	if err != nil {
		return nil, err
	}

	return decodeList(status, body)
}

// LookupOSM returns the places for OSM node, way or relation ids such as "N240109189" or "R146656".
//
// See https://nominatim.org/release-docs/develop/api/Lookup/.
func (c *Client) LookupOSM(ctx context.Context, ids ...string) ([]GeocodeResult, error) {
	if err := validateOSMIDs(ids); err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("osm_ids", strings.Join(ids, ","))
	values.Set("format", "json")
	values.Set("addressdetails", "1")
	values.Set("extratags", "1")

	status, body, err := c.get(ctx, "lookup", values)
	if err != nil {
		return nil, err
	}

	return decodeList(status, body)
}

// Status checks the health of the Nominatim server.
//
// See https://nominatim.org/release-docs/develop/api/Status/.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	values := url.Values{}
	values.Set("format", "json")

	status, body, err := c.get(ctx, "status", values)
	if err != nil {
		return nil, err
	}

	return decodeStatus(status, body)
}

// get performs the single request of an operation and returns the body of a 2xx answer.
func (c *Client) get(ctx context.Context, path string, values url.Values) (int, []byte, error) {
	if c.email != "" {
		values.Set("email", c.email)
	}

	reqURL := c.baseURL.JoinPath(path)
	reqURL.RawQuery = values.Encode()

	c.log.DebugContext(ctx, "Nominatim request URL", "url", reqURL.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return 0, nil, networkError("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	c.ident.apply(req.Header)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, networkError("failed to execute geocoding request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, networkError("failed to read response body", err)
	}

	c.log.DebugContext(ctx, "Nominatim response", "status", resp.StatusCode, "bytes", len(body))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return 0, nil, &APIError{
			Kind:       KindService,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Message:    "unexpected status",
		}
	}

	return resp.StatusCode, body, nil
}

func decodeReverse(status int, body []byte) (*GeocodeResult, error) {
	var p place
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, deserializationError(status, err)
	}
	if p.Error != "" {
		return nil, notFound(status, body, p.Error)
	}

	result, err := p.toResult(body)
	if err != nil {
		return nil, deserializationError(status, err)
	}

	return &result, nil
}

var (
	errNotArray      = errors.New("response is not a JSON array")
	errStatusMissing = errors.New("status response has no status or message")
)

func decodeStatus(code int, body []byte) (*Status, error) {
	var raw struct {
		Status  *int    `json:"status"`
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, deserializationError(code, err)
	}
	if raw.Status == nil || raw.Message == nil {
		return nil, deserializationError(code, errStatusMissing)
	}

	var result Status
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, deserializationError(code, err)
	}

	return &result, nil
}

func decodeList(status int, body []byte) ([]GeocodeResult, error) {
	// null would decode into an empty slice.
	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, deserializationError(status, errNotArray)
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, deserializationError(status, err)
	}

	results := make([]GeocodeResult, 0, len(raws))
	for idx, raw := range raws {
		result, err := decodePlace(raw)
		if err != nil {
			return nil, deserializationError(status, fmt.Errorf("result %d: %w", idx, err))
		}
		results = append(results, result)
	}

	return results, nil
}

func notFound(status int, body []byte, msg string) *APIError {
	return &APIError{
		Kind:       KindService,
		StatusCode: status,
		Body:       string(body),
		Message:    msg,
		Err:        ErrNotFound,
	}
}
