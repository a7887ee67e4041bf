// Package postgrest talks to a project's PostgREST-compatible REST surface
// with the credentials of a detected connection.
package postgrest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ppiankov/supaspectre/internal/credential"
	"github.com/ppiankov/supaspectre/internal/models"
)

const (
	openAPIAccept = "application/openapi+json;version=3.0"
	jsonAccept    = "application/json"
	maxBodyBytes  = 4 << 20
	maxErrorRunes = 200
)

// Client issues requests with a connection's apikey, bearer and schema
// headers. Requests have no timeout of their own; callers bound them with
// the context.
type Client struct {
	baseURL    string
	apiKey     string
	bearer     string
	schema     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL points the client at a non-default REST root
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for conn. Returns nil if conn is not usable.
func New(conn *models.Connection, opts ...Option) *Client {
	if !conn.Usable() {
		return nil
	}
	c := &Client{
		baseURL:    credential.BaseURL(conn.ProjectID),
		apiKey:     strings.TrimSpace(conn.APIKey),
		bearer:     strings.TrimSpace(conn.BearerToken()),
		schema:     credential.NormalizeSchema(conn.Schema),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the REST root the client talks to
func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, rawURL, accept string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer)
	req.Header.Set("Accept-Profile", c.schema)
	req.Header.Set("Accept", accept)
	req.Header.Set("Cache-Control", "no-cache")
	return req, nil
}

// FetchOpenAPI downloads the schema document served at the REST root
func (c *Client) FetchOpenAPI(ctx context.Context) (*Document, error) {
	if c == nil {
		return nil, fmt.Errorf("no usable connection")
	}
	req, err := c.newRequest(ctx, c.baseURL+"/", openAPIAccept)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch openapi: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read openapi: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("OpenAPI request failed (%d): %s", resp.StatusCode, TrimErrorMessage(string(body)))
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decode openapi: invalid JSON document")
	}
	return &Document{raw: string(body)}, nil
}

// Probe is the raw outcome of a single-row table fetch
type Probe struct {
	Status   int
	RowCount *int64
	Columns  []string
	Body     string
}

// OK reports a 2xx response
func (p *Probe) OK() bool {
	return p.Status >= 200 && p.Status <= 299
}

// ProbeTable fetches at most one row of table. With wantCount it asks for
// an exact count, read back from Content-Range. A transport failure is
// returned as an error; any HTTP status is returned as a Probe.
func (c *Client) ProbeTable(ctx context.Context, table string, wantCount bool) (*Probe, error) {
	if c == nil {
		return nil, fmt.Errorf("no usable connection")
	}
	q := url.Values{}
	q.Set("select", "*")
	q.Set("limit", "1")
	req, err := c.newRequest(ctx, c.baseURL+"/"+url.PathEscape(table)+"?"+q.Encode(), jsonAccept)
	if err != nil {
		return nil, err
	}
	if wantCount {
		req.Header.Set("Prefer", "count=exact")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", table, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}

	p := &Probe{Status: resp.StatusCode, Body: string(body)}
	if wantCount {
		p.RowCount = ParseRowCountFromRange(resp.Header.Get("Content-Range"))
	}
	if p.OK() {
		p.Columns = firstRowColumns(body)
	}
	return p, nil
}

// ParseRowCountFromRange reads the total from a "0-0/42" style header.
// An unknown total ("*") or a malformed header yields nil.
func ParseRowCountFromRange(header string) *int64 {
	idx := strings.LastIndex(header, "/")
	if idx < 0 {
		return nil
	}
	total := strings.TrimSpace(header[idx+1:])
	if total == "" || total == "*" {
		return nil
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// TrimErrorMessage trims text to 200 characters, marking the cut with "…"
func TrimErrorMessage(text string) string {
	trimmed := strings.TrimSpace(text)
	runes := []rune(trimmed)
	if len(runes) <= maxErrorRunes {
		return trimmed
	}
	return string(runes[:maxErrorRunes]) + "…"
}

// firstRowColumns returns the keys of the first object in a JSON array,
// in document order
func firstRowColumns(body []byte) []string {
	doc := gjson.ParseBytes(body)
	if !doc.IsArray() {
		return nil
	}
	first := doc.Get("0")
	if !first.IsObject() {
		return nil
	}
	var cols []string
	first.ForEach(func(key, _ gjson.Result) bool {
		cols = append(cols, key.String())
		return true
	})
	return cols
}
