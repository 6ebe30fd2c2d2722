package lcsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the lcsearch SDK entry point.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// Option configures the Client.
type Option interface {
	apply(*Client)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*Client)

func (f optionFunc) apply(c *Client) { f(c) }

// WithHTTPClient injects a custom HTTP client (timeouts, transport).
func WithHTTPClient(h *http.Client) Option {
	return optionFunc(func(c *Client) { c.http = h })
}

// WithToken sets the Bearer credential: an API key or a session token.
func WithToken(token string) Option {
	return optionFunc(func(c *Client) { c.token = token })
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, o := range opts {
		o.apply(c)
	}
	return c
}

// Options are the submission fields shared by every search kind.
type Options struct {
	Collections []string `json:"collections,omitempty"`
	Filter      string   `json:"filter,omitempty"`
	Columns     []string `json:"columns,omitempty"`
	Sort        string   `json:"sort,omitempty"`
	Order       string   `json:"order,omitempty"`
	Sample      int      `json:"sample,omitempty"`
	Limit       int      `json:"limit,omitempty"`
	Visibility  string   `json:"visibility,omitempty"`
}

// ConeRequest submits a cone search around a sky coordinate.
type ConeRequest struct {
	// Coordinates in decimal degrees ("290.0 45.0") or sexagesimal form.
	Coordinates  string  `json:"coordinates"`
	RadiusArcmin float64 `json:"radius_arcmin,omitempty"`
	Options
}

// FullTextRequest submits a full-text search.
type FullTextRequest struct {
	Text string `json:"text"`
	Options
}

// ColumnRequest submits a column-predicate search; Filter is required.
type ColumnRequest struct {
	Options
}

// XMatchRequest submits a cross-match of uploaded "objectid ra dec" rows.
type XMatchRequest struct {
	Upload       string  `json:"upload"`
	RadiusArcsec float64 `json:"radius_arcsec,omitempty"`
	Options
}

// ConeSearch submits a cone search and returns its event stream.
func (c *Client) ConeSearch(ctx context.Context, req ConeRequest) (*Stream, error) {
	return c.submit(ctx, "/api/cone-search", req)
}

// FullTextSearch submits a full-text search and returns its event stream.
func (c *Client) FullTextSearch(ctx context.Context, req FullTextRequest) (*Stream, error) {
	return c.submit(ctx, "/api/fulltext-search", req)
}

// ColumnSearch submits a column search and returns its event stream.
func (c *Client) ColumnSearch(ctx context.Context, req ColumnRequest) (*Stream, error) {
	return c.submit(ctx, "/api/column-search", req)
}

// XMatch submits a cross-match and returns its event stream.
func (c *Client) XMatch(ctx context.Context, req XMatchRequest) (*Stream, error) {
	return c.submit(ctx, "/api/xmatch", req)
}

func (c *Client) submit(ctx context.Context, path string, body any) (*Stream, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("lcsearch: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("lcsearch: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("lcsearch: submit: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return newStream(resp.Body), nil
}

// Dataset is the persisted view of a search result.
type Dataset struct {
	SetID      string            `json:"setid"`
	Status     string            `json:"status"`
	Message    string            `json:"message,omitempty"`
	NObjects   int64             `json:"nobjects"`
	Visibility string            `json:"visibility"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Artifacts  map[string]string `json:"artifacts,omitempty"`
	Preview    *Preview          `json:"preview,omitempty"`
}

// Preview is the bounded inline table of a completed dataset.
type Preview struct {
	Columns []string   `json:"columns"`
	Rows    []MatchRow `json:"rows"`
	Total   int64      `json:"total"`
}

// MatchRow is one matched object row.
type MatchRow struct {
	Collection   string         `json:"collection"`
	ObjectID     string         `json:"objectid"`
	Values       map[string]any `json:"values"`
	DistArcsec   float64        `json:"dist_arcsec"`
	MatchedInput string         `json:"matched_input,omitempty"`
}

// Dataset fetches the status and preview of a dataset by id.
func (c *Client) Dataset(ctx context.Context, setID string) (Dataset, error) {
	var ds Dataset
	if err := c.getJSON(ctx, "/api/sets/"+setID, &ds); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

// DownloadCSV streams the full CSV table of a dataset. The caller closes
// the reader.
func (c *Client) DownloadCSV(ctx context.Context, setID string) (io.ReadCloser, error) {
	return c.download(ctx, "/api/sets/"+setID+"/csv")
}

// DownloadBundle streams the light-curve ZIP bundle of a dataset.
func (c *Client) DownloadBundle(ctx context.Context, setID string) (io.ReadCloser, error) {
	return c.download(ctx, "/api/sets/"+setID+"/bundle")
}

// DownloadSnapshot streams the result snapshot of a dataset.
func (c *Client) DownloadSnapshot(ctx context.Context, setID string) (io.ReadCloser, error) {
	return c.download(ctx, "/api/sets/"+setID+"/snapshot")
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("lcsearch: decode response: %w", err)
	}
	return nil
}

func (c *Client) download(ctx context.Context, path string) (io.ReadCloser, error) {
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp.Body, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("lcsearch: build request: %w", err)
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lcsearch: request: %w", err)
	}
	return resp, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
