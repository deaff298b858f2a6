package client

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

	"github.com/alfredjeanlab/discovery/internal/model"
)

// HTTPClient implements DiscoveryClient against the discovery REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given API root
// (e.g. "https://repo.example.org/server/api"). When token is non-empty, an
// Authorization header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// SearchQuery encodes opts as discovery query parameters. The page number
// is converted to the API's zero-based form.
func SearchQuery(opts model.PaginatedSearchOptions) url.Values {
	q := url.Values{}
	if opts.Configuration != "" {
		q.Set("configuration", opts.Configuration)
	}
	if opts.Scope != "" {
		q.Set("scope", opts.Scope)
	}
	if opts.Query != "" {
		q.Set("query", opts.Query)
	}
	if opts.DSOType != "" {
		q.Set("dsoType", string(opts.DSOType))
	}
	if opts.Pagination.CurrentPage > 0 {
		q.Set("page", strconv.Itoa(opts.Pagination.CurrentPage-1))
	}
	if opts.Pagination.PageSize > 0 {
		q.Set("size", strconv.Itoa(opts.Pagination.PageSize))
	}
	if p := opts.Sort.Param(); p != "" {
		q.Set("sort", p)
	}
	for _, f := range opts.Filters {
		q.Add(f.Key(), f.Param())
	}
	if opts.FixedFilter != "" {
		if k, v, ok := strings.Cut(opts.FixedFilter, "="); ok && k != "" {
			q.Add(k, v)
		}
	}
	return q
}

// --- Discovery ---

func (c *HTTPClient) Search(ctx context.Context, opts model.PaginatedSearchOptions) (*model.SearchResult, error) {
	var resp wireSearchObjects
	path := "/discover/search/objects?" + SearchQuery(opts).Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.toModel(), nil
}

func (c *HTTPClient) SearchConfig(ctx context.Context, configuration, scope string) (*model.SearchConfig, error) {
	q := url.Values{}
	if configuration != "" {
		q.Set("configuration", configuration)
	}
	if scope != "" {
		q.Set("scope", scope)
	}
	path := "/discover/search"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp wireSearchConfig
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.toModel(configuration, scope), nil
}

func (c *HTTPClient) FacetValues(ctx context.Context, name string, opts model.PaginatedSearchOptions) (*model.FacetPage, error) {
	var resp wireFacet
	path := "/discover/facets/" + url.PathEscape(name) + "?" + SearchQuery(opts).Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	fp := resp.toModel()
	if fp.Name == "" {
		fp.Name = name
	}
	return fp, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/actuator/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Do sends a JSON request to path below the base URL and decodes the JSON
// response into result. The session server CLI commands use it directly.
func (c *HTTPClient) Do(ctx context.Context, method, path string, body, result any) error {
	return c.doJSON(ctx, method, path, body, result)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		// The repository answers {"message": ...}; our own server answers {"error": ...}.
		var errResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &errResp) == nil {
			if errResp.Message != "" {
				return &APIError{StatusCode: resp.StatusCode, Message: errResp.Message}
			}
			if errResp.Error != "" {
				return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
