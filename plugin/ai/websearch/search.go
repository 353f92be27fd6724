// Package websearch provides the web-search side of assistant turns: the
// search API client, the should-we-search decision rules, source citation
// formatting and the quota cooldown.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/parleychat/parley/internal/profile"
)

// ErrQuotaExceeded reports that the search provider rejected the request for
// quota or billing reasons. Callers trip the cooldown on it instead of
// retrying.
var ErrQuotaExceeded = errors.New("search quota exceeded")

// Result is one ranked search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Client calls a Tavily-compatible search API.
type Client struct {
	apiKey     string
	baseURL    string
	maxResults int
	httpClient *http.Client
}

// NewClient builds a search client from the profile. Returns nil when no
// search API key is configured.
func NewClient(p *profile.Profile) *Client {
	if p.SearchAPIKey == "" {
		return nil
	}
	return &Client{
		apiKey:     p.SearchAPIKey,
		baseURL:    p.SearchBaseURL,
		maxResults: p.SearchMaxResults,
		httpClient: &http.Client{Timeout: p.SearchTimeout},
	}
}

type searchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// Search runs one query and returns the ranked results.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	body, err := json.Marshal(searchRequest{
		APIKey:     c.apiKey,
		Query:      query,
		MaxResults: c.maxResults,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode search request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build search request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "search request failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests, http.StatusPaymentRequired, http.StatusForbidden:
		return nil, ErrQuotaExceeded
	default:
		return nil, fmt.Errorf("search request failed with status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, "failed to decode search response")
	}
	return parsed.Results, nil
}

// DefaultCooldown is how long search stays disabled after a quota error.
const DefaultCooldown = 15 * time.Minute
