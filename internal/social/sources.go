package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// The heavy lifting (Google Trends scraping, post search) runs in bridge
// sidecars; these clients only speak their small JSON APIs.

// trendsTimeframe is the trailing window requested from the trends bridge.
const trendsTimeframe = "now 1-H"

// TrendSource returns a search-interest series for the trailing hour,
// oldest reading first.
type TrendSource interface {
	InterestOverTime(ctx context.Context, keyword string) ([]float64, error)
}

// PostSource counts recent posts mentioning a keyword.
type PostSource interface {
	RecentCount(ctx context.Context, keyword string) (int, error)
}

// TrendsClient queries a search-interest bridge endpoint.
type TrendsClient struct {
	url        string
	httpClient *http.Client
}

// NewTrendsClient creates a trends client for the given bridge URL.
func NewTrendsClient(bridgeURL string, timeout time.Duration) *TrendsClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &TrendsClient{
		url:        bridgeURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *TrendsClient) InterestOverTime(ctx context.Context, keyword string) ([]float64, error) {
	body, err := getJSON(ctx, c.httpClient, c.url, url.Values{
		"keyword":   {keyword},
		"timeframe": {trendsTimeframe},
	})
	if err != nil {
		return nil, fmt.Errorf("trends bridge: %w", err)
	}

	var data struct {
		Series []float64 `json:"series"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("trends bridge: parse response: %w", err)
	}
	return data.Series, nil
}

// PostsClient queries a post-volume bridge endpoint.
type PostsClient struct {
	url        string
	httpClient *http.Client
}

// NewPostsClient creates a posts client for the given bridge URL.
func NewPostsClient(bridgeURL string, timeout time.Duration) *PostsClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &PostsClient{
		url:        bridgeURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *PostsClient) RecentCount(ctx context.Context, keyword string) (int, error) {
	body, err := getJSON(ctx, c.httpClient, c.url, url.Values{
		"keyword": {keyword},
		"window":  {"1h"},
	})
	if err != nil {
		return 0, fmt.Errorf("posts bridge: %w", err)
	}

	var data struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return 0, fmt.Errorf("posts bridge: parse response: %w", err)
	}
	return data.Count, nil
}

func getJSON(ctx context.Context, client *http.Client, base string, params url.Values) ([]byte, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return body, nil
}
