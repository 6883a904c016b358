package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBingEndpoint = "https://api.bing.microsoft.com/v7.0"
	defaultCount        = 20
)

var ErrAPI = errors.New("search API error")

// BingClient talks to the Bing Web and News Search v7 APIs. Without an API
// key it serves fixed sample results so the rest of the pipeline can run in
// development.
type BingClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

func NewBingClient(endpoint, apiKey string, requestsPerSecond float64) *BingClient {
	if endpoint == "" {
		endpoint = DefaultBingEndpoint
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 3
	}

	return &BingClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		now:        time.Now,
	}
}

func (c *BingClient) HasAPIKey() bool {
	return c.apiKey != ""
}

type bingWebResponse struct {
	WebPages struct {
		Value []struct {
			Name            string `json:"name"`
			URL             string `json:"url"`
			Snippet         string `json:"snippet"`
			DateLastCrawled string `json:"dateLastCrawled"`
		} `json:"value"`
	} `json:"webPages"`
}

type bingNewsResponse struct {
	Value []struct {
		Name          string `json:"name"`
		URL           string `json:"url"`
		Description   string `json:"description"`
		DatePublished string `json:"datePublished"`
		Provider      []struct {
			Name string `json:"name"`
		} `json:"provider"`
	} `json:"value"`
}

func (c *BingClient) SearchWeb(ctx context.Context, req Request) ([]Result, error) {
	if !c.HasAPIKey() {
		slog.Warn("Bing API key not configured, using sample results", "source", SourceWeb)
		return mockWebResults(req.Query), nil
	}

	var data bingWebResponse
	if err := c.get(ctx, "/search", req, &data); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(data.WebPages.Value))
	for _, item := range data.WebPages.Value {
		results = append(results, Result{
			SourceType:   TypeWeb,
			SourceURL:    item.URL,
			SourceDomain: DomainOf(item.URL),
			Title:        item.Name,
			Snippet:      item.Snippet,
			PublishedAt:  parseBingTime(item.DateLastCrawled),
		})
	}

	return results, nil
}

func (c *BingClient) SearchNews(ctx context.Context, req Request) ([]Result, error) {
	if !c.HasAPIKey() {
		slog.Warn("Bing API key not configured, using sample results", "source", SourceNews)
		return mockNewsResults(req.Query, c.now()), nil
	}

	var data bingNewsResponse
	if err := c.get(ctx, "/news/search", req, &data); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(data.Value))
	for _, item := range data.Value {
		result := Result{
			SourceType:   TypeNews,
			SourceURL:    item.URL,
			SourceDomain: DomainOf(item.URL),
			Title:        item.Name,
			Snippet:      item.Description,
			PublishedAt:  parseBingTime(item.DatePublished),
		}
		if len(item.Provider) > 0 {
			result.Author = item.Provider[0].Name
		}
		results = append(results, result)
	}

	return results, nil
}

func (c *BingClient) get(ctx context.Context, path string, req Request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path+"?"+queryParams(req).Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrAPI, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}

	return nil
}

func queryParams(req Request) url.Values {
	count := req.Count
	if count <= 0 {
		count = defaultCount
	}

	params := url.Values{}
	params.Set("q", req.Query)
	params.Set("count", strconv.Itoa(count))
	params.Set("mkt", "en-US")
	params.Set("safeSearch", "Moderate")

	if req.Since != nil && req.Until != nil {
		params.Set("freshness", req.Since.UTC().Format(time.DateOnly)+".."+req.Until.UTC().Format(time.DateOnly))
	}

	return params
}

func parseBingTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

func mockWebResults(query string) []Result {
	first := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
	second := time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC)

	return []Result{
		{
			SourceType:   TypeWeb,
			SourceURL:    "https://example.com/legal-article-1",
			SourceDomain: "example.com",
			Title:        "Legal Analysis: " + query,
			Snippet:      fmt.Sprintf("This comprehensive article discusses the legal implications of %s and provides detailed analysis of relevant case law and statutory provisions.", query),
			PublishedAt:  &first,
		},
		{
			SourceType:   TypeWeb,
			SourceURL:    "https://lawreview.edu/article-2",
			SourceDomain: "lawreview.edu",
			Title:        fmt.Sprintf("Case Study: %s in Modern Litigation", query),
			Snippet:      fmt.Sprintf("An academic examination of how %s has been addressed in recent court decisions, with implications for practitioners.", query),
			Author:       "Prof. Jane Smith",
			PublishedAt:  &second,
		},
	}
}

func mockNewsResults(query string, now time.Time) []Result {
	return []Result{
		{
			SourceType:   TypeNews,
			SourceURL:    "https://legalnews.com/breaking-story",
			SourceDomain: "legalnews.com",
			Title:        fmt.Sprintf("Breaking: Major Development in %s Case", query),
			Snippet:      fmt.Sprintf("A significant ruling was issued today regarding %s, potentially setting new precedent for similar cases nationwide.", query),
			Author:       "Legal News Staff",
			PublishedAt:  &now,
		},
	}
}

type WebProvider struct {
	client *BingClient
}

func NewWebProvider(client *BingClient) *WebProvider {
	return &WebProvider{client: client}
}

func (p *WebProvider) Name() string {
	return SourceWeb
}

func (p *WebProvider) Search(ctx context.Context, req Request) ([]Result, error) {
	return p.client.SearchWeb(ctx, req)
}

type NewsProvider struct {
	client *BingClient
}

func NewNewsProvider(client *BingClient) *NewsProvider {
	return &NewsProvider{client: client}
}

func (p *NewsProvider) Name() string {
	return SourceNews
}

func (p *NewsProvider) Search(ctx context.Context, req Request) ([]Result, error) {
	return p.client.SearchNews(ctx, req)
}
