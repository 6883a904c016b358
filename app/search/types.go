// Package search queries external sources for research results.
package search

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/lysyi3m/research-comb/app/dedupe"
)

// Source names accepted in a search request.
const (
	SourceWeb   = "web"
	SourceNews  = "news"
	SourceFeeds = "feeds"
)

// Result types as stored on a result.
const (
	TypeWeb  = "web"
	TypeNews = "news"
	TypeFeed = "feed"
)

type Result struct {
	SourceType   string
	SourceURL    string
	SourceDomain string
	Title        string
	Snippet      string
	Author       string
	PublishedAt  *time.Time
}

func (r Result) DedupeFields() dedupe.Result {
	return dedupe.Result{
		SourceURL:    r.SourceURL,
		Title:        r.Title,
		SourceDomain: r.SourceDomain,
	}
}

type Request struct {
	Query    string
	Since    *time.Time
	Until    *time.Time
	Count    int
	FeedURLs []string
}

type Provider interface {
	Name() string
	Search(ctx context.Context, req Request) ([]Result, error)
}

// DomainOf returns the lower-cased hostname of rawURL, or "" when it has none.
func DomainOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// IsSource reports whether name is a known source.
func IsSource(name string) bool {
	switch name {
	case SourceWeb, SourceNews, SourceFeeds:
		return true
	}
	return false
}
