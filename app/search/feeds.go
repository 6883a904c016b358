package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/lysyi3m/research-comb/app/fetch"
)

const snippetLength = 300

// Fetcher is the subset of the safe fetcher the feed provider needs.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Response, error)
}

// FeedProvider searches RSS/Atom feeds supplied by the user. Feed URLs come
// from user input, so every fetch goes through the safe fetcher.
type FeedProvider struct {
	fetcher Fetcher
	opts    fetch.Options
}

func NewFeedProvider(fetcher Fetcher, opts fetch.Options) *FeedProvider {
	return &FeedProvider{
		fetcher: fetcher,
		opts:    opts,
	}
}

func (p *FeedProvider) Name() string {
	return SourceFeeds
}

// Search returns feed items whose title, description or content contain
// every term of the query. A feed that cannot be fetched or parsed is skipped.
func (p *FeedProvider) Search(ctx context.Context, req Request) ([]Result, error) {
	terms := strings.Fields(strings.ToLower(req.Query))

	var results []Result
	for _, feedURL := range req.FeedURLs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		items, err := p.fetchFeed(ctx, feedURL)
		if err != nil {
			slog.Warn("Feed search skipped", "feed_url", feedURL, "error", err)
			continue
		}

		for _, item := range items {
			if !matchesTerms(item, terms) || !withinRange(item, req.Since, req.Until) {
				continue
			}

			results = append(results, toResult(item))
			if req.Count > 0 && len(results) >= req.Count {
				return results, nil
			}
		}
	}

	return results, nil
}

func (p *FeedProvider) fetchFeed(ctx context.Context, feedURL string) ([]*gofeed.Item, error) {
	resp, err := p.fetcher.Fetch(ctx, feedURL, p.opts)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().ParseString(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	return feed.Items, nil
}

func matchesTerms(item *gofeed.Item, terms []string) bool {
	if item.Link == "" {
		return false
	}

	text := strings.ToLower(item.Title + " " + item.Description + " " + item.Content)
	for _, term := range terms {
		if !strings.Contains(text, term) {
			return false
		}
	}
	return true
}

func withinRange(item *gofeed.Item, since, until *time.Time) bool {
	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}
	if published == nil {
		return true
	}
	if since != nil && published.Before(*since) {
		return false
	}
	if until != nil && published.After(*until) {
		return false
	}
	return true
}

func toResult(item *gofeed.Item) Result {
	result := Result{
		SourceType:   TypeFeed,
		SourceURL:    item.Link,
		SourceDomain: DomainOf(item.Link),
		Title:        strings.TrimSpace(item.Title),
		Snippet:      truncate(plainText(cmp.Or(item.Description, item.Content)), snippetLength),
		Author:       itemAuthor(item),
	}

	if item.PublishedParsed != nil {
		published := *item.PublishedParsed
		result.PublishedAt = &published
	} else if item.UpdatedParsed != nil {
		updated := *item.UpdatedParsed
		result.PublishedAt = &updated
	}

	return result
}

func itemAuthor(item *gofeed.Item) string {
	for _, author := range item.Authors {
		if author != nil {
			if name := cmp.Or(strings.TrimSpace(author.Name), strings.TrimSpace(author.Email)); name != "" {
				return name
			}
		}
	}
	if item.Author != nil {
		return cmp.Or(strings.TrimSpace(item.Author.Name), strings.TrimSpace(item.Author.Email))
	}
	return ""
}

// plainText drops markup from a feed description and collapses whitespace.
func plainText(fragment string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))

	var sb strings.Builder
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.TextToken:
			sb.Write(tokenizer.Text())
			sb.WriteByte(' ')
		}
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
