package research

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/lysyi3m/research-comb/app/database"
	"github.com/lysyi3m/research-comb/app/fetch"
	"github.com/lysyi3m/research-comb/app/search"
)

const (
	DefaultWaybackEndpoint = "https://web.archive.org"

	ArchiveMethodWayback = "wayback"
	ArchiveMethodLocal   = "local"
)

type ArchiveOutcome struct {
	ArchivedURL string
	ArchiveID   string
	Method      string
}

type WaybackOptions struct {
	Enabled  bool
	Endpoint string
}

// Archiver preserves the page behind a result, either through the Wayback
// Machine or as a local snapshot.
type Archiver struct {
	fetcher    search.Fetcher
	fetchOpts  fetch.Options
	results    database.ResultRepository
	archives   database.ArchiveRepository
	wayback    WaybackOptions
	httpClient *http.Client
	converter  *md.Converter
	now        func() time.Time
}

func NewArchiver(fetcher search.Fetcher, fetchOpts fetch.Options, results database.ResultRepository,
	archives database.ArchiveRepository, wayback WaybackOptions) *Archiver {
	if wayback.Endpoint == "" {
		wayback.Endpoint = DefaultWaybackEndpoint
	}
	wayback.Endpoint = strings.TrimRight(wayback.Endpoint, "/")

	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	return &Archiver{
		fetcher:    fetcher,
		fetchOpts:  fetchOpts,
		results:    results,
		archives:   archives,
		wayback:    wayback,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		converter:  converter,
		now:        time.Now,
	}
}

// Archive stores a copy of the result's page for userID and records the
// archived URL on the result.
func (a *Archiver) Archive(ctx context.Context, userID, resultID string) (*ArchiveOutcome, error) {
	result, err := loadOwnedResult(a.results, userID, resultID)
	if err != nil {
		return nil, err
	}

	var outcome *ArchiveOutcome
	if a.wayback.Enabled {
		outcome, err = a.saveToWayback(ctx, result.SourceURL)
		if err != nil {
			slog.Warn("Wayback Machine archive failed, storing local snapshot", "result_id", resultID, "error", err)
		}
	}

	if outcome == nil {
		outcome, err = a.saveSnapshot(ctx, result)
		if err != nil {
			return nil, fmt.Errorf("failed to archive URL: %w", err)
		}
	}

	if err := a.results.UpdateArchive(resultID, outcome.ArchivedURL, a.now()); err != nil {
		return nil, fmt.Errorf("failed to record archive: %w", err)
	}

	slog.Info("Result archived", "result_id", resultID, "method", outcome.Method, "archived_url", outcome.ArchivedURL)

	return outcome, nil
}

func (a *Archiver) saveToWayback(ctx context.Context, sourceURL string) (*ArchiveOutcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.wayback.Endpoint+"/save/"+sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request save: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("save returned %d", resp.StatusCode)
	}

	timestamp := a.now().UTC().Format("20060102150405")
	return &ArchiveOutcome{
		ArchivedURL: fmt.Sprintf("%s/web/%s/%s", a.wayback.Endpoint, timestamp, sourceURL),
		Method:      ArchiveMethodWayback,
	}, nil
}

func (a *Archiver) saveSnapshot(ctx context.Context, result *database.Result) (*ArchiveOutcome, error) {
	resp, err := a.fetcher.Fetch(ctx, result.SourceURL, a.fetchOpts)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(resp.Content))
	archive := &database.Archive{
		UserID:      result.UserID,
		ResultID:    result.ID,
		OriginalURL: result.SourceURL,
		FinalURL:    resp.FinalURL,
		ContentType: resp.ContentType,
		Content:     resp.Content,
		ContentHash: hex.EncodeToString(sum[:]),
		CreatedAt:   a.now(),
	}

	if isHTML(resp.ContentType, resp.Content) {
		meta := extractPageMeta(resp.Content, resp.FinalURL)
		archive.Title = meta.title
		archive.CanonicalURL = meta.canonicalURL
		archive.Markdown, archive.Title = a.toMarkdown(resp.Content, resp.FinalURL, archive.Title)
	}

	if err := a.archives.CreateArchive(archive); err != nil {
		return nil, err
	}

	return &ArchiveOutcome{
		ArchivedURL: "/api/archives/" + archive.ID,
		ArchiveID:   archive.ID,
		Method:      ArchiveMethodLocal,
	}, nil
}

// toMarkdown converts the readable part of a page to Markdown, falling back
// to the whole document when no article can be extracted.
func (a *Archiver) toMarkdown(content, pageURL, title string) (string, string) {
	source := content

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(content), parsedURL)
	if err != nil {
		slog.Debug("Readable content extraction failed, converting full page", "url", pageURL, "error", err)
	} else if article.Content != "" {
		source = article.Content
		if title == "" {
			title = article.Title
		}
	}

	markdown, err := a.converter.ConvertString(source)
	if err != nil {
		slog.Debug("Markdown conversion failed", "url", pageURL, "error", err)
		return "", title
	}

	return strings.TrimSpace(markdown), title
}

func isHTML(contentType, content string) bool {
	if contentType != "" {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return strings.Contains(strings.ToLower(content[:min(len(content), 512)]), "<html")
}

type pageMeta struct {
	title        string
	canonicalURL string
}

// extractPageMeta reads the document title and the rel=canonical link,
// resolved against pageURL.
func extractPageMeta(content, pageURL string) pageMeta {
	var meta pageMeta

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return meta
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if meta.title == "" && n.FirstChild != nil {
					meta.title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "link":
				if meta.canonicalURL == "" && strings.EqualFold(attr(n, "rel"), "canonical") {
					meta.canonicalURL = resolveURL(pageURL, attr(n, "href"))
				}
			case "body":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return meta
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func resolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(refURL).String()
}
