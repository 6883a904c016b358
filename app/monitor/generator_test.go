package monitor

import (
	"encoding/xml"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/research-comb/app/cfg"
	"github.com/lysyi3m/research-comb/app/database"
)

func setupTestConfig(t *testing.T) {
	t.Helper()

	// Clear os.Args to prevent config parsing from failing
	oldArgs := os.Args
	os.Args = []string{"test"}
	defer func() { os.Args = oldArgs }()

	t.Setenv("PORT", "8080")
	t.Setenv("BASE_URL", "")
	t.Setenv("TZ", "UTC")

	if _, err := cfg.Load(); err != nil {
		t.Fatal(err)
	}
}

func TestGenerateRSS(t *testing.T) {
	setupTestConfig(t)
	generator := NewGenerator()

	lastRun := time.Date(2024, time.July, 3, 6, 0, 0, 0, time.UTC)
	published := time.Date(2024, time.July, 1, 10, 0, 0, 0, time.UTC)
	created := time.Date(2024, time.July, 3, 6, 0, 1, 0, time.UTC)

	monitor := database.Monitor{
		Name:      "acme-litigation",
		QueryText: "Acme & Sons lawsuit",
		LastRunAt: &lastRun,
	}
	results := []database.Result{
		{
			ID:           "result-1",
			SourceType:   "news",
			SourceURL:    "https://news.example.com/acme?id=1&src=rss",
			SourceDomain: "news.example.com",
			Title:        "Acme sued <again>",
			Snippet:      "Plaintiffs allege breach of contract.",
			Author:       "Legal News Staff",
			PublishedAt:  &published,
			CreatedAt:    created,
		},
		{
			ID:         "result-2",
			SourceType: "web",
			SourceURL:  "https://example.com/acme",
			Title:      "Acme docket",
			CreatedAt:  created,
		},
	}

	rss, err := generator.Run(monitor, results)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !strings.Contains(rss, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Error("RSS should contain XML declaration")
	}
	if !strings.Contains(rss, "<title>Research Monitor: acme-litigation</title>") {
		t.Error("RSS should contain channel title")
	}
	if !strings.Contains(rss, "<description>Search results for &#34;Acme &amp; Sons lawsuit&#34;</description>") {
		t.Error("RSS should contain escaped channel description")
	}
	if !strings.Contains(rss, `<atom:link href="http://localhost:8080/monitors/acme-litigation/feed" rel="self"`) {
		t.Error("RSS should contain self link based on port")
	}
	if !strings.Contains(rss, "<lastBuildDate>"+lastRun.Format(time.RFC1123Z)+"</lastBuildDate>") {
		t.Error("lastBuildDate should be the monitor's last run")
	}
	if !strings.Contains(rss, "<title>Acme sued &lt;again&gt;</title>") {
		t.Error("Item title should be escaped")
	}
	if !strings.Contains(rss, `<guid isPermaLink="true">https://news.example.com/acme?id=1&amp;src=rss</guid>`) {
		t.Error("Item guid should be the escaped source URL")
	}
	if !strings.Contains(rss, "<pubDate>"+published.Format(time.RFC1123Z)+"</pubDate>") {
		t.Error("Item pubDate should use the publication date")
	}
	if !strings.Contains(rss, "<pubDate>"+created.Format(time.RFC1123Z)+"</pubDate>") {
		t.Error("Item without publication date should use the creation date")
	}
	if !strings.Contains(rss, "<description>No description available</description>") {
		t.Error("Item without snippet should have placeholder description")
	}
	if !strings.Contains(rss, "<author>Legal News Staff</author>") {
		t.Error("Item should contain author")
	}
	if strings.Count(rss, "<item>") != 2 {
		t.Errorf("Expected 2 items, got %d", strings.Count(rss, "<item>"))
	}

	var doc struct {
		XMLName xml.Name `xml:"rss"`
	}
	if err := xml.Unmarshal([]byte(rss), &doc); err != nil {
		t.Errorf("Generated RSS is not well-formed XML: %v", err)
	}
}

func TestGenerateRSSWithBaseURL(t *testing.T) {
	setupTestConfig(t)
	cfg.Get().BaseUrl = "https://research.example.com"

	rss, err := NewGenerator().Run(database.Monitor{Name: "empty", QueryText: "nothing"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(rss, `href="https://research.example.com/monitors/empty/feed"`) {
		t.Error("RSS self link should use the base URL")
	}
	if strings.Contains(rss, "<item>") {
		t.Error("RSS without results should have no items")
	}
}
