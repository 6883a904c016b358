package monitor

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"time"

	"github.com/lysyi3m/research-comb/app/cfg"
	"github.com/lysyi3m/research-comb/app/database"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Run renders a monitor and its visible results as an RSS 2.0 document.
// Results are written in the order given.
func (g *Generator) Run(monitor database.Monitor, results []database.Result) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	selfLink := g.selfLink(monitor.Name)

	g.writeElement(&buf, "title", fmt.Sprintf("Research Monitor: %s", monitor.Name), 4)
	g.writeElement(&buf, "link", selfLink, 4)
	g.writeElement(&buf, "description", fmt.Sprintf("Search results for \"%s\"", monitor.QueryText), 4)

	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink)))

	lastBuildDate := time.Now().In(time.Local)
	if monitor.LastRunAt != nil {
		lastBuildDate = *monitor.LastRunAt
	} else if len(results) > 0 {
		lastBuildDate = results[0].CreatedAt
	}

	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Research-Comb/%s", cfg.Get().Version), 4)

	for _, result := range results {
		g.writeItem(&buf, result)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) selfLink(monitorName string) string {
	if cfg.Get().BaseUrl != "" {
		return fmt.Sprintf("%s/monitors/%s/feed", cfg.Get().BaseUrl, monitorName)
	}
	return fmt.Sprintf("http://localhost:%s/monitors/%s/feed", cfg.Get().Port, monitorName)
}

func (g *Generator) writeItem(buf *bytes.Buffer, result database.Result) {
	buf.WriteString("    <item>\n")

	buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", g.isURL(result.SourceURL)))
	xml.EscapeText(buf, []byte(cmp.Or(result.SourceURL, result.ID)))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", cmp.Or(result.Title, result.SourceURL), 6)
	g.writeElement(buf, "link", result.SourceURL, 6)
	g.writeElement(buf, "description", cmp.Or(result.Snippet, "No description available"), 6)

	pubDate := result.CreatedAt
	if result.PublishedAt != nil {
		pubDate = *result.PublishedAt
	}
	g.writeElement(buf, "pubDate", pubDate.Format(time.RFC1123Z), 6)

	g.writeElement(buf, "author", result.Author, 6)
	g.writeElement(buf, "category", result.SourceType, 6)

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) isURL(s string) bool {
	return (len(s) > 7 && s[:7] == "http://") || (len(s) > 8 && s[:8] == "https://")
}
