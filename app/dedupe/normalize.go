package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeURL reduces a URL to host+path+query so that scheme, "www.",
// host case and a trailing slash do not distinguish otherwise equal URLs.
// Input that does not parse as an absolute URL is only lower-cased.
func NormalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err == nil && parsed.Scheme != "" && parsed.Opaque != "" {
		// mailto:, tel: and the like have no host; only the opaque part and query count.
		return trimTrailingSlash(parsed.Opaque) + rawQuery(parsed)
	}
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return lower(rawURL)
	}

	hostname := strings.ToLower(parsed.Hostname())
	hostname = strings.TrimPrefix(hostname, "www.")
	if strings.Contains(hostname, ":") {
		hostname = "[" + hostname + "]"
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}

	return hostname + trimTrailingSlash(path) + rawQuery(parsed)
}

func trimTrailingSlash(path string) string {
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		return path[:len(path)-1]
	}
	return path
}

func rawQuery(parsed *url.URL) string {
	if parsed.RawQuery == "" {
		return ""
	}
	return "?" + parsed.RawQuery
}

// NormalizeTitle lower-cases a title, keeps ASCII word characters and
// collapses every run of whitespace, Unicode spaces included, to one space.
// Everything else is dropped.
func NormalizeTitle(title string) string {
	var b strings.Builder
	pendingSpace := false
	for _, r := range lower(title) {
		switch {
		case isWordRune(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case isSpaceRune(r):
			pendingSpace = true
		}
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')
}

// U+0085 does not separate title words; U+FEFF does.
func isSpaceRune(r rune) bool {
	if r == '\u0085' {
		return false
	}
	return unicode.IsSpace(r) || r == '\ufeff'
}

// Hash is the fingerprint of a result: the first 16 hex characters of the
// SHA-256 of its normalized URL and title.
func Hash(item Item) string {
	fields := item.DedupeFields()
	normalized := NormalizeURL(fields.SourceURL) + "|" + NormalizeTitle(fields.Title)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}

// A Caser is stateful, so each call gets its own.
func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}
