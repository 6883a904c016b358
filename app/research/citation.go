package research

import (
	"strings"
	"time"

	"github.com/lysyi3m/research-comb/app/search"
)

// ALWDCitation formats a web citation as
// "[Author, ]Title, DOMAIN (Mon D, YYYY), URL". Results without a
// publication date are dated now.
func ALWDCitation(result search.Result, now time.Time) string {
	date := now
	if result.PublishedAt != nil {
		date = *result.PublishedAt
	}

	var sb strings.Builder
	if result.Author != "" {
		sb.WriteString(result.Author)
		sb.WriteString(", ")
	}
	sb.WriteString(result.Title)
	sb.WriteString(", ")
	sb.WriteString(strings.ToUpper(result.SourceDomain))
	sb.WriteString(" (")
	sb.WriteString(date.Format("Jan 2, 2006"))
	sb.WriteString("), ")
	sb.WriteString(result.SourceURL)

	return sb.String()
}
