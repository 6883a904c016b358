package monitor

import (
	"fmt"
	"strings"

	"github.com/lysyi3m/research-comb/app/search"
)

var validFilterFields = map[string]bool{
	"title":   true,
	"snippet": true,
	"url":     true,
	"domain":  true,
	"author":  true,
}

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run reports whether the monitor's filters hide result, and why.
func (f *Filterer) Run(result search.Result, monitorConfig *Config) (bool, string) {
	if monitorConfig == nil || len(monitorConfig.Filters) == 0 {
		return false, ""
	}
	return f.applyFilters(result, monitorConfig.Filters)
}

func (f *Filterer) applyFilters(result search.Result, filters []ConfigFilter) (bool, string) {
	for _, filter := range filters {
		value := f.getFieldValue(result, filter.Field)

		for _, exclude := range filter.Excludes {
			if f.matchesFilter(value, exclude) {
				return true, fmt.Sprintf("Excluded by %s filter: contains '%s'", filter.Field, exclude)
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return true, fmt.Sprintf("Excluded by %s filter: does not contain any of %v", filter.Field, filter.Includes)
			}
		}
	}

	return false, ""
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func (f *Filterer) getFieldValue(result search.Result, field string) string {
	switch field {
	case "title":
		return result.Title
	case "snippet":
		return result.Snippet
	case "url":
		return result.SourceURL
	case "domain":
		return result.SourceDomain
	case "author":
		return result.Author
	default:
		return ""
	}
}
