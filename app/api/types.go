package api

import (
	"context"
	"time"

	"github.com/lysyi3m/research-comb/app/database"
	"github.com/lysyi3m/research-comb/app/monitor"
	"github.com/lysyi3m/research-comb/app/research"
	"github.com/lysyi3m/research-comb/app/tasks"
)

type GeneratorInterface interface {
	Run(monitor database.Monitor, results []database.Result) (string, error)
}

type SearchService interface {
	ExecuteSearch(ctx context.Context, opts research.Options) (*research.Outcome, error)
	SaveResult(userID, resultID, projectID, notes string, tags []string) (*database.Result, error)
}

type UsageService interface {
	UsageStats(userID, tier string) (*research.UsageStats, error)
}

var (
	_ GeneratorInterface = (*monitor.Generator)(nil)
	_ SearchService      = (*research.Service)(nil)
	_ UsageService       = (*research.Quota)(nil)
)

type Handler struct {
	queryRepo   database.QueryRepository
	resultRepo  database.ResultRepository
	archiveRepo database.ArchiveRepository
	monitorRepo database.MonitorRepository
	configCache *monitor.ConfigCache
	searcher    SearchService
	usage       UsageService
	generator   GeneratorInterface
	scheduler   tasks.TaskSchedulerInterface
}

type validateURLRequest struct {
	URL string `json:"url"`
}

type searchRequest struct {
	UserID         string     `json:"user_id" binding:"required"`
	Tier           string     `json:"tier"`
	Query          string     `json:"query" binding:"required"`
	Mode           string     `json:"mode"`
	SearchType     string     `json:"search_type"`
	Sources        []string   `json:"sources"`
	FeedURLs       []string   `json:"feed_urls"`
	DateRangeStart *time.Time `json:"date_range_start"`
	DateRangeEnd   *time.Time `json:"date_range_end"`
	Jurisdiction   string     `json:"jurisdiction"`
	ProjectID      string     `json:"project_id"`
	MaxResults     int        `json:"max_results"`
}

type saveResultRequest struct {
	UserID    string   `json:"user_id" binding:"required"`
	ProjectID string   `json:"project_id"`
	Notes     string   `json:"notes"`
	Tags      []string `json:"tags"`
}

type archiveResultRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type queryResponse struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	ProjectID      string     `json:"project_id,omitempty"`
	MonitorName    string     `json:"monitor_name,omitempty"`
	Query          string     `json:"query"`
	Mode           string     `json:"mode"`
	SearchType     string     `json:"search_type,omitempty"`
	Sources        []string   `json:"sources"`
	DateRangeStart *time.Time `json:"date_range_start,omitempty"`
	DateRangeEnd   *time.Time `json:"date_range_end,omitempty"`
	Jurisdiction   string     `json:"jurisdiction,omitempty"`
	Status         string     `json:"status"`
	ResultCount    int        `json:"result_count"`
	DuplicateCount int        `json:"duplicate_count"`
	FilteredCount  int        `json:"filtered_count"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

type resultResponse struct {
	ID           string     `json:"id"`
	QueryID      string     `json:"query_id"`
	UserID       string     `json:"user_id"`
	SourceType   string     `json:"source_type"`
	SourceURL    string     `json:"source_url"`
	SourceDomain string     `json:"source_domain"`
	Title        string     `json:"title"`
	Snippet      string     `json:"snippet"`
	Author       string     `json:"author,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	Citation     string     `json:"citation_alwd"`
	IsFiltered   bool       `json:"is_filtered"`
	FilterReason string     `json:"filter_reason,omitempty"`
	IsSaved      bool       `json:"is_saved"`
	ProjectID    string     `json:"saved_project_id,omitempty"`
	Notes        string     `json:"user_notes,omitempty"`
	Tags         []string   `json:"user_tags"`
	ArchivedURL  string     `json:"archived_url,omitempty"`
	ArchivedAt   *time.Time `json:"archived_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func newQueryResponse(query database.Query) queryResponse {
	return queryResponse{
		ID:             query.ID,
		UserID:         query.UserID,
		ProjectID:      query.ProjectID,
		MonitorName:    query.MonitorName,
		Query:          query.QueryText,
		Mode:           query.SearchMode,
		SearchType:     query.SearchType,
		Sources:        query.Sources,
		DateRangeStart: query.DateRangeStart,
		DateRangeEnd:   query.DateRangeEnd,
		Jurisdiction:   query.Jurisdiction,
		Status:         query.Status,
		ResultCount:    query.ResultCount,
		DuplicateCount: query.DuplicateCount,
		FilteredCount:  query.FilteredCount,
		ErrorMessage:   query.ErrorMessage,
		CreatedAt:      query.CreatedAt,
		CompletedAt:    query.CompletedAt,
	}
}

func newResultResponse(result database.Result) resultResponse {
	tags := result.UserTags
	if tags == nil {
		tags = []string{}
	}

	return resultResponse{
		ID:           result.ID,
		QueryID:      result.QueryID,
		UserID:       result.UserID,
		SourceType:   result.SourceType,
		SourceURL:    result.SourceURL,
		SourceDomain: result.SourceDomain,
		Title:        result.Title,
		Snippet:      result.Snippet,
		Author:       result.Author,
		PublishedAt:  result.PublishedAt,
		Citation:     result.CitationALWD,
		IsFiltered:   result.IsFiltered,
		FilterReason: result.FilterReason,
		IsSaved:      result.IsSaved,
		ProjectID:    result.SavedProjectID,
		Notes:        result.UserNotes,
		Tags:         tags,
		ArchivedURL:  result.ArchivedURL,
		ArchivedAt:   result.ArchivedAt,
		CreatedAt:    result.CreatedAt,
	}
}

func newResultResponses(results []database.Result) []resultResponse {
	responses := make([]resultResponse, 0, len(results))
	for _, result := range results {
		responses = append(responses, newResultResponse(result))
	}
	return responses
}
