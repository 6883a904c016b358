// Package research runs web searches for users: it checks quotas, fans out
// to the configured sources, drops results the user already has and stores
// the rest with a citation.
package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/research-comb/app/database"
	"github.com/lysyi3m/research-comb/app/dedupe"
	"github.com/lysyi3m/research-comb/app/metrics"
	"github.com/lysyi3m/research-comb/app/search"
)

const (
	ModeQuick    = "quick"
	ModeDeep     = "deep"
	ModeTargeted = "targeted"
	ModeMonitor  = "monitor"
)

const maxProviderCount = 50

var (
	validModes       = []string{ModeQuick, ModeDeep, ModeTargeted, ModeMonitor}
	validSearchTypes = []string{"person", "company", "property", "case"}
	defaultSources   = []string{search.SourceWeb, search.SourceNews}
)

var (
	ErrInvalidOptions = errors.New("invalid search options")
	ErrResultNotFound = errors.New("result not found")
	ErrNotOwner       = errors.New("result belongs to another user")
)

// FilterFunc decides whether a result is hidden, and why.
type FilterFunc func(result search.Result) (bool, string)

type Options struct {
	UserID         string
	Tier           string
	QueryText      string
	Mode           string
	SearchType     string
	Sources        []string
	FeedURLs       []string
	DateRangeStart *time.Time
	DateRangeEnd   *time.Time
	Jurisdiction   string
	ProjectID      string
	MonitorName    string
	MaxResults     int
	Filter         FilterFunc
}

type Outcome struct {
	QueryID    string
	Results    []database.Result
	Fetched    int
	Duplicates int
	Filtered   int
}

type Service struct {
	providers map[string]search.Provider
	queries   database.QueryRepository
	results   database.ResultRepository
	quota     *Quota
	now       func() time.Time
}

func NewService(queries database.QueryRepository, results database.ResultRepository, quota *Quota, providers ...search.Provider) *Service {
	byName := make(map[string]search.Provider, len(providers))
	for _, provider := range providers {
		byName[provider.Name()] = provider
	}

	return &Service{
		providers: byName,
		queries:   queries,
		results:   results,
		quota:     quota,
		now:       time.Now,
	}
}

// ExecuteSearch runs a search end to end. Quota refusals are returned as
// *QuotaError before anything is stored; once the query record exists, any
// failure marks it failed.
func (s *Service) ExecuteSearch(ctx context.Context, opts Options) (*Outcome, error) {
	opts, err := s.normalize(opts)
	if err != nil {
		return nil, err
	}

	if err := s.quota.CheckSearchQuota(opts.UserID, opts.Tier, opts.Mode); err != nil {
		metrics.Searches.WithLabelValues(opts.Mode, "refused").Inc()
		return nil, err
	}

	query := &database.Query{
		UserID:         opts.UserID,
		ProjectID:      opts.ProjectID,
		MonitorName:    opts.MonitorName,
		QueryText:      opts.QueryText,
		SearchMode:     opts.Mode,
		SearchType:     opts.SearchType,
		Sources:        opts.Sources,
		DateRangeStart: opts.DateRangeStart,
		DateRangeEnd:   opts.DateRangeEnd,
		Jurisdiction:   opts.Jurisdiction,
		Status:         database.QueryStatusProcessing,
		CreatedAt:      s.now(),
	}
	if err := s.queries.CreateQuery(query); err != nil {
		return nil, fmt.Errorf("failed to create query: %w", err)
	}

	outcome, err := s.run(ctx, query.ID, opts)
	if err != nil {
		metrics.Searches.WithLabelValues(opts.Mode, "failed").Inc()
		if failErr := s.queries.FailQuery(query.ID, err.Error()); failErr != nil {
			slog.Error("Failed to mark query as failed", "query_id", query.ID, "error", failErr)
		}
		return nil, err
	}

	metrics.Searches.WithLabelValues(opts.Mode, "completed").Inc()
	slog.Info("Search completed",
		"query_id", query.ID,
		"user_id", opts.UserID,
		"mode", opts.Mode,
		"sources", strings.Join(opts.Sources, ","),
		"fetched", outcome.Fetched,
		"duplicates", outcome.Duplicates,
		"filtered", outcome.Filtered,
		"stored", len(outcome.Results))

	return outcome, nil
}

func (s *Service) run(ctx context.Context, queryID string, opts Options) (*Outcome, error) {
	raw, err := s.collect(ctx, opts)
	if err != nil {
		return nil, err
	}

	existing, err := s.existingResults(opts.UserID, raw)
	if err != nil {
		return nil, err
	}

	partition := dedupe.Dedupe(raw, existing)
	metrics.DedupeResults.WithLabelValues("unique").Add(float64(len(partition.Unique)))
	metrics.DedupeResults.WithLabelValues("duplicate").Add(float64(len(partition.Duplicates)))
	unique := partition.Unique
	if opts.MaxResults > 0 && len(unique) > opts.MaxResults {
		unique = unique[:opts.MaxResults]
	}

	now := s.now()
	records := make([]database.Result, 0, len(unique))
	filtered := 0
	for _, result := range unique {
		record := database.Result{
			QueryID:       queryID,
			UserID:        opts.UserID,
			SourceType:    result.SourceType,
			SourceURL:     result.SourceURL,
			SourceDomain:  result.SourceDomain,
			NormalizedURL: dedupe.NormalizeURL(result.SourceURL),
			ResultHash:    dedupe.Hash(result),
			Title:         result.Title,
			Snippet:       result.Snippet,
			Author:        result.Author,
			PublishedAt:   result.PublishedAt,
			CitationALWD:  ALWDCitation(result, now),
			CreatedAt:     now,
		}

		if opts.Filter != nil {
			record.IsFiltered, record.FilterReason = opts.Filter(result)
			if record.IsFiltered {
				filtered++
			}
		}

		records = append(records, record)
	}

	if err := s.results.InsertResults(records); err != nil {
		return nil, fmt.Errorf("failed to store results: %w", err)
	}

	if err := s.queries.CompleteQuery(queryID, len(records), len(partition.Duplicates), filtered, s.now()); err != nil {
		return nil, fmt.Errorf("failed to complete query: %w", err)
	}

	return &Outcome{
		QueryID:    queryID,
		Results:    records,
		Fetched:    len(raw),
		Duplicates: len(partition.Duplicates),
		Filtered:   filtered,
	}, nil
}

// collect queries every source concurrently and concatenates the results in
// source order.
func (s *Service) collect(ctx context.Context, opts Options) ([]search.Result, error) {
	req := search.Request{
		Query:    opts.QueryText,
		Since:    opts.DateRangeStart,
		Until:    opts.DateRangeEnd,
		FeedURLs: opts.FeedURLs,
	}
	if opts.MaxResults > 0 {
		req.Count = min(opts.MaxResults, maxProviderCount)
	}

	perSource := make([][]search.Result, len(opts.Sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, source := range opts.Sources {
		provider := s.providers[source]
		g.Go(func() error {
			results, err := provider.Search(gctx, req)
			if err != nil {
				return fmt.Errorf("%s search failed: %w", source, err)
			}
			perSource[i] = results
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []search.Result
	for _, results := range perSource {
		all = append(all, results...)
	}
	return all, nil
}

func (s *Service) existingResults(userID string, raw []search.Result) ([]search.Result, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	hashes := make([]string, 0, len(raw))
	urls := make([]string, 0, len(raw))
	for _, result := range raw {
		hashes = append(hashes, dedupe.Hash(result))
		urls = append(urls, dedupe.NormalizeURL(result.SourceURL))
	}

	stored, err := s.results.FindExisting(userID, hashes, urls)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing results: %w", err)
	}

	existing := make([]search.Result, 0, len(stored))
	for _, record := range stored {
		existing = append(existing, search.Result{
			SourceType:   record.SourceType,
			SourceURL:    record.SourceURL,
			SourceDomain: record.SourceDomain,
			Title:        record.Title,
		})
	}
	return existing, nil
}

func (s *Service) normalize(opts Options) (Options, error) {
	opts.QueryText = strings.TrimSpace(opts.QueryText)
	if opts.UserID == "" {
		return opts, fmt.Errorf("%w: user is required", ErrInvalidOptions)
	}
	if opts.QueryText == "" {
		return opts, fmt.Errorf("%w: query text is required", ErrInvalidOptions)
	}

	if opts.Mode == "" {
		opts.Mode = ModeQuick
	}
	if !slices.Contains(validModes, opts.Mode) {
		return opts, fmt.Errorf("%w: invalid search mode %q", ErrInvalidOptions, opts.Mode)
	}

	if opts.SearchType != "" && !slices.Contains(validSearchTypes, opts.SearchType) {
		return opts, fmt.Errorf("%w: invalid search type %q", ErrInvalidOptions, opts.SearchType)
	}

	if len(opts.Sources) == 0 {
		opts.Sources = defaultSources
	}
	sources := make([]string, 0, len(opts.Sources))
	for _, source := range opts.Sources {
		if slices.Contains(sources, source) {
			continue
		}
		if _, ok := s.providers[source]; !ok {
			return opts, fmt.Errorf("%w: unsupported source %q", ErrInvalidOptions, source)
		}
		sources = append(sources, source)
	}
	opts.Sources = sources

	if slices.Contains(opts.Sources, search.SourceFeeds) && len(opts.FeedURLs) == 0 {
		return opts, fmt.Errorf("%w: feeds source needs at least one feed URL", ErrInvalidOptions)
	}

	if opts.DateRangeStart != nil && opts.DateRangeEnd != nil && opts.DateRangeEnd.Before(*opts.DateRangeStart) {
		return opts, fmt.Errorf("%w: date range ends before it starts", ErrInvalidOptions)
	}

	if opts.MaxResults < 0 {
		return opts, fmt.Errorf("%w: max results must be non-negative", ErrInvalidOptions)
	}

	return opts, nil
}

// SaveResult attaches a result to a project with notes and tags.
func (s *Service) SaveResult(userID, resultID, projectID, notes string, tags []string) (*database.Result, error) {
	if _, err := s.ownedResult(userID, resultID); err != nil {
		return nil, err
	}

	if err := s.results.SaveResult(resultID, projectID, notes, tags); err != nil {
		return nil, fmt.Errorf("failed to save result: %w", err)
	}

	return s.ownedResult(userID, resultID)
}

func (s *Service) ownedResult(userID, resultID string) (*database.Result, error) {
	return loadOwnedResult(s.results, userID, resultID)
}

func loadOwnedResult(results database.ResultRepository, userID, resultID string) (*database.Result, error) {
	result, err := results.GetResult(resultID)
	if err != nil {
		return nil, fmt.Errorf("failed to load result: %w", err)
	}
	if result == nil {
		return nil, ErrResultNotFound
	}
	if result.UserID != userID {
		return nil, ErrNotOwner
	}
	return result, nil
}
