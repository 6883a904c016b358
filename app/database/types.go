package database

import (
	"errors"
	"time"

	"github.com/lysyi3m/research-comb/app/dedupe"
)

var ErrNotFound = errors.New("not found")

const (
	QueryStatusProcessing = "processing"
	QueryStatusCompleted  = "completed"
	QueryStatusFailed     = "failed"
)

type Query struct {
	ID             string
	UserID         string
	ProjectID      string
	MonitorName    string // Set when the query was issued by a monitor run
	QueryText      string
	SearchMode     string // quick, deep, targeted, monitor
	SearchType     string // person, company, property, case
	Sources        []string
	DateRangeStart *time.Time
	DateRangeEnd   *time.Time
	Jurisdiction   string
	Status         string
	ResultCount    int
	DuplicateCount int
	FilteredCount  int
	ErrorMessage   string
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

type Result struct {
	ID             string
	QueryID        string
	UserID         string
	SourceType     string
	SourceURL      string
	SourceDomain   string
	NormalizedURL  string
	ResultHash     string
	Title          string
	Snippet        string
	Author         string
	PublishedAt    *time.Time
	CitationALWD   string
	IsFiltered     bool
	FilterReason   string
	IsSaved        bool
	SavedProjectID string
	UserNotes      string
	UserTags       []string
	ArchivedURL    string
	ArchivedAt     *time.Time
	CreatedAt      time.Time
}

func (r Result) DedupeFields() dedupe.Result {
	return dedupe.Result{
		SourceURL:    r.SourceURL,
		Title:        r.Title,
		SourceDomain: r.SourceDomain,
	}
}

type Archive struct {
	ID           string
	UserID       string
	ResultID     string
	OriginalURL  string
	FinalURL     string
	CanonicalURL string
	Title        string
	ContentType  string
	Content      string // Raw fetched body
	Markdown     string // Readable article converted to Markdown
	ContentHash  string // SHA-256 of Content
	CreatedAt    time.Time
}

type Monitor struct {
	Name         string // Derived from the monitor file name
	UserID       string
	QueryText    string
	Sources      []string
	Frequency    string
	IsActive     bool
	LastRunAt    *time.Time
	NextRunAt    *time.Time
	TotalResults int
	NewResults   int
	LastQueryID  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
