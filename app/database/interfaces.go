package database

import (
	"time"
)

type QueryRepository interface {
	CreateQuery(query *Query) error
	GetQuery(id string) (*Query, error)
	ListQueries(userID string, limit int) ([]Query, error)
	CountQueriesSince(userID string, since time.Time, modes ...string) (int, error)

	CompleteQuery(id string, resultCount, duplicateCount, filteredCount int, completedAt time.Time) error
	FailQuery(id string, message string) error
}

type ResultRepository interface {
	GetResult(id string) (*Result, error)
	GetQueryResults(queryID string) ([]Result, error)
	GetVisibleMonitorResults(monitorName string, limit int) ([]Result, error)
	FindExisting(userID string, hashes, normalizedURLs []string) ([]Result, error)

	InsertResults(results []Result) error
	SaveResult(id, projectID, notes string, tags []string) error
	UpdateArchive(id, archivedURL string, archivedAt time.Time) error
}

type ArchiveRepository interface {
	CreateArchive(archive *Archive) error
	GetArchive(id string) (*Archive, error)
}

type MonitorRepository interface {
	GetMonitor(name string) (*Monitor, error)
	GetMonitorCount() (int, error)
	CountActiveMonitors(userID string, excludeName string) (int, error)

	UpsertMonitor(monitor Monitor) error
	DeactivateMonitor(name string) error
	UpdateMonitorRun(name string, lastRun, nextRun time.Time, fetched, newResults int, queryID string) error
	ScheduleMonitor(name string, nextRun time.Time) error
}
