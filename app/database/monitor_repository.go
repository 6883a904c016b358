package database

import (
	"database/sql"
	"fmt"
	"time"
)

type monitorRepository struct {
	db *DB
}

func NewMonitorRepository(db *DB) MonitorRepository {
	return &monitorRepository{db: db}
}

func (r *monitorRepository) GetMonitor(name string) (*Monitor, error) {
	var monitor Monitor
	var sources string

	err := r.db.QueryRow(`
		SELECT name, user_id, query_text, sources, frequency, is_active, last_run_at, next_run_at,
		       total_results, new_results, last_query_id, created_at, updated_at
		FROM monitors
		WHERE name = ?
	`, name).Scan(
		&monitor.Name, &monitor.UserID, &monitor.QueryText, &sources, &monitor.Frequency, &monitor.IsActive,
		&monitor.LastRunAt, &monitor.NextRunAt, &monitor.TotalResults, &monitor.NewResults, &monitor.LastQueryID,
		&monitor.CreatedAt, &monitor.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor: %w", err)
	}

	if monitor.Sources, err = decodeList(sources); err != nil {
		return nil, err
	}

	return &monitor, nil
}

func (r *monitorRepository) GetMonitorCount() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM monitors`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get monitor count: %w", err)
	}
	return count, nil
}

// CountActiveMonitors counts a user's active monitors other than excludeName.
func (r *monitorRepository) CountActiveMonitors(userID string, excludeName string) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM monitors
		WHERE user_id = ? AND is_active = 1 AND name != ?
	`, userID, excludeName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active monitors: %w", err)
	}
	return count, nil
}

// UpsertMonitor stores a monitor definition. Run statistics of an existing
// row are kept; next_run_at is only set when the row has none.
func (r *monitorRepository) UpsertMonitor(monitor Monitor) error {
	sources, err := encodeList(monitor.Sources)
	if err != nil {
		return err
	}

	now := utc(time.Now())
	_, err = r.db.Exec(`
		INSERT INTO monitors (name, user_id, query_text, sources, frequency, is_active, next_run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			user_id = excluded.user_id,
			query_text = excluded.query_text,
			sources = excluded.sources,
			frequency = excluded.frequency,
			is_active = excluded.is_active,
			next_run_at = COALESCE(monitors.next_run_at, excluded.next_run_at),
			updated_at = excluded.updated_at
	`, monitor.Name, monitor.UserID, monitor.QueryText, sources, monitor.Frequency, monitor.IsActive,
		utcPtr(monitor.NextRunAt), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert monitor: %w", err)
	}

	return nil
}

func (r *monitorRepository) DeactivateMonitor(name string) error {
	res, err := r.db.Exec(`
		UPDATE monitors SET is_active = 0, updated_at = ? WHERE name = ?
	`, utc(time.Now()), name)
	if err != nil {
		return fmt.Errorf("failed to deactivate monitor: %w", err)
	}

	return expectRows(res, "monitor "+name)
}

// UpdateMonitorRun records a completed run: total_results grows by fetched,
// new_results is replaced.
func (r *monitorRepository) UpdateMonitorRun(name string, lastRun, nextRun time.Time, fetched, newResults int, queryID string) error {
	res, err := r.db.Exec(`
		UPDATE monitors
		SET last_run_at = ?, next_run_at = ?, total_results = total_results + ?,
		    new_results = ?, last_query_id = ?, updated_at = ?
		WHERE name = ?
	`, utc(lastRun), utc(nextRun), fetched, newResults, queryID, utc(time.Now()), name)
	if err != nil {
		return fmt.Errorf("failed to update monitor run: %w", err)
	}

	return expectRows(res, "monitor "+name)
}

// ScheduleMonitor moves a monitor's next run without recording a run.
func (r *monitorRepository) ScheduleMonitor(name string, nextRun time.Time) error {
	res, err := r.db.Exec(`
		UPDATE monitors SET next_run_at = ?, updated_at = ? WHERE name = ?
	`, utc(nextRun), utc(time.Now()), name)
	if err != nil {
		return fmt.Errorf("failed to schedule monitor: %w", err)
	}

	return expectRows(res, "monitor "+name)
}
