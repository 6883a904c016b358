package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/research-comb/app/database"
	"github.com/lysyi3m/research-comb/app/monitor"
	"github.com/lysyi3m/research-comb/app/research"
	"github.com/lysyi3m/research-comb/app/search"
)

type Searcher interface {
	ExecuteSearch(ctx context.Context, opts research.Options) (*research.Outcome, error)
}

type RunMonitorTask struct {
	Task
	MonitorConfig *monitor.Config
	searcher      Searcher
	filterer      *monitor.Filterer
	monitorRepo   database.MonitorRepository
	now           func() time.Time
}

func NewRunMonitorTask(monitorName string, monitorConfig *monitor.Config, searcher Searcher, filterer *monitor.Filterer, monitorRepo database.MonitorRepository) *RunMonitorTask {
	return &RunMonitorTask{
		Task:          NewTask(TaskTypeRunMonitor, monitorName),
		MonitorConfig: monitorConfig,
		searcher:      searcher,
		filterer:      filterer,
		monitorRepo:   monitorRepo,
		now:           time.Now,
	}
}

func (t *RunMonitorTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	stored, err := t.monitorRepo.GetMonitor(t.Target)
	if err != nil {
		return fmt.Errorf("failed to load monitor: %w", err)
	}
	if stored == nil || !stored.IsActive {
		slog.Debug("Monitor inactive, skipping", "monitor", t.Target)
		return nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, time.Duration(t.MonitorConfig.Settings.Timeout)*time.Second)
	defer cancel()

	outcome, err := t.searcher.ExecuteSearch(searchCtx, research.Options{
		UserID:      t.MonitorConfig.UserID,
		Tier:        t.MonitorConfig.Tier,
		QueryText:   t.MonitorConfig.Query,
		Mode:        research.ModeQuick,
		Sources:     t.MonitorConfig.Sources,
		FeedURLs:    t.MonitorConfig.Feeds,
		MonitorName: t.Target,
		MaxResults:  t.MonitorConfig.Settings.MaxResults,
		Filter: func(result search.Result) (bool, string) {
			return t.filterer.Run(result, t.MonitorConfig)
		},
	})

	now := t.now()
	nextRun := monitor.NextRun(t.MonitorConfig.Frequency, now)

	var quotaErr *research.QuotaError
	if errors.As(err, &quotaErr) {
		slog.Warn("Monitor run refused", "monitor", t.Target, "user_id", t.MonitorConfig.UserID, "reason", quotaErr.Reason, "next_run_at", nextRun)
		if err := t.monitorRepo.ScheduleMonitor(t.Target, nextRun); err != nil {
			return fmt.Errorf("failed to reschedule monitor: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run monitor search: %w", err)
	}

	err = t.monitorRepo.UpdateMonitorRun(t.Target, now, nextRun, outcome.Fetched, len(outcome.Results), outcome.QueryID)
	if err != nil {
		return fmt.Errorf("failed to record monitor run: %w", err)
	}

	slog.Info("Task completed",
		"type", "RunMonitor",
		"monitor", t.Target,
		"query_id", outcome.QueryID,
		"fetched", outcome.Fetched,
		"new", len(outcome.Results),
		"duplicates", outcome.Duplicates,
		"filtered", outcome.Filtered,
		"next_run_at", nextRun,
		"duration", t.GetDuration())

	return nil
}
