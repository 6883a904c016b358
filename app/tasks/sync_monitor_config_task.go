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
)

type MonitorQuota interface {
	CheckMonitorQuota(userID, tier, excludeName string) error
}

// SyncMonitorConfigTask writes a monitor definition to the database. A nil
// config means the file is gone and the monitor is deactivated.
type SyncMonitorConfigTask struct {
	Task
	MonitorConfig *monitor.Config
	monitorRepo   database.MonitorRepository
	quota         MonitorQuota
	now           func() time.Time
}

func NewSyncMonitorConfigTask(monitorName string, monitorConfig *monitor.Config, monitorRepo database.MonitorRepository, quota MonitorQuota) *SyncMonitorConfigTask {
	return &SyncMonitorConfigTask{
		Task:          NewTask(TaskTypeSyncMonitorConfig, monitorName),
		MonitorConfig: monitorConfig,
		monitorRepo:   monitorRepo,
		quota:         quota,
		now:           time.Now,
	}
}

func (t *SyncMonitorConfigTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if t.MonitorConfig == nil {
		return t.deactivate()
	}

	active, err := t.allowedActive()
	if err != nil {
		return err
	}

	now := t.now()
	err = t.monitorRepo.UpsertMonitor(database.Monitor{
		Name:      t.Target,
		UserID:    t.MonitorConfig.UserID,
		QueryText: t.MonitorConfig.Query,
		Sources:   t.MonitorConfig.Sources,
		Frequency: t.MonitorConfig.Frequency,
		IsActive:  active,
		NextRunAt: &now,
	})
	if err != nil {
		slog.Error("Task failed", "type", "SyncMonitorConfig", "monitor", t.Target, "error", err)
		return fmt.Errorf("failed to sync monitor config to database: %w", err)
	}

	slog.Info("Task completed",
		"type", "SyncMonitorConfig",
		"monitor", t.Target,
		"active", active,
		"duration", t.GetDuration())

	return nil
}

// allowedActive reports whether the monitor may be stored active. Enabling a
// monitor that was not active before is subject to the owner's monitor quota.
func (t *SyncMonitorConfigTask) allowedActive() (bool, error) {
	if !t.MonitorConfig.Settings.Enabled {
		return false, nil
	}

	existing, err := t.monitorRepo.GetMonitor(t.Target)
	if err != nil {
		return false, fmt.Errorf("failed to load monitor: %w", err)
	}
	if existing != nil && existing.IsActive && existing.UserID == t.MonitorConfig.UserID {
		return true, nil
	}

	err = t.quota.CheckMonitorQuota(t.MonitorConfig.UserID, t.MonitorConfig.Tier, t.Target)
	var quotaErr *research.QuotaError
	if errors.As(err, &quotaErr) {
		slog.Warn("Monitor stored disabled", "monitor", t.Target, "user_id", t.MonitorConfig.UserID, "reason", quotaErr.Reason)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check monitor quota: %w", err)
	}

	return true, nil
}

func (t *SyncMonitorConfigTask) deactivate() error {
	err := t.monitorRepo.DeactivateMonitor(t.Target)
	if errors.Is(err, database.ErrNotFound) {
		slog.Debug("Removed monitor was never stored", "monitor", t.Target)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to deactivate monitor: %w", err)
	}

	slog.Info("Task completed",
		"type", "SyncMonitorConfig",
		"monitor", t.Target,
		"active", false,
		"duration", t.GetDuration())

	return nil
}
