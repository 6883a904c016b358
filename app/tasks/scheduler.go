package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/research-comb/app/cfg"
	"github.com/lysyi3m/research-comb/app/database"
	"github.com/lysyi3m/research-comb/app/metrics"
	"github.com/lysyi3m/research-comb/app/monitor"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

var ErrQueueFull = errors.New("task queue is full")

type Scheduler struct {
	configCache *monitor.ConfigCache
	monitorRepo database.MonitorRepository
	searcher    Searcher
	quota       MonitorQuota
	archiver    ResultArchiver
	filterer    *monitor.Filterer
	interval    time.Duration
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewScheduler(configCache *monitor.ConfigCache, monitorRepo database.MonitorRepository, searcher Searcher,
	quota MonitorQuota, archiver ResultArchiver, filterer *monitor.Filterer) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		configCache: configCache,
		monitorRepo: monitorRepo,
		searcher:    searcher,
		quota:       quota,
		archiver:    archiver,
		filterer:    filterer,
		interval:    time.Duration(cfg.SchedulerInterval) * time.Second,
		workerCount: cfg.WorkerCount,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// ReloadMonitor re-reads a monitor file and syncs it to the database. An
// invalid file leaves the previously loaded config in place.
func (s *Scheduler) ReloadMonitor(name string) error {
	monitorConfig, err := s.configCache.LoadConfig(name)
	if err != nil {
		return err
	}

	return s.EnqueueTask(NewSyncMonitorConfigTask(name, monitorConfig, s.monitorRepo, s.quota))
}

func (s *Scheduler) RemoveMonitor(name string) {
	s.configCache.Remove(name)

	if err := s.EnqueueTask(NewSyncMonitorConfigTask(name, nil, s.monitorRepo, s.quota)); err != nil {
		slog.Warn("Failed to enqueue SyncMonitorConfigTask", "monitor", name, "error", err)
	}
}

// RunMonitor queues an immediate run of a monitor and returns the task ID.
func (s *Scheduler) RunMonitor(name string) (string, error) {
	monitorConfig, err := s.configCache.GetConfig(name)
	if err != nil {
		return "", err
	}

	task := NewRunMonitorTask(name, monitorConfig, s.searcher, s.filterer, s.monitorRepo)
	if err := s.EnqueueTask(task); err != nil {
		return "", err
	}
	return task.GetID(), nil
}

// ArchiveResult queues archiving of a result and returns the task ID.
func (s *Scheduler) ArchiveResult(userID, resultID string) (string, error) {
	task := NewArchiveResultTask(userID, resultID, s.archiver)
	if err := s.EnqueueTask(task); err != nil {
		return "", err
	}
	return task.GetID(), nil
}

func (s *Scheduler) enqueueStartupTasks() {
	monitorConfigs := s.configCache.GetConfigs()
	if len(monitorConfigs) == 0 {
		slog.Debug("No monitor configurations found")
		return
	}

	slog.Debug("Processing monitor configurations", "count", len(monitorConfigs))

	for _, monitorConfig := range monitorConfigs {
		syncTask := NewSyncMonitorConfigTask(monitorConfig.Name, monitorConfig, s.monitorRepo, s.quota)
		if err := s.EnqueueTask(syncTask); err != nil {
			slog.Warn("Failed to enqueue SyncMonitorConfigTask", "monitor", monitorConfig.Name, "error", err)
		}
	}

	s.enqueueTasks()
}

// enqueueTasks queues a run for every enabled monitor that is active in the
// database and due.
func (s *Scheduler) enqueueTasks() {
	monitorConfigs := s.configCache.GetEnabledConfigs()
	if len(monitorConfigs) == 0 {
		slog.Debug("No enabled monitor configurations found")
		return
	}

	now := time.Now().UTC()
	for _, monitorConfig := range monitorConfigs {
		stored, err := s.monitorRepo.GetMonitor(monitorConfig.Name)
		if err != nil {
			slog.Warn("Failed to get monitor from database, skipping", "monitor", monitorConfig.Name, "error", err)
			continue
		}
		if stored == nil {
			slog.Debug("Monitor not synced yet, skipping", "monitor", monitorConfig.Name)
			continue
		}
		if !stored.IsActive {
			slog.Debug("Monitor inactive, skipping", "monitor", monitorConfig.Name)
			continue
		}
		if stored.NextRunAt != nil && stored.NextRunAt.After(now) {
			slog.Debug("Monitor not due yet", "monitor", monitorConfig.Name, "next_run_at", stored.NextRunAt)
			continue
		}

		runTask := NewRunMonitorTask(monitorConfig.Name, monitorConfig, s.searcher, s.filterer, s.monitorRepo)
		if err := s.EnqueueTask(runTask); err != nil {
			slog.Warn("Failed to enqueue RunMonitorTask", "monitor", monitorConfig.Name, "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		metrics.Tasks.WithLabelValues(string(task.GetType()), "completed").Inc()
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		metrics.Tasks.WithLabelValues(string(task.GetType()), "failed").Inc()
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	metrics.Tasks.WithLabelValues(string(task.GetType()), "retried").Inc()
	task.IncrementRetryCount()
	delay := retryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "target", task.GetTarget(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", delay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-time.After(delay):
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}
