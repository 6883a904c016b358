package tasks

import "github.com/lysyi3m/research-comb/app/monitor"

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application and the API to manage background work.
// Example usage:
//
//	scheduler := NewScheduler(configCache, monitorRepo, service, quota, archiver, filterer)
//	scheduler.Start()
//	defer scheduler.Stop()
//	taskID, err := scheduler.RunMonitor("acme-litigation")
type TaskSchedulerInterface interface {
	monitor.ChangeHandler

	Start()
	Stop()
	EnqueueTask(task TaskInterface) error

	RunMonitor(name string) (string, error)
	ArchiveResult(userID, resultID string) (string, error)
}
