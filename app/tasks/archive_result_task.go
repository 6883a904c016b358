package tasks

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lysyi3m/research-comb/app/fetch"
	"github.com/lysyi3m/research-comb/app/research"
)

type ResultArchiver interface {
	Archive(ctx context.Context, userID, resultID string) (*research.ArchiveOutcome, error)
}

type ArchiveResultTask struct {
	Task
	UserID   string
	archiver ResultArchiver
}

func NewArchiveResultTask(userID, resultID string, archiver ResultArchiver) *ArchiveResultTask {
	return &ArchiveResultTask{
		Task:     NewTask(TaskTypeArchiveResult, resultID),
		UserID:   userID,
		archiver: archiver,
	}
}

func (t *ArchiveResultTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	outcome, err := t.archiver.Archive(ctx, t.UserID, t.Target)
	if isPermanent(err) {
		slog.Error("Archive refused", "result_id", t.Target, "user_id", t.UserID, "error", err)
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("Task completed",
		"type", "ArchiveResult",
		"result_id", t.Target,
		"method", outcome.Method,
		"archived_url", outcome.ArchivedURL,
		"duration", t.GetDuration())

	return nil
}

// isPermanent reports errors that a retry cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, research.ErrResultNotFound) ||
		errors.Is(err, research.ErrNotOwner) ||
		errors.Is(err, fetch.ErrRejected) ||
		errors.Is(err, fetch.ErrTooLarge)
}
