// Package storage persists tasks and week-scoped entities per user. Two
// backends are provided, PostgreSQL and Azure Table Storage, plus a Redis
// read-through cache that sits in front of either.
package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"weekplan/domain"
)

// TaskChange is the state of a task before and after an update.
type TaskChange struct {
	Before domain.Task
	After  domain.Task
}

// Backend is the persistence contract shared by every store. All methods are
// scoped to userID; another user's rows behave as if they did not exist.
// Missing tasks yield domain.ErrNotFound, missing week-scoped entities a nil
// pointer.
type Backend interface {
	TasksInRange(ctx context.Context, userID, startDate, endDate string) ([]domain.Task, error)
	CreateTask(ctx context.Context, userID string, t domain.NewTask) (domain.Task, error)
	UpdateTask(ctx context.Context, userID string, id int64, p domain.TaskPatch) (TaskChange, error)
	DeleteTask(ctx context.Context, userID string, id int64) (domain.Task, error)

	Note(ctx context.Context, userID, weekID string) (*domain.Note, error)
	UpsertNote(ctx context.Context, userID, weekID, content string) (domain.Note, error)

	Summary(ctx context.Context, userID, weekID string) (*domain.WeeklySummary, error)
	UpsertSummary(ctx context.Context, userID, weekID string, p domain.SummaryPatch) (domain.WeeklySummary, error)

	WeekSettings(ctx context.Context, userID, weekID string) (*domain.WeekSettings, error)
	UpdateWeekSettings(ctx context.Context, userID, weekID string, p domain.SettingsPatch) (domain.WeekSettings, error)
}

// ErrUnknownBackend is returned for an unsupported STORAGE_BACKEND value.
var ErrUnknownBackend = errors.New("unknown storage backend")

var lastID int64

// nextID returns a unique, increasing id derived from the clock in
// microseconds. It stays below 2^53 so JSON clients keep it exact.
func nextID() int64 {
	for {
		now := time.Now().UnixMicro()
		last := atomic.LoadInt64(&lastID)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastID, last, now) {
			return now
		}
	}
}
