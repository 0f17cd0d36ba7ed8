package planner

import (
	"context"
	"fmt"

	"weekplan/domain"
)

// Remote is the server the planner syncs with. Methods return
// domain.ErrNotFound when the targeted entity does not exist, and a nil
// pointer from the week-scoped getters when nothing was saved yet.
type Remote interface {
	TasksForWeek(ctx context.Context, startDate, endDate string) ([]domain.Task, error)
	CreateTask(ctx context.Context, t domain.NewTask) (domain.Task, error)
	UpdateTask(ctx context.Context, id int64, p domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, id int64) error

	Note(ctx context.Context, weekID string) (*domain.Note, error)
	UpsertNote(ctx context.Context, weekID, content string) (domain.Note, error)

	Summary(ctx context.Context, weekID string) (*domain.WeeklySummary, error)
	UpsertSummary(ctx context.Context, weekID string, p domain.SummaryPatch) (domain.WeeklySummary, error)

	WeekSettings(ctx context.Context, weekID string) (*domain.WeekSettings, error)
	UpdateLayout(ctx context.Context, weekID string, p domain.LayoutPatch) (domain.WeekSettings, error)
	UpdateCustomContent(ctx context.Context, weekID string, p domain.CustomContentPatch) (domain.WeekSettings, error)
	UploadCustomImage(ctx context.Context, weekID string, data []byte, contentType string) (string, error)
}

// RemoteFetcher adapts r into the fetch function of a Store. Task lists are
// cached as []domain.Task, week-scoped entities as pointers that are nil when
// the server has none.
func RemoteFetcher(r Remote) FetchFunc {
	return func(ctx context.Context, key Key) (any, error) {
		switch key.Kind {
		case KindTasks:
			start, end, ok := key.Range()
			if !ok {
				return nil, fmt.Errorf("malformed task key %q", key.Param)
			}
			tasks, err := r.TasksForWeek(ctx, start, end)
			if err != nil {
				return nil, err
			}
			domain.SortTasks(tasks)
			return tasks, nil
		case KindNote:
			return r.Note(ctx, key.Param)
		case KindSummary:
			return r.Summary(ctx, key.Param)
		case KindSettings:
			return r.WeekSettings(ctx, key.Param)
		}
		return nil, fmt.Errorf("unknown key kind %q", key.Kind)
	}
}
