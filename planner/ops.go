package planner

import (
	"context"
	"strings"
	"time"

	"weekplan/domain"
)

func tasksValue(cur any, ok bool) ([]domain.Task, bool) {
	if !ok {
		return nil, false
	}
	list, isList := cur.([]domain.Task)
	return list, isList
}

// placeTask returns a copy of list where the task with id replaceID is
// swapped for t, or t is appended when missing. t is dropped when its date
// falls outside the key's range.
func placeTask(list []domain.Task, t domain.Task, key Key, replaceID int64) []domain.Task {
	inRange := key.contains(t.Date)
	out := make([]domain.Task, 0, len(list)+1)
	placed := false
	for _, cur := range list {
		if cur.ID == replaceID || cur.ID == t.ID {
			if inRange && !placed {
				out = append(out, t)
				placed = true
			}
			continue
		}
		out = append(out, cur)
	}
	if inRange && !placed {
		out = append(out, t)
	}
	return out
}

func findTask(list []domain.Task, id int64) (domain.Task, bool) {
	for _, t := range list {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

func taskKeys(dates ...string) []Key {
	keys := make([]Key, 0, len(dates))
	for _, d := range dates {
		if d == "" {
			continue
		}
		if k, err := TasksKeyForDate(d); err == nil {
			keys = append(keys, k)
		}
	}
	return keys
}

func invalidID(id int64) error {
	if id <= 0 {
		return &domain.ValidationError{Field: "id", Reason: "must be a saved task id"}
	}
	return nil
}

// CreateTask adds a task. The cached week shows it under ProvisionalID until
// the server answers with the real task.
type CreateTask struct {
	Task          domain.NewTask
	ProvisionalID int64
	Now           time.Time
}

func (c *CreateTask) Name() string    { return "createTask" }
func (c *CreateTask) Validate() error { return c.Task.Validate() }
func (c *CreateTask) Keys() []Key     { return taskKeys(c.Task.Date) }

func (c *CreateTask) Optimistic(key Key, cur any, ok bool) (any, bool) {
	list, ok := tasksValue(cur, ok)
	if !ok {
		return nil, false
	}
	t := domain.Task{
		ID:        c.ProvisionalID,
		Content:   strings.TrimSpace(c.Task.Content),
		Date:      c.Task.Date,
		TimeBlock: c.Task.TimeBlock,
		SortOrder: c.Task.SortOrder,
		CreatedAt: c.Now,
		UpdatedAt: c.Now,
	}
	return placeTask(list, t, key, c.ProvisionalID), true
}

func (c *CreateTask) Call(ctx context.Context, r Remote) (any, error) {
	return r.CreateTask(ctx, c.Task)
}

func (c *CreateTask) Reconcile(key Key, cur any, ok bool, result any) (any, bool) {
	list, ok := tasksValue(cur, ok)
	t, isTask := result.(domain.Task)
	if !ok || !isTask {
		return nil, false
	}
	return placeTask(list, t, key, c.ProvisionalID), true
}

// UpdateTask changes fields of a saved task. Current is the cached task when
// known; it lets a move patch the destination week as well as the source.
type UpdateTask struct {
	ID      int64
	Patch   domain.TaskPatch
	Current *domain.Task
}

func (u *UpdateTask) Name() string { return "updateTask" }

func (u *UpdateTask) Validate() error {
	if err := invalidID(u.ID); err != nil {
		return err
	}
	return u.Patch.Validate()
}

func (u *UpdateTask) Keys() []Key {
	var dates []string
	if u.Current != nil {
		dates = append(dates, u.Current.Date)
	}
	if u.Patch.Date != nil {
		dates = append(dates, *u.Patch.Date)
	}
	return taskKeys(dates...)
}

func (u *UpdateTask) Optimistic(key Key, cur any, ok bool) (any, bool) {
	list, ok := tasksValue(cur, ok)
	if !ok {
		return nil, false
	}
	base, found := findTask(list, u.ID)
	if !found {
		if u.Current == nil {
			return nil, false
		}
		base = *u.Current
	}
	return placeTask(list, u.Patch.Apply(base), key, u.ID), true
}

func (u *UpdateTask) Call(ctx context.Context, r Remote) (any, error) {
	return r.UpdateTask(ctx, u.ID, u.Patch)
}

func (u *UpdateTask) Reconcile(key Key, cur any, ok bool, result any) (any, bool) {
	list, ok := tasksValue(cur, ok)
	t, isTask := result.(domain.Task)
	if !ok || !isTask {
		return nil, false
	}
	return placeTask(list, t, key, u.ID), true
}

// DeleteTask removes a saved task. Date is the cached date of the task and
// selects the week to patch.
type DeleteTask struct {
	ID   int64
	Date string
}

func (d *DeleteTask) Name() string    { return "deleteTask" }
func (d *DeleteTask) Validate() error { return invalidID(d.ID) }
func (d *DeleteTask) Keys() []Key     { return taskKeys(d.Date) }

func (d *DeleteTask) Optimistic(_ Key, cur any, ok bool) (any, bool) {
	list, ok := tasksValue(cur, ok)
	if !ok {
		return nil, false
	}
	out := make([]domain.Task, 0, len(list))
	for _, t := range list {
		if t.ID != d.ID {
			out = append(out, t)
		}
	}
	return out, true
}

func (d *DeleteTask) Call(ctx context.Context, r Remote) (any, error) {
	return nil, r.DeleteTask(ctx, d.ID)
}

// UpsertNote replaces the free-text note of a week, creating it if needed.
type UpsertNote struct {
	WeekID  string
	Content string
}

func (n *UpsertNote) Name() string    { return "upsertNote" }
func (n *UpsertNote) Validate() error { return domain.ValidateWeekID(n.WeekID) }
func (n *UpsertNote) Keys() []Key     { return []Key{NoteKey(n.WeekID)} }

func (n *UpsertNote) Optimistic(_ Key, cur any, _ bool) (any, bool) {
	note := domain.Note{WeekID: n.WeekID}
	if prev, ok := cur.(*domain.Note); ok && prev != nil {
		note = *prev
	}
	note.Content = n.Content
	return &note, true
}

func (n *UpsertNote) Call(ctx context.Context, r Remote) (any, error) {
	return r.UpsertNote(ctx, n.WeekID, n.Content)
}

func (n *UpsertNote) Reconcile(_ Key, _ any, _ bool, result any) (any, bool) {
	note, ok := result.(domain.Note)
	if !ok {
		return nil, false
	}
	return &note, true
}

// UpsertSummary updates the weekly summary fields present in Patch.
type UpsertSummary struct {
	WeekID string
	Patch  domain.SummaryPatch
}

func (s *UpsertSummary) Name() string { return "upsertSummary" }

func (s *UpsertSummary) Validate() error {
	if err := domain.ValidateWeekID(s.WeekID); err != nil {
		return err
	}
	return s.Patch.Validate()
}

func (s *UpsertSummary) Keys() []Key { return []Key{SummaryKey(s.WeekID)} }

func (s *UpsertSummary) Optimistic(_ Key, cur any, _ bool) (any, bool) {
	sum := domain.WeeklySummary{WeekID: s.WeekID, DailyEntries: domain.DailyEntries{}}
	if prev, ok := cur.(*domain.WeeklySummary); ok && prev != nil {
		sum = *prev
	}
	sum = s.Patch.Apply(sum)
	return &sum, true
}

func (s *UpsertSummary) Call(ctx context.Context, r Remote) (any, error) {
	return r.UpsertSummary(ctx, s.WeekID, s.Patch)
}

func (s *UpsertSummary) Reconcile(_ Key, _ any, _ bool, result any) (any, bool) {
	sum, ok := result.(domain.WeeklySummary)
	if !ok {
		return nil, false
	}
	return &sum, true
}

// UpdateSettings changes the layout and banner of a week.
type UpdateSettings struct {
	WeekID string
	Patch  domain.SettingsPatch
}

func (u *UpdateSettings) Name() string { return "updateSettings" }

func (u *UpdateSettings) Validate() error {
	if err := domain.ValidateWeekID(u.WeekID); err != nil {
		return err
	}
	return u.Patch.Validate()
}

func (u *UpdateSettings) Keys() []Key { return []Key{SettingsKey(u.WeekID)} }

func (u *UpdateSettings) Optimistic(_ Key, cur any, _ bool) (any, bool) {
	s := domain.WeekSettings{WeekID: u.WeekID}
	if prev, ok := cur.(*domain.WeekSettings); ok && prev != nil {
		s = *prev
	}
	s = u.Patch.Apply(s)
	return &s, true
}

func (u *UpdateSettings) Call(ctx context.Context, r Remote) (any, error) {
	var (
		out domain.WeekSettings
		err error
	)
	if !u.Patch.Layout.Empty() {
		if out, err = r.UpdateLayout(ctx, u.WeekID, u.Patch.Layout.Normalize()); err != nil {
			return nil, err
		}
	}
	if !u.Patch.Content.Empty() {
		if out, err = r.UpdateCustomContent(ctx, u.WeekID, u.Patch.Content); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (u *UpdateSettings) Reconcile(_ Key, _ any, _ bool, result any) (any, bool) {
	return reconcileSettings(result)
}

func reconcileSettings(result any) (any, bool) {
	s, ok := result.(domain.WeekSettings)
	if !ok {
		return nil, false
	}
	return &s, true
}

// UploadImage stores a banner image and points the week's banner at it. The
// cache is only updated once the upload succeeded.
type UploadImage struct {
	WeekID      string
	Data        []byte
	ContentType string
}

func (u *UploadImage) Name() string { return "uploadImage" }

func (u *UploadImage) Validate() error {
	if err := domain.ValidateWeekID(u.WeekID); err != nil {
		return err
	}
	if len(u.Data) == 0 {
		return &domain.ValidationError{Field: "image", Reason: "must not be empty"}
	}
	if !strings.HasPrefix(u.ContentType, "image/") {
		return &domain.ValidationError{Field: "mimeType", Reason: "must be an image type"}
	}
	return nil
}

func (u *UploadImage) Keys() []Key { return []Key{SettingsKey(u.WeekID)} }

func (u *UploadImage) Optimistic(Key, any, bool) (any, bool) { return nil, false }

// Call makes a single remote call. The server points the banner at the new
// image as part of the upload.
func (u *UploadImage) Call(ctx context.Context, r Remote) (any, error) {
	return r.UploadCustomImage(ctx, u.WeekID, u.Data, u.ContentType)
}

func (u *UploadImage) Reconcile(_ Key, cur any, ok bool, result any) (any, bool) {
	url, isURL := result.(string)
	if !isURL {
		return nil, false
	}
	s := domain.WeekSettings{WeekID: u.WeekID}
	if prev, isSettings := cur.(*domain.WeekSettings); ok && isSettings && prev != nil {
		s = *prev
	}
	s.CustomImageURL = domain.Some(url).Value
	return &s, true
}
