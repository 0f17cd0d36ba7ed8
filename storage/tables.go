package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"weekplan/domain"
)

// TableNames names the tables of the Azure backend.
type TableNames struct {
	Tasks     string
	Notes     string
	Summaries string
	Settings  string
}

// Tables stores planner data in Azure Table Storage. Every table is
// partitioned by user; tasks are keyed by id, week-scoped rows by week id.
type Tables struct {
	tasks     *aztables.Client
	notes     *aztables.Client
	summaries *aztables.Client
	settings  *aztables.Client
	now       func() time.Time
}

// NewTables creates table clients from the given connection string.
func NewTables(connStr string, names TableNames) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Tables{
		tasks:     svc.NewClient(names.Tasks),
		notes:     svc.NewClient(names.Notes),
		summaries: svc.NewClient(names.Summaries),
		settings:  svc.NewClient(names.Settings),
		now:       time.Now,
	}, nil
}

const edmInt64 = "Edm.Int64"

// Entity carries the table keys of a row.
type Entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

type taskEntity struct {
	Entity
	Content   string `json:"Content"`
	Completed bool   `json:"Completed"`
	Date      string `json:"Date"`
	TimeBlock string `json:"TimeBlock"`
	SortOrder int    `json:"SortOrder"`
	CreatedAt string `json:"CreatedAt"`
	UpdatedAt string `json:"UpdatedAt"`
}

type noteEntity struct {
	Entity
	ID        int64  `json:"ID,string"`
	IDType    string `json:"ID@odata.type"`
	Content   string `json:"Content"`
	CreatedAt string `json:"CreatedAt"`
	UpdatedAt string `json:"UpdatedAt"`
}

type summaryEntity struct {
	Entity
	ID           int64   `json:"ID,string"`
	IDType       string  `json:"ID@odata.type"`
	Keyword      *string `json:"Keyword,omitempty"`
	DailyEntries string  `json:"DailyEntries"`
	Reflection   *string `json:"Reflection,omitempty"`
	CreatedAt    string  `json:"CreatedAt"`
	UpdatedAt    string  `json:"UpdatedAt"`
}

type settingsEntity struct {
	Entity
	ID             int64   `json:"ID,string"`
	IDType         string  `json:"ID@odata.type"`
	ColumnWidths   string  `json:"ColumnWidths"`
	RowHeights     string  `json:"RowHeights"`
	CustomText     *string `json:"CustomText,omitempty"`
	CustomImageURL *string `json:"CustomImageUrl,omitempty"`
	CreatedAt      string  `json:"CreatedAt"`
	UpdatedAt      string  `json:"UpdatedAt"`
}

func taskRowKey(id int64) string { return fmt.Sprintf("%019d", id) }

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// quote escapes a value for use inside an OData string literal.
func quote(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

func (e taskEntity) toDomain() domain.Task {
	id, _ := strconv.ParseInt(e.RowKey, 10, 64)
	return domain.Task{
		ID:        id,
		UserID:    e.PartitionKey,
		Content:   e.Content,
		Completed: e.Completed,
		Date:      e.Date,
		TimeBlock: domain.TimeBlock(e.TimeBlock),
		SortOrder: e.SortOrder,
		CreatedAt: parseTime(e.CreatedAt),
		UpdatedAt: parseTime(e.UpdatedAt),
	}
}

func taskEntityOf(t domain.Task) taskEntity {
	return taskEntity{
		Entity:    Entity{PartitionKey: t.UserID, RowKey: taskRowKey(t.ID)},
		Content:   t.Content,
		Completed: t.Completed,
		Date:      t.Date,
		TimeBlock: string(t.TimeBlock),
		SortOrder: t.SortOrder,
		CreatedAt: formatTime(t.CreatedAt),
		UpdatedAt: formatTime(t.UpdatedAt),
	}
}

func (s *Tables) TasksInRange(ctx context.Context, userID, startDate, endDate string) ([]domain.Task, error) {
	filter := "PartitionKey eq " + quote(userID) + " and Date ge " + quote(startDate) + " and Date le " + quote(endDate)
	pager := s.tasks.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := sonic.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, ent.toDomain())
		}
	}
	domain.SortTasks(tasks)
	return tasks, nil
}

func (s *Tables) CreateTask(ctx context.Context, userID string, n domain.NewTask) (domain.Task, error) {
	now := s.now()
	t := domain.Task{
		ID:        nextID(),
		UserID:    userID,
		Content:   n.Content,
		Date:      n.Date,
		TimeBlock: n.TimeBlock,
		SortOrder: n.SortOrder,
		CreatedAt: now,
		UpdatedAt: now,
	}
	payload, err := sonic.Marshal(taskEntityOf(t))
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.tasks.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (s *Tables) getTask(ctx context.Context, userID string, id int64) (domain.Task, azcore.ETag, error) {
	resp, err := s.tasks.GetEntity(ctx, userID, taskRowKey(id), nil)
	if isNotFound(err) {
		return domain.Task{}, "", domain.ErrNotFound
	}
	if err != nil {
		return domain.Task{}, "", err
	}
	var ent taskEntity
	if err := sonic.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Task{}, "", err
	}
	return ent.toDomain(), resp.ETag, nil
}

// UpdateTask replaces the entity only if it was not modified since it was read.
func (s *Tables) UpdateTask(ctx context.Context, userID string, id int64, p domain.TaskPatch) (TaskChange, error) {
	before, etag, err := s.getTask(ctx, userID, id)
	if err != nil {
		return TaskChange{}, err
	}
	after := p.Apply(before)
	after.UpdatedAt = s.now()
	payload, err := sonic.Marshal(taskEntityOf(after))
	if err != nil {
		return TaskChange{}, err
	}
	_, err = s.tasks.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace})
	if isNotFound(err) {
		return TaskChange{}, domain.ErrNotFound
	}
	if err != nil {
		return TaskChange{}, err
	}
	return TaskChange{Before: before, After: after}, nil
}

func (s *Tables) DeleteTask(ctx context.Context, userID string, id int64) (domain.Task, error) {
	t, etag, err := s.getTask(ctx, userID, id)
	if err != nil {
		return domain.Task{}, err
	}
	_, err = s.tasks.DeleteEntity(ctx, userID, taskRowKey(id), &aztables.DeleteEntityOptions{IfMatch: &etag})
	if isNotFound(err) {
		return domain.Task{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// getWeekRow loads a week-scoped entity into dst. It reports false when the
// row does not exist.
func getWeekRow(ctx context.Context, client *aztables.Client, userID, weekID string, dst any) (bool, error) {
	resp, err := client.GetEntity(ctx, userID, weekID, nil)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := sonic.Unmarshal(resp.Value, dst); err != nil {
		return false, err
	}
	return true, nil
}

func upsertRow(ctx context.Context, client *aztables.Client, ent any) error {
	payload, err := sonic.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = client.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

func (e noteEntity) toDomain() domain.Note {
	return domain.Note{
		ID:        e.ID,
		UserID:    e.PartitionKey,
		WeekID:    e.RowKey,
		Content:   e.Content,
		CreatedAt: parseTime(e.CreatedAt),
		UpdatedAt: parseTime(e.UpdatedAt),
	}
}

func (s *Tables) Note(ctx context.Context, userID, weekID string) (*domain.Note, error) {
	var ent noteEntity
	ok, err := getWeekRow(ctx, s.notes, userID, weekID, &ent)
	if err != nil || !ok {
		return nil, err
	}
	n := ent.toDomain()
	return &n, nil
}

func (s *Tables) UpsertNote(ctx context.Context, userID, weekID, content string) (domain.Note, error) {
	var ent noteEntity
	ok, err := getWeekRow(ctx, s.notes, userID, weekID, &ent)
	if err != nil {
		return domain.Note{}, err
	}
	now := formatTime(s.now())
	if !ok {
		ent = noteEntity{Entity: Entity{PartitionKey: userID, RowKey: weekID}, ID: nextID(), CreatedAt: now}
	}
	ent.IDType = edmInt64
	ent.Content = content
	ent.UpdatedAt = now
	if err := upsertRow(ctx, s.notes, ent); err != nil {
		return domain.Note{}, err
	}
	return ent.toDomain(), nil
}

func (e summaryEntity) toDomain() domain.WeeklySummary {
	entries, err := domain.ParseDailyEntries(e.DailyEntries)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"userId": e.PartitionKey, "weekId": e.RowKey}).Warn("malformed daily entries")
	}
	return domain.WeeklySummary{
		ID:           e.ID,
		UserID:       e.PartitionKey,
		WeekID:       e.RowKey,
		Keyword:      e.Keyword,
		DailyEntries: entries,
		Reflection:   e.Reflection,
		CreatedAt:    parseTime(e.CreatedAt),
		UpdatedAt:    parseTime(e.UpdatedAt),
	}
}

func (s *Tables) Summary(ctx context.Context, userID, weekID string) (*domain.WeeklySummary, error) {
	var ent summaryEntity
	ok, err := getWeekRow(ctx, s.summaries, userID, weekID, &ent)
	if err != nil || !ok {
		return nil, err
	}
	sum := ent.toDomain()
	return &sum, nil
}

func (s *Tables) UpsertSummary(ctx context.Context, userID, weekID string, p domain.SummaryPatch) (domain.WeeklySummary, error) {
	cur, err := s.Summary(ctx, userID, weekID)
	if err != nil {
		return domain.WeeklySummary{}, err
	}
	now := s.now()
	base := domain.WeeklySummary{ID: nextID(), UserID: userID, WeekID: weekID, DailyEntries: domain.DailyEntries{}, CreatedAt: now}
	if cur != nil {
		base = *cur
	}
	next := p.Apply(base)
	next.UpdatedAt = now
	ent := summaryEntity{
		Entity:       Entity{PartitionKey: userID, RowKey: weekID},
		ID:           next.ID,
		IDType:       edmInt64,
		Keyword:      next.Keyword,
		DailyEntries: next.DailyEntries.Encode(),
		Reflection:   next.Reflection,
		CreatedAt:    formatTime(next.CreatedAt),
		UpdatedAt:    formatTime(next.UpdatedAt),
	}
	if err := upsertRow(ctx, s.summaries, ent); err != nil {
		return domain.WeeklySummary{}, err
	}
	return next, nil
}

func (e settingsEntity) toDomain() domain.WeekSettings {
	fields := log.Fields{"userId": e.PartitionKey, "weekId": e.RowKey}
	widths, err := domain.ParseDimensions(e.ColumnWidths)
	if err != nil {
		log.WithError(err).WithFields(fields).Warn("malformed column widths")
	}
	heights, err := domain.ParseDimensions(e.RowHeights)
	if err != nil {
		log.WithError(err).WithFields(fields).Warn("malformed row heights")
	}
	return domain.WeekSettings{
		ID:             e.ID,
		UserID:         e.PartitionKey,
		WeekID:         e.RowKey,
		ColumnWidths:   widths,
		RowHeights:     heights,
		CustomText:     e.CustomText,
		CustomImageURL: e.CustomImageURL,
		CreatedAt:      parseTime(e.CreatedAt),
		UpdatedAt:      parseTime(e.UpdatedAt),
	}
}

func (s *Tables) WeekSettings(ctx context.Context, userID, weekID string) (*domain.WeekSettings, error) {
	var ent settingsEntity
	ok, err := getWeekRow(ctx, s.settings, userID, weekID, &ent)
	if err != nil || !ok {
		return nil, err
	}
	ws := ent.toDomain()
	return &ws, nil
}

func (s *Tables) UpdateWeekSettings(ctx context.Context, userID, weekID string, p domain.SettingsPatch) (domain.WeekSettings, error) {
	cur, err := s.WeekSettings(ctx, userID, weekID)
	if err != nil {
		return domain.WeekSettings{}, err
	}
	now := s.now()
	base := domain.WeekSettings{ID: nextID(), UserID: userID, WeekID: weekID, CreatedAt: now}
	if cur != nil {
		base = *cur
	}
	next := p.Apply(base)
	next.UpdatedAt = now
	ent := settingsEntity{
		Entity:         Entity{PartitionKey: userID, RowKey: weekID},
		ID:             next.ID,
		IDType:         edmInt64,
		ColumnWidths:   domain.EncodeDimensions(next.ColumnWidths),
		RowHeights:     domain.EncodeDimensions(next.RowHeights),
		CustomText:     next.CustomText,
		CustomImageURL: next.CustomImageURL,
		CreatedAt:      formatTime(next.CreatedAt),
		UpdatedAt:      formatTime(next.UpdatedAt),
	}
	if err := upsertRow(ctx, s.settings, ent); err != nil {
		return domain.WeekSettings{}, err
	}
	return next, nil
}
