package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"weekplan/domain"
)

//go:embed schema.sql
var Schema string

// Postgres stores planner data in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgres(db), nil
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Migrate creates missing tables and indexes.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, Schema)
	return err
}

// Close releases the connection pool.
func (p *Postgres) Close() error { return p.db.Close() }

const taskColumns = "id, user_id, content, completed, date, time_block, sort_order, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		t     domain.Task
		block string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Content, &t.Completed, &t.Date, &block, &t.SortOrder, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Task{}, err
	}
	t.TimeBlock = domain.TimeBlock(block)
	return t, nil
}

func (p *Postgres) TasksInRange(ctx context.Context, userID, startDate, endDate string) ([]domain.Task, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE user_id = $1 AND date >= $2 AND date <= $3 ORDER BY sort_order, created_at",
		userID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (p *Postgres) CreateTask(ctx context.Context, userID string, n domain.NewTask) (domain.Task, error) {
	row := p.db.QueryRowContext(ctx,
		"INSERT INTO tasks (user_id, content, completed, date, time_block, sort_order) VALUES ($1, $2, FALSE, $3, $4, $5) RETURNING "+taskColumns,
		userID, n.Content, n.Date, string(n.TimeBlock), n.SortOrder)
	return scanTask(row)
}

func (p *Postgres) UpdateTask(ctx context.Context, userID string, id int64, patch domain.TaskPatch) (TaskChange, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return TaskChange{}, err
	}
	defer func() { _ = tx.Rollback() }()

	before, err := scanTask(tx.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE id = $1 AND user_id = $2 FOR UPDATE", id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return TaskChange{}, domain.ErrNotFound
	}
	if err != nil {
		return TaskChange{}, err
	}

	next := patch.Apply(before)
	after, err := scanTask(tx.QueryRowContext(ctx,
		"UPDATE tasks SET content = $1, completed = $2, date = $3, time_block = $4, sort_order = $5, updated_at = now() WHERE id = $6 AND user_id = $7 RETURNING "+taskColumns,
		next.Content, next.Completed, next.Date, string(next.TimeBlock), next.SortOrder, id, userID))
	if err != nil {
		return TaskChange{}, err
	}
	if err := tx.Commit(); err != nil {
		return TaskChange{}, err
	}
	return TaskChange{Before: before, After: after}, nil
}

func (p *Postgres) DeleteTask(ctx context.Context, userID string, id int64) (domain.Task, error) {
	t, err := scanTask(p.db.QueryRowContext(ctx,
		"DELETE FROM tasks WHERE id = $1 AND user_id = $2 RETURNING "+taskColumns, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, domain.ErrNotFound
	}
	return t, err
}

func (p *Postgres) Note(ctx context.Context, userID, weekID string) (*domain.Note, error) {
	n := domain.Note{}
	err := p.db.QueryRowContext(ctx,
		"SELECT id, user_id, week_id, content, created_at, updated_at FROM notes WHERE user_id = $1 AND week_id = $2",
		userID, weekID).Scan(&n.ID, &n.UserID, &n.WeekID, &n.Content, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (p *Postgres) UpsertNote(ctx context.Context, userID, weekID, content string) (domain.Note, error) {
	n := domain.Note{}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO notes (user_id, week_id, content) VALUES ($1, $2, $3)
ON CONFLICT (user_id, week_id) DO UPDATE SET content = EXCLUDED.content, updated_at = now()
RETURNING id, user_id, week_id, content, created_at, updated_at`,
		userID, weekID, content).Scan(&n.ID, &n.UserID, &n.WeekID, &n.Content, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

const summaryColumns = "id, user_id, week_id, keyword, daily_entries, reflection, created_at, updated_at"

func scanSummary(row rowScanner) (domain.WeeklySummary, error) {
	var (
		s                   domain.WeeklySummary
		keyword, reflection sql.NullString
		entries             string
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.WeekID, &keyword, &entries, &reflection, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return domain.WeeklySummary{}, err
	}
	s.Keyword = nullableString(keyword)
	s.Reflection = nullableString(reflection)
	de, err := domain.ParseDailyEntries(entries)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"userId": s.UserID, "weekId": s.WeekID}).Warn("malformed daily entries")
	}
	s.DailyEntries = de
	return s, nil
}

func (p *Postgres) Summary(ctx context.Context, userID, weekID string) (*domain.WeeklySummary, error) {
	s, err := scanSummary(p.db.QueryRowContext(ctx,
		"SELECT "+summaryColumns+" FROM weekly_summaries WHERE user_id = $1 AND week_id = $2", userID, weekID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSummary merges the patch into the stored row under a row lock so that
// concurrent edits of different days are both kept. A blank row is inserted
// first so the lock also covers a week's first write.
func (p *Postgres) UpsertSummary(ctx context.Context, userID, weekID string, patch domain.SummaryPatch) (domain.WeeklySummary, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WeeklySummary{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO weekly_summaries (user_id, week_id) VALUES ($1, $2) ON CONFLICT (user_id, week_id) DO NOTHING", userID, weekID); err != nil {
		return domain.WeeklySummary{}, err
	}
	cur, err := scanSummary(tx.QueryRowContext(ctx,
		"SELECT "+summaryColumns+" FROM weekly_summaries WHERE user_id = $1 AND week_id = $2 FOR UPDATE", userID, weekID))
	if errors.Is(err, sql.ErrNoRows) {
		cur = domain.WeeklySummary{UserID: userID, WeekID: weekID, DailyEntries: domain.DailyEntries{}}
	} else if err != nil {
		return domain.WeeklySummary{}, err
	}
	next := patch.Apply(cur)

	out, err := scanSummary(tx.QueryRowContext(ctx,
		`INSERT INTO weekly_summaries (user_id, week_id, keyword, daily_entries, reflection) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, week_id) DO UPDATE SET keyword = EXCLUDED.keyword, daily_entries = EXCLUDED.daily_entries, reflection = EXCLUDED.reflection, updated_at = now()
RETURNING `+summaryColumns,
		userID, weekID, toNullString(next.Keyword), next.DailyEntries.Encode(), toNullString(next.Reflection)))
	if err != nil {
		return domain.WeeklySummary{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WeeklySummary{}, err
	}
	return out, nil
}

const settingsColumns = "id, user_id, week_id, column_widths, row_heights, custom_text, custom_image_url, created_at, updated_at"

func scanSettings(row rowScanner) (domain.WeekSettings, error) {
	var (
		s                    domain.WeekSettings
		widths, heights      string
		customText, imageURL sql.NullString
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.WeekID, &widths, &heights, &customText, &imageURL, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return domain.WeekSettings{}, err
	}
	s.CustomText = nullableString(customText)
	s.CustomImageURL = nullableString(imageURL)
	var err error
	if s.ColumnWidths, err = domain.ParseDimensions(widths); err != nil {
		log.WithError(err).WithFields(log.Fields{"userId": s.UserID, "weekId": s.WeekID}).Warn("malformed column widths")
	}
	if s.RowHeights, err = domain.ParseDimensions(heights); err != nil {
		log.WithError(err).WithFields(log.Fields{"userId": s.UserID, "weekId": s.WeekID}).Warn("malformed row heights")
	}
	return s, nil
}

func (p *Postgres) WeekSettings(ctx context.Context, userID, weekID string) (*domain.WeekSettings, error) {
	s, err := scanSettings(p.db.QueryRowContext(ctx,
		"SELECT "+settingsColumns+" FROM week_settings WHERE user_id = $1 AND week_id = $2", userID, weekID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateWeekSettings merges the patch into the stored row, creating it when
// the week has no settings yet. Like UpsertSummary it locks a pre-inserted
// row so concurrent first writes serialize.
func (p *Postgres) UpdateWeekSettings(ctx context.Context, userID, weekID string, patch domain.SettingsPatch) (domain.WeekSettings, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WeekSettings{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO week_settings (user_id, week_id) VALUES ($1, $2) ON CONFLICT (user_id, week_id) DO NOTHING", userID, weekID); err != nil {
		return domain.WeekSettings{}, err
	}
	cur, err := scanSettings(tx.QueryRowContext(ctx,
		"SELECT "+settingsColumns+" FROM week_settings WHERE user_id = $1 AND week_id = $2 FOR UPDATE", userID, weekID))
	if errors.Is(err, sql.ErrNoRows) {
		cur = domain.WeekSettings{UserID: userID, WeekID: weekID}
	} else if err != nil {
		return domain.WeekSettings{}, err
	}
	next := patch.Apply(cur)

	out, err := scanSettings(tx.QueryRowContext(ctx,
		`INSERT INTO week_settings (user_id, week_id, column_widths, row_heights, custom_text, custom_image_url) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id, week_id) DO UPDATE SET column_widths = EXCLUDED.column_widths, row_heights = EXCLUDED.row_heights, custom_text = EXCLUDED.custom_text, custom_image_url = EXCLUDED.custom_image_url, updated_at = now()
RETURNING `+settingsColumns,
		userID, weekID, domain.EncodeDimensions(next.ColumnWidths), domain.EncodeDimensions(next.RowHeights),
		toNullString(next.CustomText), toNullString(next.CustomImageURL)))
	if err != nil {
		return domain.WeekSettings{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WeekSettings{}, err
	}
	return out, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
