// Package planner keeps a local, optimistically updated copy of one user's
// week: its tasks, note, weekly summary and layout settings. Mutations show
// up in the cache immediately and are rolled back if the server rejects them;
// text and layout edits are debounced into a single write per field.
package planner

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"weekplan/domain"
	"weekplan/week"
)

const (
	DefaultTextDelay   = 500 * time.Millisecond
	DefaultLayoutDelay = 300 * time.Millisecond
)

// ErrTaskPending is returned when a task is addressed by its provisional id
// before the server assigned the real one.
var ErrTaskPending = &domain.ValidationError{Field: "id", Reason: "task is still being created"}

// Options configures a Planner. Zero values fall back to defaults.
type Options struct {
	Logger      *log.Logger
	TextDelay   time.Duration
	LayoutDelay time.Duration
	// Notify receives failures of mutations that were rolled back.
	Notify func(error)
	Now    func() time.Time
}

// Planner is the week view facade. It is safe for concurrent use.
type Planner struct {
	remote   Remote
	store    *Store
	exec     *Executor
	debounce *Coalescer
	logger   *log.Logger
	opts     Options

	mu   sync.Mutex
	week week.Week
	ids  map[int64]int64
}

// New returns a planner showing the current week.
func New(remote Remote, opts Options) *Planner {
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.TextDelay <= 0 {
		opts.TextDelay = DefaultTextDelay
	}
	if opts.LayoutDelay <= 0 {
		opts.LayoutDelay = DefaultLayoutDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	store := NewStore(RemoteFetcher(remote), opts.Logger)
	return &Planner{
		remote:   remote,
		store:    store,
		exec:     NewExecutor(remote, store, opts.Logger, opts.Notify),
		debounce: NewCoalescer(context.Background(), opts.Logger),
		logger:   opts.Logger,
		opts:     opts,
		week:     week.Of(opts.Now()),
		ids:      make(map[int64]int64),
	}
}

// Store exposes the underlying cache.
func (p *Planner) Store() *Store { return p.store }

// Week returns the displayed week.
func (p *Planner) Week() week.Week {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.week
}

// SetWeek switches the displayed week to the one containing t, cancels
// fetches of the previous week and loads the new one.
func (p *Planner) SetWeek(ctx context.Context, t time.Time) error {
	next := week.Of(t)
	p.mu.Lock()
	prev := p.week
	p.week = next
	p.mu.Unlock()

	if prev.ID != next.ID {
		for _, k := range WeekKeys(prev) {
			p.store.CancelInFlight(k)
		}
	}
	return p.Load(ctx)
}

// Load fetches whatever part of the displayed week is missing or stale.
func (p *Planner) Load(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, k := range WeekKeys(p.Week()) {
		key := k
		g.Go(func() error {
			_, err := p.store.Load(gctx, key)
			return err
		})
	}
	return g.Wait()
}

// Tasks returns the tasks of the displayed week ordered by sort order.
func (p *Planner) Tasks(ctx context.Context) ([]domain.Task, error) {
	v, err := p.store.Load(ctx, TasksKey(p.Week()))
	if err != nil {
		return nil, err
	}
	list, _ := v.([]domain.Task)
	out := domain.CloneTasks(list)
	domain.SortTasks(out)
	return out, nil
}

// CachedTasks returns the cached tasks of the displayed week without fetching.
func (p *Planner) CachedTasks() []domain.Task {
	v, _ := p.store.Get(TasksKey(p.Week()))
	list, _ := v.([]domain.Task)
	out := domain.CloneTasks(list)
	domain.SortTasks(out)
	return out
}

// TasksIn returns the tasks of one cell in display order.
func (p *Planner) TasksIn(ctx context.Context, date string, block domain.TimeBlock) ([]domain.Task, error) {
	tasks, err := p.Tasks(ctx)
	if err != nil {
		return nil, err
	}
	out := tasks[:0:0]
	for _, t := range tasks {
		if t.Date == date && t.TimeBlock == block {
			out = append(out, t)
		}
	}
	return out, nil
}

// Note returns the note of the displayed week, nil when none was saved.
func (p *Planner) Note(ctx context.Context) (*domain.Note, error) {
	v, err := p.store.Load(ctx, NoteKey(p.Week().ID))
	if err != nil {
		return nil, err
	}
	n, _ := v.(*domain.Note)
	return n, nil
}

// Summary returns the weekly summary of the displayed week, nil when none was saved.
func (p *Planner) Summary(ctx context.Context) (*domain.WeeklySummary, error) {
	v, err := p.store.Load(ctx, SummaryKey(p.Week().ID))
	if err != nil {
		return nil, err
	}
	s, _ := v.(*domain.WeeklySummary)
	return s, nil
}

// Settings returns the layout settings of the displayed week, nil when none were saved.
func (p *Planner) Settings(ctx context.Context) (*domain.WeekSettings, error) {
	v, err := p.store.Load(ctx, SettingsKey(p.Week().ID))
	if err != nil {
		return nil, err
	}
	s, _ := v.(*domain.WeekSettings)
	return s, nil
}

// ColumnWidths returns the width of every day column, defaulted where unset.
func (p *Planner) ColumnWidths(ctx context.Context) ([domain.DaysPerWeek]int, error) {
	s, err := p.Settings(ctx)
	if err != nil {
		return [domain.DaysPerWeek]int{}, err
	}
	if s == nil {
		return domain.EffectiveColumnWidths(nil), nil
	}
	return domain.EffectiveColumnWidths(s.ColumnWidths), nil
}

var lastProvisional int64

// nextProvisionalID returns a unique negative id so provisional tasks never
// collide with server ids.
func (p *Planner) nextProvisionalID() int64 {
	for {
		now := p.opts.Now().UnixNano()
		last := atomic.LoadInt64(&lastProvisional)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastProvisional, last, now) {
			return -now
		}
	}
}

func (p *Planner) cachedTask(id int64) (domain.Task, bool) {
	for _, k := range p.taskKeys() {
		v, _ := p.store.Get(k)
		list, _ := v.([]domain.Task)
		if t, ok := findTask(list, id); ok {
			return t, true
		}
	}
	return domain.Task{}, false
}

// taskKeys lists the cached task ranges, the displayed week first.
func (p *Planner) taskKeys() []Key {
	w := p.Week()
	return []Key{TasksKey(w), TasksKey(w.Prev()), TasksKey(w.Next())}
}

// serverID maps a provisional id to the id the server assigned.
func (p *Planner) serverID(id int64) (int64, error) {
	if id > 0 {
		return id, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if sid, ok := p.ids[id]; ok {
		return sid, nil
	}
	return 0, ErrTaskPending
}

// AddTask creates a task at the end of the given cell. The task is visible
// in the cache before the server confirms it.
func (p *Planner) AddTask(ctx context.Context, content, date string, block domain.TimeBlock) (domain.Task, error) {
	nt := domain.NewTask{Content: strings.TrimSpace(content), Date: date, TimeBlock: block}
	if err := nt.Validate(); err != nil {
		return domain.Task{}, err
	}
	key, err := TasksKeyForDate(date)
	if err != nil {
		return domain.Task{}, err
	}
	v, _ := p.store.Get(key)
	list, _ := v.([]domain.Task)
	nt.SortOrder = domain.CellCount(list, date, block)

	prov := p.nextProvisionalID()
	res, err := p.exec.Execute(ctx, &CreateTask{Task: nt, ProvisionalID: prov, Now: p.opts.Now()})
	if err != nil {
		return domain.Task{}, err
	}
	t, _ := res.Value.(domain.Task)
	p.mu.Lock()
	p.ids[prov] = t.ID
	p.mu.Unlock()
	return t, nil
}

// UpdateTaskContent edits the text of a task. Clearing the text deletes it.
func (p *Planner) UpdateTaskContent(ctx context.Context, id int64, content string) (Result, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return p.DeleteTask(ctx, id)
	}
	return p.updateTask(ctx, id, domain.TaskPatch{Content: &content})
}

// ToggleTask flips the completion flag of a task.
func (p *Planner) ToggleTask(ctx context.Context, id int64) (Result, error) {
	id, err := p.serverID(id)
	if err != nil {
		return Result{}, err
	}
	t, ok := p.cachedTask(id)
	if !ok {
		return Result{NotFound: true}, nil
	}
	done := !t.Completed
	return p.updateTask(ctx, id, domain.TaskPatch{Completed: &done})
}

// MoveTask places a task at the end of another cell. Moving to its own cell
// is a no-op.
func (p *Planner) MoveTask(ctx context.Context, id int64, date string, block domain.TimeBlock) error {
	id, err := p.serverID(id)
	if err != nil {
		return err
	}
	patch := domain.TaskPatch{Date: &date, TimeBlock: &block}
	if t, ok := p.cachedTask(id); ok {
		if t.Date == date && t.TimeBlock == block {
			return nil
		}
		if key, err := TasksKeyForDate(date); err == nil {
			v, _ := p.store.Get(key)
			list, _ := v.([]domain.Task)
			order := domain.CellCount(list, date, block)
			patch.SortOrder = &order
		}
	}
	_, err = p.updateTask(ctx, id, patch)
	return err
}

func (p *Planner) updateTask(ctx context.Context, id int64, patch domain.TaskPatch) (Result, error) {
	id, err := p.serverID(id)
	if err != nil {
		return Result{}, err
	}
	op := &UpdateTask{ID: id, Patch: patch}
	if t, ok := p.cachedTask(id); ok {
		op.Current = &t
	}
	return p.exec.Execute(ctx, op)
}

// DeleteTask removes a task. Deleting a task the server no longer has is
// reported through Result.NotFound, not as an error.
func (p *Planner) DeleteTask(ctx context.Context, id int64) (Result, error) {
	id, err := p.serverID(id)
	if err != nil {
		return Result{}, err
	}
	op := &DeleteTask{ID: id}
	if t, ok := p.cachedTask(id); ok {
		op.Date = t.Date
	}
	return p.exec.Execute(ctx, op)
}

// Drag returns a drag controller that moves tasks through this planner.
func (p *Planner) Drag() *Drag { return NewDrag(p) }

func (p *Planner) schedule(key string, delay time.Duration, value any, op func(any) Operation) {
	p.debounce.Schedule(key, value, delay, func(ctx context.Context, v any) error {
		_, err := p.exec.Execute(ctx, op(v))
		return err
	})
}

// UpdateNote records an edit of the displayed week's note. Edits within the
// text delay collapse into one write of the last text.
func (p *Planner) UpdateNote(content string) {
	wid := p.Week().ID
	p.schedule("note:"+wid, p.opts.TextDelay, content, func(v any) Operation {
		return &UpsertNote{WeekID: wid, Content: v.(string)}
	})
}

// PendingNote returns the note text waiting to be written.
func (p *Planner) PendingNote() (string, bool) {
	v, ok := p.debounce.Pending("note:" + p.Week().ID)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// UpdateColumnWidth records a resize of one day column. Each day has its own
// debounce so resizing two columns in quick succession keeps both.
func (p *Planner) UpdateColumnWidth(day, width int) error {
	if day < 0 || day >= domain.DaysPerWeek {
		return &domain.ValidationError{Field: "day", Reason: "must be between 0 and 6"}
	}
	wid := p.Week().ID
	p.schedule(fmt.Sprintf("width:%s:%d", wid, day), p.opts.LayoutDelay, domain.ClampColumnWidth(width), func(v any) Operation {
		return &UpdateSettings{WeekID: wid, Patch: domain.SettingsPatch{
			Layout: domain.LayoutPatch{ColumnWidths: map[int]int{day: v.(int)}},
		}}
	})
	return nil
}

// UpdateCustomText records an edit of the banner text. nil clears it.
func (p *Planner) UpdateCustomText(text *string) {
	wid := p.Week().ID
	p.schedule("banner:"+wid, p.opts.TextDelay, text, func(v any) Operation {
		return &UpdateSettings{WeekID: wid, Patch: domain.SettingsPatch{
			Content: domain.CustomContentPatch{CustomText: optional(v.(*string))},
		}}
	})
}

// UploadCustomImage uploads a banner image for the displayed week and
// returns its URL.
func (p *Planner) UploadCustomImage(ctx context.Context, r io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	res, err := p.exec.Execute(ctx, &UploadImage{WeekID: p.Week().ID, Data: data, ContentType: contentType})
	if err != nil {
		return "", err
	}
	url, _ := res.Value.(string)
	return url, nil
}

// ClearCustomImage removes the banner image of the displayed week.
func (p *Planner) ClearCustomImage(ctx context.Context) error {
	_, err := p.exec.Execute(ctx, &UpdateSettings{WeekID: p.Week().ID, Patch: domain.SettingsPatch{
		Content: domain.CustomContentPatch{CustomImageURL: domain.Null()},
	}})
	return err
}

// UpdateKeyword records an edit of the summary keyword. nil clears it.
func (p *Planner) UpdateKeyword(text *string) {
	wid := p.Week().ID
	p.schedule("keyword:"+wid, p.opts.TextDelay, text, func(v any) Operation {
		return &UpsertSummary{WeekID: wid, Patch: domain.SummaryPatch{Keyword: optional(v.(*string))}}
	})
}

// UpdateReflection records an edit of the summary reflection. nil clears it.
func (p *Planner) UpdateReflection(text *string) {
	wid := p.Week().ID
	p.schedule("reflection:"+wid, p.opts.TextDelay, text, func(v any) Operation {
		return &UpsertSummary{WeekID: wid, Patch: domain.SummaryPatch{Reflection: optional(v.(*string))}}
	})
}

// UpdateDailyEntry records an edit of one day's summary entry.
func (p *Planner) UpdateDailyEntry(day int, text string) error {
	if day < 0 || day >= domain.DaysPerWeek {
		return &domain.ValidationError{Field: "day", Reason: "must be between 0 and 6"}
	}
	wid := p.Week().ID
	dayKey := strconv.Itoa(day)
	p.schedule("daily:"+wid+":"+dayKey, p.opts.TextDelay, text, func(v any) Operation {
		return &UpsertSummary{WeekID: wid, Patch: domain.SummaryPatch{
			DailyEntries: domain.DailyEntries{dayKey: v.(string)},
		}}
	})
	return nil
}

// Flush writes every pending debounced edit now.
func (p *Planner) Flush(ctx context.Context) error {
	return p.debounce.Flush(ctx)
}

// Close flushes pending edits and stops the debouncer.
func (p *Planner) Close(ctx context.Context) error {
	err := p.debounce.Flush(ctx)
	p.debounce.Stop()
	return err
}

func optional(s *string) domain.OptionalString {
	if s == nil {
		return domain.Null()
	}
	return domain.Some(*s)
}
