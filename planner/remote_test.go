package planner

import (
	"context"
	"errors"
	"sync"
	"time"

	"weekplan/domain"
)

var errServer = errors.New("server unavailable")

// fakeRemote keeps everything in memory. gate, when set, blocks every write
// until it is closed or receives a value.
type fakeRemote struct {
	mu       sync.Mutex
	nextID   int64
	tasks    map[int64]domain.Task
	notes    map[string]domain.Note
	sums     map[string]domain.WeeklySummary
	settings map[string]domain.WeekSettings

	fail        bool
	contentFail bool
	gate        chan struct{}
	fetchGate   chan struct{}

	fetches       map[Kind]int
	noteWrites    []string
	layoutCalls   []domain.LayoutPatch
	sumWrites     []domain.SummaryPatch
	contentWrites int
	uploads       int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		nextID:   100,
		tasks:    make(map[int64]domain.Task),
		notes:    make(map[string]domain.Note),
		sums:     make(map[string]domain.WeeklySummary),
		settings: make(map[string]domain.WeekSettings),
		fetches:  make(map[Kind]int),
	}
}

func (f *fakeRemote) seed(t domain.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[t.ID] = t
}

func (f *fakeRemote) wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeRemote) write(ctx context.Context) error {
	f.mu.Lock()
	gate, fail := f.gate, f.fail
	f.mu.Unlock()
	if err := f.wait(ctx, gate); err != nil {
		return err
	}
	if fail {
		return errServer
	}
	return nil
}

func (f *fakeRemote) countFetch(ctx context.Context, k Kind) error {
	f.mu.Lock()
	f.fetches[k]++
	gate := f.fetchGate
	f.mu.Unlock()
	return f.wait(ctx, gate)
}

func (f *fakeRemote) fetchCount(k Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[k]
}

func (f *fakeRemote) TasksForWeek(ctx context.Context, start, end string) ([]domain.Task, error) {
	if err := f.countFetch(ctx, KindTasks); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Task{}
	for _, t := range f.tasks {
		if t.Date >= start && t.Date <= end {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRemote) CreateTask(ctx context.Context, n domain.NewTask) (domain.Task, error) {
	if err := f.write(ctx); err != nil {
		return domain.Task{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	now := time.Now()
	t := domain.Task{ID: f.nextID, Content: n.Content, Date: n.Date, TimeBlock: n.TimeBlock, SortOrder: n.SortOrder, CreatedAt: now, UpdatedAt: now}
	f.tasks[t.ID] = t
	return t, nil
}

func (f *fakeRemote) UpdateTask(ctx context.Context, id int64, p domain.TaskPatch) (domain.Task, error) {
	if err := f.write(ctx); err != nil {
		return domain.Task{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	t = p.Apply(t)
	f.tasks[id] = t
	return t, nil
}

func (f *fakeRemote) DeleteTask(ctx context.Context, id int64) error {
	if err := f.write(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeRemote) Note(ctx context.Context, weekID string) (*domain.Note, error) {
	if err := f.countFetch(ctx, KindNote); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notes[weekID]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (f *fakeRemote) UpsertNote(ctx context.Context, weekID, content string) (domain.Note, error) {
	if err := f.write(ctx); err != nil {
		return domain.Note{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noteWrites = append(f.noteWrites, content)
	n := f.notes[weekID]
	n.WeekID = weekID
	n.Content = content
	f.notes[weekID] = n
	return n, nil
}

func (f *fakeRemote) Summary(ctx context.Context, weekID string) (*domain.WeeklySummary, error) {
	if err := f.countFetch(ctx, KindSummary); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sums[weekID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeRemote) UpsertSummary(ctx context.Context, weekID string, p domain.SummaryPatch) (domain.WeeklySummary, error) {
	if err := f.write(ctx); err != nil {
		return domain.WeeklySummary{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sumWrites = append(f.sumWrites, p)
	s, ok := f.sums[weekID]
	if !ok {
		s = domain.WeeklySummary{WeekID: weekID, DailyEntries: domain.DailyEntries{}}
	}
	s = p.Apply(s)
	f.sums[weekID] = s
	return s, nil
}

func (f *fakeRemote) WeekSettings(ctx context.Context, weekID string) (*domain.WeekSettings, error) {
	if err := f.countFetch(ctx, KindSettings); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[weekID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeRemote) applySettings(weekID string, p domain.SettingsPatch) domain.WeekSettings {
	s, ok := f.settings[weekID]
	if !ok {
		s = domain.WeekSettings{WeekID: weekID}
	}
	s = p.Apply(s)
	f.settings[weekID] = s
	return s
}

func (f *fakeRemote) UpdateLayout(ctx context.Context, weekID string, p domain.LayoutPatch) (domain.WeekSettings, error) {
	if err := f.write(ctx); err != nil {
		return domain.WeekSettings{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.layoutCalls = append(f.layoutCalls, p)
	return f.applySettings(weekID, domain.SettingsPatch{Layout: p}), nil
}

func (f *fakeRemote) UpdateCustomContent(ctx context.Context, weekID string, p domain.CustomContentPatch) (domain.WeekSettings, error) {
	if err := f.write(ctx); err != nil {
		return domain.WeekSettings{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contentWrites++
	if f.contentFail {
		return domain.WeekSettings{}, errServer
	}
	return f.applySettings(weekID, domain.SettingsPatch{Content: p}), nil
}

func (f *fakeRemote) UploadCustomImage(ctx context.Context, weekID string, data []byte, contentType string) (string, error) {
	if err := f.write(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	url := "https://images.example.com/" + weekID + ".png"
	f.applySettings(weekID, domain.SettingsPatch{Content: domain.CustomContentPatch{CustomImageURL: domain.Some(url)}})
	return url, nil
}

// fakeTimers replaces time.AfterFunc in coalescer tests.
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (ft *fakeTimers) afterFunc(_ time.Duration, f func()) stopper {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{f: f}
	ft.timers = append(ft.timers, t)
	return t
}

// fire runs every timer that has not been stopped.
func (ft *fakeTimers) fire() {
	ft.mu.Lock()
	timers := ft.timers
	ft.timers = nil
	ft.mu.Unlock()
	for _, t := range timers {
		if t.Stop() {
			t.f()
		}
	}
}
