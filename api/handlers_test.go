package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"weekplan/domain"
	"weekplan/storage"
)

type stubBackend struct {
	tasksInRangeFn       func(ctx context.Context, userID, start, end string) ([]domain.Task, error)
	createTaskFn         func(ctx context.Context, userID string, n domain.NewTask) (domain.Task, error)
	updateTaskFn         func(ctx context.Context, userID string, id int64, p domain.TaskPatch) (storage.TaskChange, error)
	deleteTaskFn         func(ctx context.Context, userID string, id int64) (domain.Task, error)
	noteFn               func(ctx context.Context, userID, weekID string) (*domain.Note, error)
	upsertNoteFn         func(ctx context.Context, userID, weekID, content string) (domain.Note, error)
	summaryFn            func(ctx context.Context, userID, weekID string) (*domain.WeeklySummary, error)
	upsertSummaryFn      func(ctx context.Context, userID, weekID string, p domain.SummaryPatch) (domain.WeeklySummary, error)
	weekSettingsFn       func(ctx context.Context, userID, weekID string) (*domain.WeekSettings, error)
	updateWeekSettingsFn func(ctx context.Context, userID, weekID string, p domain.SettingsPatch) (domain.WeekSettings, error)
}

var errUnexpected = errors.New("unexpected call")

func (s *stubBackend) TasksInRange(ctx context.Context, userID, start, end string) ([]domain.Task, error) {
	if s.tasksInRangeFn == nil {
		return nil, errUnexpected
	}
	return s.tasksInRangeFn(ctx, userID, start, end)
}

func (s *stubBackend) CreateTask(ctx context.Context, userID string, n domain.NewTask) (domain.Task, error) {
	if s.createTaskFn == nil {
		return domain.Task{}, errUnexpected
	}
	return s.createTaskFn(ctx, userID, n)
}

func (s *stubBackend) UpdateTask(ctx context.Context, userID string, id int64, p domain.TaskPatch) (storage.TaskChange, error) {
	if s.updateTaskFn == nil {
		return storage.TaskChange{}, errUnexpected
	}
	return s.updateTaskFn(ctx, userID, id, p)
}

func (s *stubBackend) DeleteTask(ctx context.Context, userID string, id int64) (domain.Task, error) {
	if s.deleteTaskFn == nil {
		return domain.Task{}, errUnexpected
	}
	return s.deleteTaskFn(ctx, userID, id)
}

func (s *stubBackend) Note(ctx context.Context, userID, weekID string) (*domain.Note, error) {
	if s.noteFn == nil {
		return nil, errUnexpected
	}
	return s.noteFn(ctx, userID, weekID)
}

func (s *stubBackend) UpsertNote(ctx context.Context, userID, weekID, content string) (domain.Note, error) {
	if s.upsertNoteFn == nil {
		return domain.Note{}, errUnexpected
	}
	return s.upsertNoteFn(ctx, userID, weekID, content)
}

func (s *stubBackend) Summary(ctx context.Context, userID, weekID string) (*domain.WeeklySummary, error) {
	if s.summaryFn == nil {
		return nil, errUnexpected
	}
	return s.summaryFn(ctx, userID, weekID)
}

func (s *stubBackend) UpsertSummary(ctx context.Context, userID, weekID string, p domain.SummaryPatch) (domain.WeeklySummary, error) {
	if s.upsertSummaryFn == nil {
		return domain.WeeklySummary{}, errUnexpected
	}
	return s.upsertSummaryFn(ctx, userID, weekID, p)
}

func (s *stubBackend) WeekSettings(ctx context.Context, userID, weekID string) (*domain.WeekSettings, error) {
	if s.weekSettingsFn == nil {
		return nil, errUnexpected
	}
	return s.weekSettingsFn(ctx, userID, weekID)
}

func (s *stubBackend) UpdateWeekSettings(ctx context.Context, userID, weekID string, p domain.SettingsPatch) (domain.WeekSettings, error) {
	if s.updateWeekSettingsFn == nil {
		return domain.WeekSettings{}, errUnexpected
	}
	return s.updateWeekSettingsFn(ctx, userID, weekID, p)
}

type stubAuth struct{}

func (stubAuth) UserIDFromAuthHeader(h string) (string, error) {
	if h != "Bearer good" {
		return "", errBadAuthorization
	}
	return "user-1", nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (p *recordingPublisher) Publish(ev domain.ChangeEvent) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return true
}

func (p *recordingPublisher) Events() []domain.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.ChangeEvent(nil), p.events...)
}

type stubImages struct {
	uploadFn func(ctx context.Context, userID, weekID, imageBase64, mimeType string) (string, error)
}

func (s stubImages) Upload(ctx context.Context, userID, weekID, imageBase64, mimeType string) (string, error) {
	return s.uploadFn(ctx, userID, weekID, imageBase64, mimeType)
}

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func newServer(t *testing.T, d Deps) *echo.Echo {
	t.Helper()
	if d.Auth == nil {
		d.Auth = stubAuth{}
	}
	if d.Logger == nil {
		d.Logger = quietLogger()
	}
	e := echo.New()
	Register(e, d)
	return e
}

func do(e *echo.Echo, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set(echo.HeaderAuthorization, "Bearer good")
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRoutesRequireAuth(t *testing.T) {
	called := false
	e := newServer(t, Deps{Store: &stubBackend{
		tasksInRangeFn: func(context.Context, string, string, string) ([]domain.Task, error) {
			called = true
			return nil, nil
		},
	}})
	req := httptest.NewRequest(http.MethodGet, "/api/tasks?startDate=2026-01-12&endDate=2026-01-18", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if called {
		t.Fatalf("storage must not be reached without auth")
	}
}

func TestHealthzIsPublic(t *testing.T) {
	e := newServer(t, Deps{Store: &stubBackend{}})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestMe(t *testing.T) {
	e := newServer(t, Deps{Store: &stubBackend{}})
	rec := do(e, http.MethodGet, "/api/me", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var resp meResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.ID != "user-1" {
		t.Fatalf("unexpected body %s (%v)", rec.Body.String(), err)
	}
}

func TestGetTasksForWeek(t *testing.T) {
	e := newServer(t, Deps{Store: &stubBackend{
		tasksInRangeFn: func(_ context.Context, uid, start, end string) ([]domain.Task, error) {
			if uid != "user-1" || start != "2026-01-12" || end != "2026-01-18" {
				t.Fatalf("unexpected query %s %s..%s", uid, start, end)
			}
			return []domain.Task{{ID: 1, Content: "buy milk", Date: "2026-01-14", TimeBlock: domain.Morning}}, nil
		},
	}})
	rec := do(e, http.MethodGet, "/api/tasks?startDate=2026-01-12&endDate=2026-01-18", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Content != "buy milk" {
		t.Fatalf("unexpected tasks %#v", tasks)
	}
}

func TestGetTasksEmptyWeekIsArray(t *testing.T) {
	e := newServer(t, Deps{Store: &stubBackend{
		tasksInRangeFn: func(context.Context, string, string, string) ([]domain.Task, error) { return nil, nil },
	}})
	rec := do(e, http.MethodGet, "/api/tasks?startDate=2026-01-12&endDate=2026-01-18", "")
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("expected empty array, got %q", got)
	}
}

func TestGetTasksValidatesRange(t *testing.T) {
	cases := map[string]string{
		"missing":  "/api/tasks",
		"bad_date": "/api/tasks?startDate=2026-13-01&endDate=2026-01-18",
		"reversed": "/api/tasks?startDate=2026-01-18&endDate=2026-01-12",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			e := newServer(t, Deps{Store: &stubBackend{}})
			rec := do(e, http.MethodGet, target, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", rec.Code)
			}
		})
	}
}

func TestGetTasksStorageFailure(t *testing.T) {
	e := newServer(t, Deps{Store: &stubBackend{
		tasksInRangeFn: func(context.Context, string, string, string) ([]domain.Task, error) {
			return nil, errors.New("db down")
		},
	}})
	rec := do(e, http.MethodGet, "/api/tasks?startDate=2026-01-12&endDate=2026-01-18", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "db down") {
		t.Fatalf("storage errors must not leak: %s", rec.Body.String())
	}
}

func TestCreateTaskPublishesEvent(t *testing.T) {
	pub := &recordingPublisher{}
	e := newServer(t, Deps{Events: pub, Store: &stubBackend{
		createTaskFn: func(_ context.Context, uid string, n domain.NewTask) (domain.Task, error) {
			if n.SortOrder != 2 || n.TimeBlock != domain.Evening {
				t.Fatalf("unexpected new task %+v", n)
			}
			return domain.Task{ID: 55, UserID: uid, Content: n.Content, Date: n.Date, TimeBlock: n.TimeBlock, SortOrder: n.SortOrder}, nil
		},
	}})
	rec := do(e, http.MethodPost, "/api/tasks", `{"content":"gym","date":"2026-01-14","timeBlock":"evening","sortOrder":2}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	var task domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &task); err != nil || task.ID != 55 {
		t.Fatalf("unexpected body %s (%v)", rec.Body.String(), err)
	}
	evs := pub.Events()
	if len(evs) != 1 {
		t.Fatalf("expected one event, got %d", len(evs))
	}
	ev := evs[0]
	if ev.Type != domain.TaskCreated || ev.EntityID != "55" || len(ev.WeekIDs) != 1 || ev.WeekIDs[0] != "2026-W03" || ev.ID == "" || ev.Timestamp == 0 {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestCreateTaskRejectsInvalidBodies(t *testing.T) {
	cases := map[string]string{
		"blank":         `{"content":"   ","date":"2026-01-14","timeBlock":"morning"}`,
		"unknown_field": `{"content":"x","date":"2026-01-14","timeBlock":"morning","color":"red"}`,
		"bad_block":     `{"content":"x","date":"2026-01-14","timeBlock":"night"}`,
		"not_json":      `content=x`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			pub := &recordingPublisher{}
			e := newServer(t, Deps{Store: &stubBackend{}, Events: pub})
			rec := do(e, http.MethodPost, "/api/tasks", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", rec.Code)
			}
			if len(pub.Events()) != 0 {
				t.Fatalf("rejected writes must not publish")
			}
		})
	}
}

func TestUpdateTaskMovePublishesBothWeeks(t *testing.T) {
	pub := &recordingPublisher{}
	e := newServer(t, Deps{Events: pub, Store: &stubBackend{
		updateTaskFn: func(_ context.Context, _ string, id int64, p domain.TaskPatch) (storage.TaskChange, error) {
			before := domain.Task{ID: id, Content: "plan", Date: "2026-01-18", TimeBlock: domain.Evening}
			return storage.TaskChange{Before: before, After: p.Apply(before)}, nil
		},
	}})
	rec := do(e, http.MethodPatch, "/api/tasks/7", `{"date":"2026-01-19","timeBlock":"morning"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var task domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &task); err != nil || task.Date != "2026-01-19" || task.TimeBlock != domain.Morning {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	evs := pub.Events()
	if len(evs) != 1 || len(evs[0].WeekIDs) != 2 || evs[0].WeekIDs[0] != "2026-W03" || evs[0].WeekIDs[1] != "2026-W04" {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestUpdateTaskNotFound(t *testing.T) {
	e := newServer(t, Deps{Store: &stubBackend{
		updateTaskFn: func(context.Context, string, int64, domain.TaskPatch) (storage.TaskChange, error) {
			return storage.TaskChange{}, domain.ErrNotFound
		},
	}})
	rec := do(e, http.MethodPatch, "/api/tasks/9", `{"completed":true}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestUpdateTaskRejectsEmptyPatch(t *testing.T) {
	e := newServer(t, Deps{Store: &stubBackend{}})
	if rec := do(e, http.MethodPatch, "/api/tasks/9", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if rec := do(e, http.MethodPatch, "/api/tasks/9", `{"content":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank content got %d", rec.Code)
	}
}

func TestDeleteTask(t *testing.T) {
	var deleted int64
	e := newServer(t, Deps{Store: &stubBackend{
		deleteTaskFn: func(_ context.Context, _ string, id int64) (domain.Task, error) {
			deleted = id
			return domain.Task{ID: id, Date: "2026-01-14"}, nil
		},
	}})
	if rec := do(e, http.MethodDelete, "/api/tasks/12", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
	if deleted != 12 {
		t.Fatalf("expected task 12 deleted, got %d", deleted)
	}
	if rec := do(e, http.MethodDelete, "/api/tasks/-3", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id got %d", rec.Code)
	}
}

func TestGetNoteAbsentIsNull(t *testing.T) {
	e := newServer(t, Deps{Store: &stubBackend{
		noteFn: func(context.Context, string, string) (*domain.Note, error) { return nil, nil },
	}})
	rec := do(e, http.MethodGet, "/api/notes/2026-W03", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "null" {
		t.Fatalf("expected null note, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestWeekRoutesValidateWeekID(t *testing.T) {
	e := newServer(t, Deps{Store: &stubBackend{}})
	for _, target := range []string{"/api/notes/2026-W54", "/api/summaries/2026-3", "/api/week-settings/W03"} {
		if rec := do(e, http.MethodGet, target, ""); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", target, rec.Code)
		}
	}
}

func TestPutNote(t *testing.T) {
	pub := &recordingPublisher{}
	e := newServer(t, Deps{Events: pub, Store: &stubBackend{
		upsertNoteFn: func(_ context.Context, uid, wid, content string) (domain.Note, error) {
			return domain.Note{ID: 3, UserID: uid, WeekID: wid, Content: content}, nil
		},
	}})
	rec := do(e, http.MethodPut, "/api/notes/2026-W03", `{"content":"call mom"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var n domain.Note
	if err := sonic.Unmarshal(rec.Body.Bytes(), &n); err != nil || n.Content != "call mom" || n.WeekID != "2026-W03" {
		t.Fatalf("unexpected note %s", rec.Body.String())
	}
	if evs := pub.Events(); len(evs) != 1 || evs[0].Type != domain.NoteUpserted || evs[0].EntityID != "2026-W03" {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestPatchSummaryKeepsAbsentFields(t *testing.T) {
	var got domain.SummaryPatch
	e := newServer(t, Deps{Store: &stubBackend{
		upsertSummaryFn: func(_ context.Context, _, wid string, p domain.SummaryPatch) (domain.WeeklySummary, error) {
			got = p
			return p.Apply(domain.WeeklySummary{WeekID: wid}), nil
		},
	}})
	rec := do(e, http.MethodPatch, "/api/summaries/2026-W03", `{"keyword":null,"dailyEntries":{"2":"wed"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if !got.Keyword.Set || got.Keyword.Value != nil {
		t.Fatalf("expected keyword cleared, got %+v", got.Keyword)
	}
	if got.Reflection.Set {
		t.Fatalf("absent reflection must be left unchanged")
	}
	if got.DailyEntries["2"] != "wed" {
		t.Fatalf("unexpected entries %v", got.DailyEntries)
	}
}

func TestPatchSummaryRejectsBadDay(t *testing.T) {
	e := newServer(t, Deps{Store: &stubBackend{}})
	if rec := do(e, http.MethodPatch, "/api/summaries/2026-W03", `{"dailyEntries":{"9":"x"}}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestPatchLayoutClampsWidths(t *testing.T) {
	var got domain.SettingsPatch
	e := newServer(t, Deps{Store: &stubBackend{
		updateWeekSettingsFn: func(_ context.Context, _, wid string, p domain.SettingsPatch) (domain.WeekSettings, error) {
			got = p
			return p.Apply(domain.WeekSettings{WeekID: wid}), nil
		},
	}})
	rec := do(e, http.MethodPatch, "/api/week-settings/2026-W03/layout", `{"columnWidths":{"1":999,"4":10}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if got.Layout.ColumnWidths[1] != domain.MaxColumnWidth || got.Layout.ColumnWidths[4] != domain.MinColumnWidth {
		t.Fatalf("widths not clamped: %v", got.Layout.ColumnWidths)
	}
	if got.Content.CustomText.Set {
		t.Fatalf("layout update must not touch custom content")
	}
}

func TestPatchCustomContentRequiresAField(t *testing.T) {
	e := newServer(t, Deps{Store: &stubBackend{}})
	if rec := do(e, http.MethodPatch, "/api/week-settings/2026-W03/custom-content", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestUploadImageSetsCustomImage(t *testing.T) {
	const url = "https://cdn.example.com/images/custom-content/user-1/2026-W03-x.png"
	pub := &recordingPublisher{}
	var got domain.SettingsPatch
	e := newServer(t, Deps{
		Events: pub,
		Images: stubImages{uploadFn: func(_ context.Context, uid, wid, data, mime string) (string, error) {
			if uid != "user-1" || wid != "2026-W03" || mime != "image/png" || data != "aGVsbG8=" {
				t.Fatalf("unexpected upload %s %s %s %s", uid, wid, mime, data)
			}
			return url, nil
		}},
		Store: &stubBackend{
			updateWeekSettingsFn: func(_ context.Context, _, wid string, p domain.SettingsPatch) (domain.WeekSettings, error) {
				got = p
				return p.Apply(domain.WeekSettings{WeekID: wid}), nil
			},
		},
	})
	rec := do(e, http.MethodPost, "/api/week-settings/2026-W03/image", `{"imageBase64":"aGVsbG8=","mimeType":"image/png"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp imageResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.URL != url {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if domain.StringValue(got.Content.CustomImageURL.Value) != url || got.Content.CustomText.Set {
		t.Fatalf("unexpected settings patch %+v", got)
	}
	if evs := pub.Events(); len(evs) != 1 || evs[0].Type != domain.CustomImageUploaded {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestUploadImageRejectedByStore(t *testing.T) {
	e := newServer(t, Deps{
		Images: stubImages{uploadFn: func(context.Context, string, string, string, string) (string, error) {
			return "", &domain.ValidationError{Field: "mimeType", Reason: "must be an image/* type"}
		}},
		Store: &stubBackend{},
	})
	rec := do(e, http.MethodPost, "/api/week-settings/2026-W03/image", `{"imageBase64":"eA==","mimeType":"text/plain"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestUploadImageWithoutStorage(t *testing.T) {
	e := newServer(t, Deps{Store: &stubBackend{}})
	rec := do(e, http.MethodPost, "/api/week-settings/2026-W03/image", `{"imageBase64":"eA==","mimeType":"image/png"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

func TestGzipEncodedBody(t *testing.T) {
	var content string
	e := newServer(t, Deps{Store: &stubBackend{
		upsertNoteFn: func(_ context.Context, uid, wid, c string) (domain.Note, error) {
			content = c
			return domain.Note{UserID: uid, WeekID: wid, Content: c}, nil
		},
	}})

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(`{"content":"zipped"}`)); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	req := httptest.NewRequest(http.MethodPut, "/api/notes/2026-W03", &buf)
	req.Header.Set(echo.HeaderAuthorization, "Bearer good")
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || content != "zipped" {
		t.Fatalf("expected gzip body decoded, got %d %q", rec.Code, content)
	}

	bad := httptest.NewRequest(http.MethodPut, "/api/notes/2026-W03", strings.NewReader("plain"))
	bad.Header.Set(echo.HeaderAuthorization, "Bearer good")
	bad.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid gzip got %d", rec.Code)
	}
}
