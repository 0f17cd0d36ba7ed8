package client

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bytedance/sonic"

	"weekplan/domain"
	"weekplan/planner"
)

var _ planner.Remote = (*Client)(nil)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	idem   string
	body   string
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *[]recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			auth:   r.Header.Get("Authorization"),
			idem:   r.Header.Get("Idempotency-Key"),
			body:   string(body),
		})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "tok"), &reqs
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestTasksForWeekSendsRangeAndBearer(t *testing.T) {
	c, reqs := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `[{"id":1,"content":"gym","date":"2026-01-14","timeBlock":"evening","sortOrder":0}]`)
	})

	tasks, err := c.TasksForWeek(context.Background(), "2026-01-12", "2026-01-18")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Content != "gym" || tasks[0].TimeBlock != domain.Evening {
		t.Fatalf("unexpected tasks %+v", tasks)
	}
	got := (*reqs)[0]
	if got.path != "/api/tasks" || got.query != "endDate=2026-01-18&startDate=2026-01-12" {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.auth != "Bearer tok" {
		t.Fatalf("unexpected authorization %q", got.auth)
	}
}

func TestErrorMapping(t *testing.T) {
	status := http.StatusNotFound
	c, _ := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, status, `{"error":"task not found"}`)
	})
	ctx := context.Background()

	if err := c.DeleteTask(ctx, 9); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	status = http.StatusBadRequest
	_, err := c.UpdateTask(ctx, 9, domain.TaskPatch{})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Reason != "task not found" {
		t.Fatalf("expected validation error, got %v", err)
	}

	status = http.StatusUnauthorized
	_, err = c.Me(ctx)
	var serr *StatusError
	if !errors.As(err, &serr) || serr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestNullBodiesDecodeToNil(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `null`)
	})
	ctx := context.Background()

	note, err := c.Note(ctx, "2026-W03")
	if err != nil || note != nil {
		t.Fatalf("expected nil note, got %+v %v", note, err)
	}
	summary, err := c.Summary(ctx, "2026-W03")
	if err != nil || summary != nil {
		t.Fatalf("expected nil summary, got %+v %v", summary, err)
	}
	settings, err := c.WeekSettings(ctx, "2026-W03")
	if err != nil || settings != nil {
		t.Fatalf("expected nil settings, got %+v %v", settings, err)
	}
}

func TestCreateTaskMakesSingleAttempt(t *testing.T) {
	c, reqs := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadGateway, `{"error":"upstream"}`)
	})

	_, err := c.CreateTask(context.Background(), domain.NewTask{Content: "gym", Date: "2026-01-14", TimeBlock: domain.Evening})
	var serr *StatusError
	if !errors.As(err, &serr) || serr.Code != http.StatusBadGateway {
		t.Fatalf("expected status error, got %v", err)
	}
	if len(*reqs) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(*reqs))
	}
	first := (*reqs)[0]
	if first.idem == "" {
		t.Fatalf("expected an idempotency key")
	}
	if !strings.Contains(first.body, `"timeBlock":"evening"`) {
		t.Fatalf("unexpected body %s", first.body)
	}
}

func TestCreateTaskValidationError(t *testing.T) {
	c, reqs := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"error":"invalid content"}`)
	})
	if _, err := c.CreateTask(context.Background(), domain.NewTask{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(*reqs) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(*reqs))
	}
}

func TestSummaryPatchKeepsExplicitNull(t *testing.T) {
	c, reqs := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":1,"weekId":"2026-W03","keyword":null,"dailyEntries":{},"reflection":"done"}`)
	})
	patch := domain.SummaryPatch{Keyword: domain.Null(), Reflection: domain.Some("done")}
	s, err := c.UpsertSummary(context.Background(), "2026-W03", patch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Keyword != nil || domain.StringValue(s.Reflection) != "done" {
		t.Fatalf("unexpected summary %+v", s)
	}
	got := (*reqs)[0]
	if got.method != http.MethodPatch || got.path != "/api/summaries/2026-W03" {
		t.Fatalf("unexpected request %+v", got)
	}
	var sent map[string]any
	if err := sonic.UnmarshalString(got.body, &sent); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if v, ok := sent["keyword"]; !ok || v != nil {
		t.Fatalf("expected explicit null keyword, got %s", got.body)
	}
}

func TestUploadCustomImageEncodesPayload(t *testing.T) {
	c, reqs := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"url":"https://cdn/custom-content/u/2026-W03-x.png"}`)
	})
	data := []byte{0x89, 'P', 'N', 'G'}
	u, err := c.UploadCustomImage(context.Background(), "2026-W03", data, "image/png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != "https://cdn/custom-content/u/2026-W03-x.png" {
		t.Fatalf("unexpected url %q", u)
	}
	var sent struct {
		ImageBase64 string `json:"imageBase64"`
		MimeType    string `json:"mimeType"`
	}
	if err := sonic.UnmarshalString((*reqs)[0].body, &sent); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if sent.MimeType != "image/png" || sent.ImageBase64 != base64.StdEncoding.EncodeToString(data) {
		t.Fatalf("unexpected payload %+v", sent)
	}
	if (*reqs)[0].path != "/api/week-settings/2026-W03/image" {
		t.Fatalf("unexpected path %s", (*reqs)[0].path)
	}
}
