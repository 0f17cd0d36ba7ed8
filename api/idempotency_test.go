package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"weekplan/domain"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})
	return m, client
}

func TestRedisIdempotencyLifecycle(t *testing.T) {
	m, client := newRedis(t)
	idem := NewRedisIdempotency(client, time.Hour)
	ctx := context.Background()

	replay, fresh, err := idem.Begin(ctx, "user", "k1")
	if err != nil || !fresh || replay != nil {
		t.Fatalf("expected fresh claim, got %v %v %v", replay, fresh, err)
	}
	if ttl := m.TTL("user:idem:k1"); ttl <= 0 || ttl > maxPendingTTL {
		t.Fatalf("unexpected pending TTL %v", ttl)
	}

	replay, fresh, err = idem.Begin(ctx, "user", "k1")
	if err != nil || fresh || replay != nil {
		t.Fatalf("expected in-progress claim, got %v %v %v", replay, fresh, err)
	}

	if err := idem.Complete(ctx, "user", "k1", StoredResponse{Status: http.StatusCreated, Body: []byte(`{"id":1}`)}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if ttl := m.TTL("user:idem:k1"); ttl <= maxPendingTTL {
		t.Fatalf("completed entry should use the long TTL, got %v", ttl)
	}
	replay, fresh, err = idem.Begin(ctx, "user", "k1")
	if err != nil || fresh || replay == nil {
		t.Fatalf("expected replay, got %v %v %v", replay, fresh, err)
	}
	if replay.Status != http.StatusCreated || string(replay.Body) != `{"id":1}` {
		t.Fatalf("unexpected replay %+v", replay)
	}

	if _, fresh, _ := idem.Begin(ctx, "other", "k1"); !fresh {
		t.Fatalf("keys must be scoped per user")
	}
}

func TestRedisIdempotencyAbortReleasesKey(t *testing.T) {
	_, client := newRedis(t)
	idem := NewRedisIdempotency(client, time.Minute)
	ctx := context.Background()

	if _, fresh, err := idem.Begin(ctx, "user", "k"); err != nil || !fresh {
		t.Fatalf("claim: %v %v", fresh, err)
	}
	if err := idem.Abort(ctx, "user", "k"); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if _, fresh, err := idem.Begin(ctx, "user", "k"); err != nil || !fresh {
		t.Fatalf("expected key to be claimable again: %v %v", fresh, err)
	}
}

func TestCreateTaskReplaysIdempotentRequest(t *testing.T) {
	_, client := newRedis(t)
	calls := 0
	e := newServer(t, Deps{
		Idempotency: NewRedisIdempotency(client, time.Hour),
		Store: &stubBackend{
			createTaskFn: func(_ context.Context, uid string, n domain.NewTask) (domain.Task, error) {
				calls++
				return domain.Task{ID: int64(100 + calls), UserID: uid, Content: n.Content, Date: n.Date, TimeBlock: n.TimeBlock}, nil
			},
		},
	})
	body := `{"content":"gym","date":"2026-01-14","timeBlock":"evening"}`

	first := do(e, http.MethodPost, "/api/tasks", body, headerIdempotencyKey, "abc")
	second := do(e, http.MethodPost, "/api/tasks", body, headerIdempotencyKey, "abc")
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("unexpected statuses %d %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replay differs: %s vs %s", first.Body.String(), second.Body.String())
	}
	if calls != 1 {
		t.Fatalf("expected a single create, got %d", calls)
	}

	third := do(e, http.MethodPost, "/api/tasks", body, headerIdempotencyKey, "def")
	if third.Code != http.StatusCreated || calls != 2 {
		t.Fatalf("new key must create again, status %d calls %d", third.Code, calls)
	}
}

func TestCreateTaskFailureReleasesIdempotencyKey(t *testing.T) {
	_, client := newRedis(t)
	fail := true
	e := newServer(t, Deps{
		Idempotency: NewRedisIdempotency(client, time.Hour),
		Store: &stubBackend{
			createTaskFn: func(_ context.Context, _ string, n domain.NewTask) (domain.Task, error) {
				if fail {
					return domain.Task{}, errors.New("db down")
				}
				return domain.Task{ID: 7, Content: n.Content, Date: n.Date, TimeBlock: n.TimeBlock}, nil
			},
		},
	})
	body := `{"content":"gym","date":"2026-01-14","timeBlock":"evening"}`

	if rec := do(e, http.MethodPost, "/api/tasks", body, headerIdempotencyKey, "abc"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	fail = false
	if rec := do(e, http.MethodPost, "/api/tasks", body, headerIdempotencyKey, "abc"); rec.Code != http.StatusCreated {
		t.Fatalf("expected retry to succeed, got %d", rec.Code)
	}
}

func TestCreateTaskInProgressConflict(t *testing.T) {
	_, client := newRedis(t)
	idem := NewRedisIdempotency(client, time.Hour)
	if _, _, err := idem.Begin(context.Background(), "user-1", "busy"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	e := newServer(t, Deps{Idempotency: idem, Store: &stubBackend{}})
	rec := do(e, http.MethodPost, "/api/tasks", `{"content":"gym","date":"2026-01-14","timeBlock":"evening"}`, headerIdempotencyKey, "busy")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
}
