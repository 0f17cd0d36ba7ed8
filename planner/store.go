package planner

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ErrFetchCancelled is returned by Load when the fetch was cancelled and no
// cached value exists to fall back on.
var ErrFetchCancelled = errors.New("fetch cancelled")

// FetchFunc loads the authoritative value of key from the server.
type FetchFunc func(ctx context.Context, key Key) (any, error)

// DefaultStaleAfter is how long a fetched value is served without refetching.
var DefaultStaleAfter = map[Kind]time.Duration{
	KindTasks:    30 * time.Second,
	KindNote:     30 * time.Second,
	KindSummary:  30 * time.Second,
	KindSettings: 60 * time.Second,
}

type entry struct {
	value     any
	present   bool
	invalid   bool
	fetchedAt time.Time
	// version changes on every Set, Invalidate and CancelInFlight so that a
	// fetch started before one of them never overwrites the newer state.
	version uint64
	cancel  context.CancelFunc
}

// Store caches query results by key. Values are treated as immutable: every
// change replaces the value rather than modifying it.
type Store struct {
	fetch      FetchFunc
	staleAfter map[Kind]time.Duration
	now        func() time.Time
	logger     *log.Logger
	group      singleflight.Group

	mu      sync.Mutex
	entries map[Key]*entry
}

// NewStore returns a store that loads missing or stale keys through fetch.
func NewStore(fetch FetchFunc, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Store{
		fetch:      fetch,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		logger:     logger,
		entries:    make(map[Key]*entry),
	}
}

func (s *Store) entryLocked(key Key) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	return e
}

// Get returns the cached value of key without fetching.
func (s *Store) Get(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || !e.present {
		return nil, false
	}
	return e.value, true
}

// Set replaces the cached value of key and discards any fetch in flight for it.
func (s *Store) Set(key Key, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key)
	e.value = value
	e.present = true
	e.invalid = false
	e.fetchedAt = s.now()
	e.version++
}

// Invalidate marks key stale so the next Load refetches it. The cached value
// stays readable until then.
func (s *Store) Invalidate(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key)
	e.invalid = true
	e.version++
}

// CancelInFlight aborts a fetch of key that is still running. Its result, if
// it arrives anyway, is dropped.
func (s *Store) CancelInFlight(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return
	}
	e.version++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// Stale reports whether Load would refetch key.
func (s *Store) Stale(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staleLocked(key)
}

func (s *Store) staleLocked(key Key) bool {
	e, ok := s.entries[key]
	if !ok || !e.present || e.invalid {
		return true
	}
	return s.now().Sub(e.fetchedAt) >= s.staleAfter[key.Kind]
}

// restore puts key back to a snapshot taken earlier. An absent snapshot
// removes the value and marks the key for refetch.
func (s *Store) restore(key Key, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key)
	e.version++
	if snap.Present {
		e.value = snap.Value
		e.present = true
		return
	}
	e.value = nil
	e.present = false
	e.invalid = true
}

// Load returns the value of key, fetching it when it is missing, invalidated
// or stale. Concurrent loads of one key share a single fetch.
func (s *Store) Load(ctx context.Context, key Key) (any, error) {
	s.mu.Lock()
	if !s.staleLocked(key) {
		v := s.entries[key].value
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do(key.String(), func() (any, error) {
		return s.fetchAndStore(ctx, key)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			if cur, ok := s.Get(key); ok {
				return cur, nil
			}
			return nil, ErrFetchCancelled
		}
		return nil, err
	}
	if cur, ok := s.Get(key); ok {
		return cur, nil
	}
	return v, nil
}

func (s *Store) fetchAndStore(ctx context.Context, key Key) (any, error) {
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	e := s.entryLocked(key)
	started := e.version
	e.cancel = cancel
	s.mu.Unlock()

	v, err := s.fetch(fctx, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	e = s.entryLocked(key)
	if e.version == started {
		e.cancel = nil
	}
	if err != nil {
		return nil, err
	}
	if e.version != started {
		s.logger.WithField("key", key.String()).Debug("dropping superseded fetch result")
		return v, nil
	}
	e.value = v
	e.present = true
	e.invalid = false
	e.fetchedAt = s.now()
	e.version++
	return v, nil
}
