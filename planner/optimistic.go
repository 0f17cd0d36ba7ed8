package planner

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Snapshot is the cached state of one key before a mutation touched it.
type Snapshot struct {
	Key     Key
	Value   any
	Present bool
}

// Patcher runs optimistic mutations against a Store. Mutations touching the
// same key are serialized from Begin until Commit or Rollback, so a rollback
// always lands before the next mutation patches that key.
type Patcher struct {
	store *Store

	mu    sync.Mutex
	locks map[Key]chan struct{}
}

// NewPatcher returns a patcher for store.
func NewPatcher(store *Store) *Patcher {
	return &Patcher{store: store, locks: make(map[Key]chan struct{})}
}

func (p *Patcher) lock(key Key) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		p.locks[key] = ch
	}
	return ch
}

// Mutation holds the snapshots and key locks of one optimistic change.
type Mutation struct {
	p     *Patcher
	keys  []Key
	snaps map[Key]Snapshot
	once  sync.Once
}

// Begin acquires the keys, cancels their in-flight fetches and snapshots
// their current values. Keys are locked in a fixed order to avoid deadlocks
// between mutations spanning several weeks.
func (p *Patcher) Begin(ctx context.Context, keys ...Key) (*Mutation, error) {
	uniq := make([]Key, 0, len(keys))
	seen := make(map[Key]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			uniq = append(uniq, k)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i].String() < uniq[j].String() })

	for i, k := range uniq {
		select {
		case p.lock(k) <- struct{}{}:
		case <-ctx.Done():
			for _, held := range uniq[:i] {
				<-p.lock(held)
			}
			return nil, ctx.Err()
		}
	}

	m := &Mutation{p: p, keys: uniq, snaps: make(map[Key]Snapshot, len(uniq))}
	for _, k := range uniq {
		p.store.CancelInFlight(k)
		v, ok := p.store.Get(k)
		m.snaps[k] = Snapshot{Key: k, Value: v, Present: ok}
	}
	return m, nil
}

// Keys lists the keys held by the mutation.
func (m *Mutation) Keys() []Key { return m.keys }

// Snapshot returns the value key had when the mutation began.
func (m *Mutation) Snapshot(key Key) (Snapshot, bool) {
	s, ok := m.snaps[key]
	return s, ok
}

// Apply replaces the cached value of key with transform's result. When
// transform reports false the cache is left untouched.
func (m *Mutation) Apply(key Key, transform func(cur any, ok bool) (any, bool)) error {
	if _, held := m.snaps[key]; !held {
		return fmt.Errorf("key %s is not part of this mutation", key)
	}
	cur, ok := m.p.store.Get(key)
	next, changed := transform(cur, ok)
	if changed {
		m.p.store.Set(key, next)
	}
	return nil
}

// Rollback restores every snapshot and releases the keys.
func (m *Mutation) Rollback() {
	m.once.Do(func() {
		for _, k := range m.keys {
			m.p.store.restore(k, m.snaps[k])
		}
		m.release()
	})
}

// Commit keeps the applied values and releases the keys.
func (m *Mutation) Commit() {
	m.once.Do(m.release)
}

// Settle invalidates every key so the server state is refetched, then
// releases them. A failed mutation is rolled back first.
func (m *Mutation) Settle(failed bool) {
	m.once.Do(func() {
		for _, k := range m.keys {
			if failed {
				m.p.store.restore(k, m.snaps[k])
			}
			m.p.store.Invalidate(k)
		}
		m.release()
	})
}

func (m *Mutation) release() {
	for i := len(m.keys) - 1; i >= 0; i-- {
		<-m.p.lock(m.keys[i])
	}
}
