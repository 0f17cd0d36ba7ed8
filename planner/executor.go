package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"weekplan/domain"
)

// Operation is one remote mutation together with its optimistic cache patch.
type Operation interface {
	// Name identifies the operation in logs and errors.
	Name() string
	// Validate runs before anything is patched or sent.
	Validate() error
	// Keys lists every cache key the operation patches or invalidates.
	Keys() []Key
	// Optimistic returns the value key shows until the server answers.
	// Returning false leaves the cached value as it is.
	Optimistic(key Key, cur any, ok bool) (any, bool)
	// Call performs the remote write.
	Call(ctx context.Context, r Remote) (any, error)
}

// reconciler is implemented by operations that fold the server's answer back
// into the cache before it is invalidated, such as swapping a provisional id.
type reconciler interface {
	Reconcile(key Key, cur any, ok bool, result any) (any, bool)
}

// Result describes a settled mutation.
type Result struct {
	// Value is the server's answer, if the operation has one.
	Value any
	// NotFound is set when the targeted entity no longer exists on the
	// server. The mutation is treated as settled, not failed.
	NotFound bool
}

// MutationError wraps the remote failure of a rolled back mutation.
type MutationError struct {
	Op  string
	Err error
}

func (e *MutationError) Error() string { return fmt.Sprintf("%s failed: %v", e.Op, e.Err) }
func (e *MutationError) Unwrap() error { return e.Err }

// Executor runs operations through the snapshot, patch, call and settle
// sequence.
type Executor struct {
	remote  Remote
	store   *Store
	patcher *Patcher
	logger  *log.Logger
	notify  func(error)
}

// NewExecutor wires an executor. notify, when set, receives every failure
// that rolled back a mutation.
func NewExecutor(remote Remote, store *Store, logger *log.Logger, notify func(error)) *Executor {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Executor{
		remote:  remote,
		store:   store,
		patcher: NewPatcher(store),
		logger:  logger,
		notify:  notify,
	}
}

// Execute validates op, patches the cache, performs the remote call and
// settles. On failure the cache is restored to its snapshot and a
// *MutationError is returned. Every touched key is invalidated either way.
func (e *Executor) Execute(ctx context.Context, op Operation) (Result, error) {
	if err := op.Validate(); err != nil {
		return Result{}, err
	}
	keys := op.Keys()
	m, err := e.patcher.Begin(ctx, keys...)
	if err != nil {
		return Result{}, err
	}
	for _, k := range m.Keys() {
		key := k
		e.apply(m, op, key, func(cur any, ok bool) (any, bool) { return op.Optimistic(key, cur, ok) })
	}

	start := time.Now()
	value, err := op.Call(ctx, e.remote)
	entry := e.logger.WithFields(log.Fields{
		"op":       op.Name(),
		"keys":     len(keys),
		"duration": time.Since(start).Milliseconds(),
	})

	switch {
	case errors.Is(err, domain.ErrNotFound):
		m.Settle(false)
		entry.Debug("mutation target no longer exists")
		return Result{NotFound: true}, nil
	case err != nil:
		m.Settle(true)
		mErr := &MutationError{Op: op.Name(), Err: err}
		entry.WithError(err).Warn("mutation rolled back")
		if e.notify != nil {
			e.notify(mErr)
		}
		return Result{}, mErr
	}

	if rec, ok := op.(reconciler); ok {
		for _, k := range m.Keys() {
			key := k
			e.apply(m, op, key, func(cur any, ok bool) (any, bool) { return rec.Reconcile(key, cur, ok, value) })
		}
	}
	m.Settle(false)
	entry.Debug("mutation settled")
	return Result{Value: value}, nil
}

// apply patches one key of m. A key outside the mutation is a programming
// error in op; it is logged and the cache is left alone.
func (e *Executor) apply(m *Mutation, op Operation, key Key, transform func(cur any, ok bool) (any, bool)) {
	if err := m.Apply(key, transform); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"op":  op.Name(),
			"key": key.String(),
		}).Error("cache patch skipped")
	}
}
