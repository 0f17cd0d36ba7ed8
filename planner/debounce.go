package planner

import (
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// FireFunc performs the write of a debounced value.
type FireFunc func(ctx context.Context, value any) error

type stopper interface{ Stop() bool }

type pendingWrite struct {
	value any
	fire  FireFunc
	timer stopper
	seq   uint64
}

// keyWriter serializes the writes of one key. last is the newest sequence
// handed to fire and is only read under mu.
type keyWriter struct {
	mu   sync.Mutex
	last uint64
}

// Coalescer collapses bursts of edits into a single write per key. Each
// Schedule restarts the key's quiet period; only the last value is written.
// Writes of one key never overlap, and a value older than one already
// written for its key is dropped.
type Coalescer struct {
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *log.Logger
	afterFunc func(time.Duration, func()) stopper

	mu      sync.Mutex
	pending map[string]*pendingWrite
	seqs    map[string]uint64
	writing map[string]*keyWriter
	stopped bool
	wg      sync.WaitGroup
}

// NewCoalescer returns a coalescer whose writes run with ctx.
func NewCoalescer(ctx context.Context, logger *log.Logger) *Coalescer {
	if logger == nil {
		logger = log.StandardLogger()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Coalescer{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		pending: make(map[string]*pendingWrite),
		seqs:    make(map[string]uint64),
		writing: make(map[string]*keyWriter),
	}
}

// Schedule records value as the latest edit of key and writes it through
// fire once delay passes without another Schedule of the same key.
func (c *Coalescer) Schedule(key string, value any, delay time.Duration, fire FireFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	p, ok := c.pending[key]
	if ok {
		p.timer.Stop()
	} else {
		p = &pendingWrite{}
		c.pending[key] = p
	}
	c.seqs[key]++
	seq := c.seqs[key]
	p.value = value
	p.fire = fire
	p.seq = seq
	p.timer = c.afterFunc(delay, func() { c.expire(key, seq) })
}

// Pending returns the value waiting to be written for key.
func (c *Coalescer) Pending(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[key]
	if !ok {
		return nil, false
	}
	return p.value, true
}

func (c *Coalescer) expire(key string, seq uint64) {
	c.mu.Lock()
	p, ok := c.pending[key]
	if !ok || p.seq != seq {
		c.mu.Unlock()
		return
	}
	delete(c.pending, key)
	c.wg.Add(1)
	c.mu.Unlock()

	defer c.wg.Done()
	if err := c.write(c.ctx, key, p); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("debounced write failed")
	}
}

func (c *Coalescer) write(ctx context.Context, key string, p *pendingWrite) error {
	c.mu.Lock()
	w, ok := c.writing[key]
	if !ok {
		w = &keyWriter{}
		c.writing[key] = w
	}
	c.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if p.seq <= w.last {
		c.logger.WithField("key", key).Debug("dropping superseded write")
		return nil
	}
	w.last = p.seq
	return p.fire(ctx, p.value)
}

// Flush writes every pending value immediately, in key order, and waits for
// writes already running. It returns the first error.
func (c *Coalescer) Flush(ctx context.Context) error {
	c.mu.Lock()
	keys := make([]string, 0, len(c.pending))
	for k, p := range c.pending {
		p.timer.Stop()
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writes := make([]*pendingWrite, len(keys))
	for i, k := range keys {
		writes[i] = c.pending[k]
		delete(c.pending, k)
	}
	c.mu.Unlock()

	var first error
	for i, k := range keys {
		if err := c.write(ctx, k, writes[i]); err != nil {
			c.logger.WithError(err).WithField("key", k).Warn("flushed write failed")
			if first == nil {
				first = err
			}
		}
	}
	c.wg.Wait()
	return first
}

// Stop drops pending values and rejects further schedules. Writes already
// running are cancelled.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	c.stopped = true
	for k, p := range c.pending {
		p.timer.Stop()
		delete(c.pending, k)
	}
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// Wait blocks until writes triggered by expired timers have finished.
func (c *Coalescer) Wait() { c.wg.Wait() }
