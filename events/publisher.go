// Package events publishes change events for confirmed writes to an Azure
// Storage queue through a bounded pool of workers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"weekplan/domain"
)

// Queue is the subset of the queue client used by the publisher.
type Queue interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Options sizes the worker pool.
type Options struct {
	Workers int
	Buffer  int
	// Timeout bounds a single enqueue call.
	Timeout time.Duration
	// Handoff is how long Publish waits for buffer space before dropping.
	Handoff time.Duration
}

// DefaultOptions mirror the production defaults.
var DefaultOptions = Options{
	Workers: 8,
	Buffer:  1024,
	Timeout: 30 * time.Second,
	Handoff: 15 * time.Millisecond,
}

// NewQueue opens the named queue with the retry policy used by the API.
func NewQueue(connStr, name string) (*azqueue.QueueClient, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	return azqueue.NewQueueClientFromConnectionString(connStr, name, &opts)
}

// Publisher hands events to worker goroutines that enqueue them. Publishing is
// best effort: a saturated buffer drops the event and failures are logged.
// A nil *Publisher discards every event.
type Publisher struct {
	queue   Queue
	logger  *log.Logger
	opts    Options
	jobs    chan domain.ChangeEvent
	mu      sync.RWMutex
	closed  bool
	workers sync.WaitGroup
}

// NewPublisher starts the worker pool. Zero option fields take their defaults.
func NewPublisher(q Queue, opts Options, logger *log.Logger) *Publisher {
	if q == nil {
		panic("events.NewPublisher: queue is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultOptions.Workers
	}
	if opts.Buffer < 0 {
		opts.Buffer = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions.Timeout
	}
	p := &Publisher{
		queue:  q,
		logger: logger,
		opts:   opts,
		jobs:   make(chan domain.ChangeEvent, opts.Buffer),
	}
	for i := 0; i < opts.Workers; i++ {
		p.workers.Add(1)
		go p.worker(i)
	}
	logger.Infof("event publisher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", opts.Workers, opts.Buffer, opts.Timeout, opts.Handoff)
	return p
}

func (p *Publisher) worker(id int) {
	defer p.workers.Done()
	for ev := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
		err := p.send(ctx, ev)
		cancel()
		if err != nil {
			p.logger.WithFields(log.Fields{
				"event":  ev.Type,
				"user":   ev.UserID,
				"entity": ev.EntityID,
				"worker": id,
			}).WithError(err).Error("event enqueue failed")
		}
	}
}

func (p *Publisher) send(ctx context.Context, ev domain.ChangeEvent) error {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// Publish queues ev for delivery and reports whether it was accepted.
func (p *Publisher) Publish(ev domain.ChangeEvent) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.jobs <- ev:
		return true
	default:
	}
	if p.opts.Handoff <= 0 {
		p.logger.WithField("event", ev.Type).Warn("event buffer saturated; dropping")
		return false
	}

	timer := time.NewTimer(p.opts.Handoff)
	defer timer.Stop()
	select {
	case p.jobs <- ev:
		return true
	case <-timer.C:
		p.logger.WithField("event", ev.Type).Warn("event buffer saturated; dropping")
		return false
	}
}

// Close stops accepting events and waits until the workers drain the buffer.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.workers.Wait()
}
