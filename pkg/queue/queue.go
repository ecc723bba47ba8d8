// Package queue serializes helper mutations on a single worker and reports
// batch outcomes.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pe200012/cpupower-gui-qml/pkg/types"
)

var (
	// ErrBatchInProgress indicates BeginBatch was called before the open batch ended.
	ErrBatchInProgress = errors.New("batch already in progress")

	errQueueClosed = errors.New("operation queue closed")
)

// Applier runs one mutation against the helper. *client.Client satisfies it.
type Applier interface {
	Apply(ctx context.Context, m types.Mutation) (int, error)
}

// Observer is called after every operation completes. err is nil on success.
type Observer func(op types.Mutation, err error)

// Outcome is the aggregated result of a batch.
type Outcome struct {
	AllSucceeded bool
	Errors       []string
}

// Option configures a Queue.
type Option func(*Queue)

// WithObserver registers a per-operation completion hook.
func WithObserver(o Observer) Option {
	return func(q *Queue) {
		q.observer = o
	}
}

type batch struct {
	ended     bool
	remaining int
	errors    []string
	result    chan Outcome
}

func newBatch() *batch {
	return &batch{errors: []string{}, result: make(chan Outcome, 1)}
}

func (b *batch) resolve() {
	b.result <- Outcome{AllSucceeded: len(b.errors) == 0, Errors: b.errors}
	close(b.result)
}

type item struct {
	op    types.Mutation
	batch *batch
}

// Queue dispatches mutations one at a time in FIFO order.
type Queue struct {
	applier  Applier
	observer Observer
	logger   zerolog.Logger

	mu      sync.Mutex
	pending []item
	open    *batch
	closed  bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// New starts a queue worker that applies operations through applier.
func New(applier Applier, opts ...Option) *Queue {
	q := &Queue{
		applier: applier,
		logger:  log.With().Str("component", "queue").Logger(),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}

	go q.run()
	return q
}

// Enqueue appends op. It never blocks on the helper. Outside a batch the
// worker picks the operation up right away.
func (q *Queue) Enqueue(op types.Mutation) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.notify(op, errQueueClosed)
		return
	}
	if q.open != nil {
		q.open.remaining++
	}
	q.pending = append(q.pending, item{op: op, batch: q.open})
	q.mu.Unlock()

	q.signal()
}

// BeginBatch holds back every operation enqueued until EndBatch.
func (q *Queue) BeginBatch() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.open != nil {
		return ErrBatchInProgress
	}
	q.open = newBatch()
	return nil
}

// EndBatch releases the open batch and returns a channel that yields its
// Outcome once every operation in it has completed. Without an open batch,
// or with an empty one, the outcome is available immediately.
func (q *Queue) EndBatch() <-chan Outcome {
	q.mu.Lock()
	b := q.open
	q.open = nil
	if b == nil {
		b = newBatch()
	}
	b.ended = true
	if b.remaining == 0 {
		b.resolve()
	}
	q.mu.Unlock()

	q.signal()
	return b.result
}

// Close waits for the operation in flight to finish, then stops the worker.
// Operations still pending are failed and their batches resolved.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.stop)
	<-q.done

	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	open := q.open
	q.open = nil
	q.mu.Unlock()

	for _, it := range pending {
		q.complete(it, errQueueClosed)
	}
	if open != nil && !open.ended && open.remaining == 0 {
		open.ended = true
		open.resolve()
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer close(q.done)

	ctx := context.Background()
	for {
		select {
		case <-q.stop:
			return
		case <-q.wake:
		}

		for {
			it, ok := q.next()
			if !ok {
				break
			}
			q.complete(it, q.apply(ctx, it.op))
		}
	}
}

// next pops the head of the queue unless it belongs to a batch that is
// still open or the queue is closed.
func (q *Queue) next() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.pending) == 0 {
		return item{}, false
	}
	head := q.pending[0]
	if head.batch != nil && !head.batch.ended {
		return item{}, false
	}
	q.pending[0] = item{}
	q.pending = q.pending[1:]
	return head, true
}

func (q *Queue) apply(ctx context.Context, op types.Mutation) error {
	code, err := q.applier.Apply(ctx, op)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("operation failed with code %d", code)
	}
	return nil
}

func (q *Queue) complete(it item, err error) {
	if err != nil {
		q.logger.Warn().Err(err).Str("method", it.op.Method()).Msg(it.op.Describe())
	} else {
		q.logger.Debug().Str("method", it.op.Method()).Msg(it.op.Describe())
	}

	if b := it.batch; b != nil {
		q.mu.Lock()
		if err != nil {
			b.errors = append(b.errors, fmt.Sprintf("%s: %s", it.op.Describe(), err.Error()))
		}
		b.remaining--
		if b.ended && b.remaining == 0 {
			b.resolve()
		}
		q.mu.Unlock()
	}

	q.notify(it.op, err)
}

func (q *Queue) notify(op types.Mutation, err error) {
	if q.observer != nil {
		q.observer(op, err)
	}
}
