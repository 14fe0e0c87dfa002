package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"brunox-chat/internal/infrastructure/queue/port"
)

// InlineQueue is an in-process port.Client and port.Server used with the
// memory store driver. Tasks run once on their own goroutine after ProcessIn;
// failures are logged, not retried. A TaskID is held only while its task is
// pending or running.
type InlineQueue struct {
	log zerolog.Logger

	mu       sync.Mutex
	handlers map[string]port.Handler
	ids      map[string]struct{}
	ctx      context.Context
	stopped  bool
	ready    chan struct{}
	wg       sync.WaitGroup
}

var errInlineStopped = errors.New("inline queue: stopped")

var (
	_ port.Client = (*InlineQueue)(nil)
	_ port.Server = (*InlineQueue)(nil)
)

func NewInlineQueue(log zerolog.Logger) *InlineQueue {
	return &InlineQueue{
		log:      log.With().Str("component", "inline_queue").Logger(),
		handlers: make(map[string]port.Handler),
		ids:      make(map[string]struct{}),
		ready:    make(chan struct{}),
	}
}

func (q *InlineQueue) Register(taskType string, h port.Handler) {
	q.mu.Lock()
	q.handlers[taskType] = h
	q.mu.Unlock()
}

// Run marks the queue as accepting work and blocks until ctx is canceled,
// then waits for running tasks. It must be called once.
func (q *InlineQueue) Run(ctx context.Context) error {
	q.mu.Lock()
	q.ctx = ctx
	q.mu.Unlock()
	close(q.ready)
	<-ctx.Done()

	// No task is added once stopped is set, so Wait sees the final count.
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.wg.Wait()
	return nil
}

// Ready is closed once Run has started accepting work.
func (q *InlineQueue) Ready() <-chan struct{} { return q.ready }

func (q *InlineQueue) Enqueue(_ context.Context, t port.Task, opts ...port.EnqueueOption) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx == nil {
		return "", errors.New("inline queue: not running")
	}
	if q.stopped || q.ctx.Err() != nil {
		return "", errInlineStopped
	}
	h, ok := q.handlers[t.Type]
	if !ok {
		return "", fmt.Errorf("inline queue: no handler for %q", t.Type)
	}

	var op port.EnqueueOption
	if len(opts) > 0 {
		op = opts[0]
	}
	id := op.TaskID
	if id == "" {
		id = uuid.NewString()
	}
	if _, dup := q.ids[id]; dup {
		return "", port.ErrDuplicateTask
	}
	q.ids[id] = struct{}{}

	delay := op.ProcessIn
	if !op.ProcessAt.IsZero() {
		delay = time.Until(op.ProcessAt)
	}

	ctx := q.ctx
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer q.release(id)
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return
			}
		}
		if err := h(ctx, t); err != nil {
			q.log.Error().Err(err).Str("task_type", t.Type).Str("task_id", id).Msg("task failed")
		}
	}()
	return id, nil
}

func (q *InlineQueue) release(id string) {
	q.mu.Lock()
	delete(q.ids, id)
	q.mu.Unlock()
}

// pending is the number of task ids currently held.
func (q *InlineQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

func (q *InlineQueue) Close() error { return nil }
