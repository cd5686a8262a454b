// Package queue executes remote operations through a priority-ordered,
// concurrency-bounded queue with per-request timeouts and retry with
// exponential backoff.
//
// Scheduling is priority-first, FIFO within a tier, and enforced only at
// admission: an in-flight operation is never preempted. Retryable failures
// are re-queued at the back of their own tier with a refreshed enqueue time
// so retries do not starve requests queued behind them.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bulwark-ai/bulwark/pkg/faults"
	"github.com/bulwark-ai/bulwark/pkg/models"
)

// Op is one attempt at a remote operation. The context carries the
// per-attempt deadline; the attempt is also raced against that deadline, so
// an Op that ignores its context still cannot hold the caller past it.
type Op func(ctx context.Context) (json.RawMessage, error)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("queue closed")

// Config bounds the queue.
type Config struct {
	MaxConcurrent int
	MaxQueueSize  int
	MaxRetries    int
	Timeout       time.Duration
	Backoff       time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 3
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 50
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	return c
}

type outcome struct {
	data json.RawMessage
	err  error
}

type request struct {
	id         string
	callerID   string
	high       bool
	op         Op
	enqueuedAt time.Time
	status     models.RequestStatus
	retries    int
	done       chan outcome
}

// Queue is the concurrency-bounded executor. Safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	cfg     Config
	high    []*request
	normal  []*request
	running int
	closed  bool

	completed int64
	failed    int64
	cancelled int64
}

// New creates a Queue with the given bounds.
func New(cfg Config) *Queue {
	return &Queue{cfg: cfg.withDefaults()}
}

// Enqueue admits op and blocks until it reaches a terminal outcome. It
// rejects immediately with *faults.QueueFullError when the queue is at
// capacity. Cancelling ctx while the request is still queued withdraws it
// with faults.ErrCancelled; once processing has started the attempt runs to
// completion (or its own timeout) and the caller unblocks with ctx.Err().
func (q *Queue) Enqueue(ctx context.Context, callerID string, highPriority bool, op Op) (json.RawMessage, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	if depth := len(q.high) + len(q.normal); depth >= q.cfg.MaxQueueSize {
		q.mu.Unlock()
		return nil, &faults.QueueFullError{Depth: depth}
	}
	r := &request{
		id:         uuid.NewString(),
		callerID:   callerID,
		high:       highPriority,
		op:         op,
		enqueuedAt: time.Now(),
		status:     models.RequestQueued,
		done:       make(chan outcome, 1),
	}
	q.pushLocked(r)
	q.mu.Unlock()
	q.dispatch()

	select {
	case out := <-r.done:
		return out.data, out.err
	case <-ctx.Done():
		if q.withdraw(r) {
			return nil, faults.ErrCancelled
		}
		return nil, ctx.Err()
	}
}

// Position returns the caller's 1-based position across both tiers in
// scheduling order, or 0 when the caller has nothing queued.
func (q *Queue) Position(callerID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	pos := 0
	for _, r := range q.high {
		pos++
		if r.callerID == callerID {
			return pos
		}
	}
	for _, r := range q.normal {
		pos++
		if r.callerID == callerID {
			return pos
		}
	}
	return 0
}

// Stats returns a point-in-time copy of queue activity.
func (q *Queue) Stats() models.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return models.QueueStats{
		Queued:     len(q.high) + len(q.normal),
		Processing: q.running,
		Completed:  q.completed,
		Failed:     q.failed,
		Cancelled:  q.cancelled,
	}
}

// Close rejects all still-queued requests with faults.ErrCancelled and
// refuses new work. In-flight operations run to completion.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	for _, r := range append(q.high, q.normal...) {
		r.status = models.RequestCancelled
		q.cancelled++
		r.done <- outcome{err: faults.ErrCancelled}
	}
	q.high, q.normal = nil, nil
}

func (q *Queue) pushLocked(r *request) {
	if r.high {
		q.high = append(q.high, r)
	} else {
		q.normal = append(q.normal, r)
	}
}

func (q *Queue) popLocked() *request {
	if len(q.high) > 0 {
		r := q.high[0]
		q.high = q.high[1:]
		return r
	}
	if len(q.normal) > 0 {
		r := q.normal[0]
		q.normal = q.normal[1:]
		return r
	}
	return nil
}

// withdraw removes a still-pending request. It returns false once the
// request has started processing.
func (q *Queue) withdraw(r *request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if r.status != models.RequestQueued {
		return false
	}
	// Covers both tiers and requests parked in a retry backoff (queued
	// status but not present in either slice).
	r.status = models.RequestCancelled
	q.cancelled++
	tier := &q.normal
	if r.high {
		tier = &q.high
	}
	for i, queued := range *tier {
		if queued.id == r.id {
			*tier = append((*tier)[:i], (*tier)[i+1:]...)
			break
		}
	}
	return true
}

func (q *Queue) dispatch() {
	q.mu.Lock()
	for q.running < q.cfg.MaxConcurrent {
		r := q.popLocked()
		if r == nil {
			break
		}
		r.status = models.RequestProcessing
		q.running++
		go q.run(r)
	}
	q.mu.Unlock()
}

func (q *Queue) run(r *request) {
	data, err := q.attempt(r)

	if err != nil && faults.Retryable(err) && r.retries < q.cfg.MaxRetries {
		r.retries++
		delay := q.cfg.Backoff << (r.retries - 1)
		q.mu.Lock()
		q.running--
		r.status = models.RequestQueued
		q.mu.Unlock()
		q.dispatch()
		time.AfterFunc(delay, func() { q.requeue(r) })
		return
	}

	q.mu.Lock()
	q.running--
	if err != nil {
		r.status = models.RequestFailed
		q.failed++
	} else {
		r.status = models.RequestCompleted
		q.completed++
	}
	q.mu.Unlock()
	r.done <- outcome{data: data, err: err}
	q.dispatch()
}

// requeue returns a request to the back of its tier after a retry backoff,
// with a refreshed enqueue time for fair re-scheduling.
func (q *Queue) requeue(r *request) {
	q.mu.Lock()
	if r.status != models.RequestQueued {
		q.mu.Unlock()
		return
	}
	if q.closed {
		r.status = models.RequestCancelled
		q.cancelled++
		q.mu.Unlock()
		r.done <- outcome{err: faults.ErrCancelled}
		return
	}
	r.enqueuedAt = time.Now()
	q.pushLocked(r)
	q.mu.Unlock()
	q.dispatch()
}

// attempt races one execution of the operation against its deadline.
func (q *Queue) attempt(r *request) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.Timeout)
	defer cancel()

	resCh := make(chan outcome, 1)
	go func() {
		data, err := r.op(ctx)
		resCh <- outcome{data: data, err: err}
	}()

	select {
	case out := <-resCh:
		// An op that honors its context reports the deadline itself.
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() != nil {
			return nil, &faults.TimeoutError{After: q.cfg.Timeout}
		}
		return out.data, out.err
	case <-ctx.Done():
		return nil, &faults.TimeoutError{After: q.cfg.Timeout}
	}
}
