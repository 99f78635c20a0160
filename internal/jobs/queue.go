// Package jobs runs long imports on a single background worker so HTTP
// callers can poll for completion instead of holding a request open.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/modelhub/internal/apperr"
)

// ErrQueueFull is returned by Submit when the backlog is at capacity.
var ErrQueueFull = errors.New("job queue is full")

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Func performs the work of a job and returns a JSON-serializable result.
type Func func(ctx context.Context) (any, error)

// Job is a snapshot of a submitted unit of work.
type Job struct {
	ID         string      `json:"id"`
	Kind       string      `json:"kind"`
	Target     string      `json:"target"`
	Status     Status      `json:"status"`
	Result     any         `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	ErrorKind  apperr.Kind `json:"error_kind,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// Done reports whether the job reached a terminal state.
func (j Job) Done() bool {
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}

type task struct {
	id string
	fn Func
}

// Queue is a bounded FIFO drained by one worker goroutine started with Run.
type Queue struct {
	pending chan task
	logger  *slog.Logger
	onEvent func(Job)

	mu   sync.RWMutex
	jobs map[string]*Job
}

// New creates a queue holding at most size waiting jobs.
func New(size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 16
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Queue{
		pending: make(chan task, size),
		logger:  logger,
		jobs:    make(map[string]*Job),
	}
}

// OnEvent registers fn to receive a snapshot on every status change.
// It must be called before Run.
func (q *Queue) OnEvent(fn func(Job)) {
	q.onEvent = fn
}

// Submit enqueues fn and returns the queued job.
func (q *Queue) Submit(kind, target string, fn Func) (Job, error) {
	j := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Target:    target,
		Status:    StatusQueued,
		CreatedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	select {
	case q.pending <- task{id: j.ID, fn: fn}:
		q.jobs[j.ID] = j
	default:
		q.mu.Unlock()
		return Job{}, ErrQueueFull
	}
	snap := *j
	q.mu.Unlock()

	q.logger.Info("jobs: queued", slog.String("id", j.ID), slog.String("kind", kind), slog.String("target", target))
	q.emit(snap)
	return snap, nil
}

// Get returns a snapshot of the job with id.
func (q *Queue) Get(id string) (Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	j, ok := q.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: job %q", apperr.ErrNotFound, id)
	}
	return *j, nil
}

// Run processes jobs one at a time until ctx is cancelled. Jobs still
// queued at that point stay queued.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-q.pending:
			q.process(ctx, t)
		}
	}
}

func (q *Queue) process(ctx context.Context, t task) {
	q.update(t.id, func(j *Job) {
		started := time.Now().UTC()
		j.Status = StatusRunning
		j.StartedAt = &started
	})

	res, err := t.fn(ctx)

	q.update(t.id, func(j *Job) {
		finished := time.Now().UTC()
		j.FinishedAt = &finished
		if err != nil {
			j.Status = StatusFailed
			j.Error = err.Error()
			j.ErrorKind = apperr.KindOf(err)
			return
		}
		j.Status = StatusSucceeded
		j.Result = res
	})

	if err != nil {
		q.logger.Warn("jobs: failed", slog.String("id", t.id), slog.String("error", err.Error()))
		return
	}
	q.logger.Info("jobs: succeeded", slog.String("id", t.id))
}

func (q *Queue) update(id string, fn func(*Job)) {
	q.mu.Lock()
	j, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	fn(j)
	snap := *j
	q.mu.Unlock()
	q.emit(snap)
}

func (q *Queue) emit(j Job) {
	if q.onEvent != nil {
		q.onEvent(j)
	}
}
