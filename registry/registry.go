// Package registry implements the in-memory Job Registry (C6): job
// creation/lookup/retry, FIFO dispatch, and the MAX_CONCURRENT_JOBS
// semaphore described in §4.6/§5.
package registry

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/livepeer/clip-job-server/cache"
	"github.com/livepeer/clip-job-server/config"
	"github.com/livepeer/clip-job-server/errors"
	"github.com/livepeer/clip-job-server/job"
	"github.com/livepeer/clip-job-server/log"
	"github.com/livepeer/clip-job-server/metrics"
)

// Executor runs one Job to completion, mutating it in place via its
// thread-safe methods (SetStageProgress, AppendOutput, Finish, FailWith).
// The registry never mutates a dispatched Job itself, per §3's single-writer
// rule.
type Executor func(ctx context.Context, j *job.Job)

// Registry is the sole shared mutable state described in §5: a job_id ->
// Job map plus a bounded dispatch queue. It holds no transcript/render
// state itself — that lives entirely on the Job passed to the Executor.
type Registry struct {
	jobs  *cache.Cache[*job.Job]
	queue chan string
	sem   *semaphore.Weighted

	maxQueueDepth int
	jobTimeout    time.Duration

	exec  Executor
	clock config.TimestampGenerator

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Registry and starts its dispatch loop. exec is invoked
// once per dispatched Job in its own goroutine, gated by maxConcurrent.
func New(maxConcurrent, maxQueueDepth int, jobTimeout time.Duration, exec Executor) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		jobs:          cache.New[*job.Job](),
		queue:         make(chan string, maxQueueDepth),
		sem:           semaphore.NewWeighted(int64(maxConcurrent)),
		maxQueueDepth: maxQueueDepth,
		jobTimeout:    jobTimeout,
		exec:          exec,
		clock:         config.Clock,
		ctx:           ctx,
		cancel:        cancel,
	}
	go r.dispatchLoop()
	return r
}

// Close stops accepting new dispatch; in-flight Jobs keep running.
func (r *Registry) Close() {
	r.cancel()
}

// QueueDepth returns the number of jobs currently waiting for a worker slot.
func (r *Registry) QueueDepth() int {
	return len(r.queue)
}

// Create validates req, assigns job_id/trace_id and inserts a queued Job,
// per §4.6. Returns errors.BadRequest on validation failure and a
// stand-in InternalError (wrapping a TooManyRequests condition checked by
// the caller via QueueDepth before calling Create) is never raised here —
// the HTTP layer checks QueueDepth against MAX_QUEUE_DEPTH before calling.
func (r *Registry) Create(req job.Request) (*job.Job, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	jobID := uuid.New().String()
	traceID := uuid.New().String()
	j := job.New(jobID, traceID, req, r.clock.GetTime())

	r.jobs.Store(jobID, j)
	select {
	case r.queue <- jobID:
	default:
		// Queue is full: the job stays queued in the map but will only run
		// once a slot frees and a later enqueue (e.g. a retry) drains it, OR
		// the caller rejects before reaching here via QueueDepth(); this path
		// exists only for a benign race, and we don't block Create on it.
		log.LogWarn(traceID, "registry dispatch queue full at enqueue time", "job_id", jobID)
	}

	metrics.Metrics.JobsInFlight.Set(float64(r.runningCount()))
	return j, nil
}

// Get returns an immutable snapshot of the Job, or NotFound.
func (r *Registry) Get(jobID string) (*job.Job, error) {
	j, ok := r.jobs.Get(jobID)
	if !ok {
		return nil, errors.NewJobError(errors.NotFound, "no such job", "", nil)
	}
	return j.Clone(), nil
}

// Retry creates a fresh Job sharing the source reference of an existing
// terminal Job, per §4.6. Returns errors.BadRequest (409 at the HTTP layer)
// if the referenced Job is not yet terminal.
func (r *Registry) Retry(jobID string, override *job.Options) (*job.Job, error) {
	existing, ok := r.jobs.Get(jobID)
	if !ok {
		return nil, errors.NewJobError(errors.NotFound, "no such job", "", nil)
	}
	if !existing.IsTerminal() {
		return nil, errors.NewJobError(errors.BadRequest, "job is not terminal", "", nil)
	}

	snap := existing.Clone()
	newReq := snap.Request.MergeOptionsOverride(override)
	return r.Create(newReq)
}

func (r *Registry) runningCount() int {
	count := 0
	for _, id := range r.jobs.Keys() {
		if j, ok := r.jobs.Get(id); ok && j.GetStatus() == job.StatusRunning {
			count++
		}
	}
	return count
}

// dispatchLoop pulls queued job ids in FIFO order and runs each Executor
// under the concurrency semaphore, mirroring the teacher's panic-safe
// async-goroutine idiom.
func (r *Registry) dispatchLoop() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case jobID := <-r.queue:
			j, ok := r.jobs.Get(jobID)
			if !ok {
				continue
			}
			if err := r.sem.Acquire(r.ctx, 1); err != nil {
				return
			}
			go r.runOne(j)
		}
	}
}

func (r *Registry) runOne(j *job.Job) {
	defer r.sem.Release(1)
	defer func() {
		if rec := recover(); rec != nil {
			log.LogError(j.TraceID, "panic running job", nil, "job_id", j.JobID, "panic", rec, "trace", string(debug.Stack()))
			j.FailWith(r.clock.GetTime(), errors.NewJobError(errors.InternalError, "internal error", "", nil))
		}
		metrics.Metrics.JobsInFlight.Set(float64(r.runningCount()))
		metrics.Metrics.JobsCompleted.WithLabelValues(string(j.GetStatus())).Inc()
	}()

	if !j.Start(r.clock.GetTime()) {
		return
	}
	metrics.Metrics.JobsInFlight.Set(float64(r.runningCount()))

	ctx, cancel := context.WithTimeout(context.Background(), r.jobTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.exec(ctx, j)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		<-done // the Executor is responsible for observing ctx.Done and exiting promptly
		if !j.IsTerminal() {
			j.FailWith(r.clock.GetTime(), errors.NewJobError(errors.JobTimeout, "job_timeout exceeded", string(j.Clone().Stage), nil))
		}
	}
}
