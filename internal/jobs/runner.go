// Package jobs runs synthesis, assembly and ingestion work as tracked jobs.
//
// At most one job per target runs at a time. A job may claim several targets;
// it is admitted only when all of them are free. A submission for a busy
// target is rejected with simerr.ErrJobInFlight rather than queued. A job
// exposes only its final status and a single human-readable message.
//
// Finished jobs are forgotten once they are older than the retention window
// or when more than the configured number of them are tracked.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/logging"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/metrics"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"
)

// Kind names the operation a job performs.
type Kind string

const (
	KindGenerate    Kind = "generate"
	KindClearAgents Kind = "clear_agents"
	KindWriteInput  Kind = "write_input"
	KindIngest      Kind = "ingest"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Done reports whether s is final.
func (s Status) Done() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job is a snapshot of a tracked job.
type Job struct {
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	Target     string     `json:"target"`
	Claims     []string   `json:"claims,omitempty"`
	Status     Status     `json:"status"`
	Message    string     `json:"message,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Func is the body of a job. On success it returns a short summary that
// becomes the job message.
type Func func(ctx context.Context) (string, error)

// ErrUnknownJob is returned by Wait for ids the runner never issued.
var ErrUnknownJob = errors.New("unknown job")

type entry struct {
	job  Job
	done chan struct{}
}

const (
	// DefaultRetention is how long a finished job stays visible.
	DefaultRetention = time.Hour
	// DefaultMaxFinished caps the number of finished jobs kept.
	DefaultMaxFinished = 500
)

// Option configures a Runner.
type Option func(*Runner)

// WithRetention sets how long finished jobs are kept. Zero or less keeps
// them until the cap evicts them.
func WithRetention(d time.Duration) Option {
	return func(r *Runner) { r.retention = d }
}

// WithMaxFinished caps the number of finished jobs kept. Zero or less
// removes the cap.
func WithMaxFinished(n int) Option {
	return func(r *Runner) { r.maxFinished = n }
}

// Runner tracks jobs and enforces the one-job-per-target rule.
type Runner struct {
	mu     sync.Mutex
	jobs   map[string]*entry
	guards map[string]*semaphore.Weighted

	logger      *slog.Logger
	jobLog      *logging.JobLog
	timeout     time.Duration
	retention   time.Duration
	maxFinished int
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a Runner. A zero timeout means jobs run until they finish
// or the runner shuts down. jobLog may be nil.
func NewRunner(logger *slog.Logger, jobLog *logging.JobLog, timeout time.Duration, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		jobs:        make(map[string]*entry),
		guards:      make(map[string]*semaphore.Weighted),
		logger:      logger,
		jobLog:      jobLog,
		timeout:     timeout,
		retention:   DefaultRetention,
		maxFinished: DefaultMaxFinished,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes fn on the caller's goroutine and returns the final job. The
// job claims target and every extra target. The returned error is fn's
// error, or ErrJobInFlight when any claimed target is busy.
func (r *Runner) Run(ctx context.Context, kind Kind, target string, fn Func, extra ...string) (Job, error) {
	e, err := r.admit(kind, target, extra)
	if err != nil {
		return Job{}, err
	}
	err = r.execute(ctx, e, fn)
	return r.snapshot(e), err
}

// Submit starts fn in the background and returns the pending job. The
// targets are claimed before Submit returns, so a second Submit touching any
// of them fails immediately with ErrJobInFlight.
func (r *Runner) Submit(kind Kind, target string, fn Func, extra ...string) (Job, error) {
	e, err := r.admit(kind, target, extra)
	if err != nil {
		return Job{}, err
	}
	job := r.snapshot(e)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.execute(r.ctx, e, fn)
	}()
	return job, nil
}

// Get returns the job with the given id.
func (r *Runner) Get(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return e.job, true
}

// List returns every tracked job, oldest first.
func (r *Runner) List() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Job, 0, len(r.jobs))
	for _, e := range r.jobs {
		out = append(out, e.job)
	}
	slices.SortFunc(out, func(a, b Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Wait blocks until the job finishes or ctx is done.
func (r *Runner) Wait(ctx context.Context, id string) (Job, error) {
	r.mu.Lock()
	e, ok := r.jobs[id]
	r.mu.Unlock()
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}

	select {
	case <-e.done:
		return r.snapshot(e), nil
	case <-ctx.Done():
		return r.snapshot(e), ctx.Err()
	}
}

// Shutdown cancels running jobs and waits for them to return.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs returns the number of tracked jobs.
func (r *Runner) Jobs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Busy reports whether target is claimed by an unfinished job.
func (r *Runner) Busy(target string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.guards[target]
	return ok
}

// admit claims every target or none of them.
func (r *Runner) admit(kind Kind, target string, extra []string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	claims := []string{target}
	for _, t := range extra {
		if !slices.Contains(claims, t) {
			claims = append(claims, t)
		}
	}

	for i, t := range claims {
		guard, ok := r.guards[t]
		if !ok {
			guard = semaphore.NewWeighted(1)
			r.guards[t] = guard
		}
		if !guard.TryAcquire(1) {
			r.releaseLocked(claims[:i])
			metrics.JobsRejected.WithLabelValues(string(kind)).Inc()
			r.logger.Debug("job rejected", "kind", kind, "target", target, "busy", t)
			return nil, fmt.Errorf("%s on %s: %s is busy: %w", kind, target, t, simerr.ErrJobInFlight)
		}
	}

	r.evictLocked()

	e := &entry{
		job: Job{
			ID:        uuid.NewString(),
			Kind:      kind,
			Target:    target,
			Claims:    claims,
			Status:    StatusPending,
			CreatedAt: r.now().UTC(),
		},
		done: make(chan struct{}),
	}
	r.jobs[e.job.ID] = e
	return e, nil
}

func (r *Runner) release(targets []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked(targets)
}

// releaseLocked frees targets and forgets their guards. A guard is only
// ever held by one job, so nobody else can be waiting on it.
func (r *Runner) releaseLocked(targets []string) {
	for _, t := range targets {
		if guard, ok := r.guards[t]; ok {
			guard.Release(1)
			delete(r.guards, t)
		}
	}
}

// evictLocked drops finished jobs past the retention window, then the
// oldest finished jobs above the cap.
func (r *Runner) evictLocked() {
	var finished []*entry
	cutoff := r.now().Add(-r.retention)
	for id, e := range r.jobs {
		if e.job.FinishedAt == nil {
			continue
		}
		if r.retention > 0 && e.job.FinishedAt.Before(cutoff) {
			delete(r.jobs, id)
			continue
		}
		finished = append(finished, e)
	}

	if r.maxFinished <= 0 || len(finished) <= r.maxFinished {
		return
	}
	slices.SortFunc(finished, func(a, b *entry) int {
		return a.job.FinishedAt.Compare(*b.job.FinishedAt)
	})
	for _, e := range finished[:len(finished)-r.maxFinished] {
		delete(r.jobs, e.job.ID)
	}
}

func (r *Runner) execute(ctx context.Context, e *entry, fn Func) error {
	// The targets are free again before waiters are woken.
	defer close(e.done)
	defer r.release(e.job.Claims)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	job := r.setStatus(e, StatusRunning, "")
	r.logger.Info("job started", "id", job.ID, "kind", job.Kind, "target", job.Target)
	r.jobLog.Log(logging.JobEvent{JobID: job.ID, Kind: string(job.Kind), Target: job.Target, Status: string(StatusRunning)})
	metrics.JobsInFlight.Inc()
	start := time.Now()

	msg, err := r.call(ctx, fn)

	elapsed := time.Since(start)
	metrics.JobsInFlight.Dec()

	status := StatusSucceeded
	if err != nil {
		status = StatusFailed
		msg = simerr.Describe(err)
	}
	job = r.setStatus(e, status, msg)
	metrics.ObserveJob(string(job.Kind), string(status), elapsed)
	r.jobLog.Log(logging.JobEvent{
		JobID:      job.ID,
		Kind:       string(job.Kind),
		Target:     job.Target,
		Status:     string(status),
		Message:    msg,
		DurationMS: elapsed.Milliseconds(),
	})
	if err != nil {
		r.logger.Warn("job failed", "id", job.ID, "kind", job.Kind, "target", job.Target, "error", err)
	} else {
		r.logger.Info("job finished", "id", job.ID, "kind", job.Kind, "target", job.Target, "duration", elapsed)
	}
	return err
}

// call runs fn, turning a panic into a failed job.
func (r *Runner) call(ctx context.Context, fn Func) (msg string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return fn(ctx)
}

func (r *Runner) setStatus(e *entry, status Status, msg string) Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.job.Status = status
	e.job.Message = msg
	if status.Done() {
		now := r.now().UTC()
		e.job.FinishedAt = &now
	}
	return e.job
}

func (r *Runner) snapshot(e *entry) Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return e.job
}
