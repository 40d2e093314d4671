package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mofgen/internal/core"
	"mofgen/pkg/domain"
	"mofgen/pkg/structure"
)

// JobStatus describes the lifecycle stage of an ingest job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// DefaultJobRetention bounds how many finished jobs stay queryable.
const DefaultJobRetention = 1024

// ErrQueueFull is returned by Enqueue when no more jobs can be buffered.
var ErrQueueFull = errors.New("ingest queue full")

// ErrWorkerStopped is returned by Enqueue after Stop.
var ErrWorkerStopped = errors.New("ingest worker stopped")

// Job tracks one asynchronous ingest.
type Job struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	MaterialID  string     `json:"material_id,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Ingester builds and stores a material record.
type Ingester interface {
	Ingest(ctx context.Context, st *structure.Structure, overrides ...domain.Override) (domain.MaterialRecord, error)
}

type ingestTask struct {
	id        string
	structure *structure.Structure
	overrides domain.Overrides
}

// Worker runs queued ingests one at a time, so external tools never run
// concurrently on behalf of the API.
type Worker struct {
	ingester Ingester
	logger   core.Logger
	now      func() time.Time

	queue    chan ingestTask
	mu       sync.RWMutex
	jobs     map[string]*Job
	finished []string
	retain   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs a worker buffering up to queueSize jobs.
func NewWorker(ingester Ingester, queueSize int, logger core.Logger) *Worker {
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = discardLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		ingester: ingester,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		queue:    make(chan ingestTask, queueSize),
		jobs:     make(map[string]*Job),
		retain:   DefaultJobRetention,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// WithRetention keeps at most n finished jobs; older ones are forgotten
// oldest first. Queued and running jobs are never dropped.
func (w *Worker) WithRetention(n int) *Worker {
	if n < 1 {
		n = 1
	}
	w.mu.Lock()
	w.retain = n
	w.evictLocked()
	w.mu.Unlock()
	return w
}

// Start begins processing jobs.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop cancels the running job, stops the loop and waits for it or ctx.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// Enqueue schedules an ingest and returns the queued job.
func (w *Worker) Enqueue(_ context.Context, st *structure.Structure, overrides domain.Overrides) (Job, error) {
	if st == nil {
		return Job{}, &domain.ValidationError{Field: "Structure", Reason: "is required"}
	}
	if w.ctx.Err() != nil {
		return Job{}, ErrWorkerStopped
	}
	now := w.now()
	job := Job{ID: uuid.NewString(), Status: JobQueued, CreatedAt: now, UpdatedAt: now}

	w.mu.Lock()
	w.jobs[job.ID] = &job
	snapshot := job
	w.mu.Unlock()

	select {
	case w.queue <- ingestTask{id: job.ID, structure: st, overrides: cloneOverrides(overrides)}:
	default:
		w.mu.Lock()
		delete(w.jobs, job.ID)
		w.mu.Unlock()
		return Job{}, ErrQueueFull
	}
	return snapshot, nil
}

// Job returns a snapshot of the job.
func (w *Worker) Job(id string) (Job, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	job, ok := w.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

func (w *Worker) process(task ingestTask) {
	w.update(task.id, func(j *Job) { j.Status = JobRunning })

	rec, err := w.ingester.Ingest(w.ctx, task.structure, domain.WithFields(task.overrides))
	if err != nil {
		w.logger.Warn("ingest job failed", "job", task.id, "error", err)
		w.finish(task.id, func(j *Job) {
			j.Status = JobFailed
			j.Error = fmt.Sprintf("ingest failed: %v", err)
		})
		return
	}
	w.logger.Info("ingest job succeeded", "job", task.id, "id", rec.ID())
	w.finish(task.id, func(j *Job) {
		j.Status = JobSucceeded
		j.MaterialID = rec.ID()
	})
}

func (w *Worker) finish(id string, mutate func(*Job)) {
	w.update(id, func(j *Job) {
		mutate(j)
		j.CompletedAt = ptrTime(j.UpdatedAt)
		w.finished = append(w.finished, id)
		w.evictLocked()
	})
}

// evictLocked drops the oldest finished jobs beyond the retention limit.
// Callers hold w.mu.
func (w *Worker) evictLocked() {
	for len(w.finished) > w.retain {
		delete(w.jobs, w.finished[0])
		w.finished[0] = ""
		w.finished = w.finished[1:]
	}
}

func (w *Worker) update(id string, mutate func(*Job)) {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()
	job, ok := w.jobs[id]
	if !ok {
		return
	}
	job.UpdatedAt = now
	mutate(job)
}

func ptrTime(t time.Time) *time.Time { return &t }

func cloneOverrides(in domain.Overrides) domain.Overrides {
	if in == nil {
		return nil
	}
	out := make(domain.Overrides, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}
