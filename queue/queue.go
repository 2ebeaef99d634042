// Package queue schedules scrape jobs across three priority tiers with a
// bounded number of concurrent browser pipelines.
//
// Instant jobs always dispatch before standard, standard before deep;
// within a tier dispatch is FIFO. Progress is monotonic and exposed as
// snapshot copies only. A failed job stays failed — there is no retry.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/adlens/adlens/idgen"
	"github.com/adlens/adlens/intel"
)

// ErrNotFound is returned for an unknown job ID.
var ErrNotFound = errors.New("queue: job not found")

// ErrClosed is returned when enqueueing on a closed queue.
var ErrClosed = errors.New("queue: closed")

// Executor runs the intelligence pipeline for one job. Satisfied by
// *intel.Service; tests substitute fakes.
type Executor interface {
	GetOrCreate(ctx context.Context, url string, opts intel.Options) (intel.Result, error)
}

// Config configures the queue.
type Config struct {
	// MaxConcurrent bounds simultaneously running jobs. Default: 3.
	MaxConcurrent int
}

func (c *Config) defaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 3
	}
}

// Progress checkpoints, as percentages of a whole job. Harvesting owns the
// 10..80 band and subdivides it per keyword.
const (
	pctClassify     = 5
	pctHarvestStart = 10
	pctHarvestEnd   = 80
	pctAggregate    = 90
	pctStore        = 95
)

// Queue dispatches scrape jobs to an Executor.
type Queue struct {
	exec     Executor
	config   Config
	logger   *slog.Logger
	notifier Notifier
	newID    idgen.Generator

	sem  *semaphore.Weighted
	wake chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	jobs    map[string]*Job
	buckets [3][]string // queued job IDs per priority rank, FIFO
	cancels map[string]context.CancelFunc
	closed  bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithNotifier sets the terminal-state notifier.
func WithNotifier(n Notifier) Option {
	return func(q *Queue) { q.notifier = n }
}

// WithIDGenerator overrides job ID generation.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(q *Queue) { q.newID = gen }
}

// New creates a Queue and starts its dispatcher. Call Close to drain.
func New(exec Executor, cfg Config, logger *slog.Logger, opts ...Option) *Queue {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		exec:    exec,
		config:  cfg,
		logger:  logger,
		newID:   idgen.Job,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*Job),
		cancels: make(map[string]context.CancelFunc),
	}
	for _, o := range opts {
		o(q)
	}
	q.wg.Add(1)
	go q.dispatch()
	return q
}

// Enqueue registers a new scrape job and returns its snapshot.
func (q *Queue) Enqueue(url, customer string, priority Priority) (Job, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return Job{}, ErrClosed
	}
	j := &Job{
		ID:        q.newID(),
		URL:       url,
		Customer:  customer,
		Priority:  priority,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}
	q.jobs[j.ID] = j
	rank := priority.rank()
	q.buckets[rank] = append(q.buckets[rank], j.ID)
	snap := j.snapshot()
	q.mu.Unlock()

	q.logger.Info("queue: job enqueued", "id", snap.ID, "priority", snap.Priority, "url", url)
	q.signal()
	return snap, nil
}

// GetStatus returns a snapshot of the job.
func (q *Queue) GetStatus(id string) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return j.snapshot(), nil
}

// List returns snapshots of all known jobs, oldest first.
func (q *Queue) List() []Job {
	q.mu.Lock()
	out := make([]Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j.snapshot())
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out
}

// Cancel stops a job. A queued job is finalized immediately; a processing
// job has its context cancelled and finalizes when the pipeline unwinds.
// Cancelling a terminal job is a no-op.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	j, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return ErrNotFound
	}
	switch j.Status {
	case StatusQueued:
		q.finalizeLocked(j, StatusCancelled, "")
		snap := j.snapshot()
		q.mu.Unlock()
		q.notify(snap)
		return nil
	case StatusProcessing:
		cancel := q.cancels[id]
		q.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil
	default:
		q.mu.Unlock()
		return nil
	}
}

// Close stops dispatching, cancels running jobs and waits for them to
// finalize.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	q.logger.Info("queue: closed")
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) dispatch() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-q.wake:
		}
		for {
			if err := q.sem.Acquire(q.ctx, 1); err != nil {
				return
			}
			j, jobCtx := q.next()
			if j == nil {
				q.sem.Release(1)
				break
			}
			q.wg.Add(1)
			go q.run(j, jobCtx)
		}
	}
}

// next pops the highest-priority queued job and marks it processing.
// Returns nil when nothing is queued.
func (q *Queue) next() (*Job, context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for rank := range q.buckets {
		for len(q.buckets[rank]) > 0 {
			id := q.buckets[rank][0]
			q.buckets[rank] = q.buckets[rank][1:]
			j := q.jobs[id]
			if j.Status != StatusQueued {
				continue // cancelled while waiting
			}
			now := time.Now()
			j.Status = StatusProcessing
			j.StartedAt = &now
			j.CurrentTask = "starting"
			jobCtx, cancel := context.WithCancel(q.ctx)
			q.cancels[id] = cancel
			return j, jobCtx
		}
	}
	return nil, nil
}

func (q *Queue) run(j *Job, ctx context.Context) {
	defer q.wg.Done()
	defer q.sem.Release(1)
	defer q.signal()

	opts := intel.Options{
		QuickScan:    j.Priority == PriorityInstant,
		ForceRefresh: j.Priority == PriorityDeep,
		OnStage:      func(stage string) { q.onStage(j.ID, stage) },
		OnHarvest: func(done, total, collected int) {
			q.onHarvest(j.ID, done, total, collected)
		},
	}

	res, err := q.exec.GetOrCreate(ctx, j.URL, opts)

	q.mu.Lock()
	// Release the job's cancellation token on every exit path, not just
	// Cancel(): an uncancelled child context would stay registered under
	// the queue's root context for the life of the server.
	if cancel := q.cancels[j.ID]; cancel != nil {
		defer cancel()
	}
	delete(q.cancels, j.ID)
	switch {
	case err == nil:
		j.Progress = 100
		j.Result = &res
		if res.Intelligence != nil {
			j.Collected.AdsFound = len(res.Intelligence.Ads)
			j.Collected.CompetitorsFound = len(res.Intelligence.Competitors)
		}
		q.finalizeLocked(j, StatusCompleted, "")
	case errors.Is(err, context.Canceled):
		q.finalizeLocked(j, StatusCancelled, "")
	default:
		q.finalizeLocked(j, StatusFailed, err.Error())
	}
	snap := j.snapshot()
	q.mu.Unlock()

	switch snap.Status {
	case StatusCompleted:
		q.logger.Info("queue: job completed", "id", snap.ID, "ads", snap.Collected.AdsFound)
	case StatusCancelled:
		q.logger.Info("queue: job cancelled", "id", snap.ID)
	default:
		q.logger.Warn("queue: job failed", "id", snap.ID, "error", snap.Error)
	}
	q.notify(snap)
}

// finalizeLocked moves a job to a terminal state. Callers hold q.mu.
func (q *Queue) finalizeLocked(j *Job, status Status, errMsg string) {
	now := time.Now()
	j.Status = status
	j.CompletedAt = &now
	j.CurrentTask = ""
	j.Error = errMsg
}

func (q *Queue) onStage(id, stage string) {
	pct := 0
	switch stage {
	case intel.StageClassify:
		pct = pctClassify
	case intel.StageHarvest:
		pct = pctHarvestStart
	case intel.StageNormalize:
		pct = pctHarvestEnd
	case intel.StageAggregate:
		pct = pctAggregate
	case intel.StageStore:
		pct = pctStore
	}
	q.update(id, pct, stage, nil)
}

func (q *Queue) onHarvest(id string, done, total, collected int) {
	pct := pctHarvestStart
	if total > 0 {
		pct += (pctHarvestEnd - pctHarvestStart) * done / total
	}
	q.update(id, pct, "harvesting competitor ads", func(j *Job) {
		j.Collected.KeywordsSearched = done
		j.Collected.AdsFound = collected
	})
}

// update applies a progress checkpoint. Progress only ever moves forward,
// and terminal jobs are never touched.
func (q *Queue) update(id string, pct int, task string, extra func(*Job)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok || j.Status.Terminal() {
		return
	}
	if pct > j.Progress {
		j.Progress = pct
	}
	j.CurrentTask = task
	if extra != nil {
		extra(j)
	}
}
