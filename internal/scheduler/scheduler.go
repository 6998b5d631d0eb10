package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/dispatch/internal/common/dispatcherrors"
	"github.com/G-Research/dispatch/internal/journal"
	"github.com/G-Research/dispatch/pkg/dispatchapi"
)

// Scheduler hands out the jobs of one queue to registered workers, one job per worker at a time.
// Every assignment and completion is journalled, and flushed, before the call returns.
type Scheduler struct {
	queue string
	log   *log.Entry
	// Assignments are logged separately so they can be silenced on busy queues.
	assignmentLog *log.Entry

	// mu guards jobs, remaining, journal and stopped. cond is signalled whenever a job may have become
	// free, remaining reached zero, a worker was evicted or the scheduler stopped.
	mu        sync.Mutex
	cond      *sync.Cond
	jobs      *JobTable
	journal   journal.Writer
	remaining int64
	stopped   bool

	// Mirror of remaining for lock free reads.
	remainingSnapshot int64
	lastWorkerId      int64
	workers           *workerRegistry
}

func NewScheduler(queue string, ids []int64, writer journal.Writer, quietAssignments bool) (*Scheduler, error) {
	if writer == nil {
		return nil, errors.WithStack(&dispatcherrors.ErrInvalidArgument{
			Name:    "writer",
			Value:   writer,
			Message: "a journal writer is required",
		})
	}
	jobs, err := NewJobTable(ids)
	if err != nil {
		return nil, err
	}
	logger := log.WithField("queue", queue)
	s := &Scheduler{
		queue:             queue,
		log:               logger,
		assignmentLog:     assignmentLogger(queue, quietAssignments),
		jobs:              jobs,
		journal:           writer,
		remaining:         int64(jobs.Len()),
		remainingSnapshot: int64(jobs.Len()),
		workers:           newWorkerRegistry(),
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// assignmentLogger logs per-assignment lines. When quiet they are dropped, while the hooks and any
// stricter level of the standard logger still apply.
func assignmentLogger(queue string, quiet bool) *log.Entry {
	if !quiet {
		return log.WithField("queue", queue)
	}
	std := log.StandardLogger()
	quietLogger := log.New()
	quietLogger.SetOutput(std.Out)
	quietLogger.SetFormatter(std.Formatter)
	hooks := make(log.LevelHooks, len(std.Hooks))
	for level, levelHooks := range std.Hooks {
		hooks[level] = append([]log.Hook(nil), levelHooks...)
	}
	quietLogger.ReplaceHooks(hooks)
	level := log.WarnLevel
	if std.GetLevel() < level {
		level = std.GetLevel()
	}
	quietLogger.SetLevel(level)
	return quietLogger.WithField("queue", queue)
}

func (s *Scheduler) Queue() string {
	return s.queue
}

// RegisterWorker records a new worker and returns its id. Ids start at 1 and are never reused.
func (s *Scheduler) RegisterWorker(endpoint WorkerEndpoint, host string) int64 {
	worker := &WorkerRef{
		Id:           atomic.AddInt64(&s.lastWorkerId, 1),
		Endpoint:     endpoint,
		Host:         host,
		RegisteredAt: time.Now(),
	}
	s.workers.add(worker)
	s.log.Infof("Registered worker %d from %s", worker.Id, displayHost(host))
	return worker.Id
}

// AcquireJob assigns the lowest free job to the worker and returns its id together with the
// number of jobs not yet done. While every remaining job is held by some worker the call blocks.
// Once all jobs are done it returns dispatchapi.NoMoreJobs and zero.
//
// The wait ends early with an error if ctx is cancelled, the worker is evicted or the
// scheduler is stopped.
func (s *Scheduler) AcquireJob(ctx context.Context, workerId int64) (int64, int64, error) {
	stopWatching := s.broadcastOnDone(ctx)
	defer stopWatching()

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.stopped {
			return 0, 0, errors.WithStack(&dispatcherrors.ErrSchedulerStopped{})
		}
		// A caller that has gone away must not be handed a job it will never hear about.
		if err := ctx.Err(); err != nil {
			return 0, 0, errors.WithStack(err)
		}
		worker, ok := s.workers.get(workerId)
		if !ok {
			return 0, 0, errors.WithStack(&dispatcherrors.ErrUnknownWorker{WorkerId: workerId})
		}
		if s.remaining == 0 {
			return dispatchapi.NoMoreJobs, 0, nil
		}
		if job := s.jobs.FindFree(); job != nil {
			if err := journal.Append(s.journal, job.Id, journal.StatusAssigned); err != nil {
				return 0, 0, errors.WithMessagef(err, "journalling assignment of job %d", job.Id)
			}
			s.jobs.Assign(job, worker)
			s.assignmentLog.Infof("Worker %d assigned to job %d.", worker.Id, job.Id)
			return job.Id, s.remaining, nil
		}
		s.cond.Wait()
	}
}

// broadcastOnDone wakes the waiters when ctx is done, so a cancelled caller can leave AcquireJob.
func (s *Scheduler) broadcastOnDone(ctx context.Context) (stop func()) {
	if ctx.Done() == nil {
		return func() {}
	}
	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-finished:
		}
	}()
	return func() { close(finished) }
}

// JobDone marks a job as completed. Reports for a job that is already done are accepted and ignored,
// so a worker that was evicted while finishing its job can still report it.
func (s *Scheduler) JobDone(jobId int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.WithStack(&dispatcherrors.ErrSchedulerStopped{})
	}
	job, err := s.jobs.LookupById(jobId)
	if err != nil {
		return err
	}
	if job.Done {
		s.log.Warnf("Job %d was reported done more than once", jobId)
		return nil
	}
	if err := journal.Append(s.journal, jobId, journal.StatusDone); err != nil {
		return errors.WithMessagef(err, "journalling completion of job %d", jobId)
	}
	holder := job.Worker
	s.jobs.MarkDone(job)
	s.setRemaining(s.remaining - 1)
	if holder != nil {
		s.log.Infof("Worker %d finished job %d, %d jobs remaining", holder.Id, jobId, s.remaining)
	} else {
		s.log.Infof("Job %d finished by an evicted worker, %d jobs remaining", jobId, s.remaining)
	}
	s.cond.Broadcast()
	return nil
}

// RemainingCount returns the number of jobs not yet done without taking the scheduler lock.
func (s *Scheduler) RemainingCount() int64 {
	return atomic.LoadInt64(&s.remainingSnapshot)
}

func (s *Scheduler) setRemaining(remaining int64) {
	s.remaining = remaining
	atomic.StoreInt64(&s.remainingSnapshot, remaining)
}

// Replay restores completion state from a journal before any worker registers. Only done rows
// count: a job that was assigned but never reported done is handed out again. Rows that cannot
// be used are logged and skipped.
func (s *Scheduler) Replay(reader journal.Reader) error {
	if n := s.workers.len(); n > 0 {
		return errors.Errorf("cannot replay a journal after %d workers have registered", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, completed := 0, 0
	for reader.HasNext() {
		rows++
		if err := reader.Next(); err != nil {
			var malformed *journal.ErrMalformedRow
			if errors.As(err, &malformed) {
				s.log.Warnf("Skipping journal row: %v", err)
				continue
			}
			return errors.WithMessagef(err, "replaying journal row %d", rows)
		}
		entry, err := journal.ReadEntry(reader, rows)
		if err != nil {
			s.log.Warnf("Skipping journal row: %v", err)
			continue
		}
		switch entry.Status {
		case journal.StatusAssigned:
		case journal.StatusDone:
			job, err := s.jobs.LookupById(entry.JobId)
			if err != nil {
				s.log.Warnf("Skipping journal row %d: unknown job %d", rows, entry.JobId)
				continue
			}
			if job.Done {
				continue
			}
			s.jobs.MarkDone(job)
			s.setRemaining(s.remaining - 1)
			completed++
		default:
			s.log.Warnf("Skipping journal row %d: unknown status %q", rows, entry.Status)
		}
	}
	s.log.Infof("Replayed %d journal rows: %d jobs already done, %d of %d remaining", rows, completed, s.remaining, s.jobs.Len())
	s.cond.Broadcast()
	return nil
}

// EvictWorker unregisters a worker and returns its jobs to the pool. The ids of released jobs are returned.
func (s *Scheduler) EvictWorker(workerId int64, cause error) []int64 {
	worker, ok := s.workers.remove(workerId)
	if !ok {
		return nil
	}

	s.mu.Lock()
	released := s.jobs.ReleaseFromWorker(worker)
	s.cond.Broadcast()
	s.mu.Unlock()

	s.log.WithError(cause).Warnf("Evicted worker %d from %s, released jobs %v", workerId, displayHost(worker.Host), released)
	if worker.Endpoint != nil {
		if err := worker.Endpoint.Close(); err != nil {
			s.log.WithError(err).Debugf("Error closing connection to worker %d", workerId)
		}
	}
	return released
}

// Workers returns the registered workers ordered by id.
func (s *Scheduler) Workers() []*WorkerRef {
	return s.workers.snapshot()
}

// ListWorkers is a loose snapshot: it may miss workers registering or being evicted concurrently.
func (s *Scheduler) ListWorkers() []WorkerInfo {
	workers := s.workers.snapshot()
	infos := make([]WorkerInfo, len(workers))
	for i, w := range workers {
		infos[i] = WorkerInfo{Id: w.Id, Host: w.Host}
	}
	return infos
}

func (s *Scheduler) TotalJobs() int {
	return s.jobs.Len()
}

func (s *Scheduler) AssignedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs.AssignedCount()
}

// CompletionFraction is the share of jobs done, between 0 and 1.
func (s *Scheduler) CompletionFraction() float64 {
	total := s.TotalJobs()
	return float64(int64(total)-s.RemainingCount()) / float64(total)
}

// Stop fails every blocked and future AcquireJob and JobDone call. The journal is left to its owner to close.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.cond.Broadcast()
	s.log.Info("Scheduler stopped")
}

func displayHost(host string) string {
	if host == "" {
		return "unknown host"
	}
	return host
}
