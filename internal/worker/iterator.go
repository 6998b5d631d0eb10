package worker

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/dispatch/pkg/dispatchapi"
)

// WorkIterator pulls jobs from the master one at a time. The job returned by Next is reported done
// by the following call to Next or by Finish, so a worker holds at most one job.
//
// A WorkIterator is not safe for concurrent use.
type WorkIterator struct {
	scheduler dispatchapi.SchedulerClient
	workerId  int64
	remaining int64
	log       *log.Entry

	current int64
	holding bool
	done    bool
}

func newWorkIterator(scheduler dispatchapi.SchedulerClient, workerId int64, remaining int64, logger *log.Entry) *WorkIterator {
	return &WorkIterator{
		scheduler: scheduler,
		workerId:  workerId,
		remaining: remaining,
		log:       logger,
	}
}

// Next reports the held job done and acquires the next one, blocking while every remaining job
// is held by other workers. ok is false once the master has no more jobs; further calls then
// return straight away without contacting the master.
//
// Errors from the master are returned as is. A job that could not be reported is still held and
// is reported again by the next call.
func (it *WorkIterator) Next(ctx context.Context) (jobId int64, ok bool, err error) {
	if it.done {
		return 0, false, nil
	}
	if err := it.Finish(ctx); err != nil {
		return 0, false, err
	}
	resp, err := it.scheduler.AcquireJob(ctx, &dispatchapi.AcquireJobRequest{WorkerId: it.workerId})
	if err != nil {
		return 0, false, errors.WithMessage(err, "acquiring job")
	}
	it.remaining = resp.Remaining
	if resp.Done() {
		it.done = true
		it.log.Info("Master has no more jobs")
		return 0, false, nil
	}
	it.current = resp.JobId
	it.holding = true
	return resp.JobId, true, nil
}

// Finish reports the held job done, if there is one.
func (it *WorkIterator) Finish(ctx context.Context) error {
	if !it.holding {
		return nil
	}
	if _, err := it.scheduler.JobDone(ctx, &dispatchapi.JobDoneRequest{JobId: it.current}); err != nil {
		return errors.WithMessagef(err, "reporting job %d done", it.current)
	}
	it.holding = false
	return nil
}

// Abandon drops the held job without reporting it. The master hands it out again once this
// worker is evicted.
func (it *WorkIterator) Abandon() {
	if it.holding {
		it.log.Warnf("Abandoning job %d", it.current)
	}
	it.holding = false
}

// Remaining is the number of jobs not yet done, as last reported by the master.
func (it *WorkIterator) Remaining() int64 {
	return it.remaining
}

func (it *WorkIterator) WorkerId() int64 {
	return it.workerId
}
