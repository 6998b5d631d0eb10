package scheduler

import (
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/G-Research/dispatch/internal/common/dispatcherrors"
)

// JobRecord is the dispatch state of a single job. A done job is never assigned.
type JobRecord struct {
	Id     int64
	Worker *WorkerRef
	Done   bool
}

// Free reports whether the job can be handed out.
func (r *JobRecord) Free() bool {
	return r.Worker == nil && !r.Done
}

// JobTable holds the fixed set of jobs of a queue, sorted by id.
// It is not safe for concurrent use; the Scheduler guards it with its own lock.
type JobTable struct {
	records []*JobRecord
}

func NewJobTable(ids []int64) (*JobTable, error) {
	if len(ids) == 0 {
		return nil, errors.WithStack(&dispatcherrors.ErrInvalidArgument{
			Name:    "ids",
			Value:   ids,
			Message: "a queue needs at least one job",
		})
	}
	sorted := append([]int64(nil), ids...)
	slices.Sort(sorted)
	records := make([]*JobRecord, len(sorted))
	for i, id := range sorted {
		if i > 0 && sorted[i-1] == id {
			return nil, errors.WithStack(&dispatcherrors.ErrInvalidArgument{
				Name:    "ids",
				Value:   id,
				Message: "job ids must be unique",
			})
		}
		records[i] = &JobRecord{Id: id}
	}
	return &JobTable{records: records}, nil
}

// FindFree returns the free job with the lowest id, or nil if every job is assigned or done.
func (t *JobTable) FindFree() *JobRecord {
	for _, r := range t.records {
		if r.Free() {
			return r
		}
	}
	return nil
}

func (t *JobTable) LookupById(id int64) (*JobRecord, error) {
	i := sort.Search(len(t.records), func(i int) bool { return t.records[i].Id >= id })
	if i == len(t.records) || t.records[i].Id != id {
		return nil, errors.WithStack(&dispatcherrors.ErrUnknownJob{JobId: id})
	}
	return t.records[i], nil
}

func (t *JobTable) Assign(r *JobRecord, worker *WorkerRef) {
	r.Worker = worker
}

// MarkDone completes a job. Whether it was already done is for the caller to check.
func (t *JobTable) MarkDone(r *JobRecord) {
	r.Worker = nil
	r.Done = true
}

// ReleaseFromWorker returns every job held by worker to the free pool and reports their ids.
func (t *JobTable) ReleaseFromWorker(worker *WorkerRef) []int64 {
	var released []int64
	for _, r := range t.records {
		if r.Worker == worker {
			r.Worker = nil
			released = append(released, r.Id)
		}
	}
	return released
}

func (t *JobTable) Len() int {
	return len(t.records)
}

func (t *JobTable) AssignedCount() int {
	n := 0
	for _, r := range t.records {
		if r.Worker != nil {
			n++
		}
	}
	return n
}

func (t *JobTable) DoneCount() int {
	n := 0
	for _, r := range t.records {
		if r.Done {
			n++
		}
	}
	return n
}
