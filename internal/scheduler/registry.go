package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// WorkerEndpoint is the master's handle on a registered worker.
type WorkerEndpoint interface {
	Ping(ctx context.Context) error
	Close() error
}

// WorkerRef identifies a registered worker. Host is empty when it could not be determined.
type WorkerRef struct {
	Id           int64
	Endpoint     WorkerEndpoint
	Host         string
	RegisteredAt time.Time
}

// WorkerInfo is the externally visible description of a worker.
type WorkerInfo struct {
	Id   int64
	Host string
}

type workerRegistry struct {
	mu      sync.RWMutex
	workers map[int64]*WorkerRef
}

func newWorkerRegistry() *workerRegistry {
	return &workerRegistry{workers: map[int64]*WorkerRef{}}
}

func (r *workerRegistry) add(worker *WorkerRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[worker.Id] = worker
}

func (r *workerRegistry) get(id int64) (*WorkerRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	worker, ok := r.workers[id]
	return worker, ok
}

func (r *workerRegistry) remove(id int64) (*WorkerRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	worker, ok := r.workers[id]
	if ok {
		delete(r.workers, id)
	}
	return worker, ok
}

// snapshot returns the registered workers ordered by id.
func (r *workerRegistry) snapshot() []*WorkerRef {
	r.mu.RLock()
	workers := maps.Values(r.workers)
	r.mu.RUnlock()
	slices.SortFunc(workers, func(a, b *WorkerRef) bool { return a.Id < b.Id })
	return workers
}

func (r *workerRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}
