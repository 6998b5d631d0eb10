package scheduler

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/G-Research/dispatch/internal/scheduler/configuration"
)

// LivenessMonitor pings every registered worker and evicts those that do not answer.
// A worker that fails every attempt is treated as dead; slow and dead are not told apart.
type LivenessMonitor struct {
	scheduler *Scheduler
	config    configuration.LivenessConfig
	evictions prometheus.Counter
	log       *log.Entry
}

func NewLivenessMonitor(scheduler *Scheduler, config configuration.LivenessConfig, registerer prometheus.Registerer) *LivenessMonitor {
	if config.PingAttempts == 0 {
		config.PingAttempts = 1
	}
	if config.MaxConcurrentPings <= 0 {
		config.MaxConcurrentPings = 1
	}
	return &LivenessMonitor{
		scheduler: scheduler,
		config:    config,
		evictions: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name:        "dispatch_evicted_workers_total",
			Help:        "Number of workers evicted after failing liveness pings",
			ConstLabels: prometheus.Labels{"queue": scheduler.Queue()},
		}),
		log: log.WithField("queue", scheduler.Queue()).WithField("component", "liveness"),
	}
}

// CheckWorkers runs one round of pings. Workers are evicted as soon as their own pings fail.
// Nothing is evicted once ctx is done, since failures are then caused by the shutdown.
func (m *LivenessMonitor) CheckWorkers(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(m.config.MaxConcurrentPings)
	for _, worker := range m.scheduler.Workers() {
		worker := worker
		g.Go(func() error {
			err := m.ping(ctx, worker)
			if err == nil || ctx.Err() != nil {
				return nil
			}
			m.scheduler.EvictWorker(worker.Id, err)
			m.evictions.Inc()
			return nil
		})
	}
	_ = g.Wait()
}

func (m *LivenessMonitor) ping(ctx context.Context, worker *WorkerRef) error {
	return retry.Do(
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, m.config.PingTimeout)
			defer cancel()
			return worker.Endpoint.Ping(pingCtx)
		},
		retry.Context(ctx),
		retry.Attempts(m.config.PingAttempts),
		retry.Delay(m.config.PingRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			m.log.WithError(err).Debugf("Ping %d of worker %d failed", n+1, worker.Id)
		}),
	)
}

// Interval is the pause between two rounds of pings.
func (m *LivenessMonitor) Interval() time.Duration {
	return m.config.Interval
}
