package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exposes the progress of a queue as gauges, read at scrape time.
type MetricsCollector struct {
	scheduler *Scheduler

	totalDesc     *prometheus.Desc
	remainingDesc *prometheus.Desc
	assignedDesc  *prometheus.Desc
	workersDesc   *prometheus.Desc
}

func NewMetricsCollector(scheduler *Scheduler) *MetricsCollector {
	labels := prometheus.Labels{"queue": scheduler.Queue()}
	return &MetricsCollector{
		scheduler:     scheduler,
		totalDesc:     prometheus.NewDesc("dispatch_jobs_total", "Number of jobs in the queue", nil, labels),
		remainingDesc: prometheus.NewDesc("dispatch_jobs_remaining", "Number of jobs not yet done", nil, labels),
		assignedDesc:  prometheus.NewDesc("dispatch_jobs_assigned", "Number of jobs currently held by a worker", nil, labels),
		workersDesc:   prometheus.NewDesc("dispatch_workers_registered", "Number of registered workers", nil, labels),
	}
}

func (c *MetricsCollector) Describe(desc chan<- *prometheus.Desc) {
	desc <- c.totalDesc
	desc <- c.remainingDesc
	desc <- c.assignedDesc
	desc <- c.workersDesc
}

func (c *MetricsCollector) Collect(metrics chan<- prometheus.Metric) {
	metrics <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.GaugeValue, float64(c.scheduler.TotalJobs()))
	metrics <- prometheus.MustNewConstMetric(c.remainingDesc, prometheus.GaugeValue, float64(c.scheduler.RemainingCount()))
	metrics <- prometheus.MustNewConstMetric(c.assignedDesc, prometheus.GaugeValue, float64(c.scheduler.AssignedCount()))
	metrics <- prometheus.MustNewConstMetric(c.workersDesc, prometheus.GaugeValue, float64(len(c.scheduler.Workers())))
}
