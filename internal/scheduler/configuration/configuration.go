package configuration

import (
	"time"

	"google.golang.org/grpc/keepalive"

	"github.com/G-Research/dispatch/internal/jobsource"
	"github.com/G-Research/dispatch/internal/journal"
)

type Configuration struct {
	// Name of the queue served by this master. Workers address the master by it.
	Queue string `validate:"required"`
	Grpc  GrpcConfig
	// Port serving /metrics and /health.
	MetricsPort uint16 `validate:"required"`
	Liveness    LivenessConfig
	// How often queue progress is logged. Zero disables the report.
	ProgressReportInterval time.Duration
	// Silence the per assignment log lines.
	QuietAssignments bool
	// Grace period for in flight calls on shutdown.
	ShutdownGracePeriod time.Duration
	Jobs                jobsource.Config
	Journal             journal.Config
}

type GrpcConfig struct {
	Port                       uint16 `validate:"required"`
	KeepaliveParams            keepalive.ServerParameters
	KeepaliveEnforcementPolicy keepalive.EnforcementPolicy
}

type LivenessConfig struct {
	// Time between two rounds of pings.
	Interval time.Duration `validate:"required"`
	// Deadline of a single ping.
	PingTimeout time.Duration `validate:"required"`
	// Pings tried before a worker is declared dead. One evicts on the first failure.
	PingAttempts uint `validate:"gte=1"`
	// Pause between two attempts.
	PingRetryDelay time.Duration
	// Upper bound on pings in flight at once.
	MaxConcurrentPings int `validate:"gte=1"`
}
