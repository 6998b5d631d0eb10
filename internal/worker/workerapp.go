package worker

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/dispatch/internal/common"
	"github.com/G-Research/dispatch/internal/common/app"
	"github.com/G-Research/dispatch/internal/common/health"
	"github.com/G-Research/dispatch/internal/worker/configuration"
)

// Run registers with the master and runs the configured command for each job it hands out,
// until no jobs are left or a SIGINT or SIGTERM is received.
func Run(config configuration.Configuration) error {
	ctx := app.CreateContextWithShutdown()

	startupCompleteCheck := health.NewStartupCompleteChecker()
	if config.MetricsPort > 0 {
		shutdownMetricServer := common.ServeMetrics(config.MetricsPort, health.NewMultiChecker(startupCompleteCheck))
		defer shutdownMetricServer()
	}

	runner, err := newRunner(config, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	client := NewClient(config.ConnectTimeout, config.AdvertiseHost)
	defer func() {
		if err := client.Close(); err != nil {
			log.WithError(err).Warn("Worker didn't shut down cleanly")
		}
	}()
	if _, err := client.Publish(config.ListenAddress); err != nil {
		return errors.WithMessage(err, "error publishing ping service")
	}
	if err := client.Register(ctx, config.MasterUrl); err != nil {
		return err
	}
	it, err := client.Iterator()
	if err != nil {
		return err
	}

	startupCompleteCheck.MarkComplete()
	return runner.Run(ctx, it)
}

func newRunner(config configuration.Configuration, registerer prometheus.Registerer) (*Runner, error) {
	return NewRunner(config.Queue, config.Command, config.StopOnFailure, config.FinishTimeout, registerer)
}
