package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/G-Research/dispatch/internal/common"
	"github.com/G-Research/dispatch/internal/common/app"
	grpccommon "github.com/G-Research/dispatch/internal/common/grpc"
	"github.com/G-Research/dispatch/internal/common/health"
	"github.com/G-Research/dispatch/internal/common/task"
	"github.com/G-Research/dispatch/internal/common/util"
	"github.com/G-Research/dispatch/internal/jobsource"
	"github.com/G-Research/dispatch/internal/journal"
	"github.com/G-Research/dispatch/internal/scheduler/configuration"
	"github.com/G-Research/dispatch/pkg/dispatchapi"
)

// Run sets up a dispatch master for one queue and runs it until a SIGINT or SIGTERM is received
func Run(config configuration.Configuration) error {
	g, ctx := errgroup.WithContext(app.CreateContextWithShutdown())
	logger := log.WithField("queue", config.Queue)

	//////////////////////////////////////////////////////////////////////////
	// Health checks and metrics
	//////////////////////////////////////////////////////////////////////////
	startupCompleteCheck := health.NewStartupCompleteChecker()
	healthChecks := health.NewMultiChecker(startupCompleteCheck)
	shutdownMetricServer := common.ServeMetrics(config.MetricsPort, healthChecks)
	defer shutdownMetricServer()

	// List of services to run concurrently.
	// Services are only started once everything has been set up and the journal replayed.
	var services []func() error

	//////////////////////////////////////////////////////////////////////////
	// Jobs and journal
	//////////////////////////////////////////////////////////////////////////
	sequence, err := jobsource.New(config.Jobs)
	if err != nil {
		return err
	}
	ids, err := sequence.Ids()
	if err != nil {
		return errors.WithMessage(err, "error reading job ids")
	}

	logger.Infof("Opening %s journal", config.Journal.Backend)
	opened, err := journal.Open(ctx, config.Journal, config.Queue)
	if err != nil {
		return errors.WithMessage(err, "error opening journal")
	}
	defer func() {
		if err := opened.Close(); err != nil {
			logger.WithError(err).Error("Journal didn't close cleanly")
		}
	}()

	scheduler, err := NewScheduler(config.Queue, ids, opened.Writer, config.QuietAssignments)
	if err != nil {
		return errors.WithMessage(err, "error creating scheduler")
	}
	if opened.Reader != nil {
		if err := scheduler.Replay(opened.Reader); err != nil {
			return errors.WithMessage(err, "error replaying journal")
		}
	}
	prometheus.MustRegister(NewMetricsCollector(scheduler))

	//////////////////////////////////////////////////////////////////////////
	// gRPC
	//////////////////////////////////////////////////////////////////////////
	instanceId := util.NewULID()
	grpcServer := grpccommon.CreateGrpcServer(config.Grpc.KeepaliveParams, config.Grpc.KeepaliveEnforcementPolicy, logger)
	dispatchapi.RegisterSchedulerServer(grpcServer, NewSchedulerServer(scheduler, instanceId, nil))
	lis, err := grpccommon.Listen(config.Grpc.Port)
	if err != nil {
		return errors.WithMessage(err, "error setting up gRPC server")
	}
	services = append(services, func() error {
		logger.Infof("Scheduler api listening on %s", lis.Addr())
		return grpcServer.Serve(lis)
	})
	services = append(services, func() error {
		<-ctx.Done()
		scheduler.Stop()
		return nil
	})
	gracePeriod := config.ShutdownGracePeriod
	if gracePeriod <= 0 {
		gracePeriod = 5 * time.Second
	}
	services = append(services, grpccommon.CreateShutdownHandler(ctx, gracePeriod, grpcServer))

	//////////////////////////////////////////////////////////////////////////
	// Background tasks
	//////////////////////////////////////////////////////////////////////////
	taskManager := task.NewBackgroundTaskManager("dispatch_", prometheus.DefaultRegisterer)
	liveness := NewLivenessMonitor(scheduler, config.Liveness, prometheus.DefaultRegisterer)
	taskManager.Register(liveness.CheckWorkers, liveness.Interval(), "liveness_check")
	if config.ProgressReportInterval > 0 {
		taskManager.Register(func(context.Context) { reportProgress(logger, scheduler) }, config.ProgressReportInterval, "progress_report")
	}
	defer func() {
		if timedOut := taskManager.StopAll(gracePeriod); timedOut {
			logger.Warn("Background tasks did not stop in time")
		}
	}()

	for _, service := range services {
		g.Go(service)
	}

	// Mark startup as complete, will allow the health check to return healthy
	startupCompleteCheck.MarkComplete()
	logger.Infof("Master %s started with %d jobs, %d remaining", instanceId, scheduler.TotalJobs(), scheduler.RemainingCount())

	return g.Wait()
}

func reportProgress(logger *log.Entry, scheduler *Scheduler) {
	logger.Infof(
		"%d of %d jobs remaining (%.1f%% complete), %d assigned, %d workers registered",
		scheduler.RemainingCount(),
		scheduler.TotalJobs(),
		100*scheduler.CompletionFraction(),
		scheduler.AssignedCount(),
		len(scheduler.Workers()),
	)
}
