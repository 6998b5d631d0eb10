package worker

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strconv"
	"text/template"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

// Iterator is the part of WorkIterator the runner drives.
type Iterator interface {
	Next(ctx context.Context) (int64, bool, error)
	Finish(ctx context.Context) error
	Abandon()
	WorkerId() int64
}

// CommandData is available to the command templates as {{.JobId}}, {{.WorkerId}} and {{.Queue}}.
type CommandData struct {
	JobId    int64
	WorkerId int64
	Queue    string
}

// Runner executes one external command per job.
type Runner struct {
	queue         string
	command       []*template.Template
	stopOnFailure bool
	finishTimeout time.Duration
	stdout        io.Writer
	stderr        io.Writer
	jobs          *prometheus.CounterVec
	log           *log.Entry
}

func NewRunner(queue string, command []string, stopOnFailure bool, finishTimeout time.Duration, registerer prometheus.Registerer) (*Runner, error) {
	if len(command) == 0 {
		return nil, errors.New("no command to run for each job")
	}
	templates := make([]*template.Template, len(command))
	for i, arg := range command {
		t, err := template.New("arg" + strconv.Itoa(i)).Option("missingkey=error").Parse(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid command argument %q", arg)
		}
		templates[i] = t
	}
	return &Runner{
		queue:         queue,
		command:       templates,
		stopOnFailure: stopOnFailure,
		finishTimeout: finishTimeout,
		stdout:        os.Stdout,
		stderr:        os.Stderr,
		jobs: promauto.With(registerer).NewCounterVec(prometheus.CounterOpts{
			Name:        "dispatch_worker_jobs_total",
			Help:        "Number of jobs run by this worker, by outcome",
			ConstLabels: prometheus.Labels{"queue": queue},
		}, []string{"outcome"}),
		log: log.WithField("queue", queue),
	}, nil
}

// Run executes jobs until the master has none left, ctx is cancelled or, with stopOnFailure set, a
// command fails. The job held on exit is reported done unless its command failed or was interrupted.
func (r *Runner) Run(ctx context.Context, it Iterator) (err error) {
	defer func() {
		finishCtx, cancel := context.WithTimeout(context.Background(), r.finishTimeout)
		defer cancel()
		if finishErr := it.Finish(finishCtx); finishErr != nil {
			r.log.WithError(finishErr).Error("Could not report the last job")
			if err == nil {
				err = finishErr
			}
		}
	}()

	for {
		jobId, ok, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		logger := r.log.WithField("jobId", jobId)
		logger.Info("Starting job")
		start := time.Now()
		if err := r.runJob(ctx, CommandData{JobId: jobId, WorkerId: it.WorkerId(), Queue: r.queue}); err != nil {
			if ctx.Err() != nil {
				it.Abandon()
				r.jobs.WithLabelValues("interrupted").Inc()
				return ctx.Err()
			}
			r.jobs.WithLabelValues("failed").Inc()
			logger.WithError(err).Error("Job failed")
			if r.stopOnFailure {
				it.Abandon()
				return errors.WithMessagef(err, "job %d failed", jobId)
			}
			continue
		}
		r.jobs.WithLabelValues("succeeded").Inc()
		logger.Infof("Job finished in %s", time.Since(start).Round(time.Millisecond))
	}
}

func (r *Runner) runJob(ctx context.Context, data CommandData) error {
	args := make([]string, len(r.command))
	for i, t := range r.command {
		var buf bytes.Buffer
		if err := t.Execute(&buf, data); err != nil {
			return errors.WithStack(err)
		}
		args[i] = buf.String()
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Env = append(os.Environ(),
		"DISPATCH_JOB_ID="+strconv.FormatInt(data.JobId, 10),
		"DISPATCH_WORKER_ID="+strconv.FormatInt(data.WorkerId, 10),
		"DISPATCH_QUEUE="+data.Queue,
	)
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	return errors.WithStack(cmd.Run())
}
