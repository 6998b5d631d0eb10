// Package dispatchctl implements the commands of the dispatchctl tool, which queries a running
// dispatch master.
package dispatchctl

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"google.golang.org/grpc"

	"github.com/G-Research/dispatch/internal/common/dispatcherrors"
	grpccommon "github.com/G-Research/dispatch/internal/common/grpc"
	"github.com/G-Research/dispatch/pkg/dispatchapi"
)

// App is the dispatchctl application. Commands write to Out.
type App struct {
	Params *Params
	Out    io.Writer
}

// Params are set from the command line and config file before a command runs.
type Params struct {
	MasterUrl string
	Timeout   time.Duration
	// WithClient runs action against the master. Tests replace it with a fake.
	WithClient func(ctx context.Context, action func(dispatchapi.SchedulerClient) error) error
}

// New instantiates an App with default parameters, writing to stdout.
func New() *App {
	return &App{
		Params: &Params{},
		Out:    os.Stdout,
	}
}

// Connect returns a WithClient implementation dialling the master at url. Reads are retried
// on transient failures, since every dispatchctl call is idempotent.
func Connect(url string, timeout time.Duration) func(context.Context, func(dispatchapi.SchedulerClient) error) error {
	return func(ctx context.Context, action func(dispatchapi.SchedulerClient) error) error {
		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		conn, err := grpccommon.Dial(dialCtx, url, true, grpccommon.RetryInterceptor(3, 200*time.Millisecond))
		if err != nil {
			return errors.WithStack(&dispatcherrors.ErrCannotResolveMaster{Url: url, Cause: err})
		}
		defer func(conn *grpc.ClientConn) { _ = conn.Close() }(conn)
		return action(dispatchapi.NewSchedulerClient(conn))
	}
}

func (a *App) withClient(action func(ctx context.Context, client dispatchapi.SchedulerClient) error) error {
	ctx := context.Background()
	if a.Params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Params.Timeout)
		defer cancel()
	}
	return a.Params.WithClient(ctx, func(client dispatchapi.SchedulerClient) error {
		return action(ctx, client)
	})
}

// Workers prints one "queue id host" row per registered worker, ordered by host and then id.
func (a *App) Workers() error {
	return a.withClient(func(ctx context.Context, client dispatchapi.SchedulerClient) error {
		status, err := client.GetStatus(ctx, &dispatchapi.Empty{})
		if err != nil {
			return errors.WithMessage(err, "[dispatchctl.Workers] error getting master status")
		}
		workers := append([]*dispatchapi.WorkerInfo(nil), status.Workers...)
		slices.SortFunc(workers, func(x, y *dispatchapi.WorkerInfo) bool {
			if x.Host != y.Host {
				return x.Host < y.Host
			}
			return x.WorkerId < y.WorkerId
		})
		fmt.Fprintln(a.Out, "queue id host")
		for _, w := range workers {
			fmt.Fprintf(a.Out, "%s %d %s\n", status.Queue, w.WorkerId, displayHost(w.Host))
		}
		return nil
	})
}

// Status prints a summary of the queue's progress.
func (a *App) Status() error {
	return a.withClient(func(ctx context.Context, client dispatchapi.SchedulerClient) error {
		status, err := client.GetStatus(ctx, &dispatchapi.Empty{})
		if err != nil {
			return errors.WithMessage(err, "[dispatchctl.Status] error getting master status")
		}
		w := tabwriter.NewWriter(a.Out, 1, 1, 1, ' ', 0)
		fmt.Fprintf(w, "Queue:\t%s\n", status.Queue)
		fmt.Fprintf(w, "Instance:\t%s\n", status.InstanceId)
		fmt.Fprintf(w, "Jobs:\t%d\n", status.Total)
		fmt.Fprintf(w, "Remaining:\t%d\n", status.Remaining)
		fmt.Fprintf(w, "Assigned:\t%d\n", status.Assigned)
		fmt.Fprintf(w, "Complete:\t%.1f%%\n", 100*status.Completion)
		fmt.Fprintf(w, "Workers:\t%d\n", len(status.Workers))
		return w.Flush()
	})
}

// Remaining prints the number of jobs not yet done.
func (a *App) Remaining() error {
	return a.withClient(func(ctx context.Context, client dispatchapi.SchedulerClient) error {
		resp, err := client.RemainingCount(ctx, &dispatchapi.Empty{})
		if err != nil {
			return errors.WithMessage(err, "[dispatchctl.Remaining] error getting remaining count")
		}
		fmt.Fprintln(a.Out, resp.Remaining)
		return nil
	})
}

func displayHost(host string) string {
	if host == "" {
		return "-"
	}
	return host
}
