package worker

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_RunsCommandForEveryJob(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	runner := newTestRunner(t, []string{"/bin/sh", "-c", "echo {{.JobId}} {{.WorkerId}} {{.Queue}} $DISPATCH_JOB_ID >> " + out}, false)
	it := &fakeIterator{jobs: []int64{1, 2}}

	require.NoError(t, runner.Run(context.Background(), it))

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "1 5 test 1\n2 5 test 2\n", string(content))
	assert.Equal(t, []int64{1, 2}, it.finished)
	assert.Equal(t, 2.0, testutil.ToFloat64(runner.jobs.WithLabelValues("succeeded")))
}

func TestRunner_FailedJobsAreReportedAndSkipped(t *testing.T) {
	runner := newTestRunner(t, []string{"/bin/sh", "-c", "test {{.JobId}} -ne 2"}, false)
	it := &fakeIterator{jobs: []int64{1, 2, 3}}

	require.NoError(t, runner.Run(context.Background(), it))

	assert.Equal(t, []int64{1, 2, 3}, it.finished)
	assert.Equal(t, 1.0, testutil.ToFloat64(runner.jobs.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(runner.jobs.WithLabelValues("succeeded")))
}

func TestRunner_StopOnFailureAbandonsJob(t *testing.T) {
	runner := newTestRunner(t, []string{"/bin/sh", "-c", "test {{.JobId}} -ne 2"}, true)
	it := &fakeIterator{jobs: []int64{1, 2, 3}}

	assert.Error(t, runner.Run(context.Background(), it))

	assert.Equal(t, []int64{1}, it.finished)
	assert.Equal(t, []int64{2}, it.abandoned)
	assert.Equal(t, []int64{3}, it.jobs)
}

func TestRunner_InterruptedJobIsAbandoned(t *testing.T) {
	runner := newTestRunner(t, []string{"sleep", "10"}, false)
	it := &fakeIterator{jobs: []int64{1, 2}}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := runner.Run(ctx, it)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, it.finished)
	assert.Equal(t, []int64{1}, it.abandoned)
}

func TestNewRunner_RejectsBadCommands(t *testing.T) {
	_, err := NewRunner("test", nil, false, time.Second, prometheus.NewRegistry())
	assert.Error(t, err)

	_, err = NewRunner("test", []string{"echo", "{{.JobId"}, false, time.Second, prometheus.NewRegistry())
	assert.Error(t, err)
}

func newTestRunner(t *testing.T, command []string, stopOnFailure bool) *Runner {
	t.Helper()
	runner, err := NewRunner("test", command, stopOnFailure, time.Second, prometheus.NewRegistry())
	require.NoError(t, err)
	runner.stdout = io.Discard
	runner.stderr = io.Discard
	return runner
}

type fakeIterator struct {
	jobs      []int64
	current   int64
	holding   bool
	finished  []int64
	abandoned []int64
}

func (it *fakeIterator) Next(ctx context.Context) (int64, bool, error) {
	if err := it.Finish(ctx); err != nil {
		return 0, false, err
	}
	if len(it.jobs) == 0 {
		return 0, false, nil
	}
	it.current, it.jobs = it.jobs[0], it.jobs[1:]
	it.holding = true
	return it.current, true, nil
}

func (it *fakeIterator) Finish(context.Context) error {
	if it.holding {
		it.finished = append(it.finished, it.current)
		it.holding = false
	}
	return nil
}

func (it *fakeIterator) Abandon() {
	if it.holding {
		it.abandoned = append(it.abandoned, it.current)
		it.holding = false
	}
}

func (it *fakeIterator) WorkerId() int64 {
	return 5
}
