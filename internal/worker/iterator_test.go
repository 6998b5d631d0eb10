package worker

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/G-Research/dispatch/pkg/dispatchapi"
)

func TestWorkIterator_ReleasesBeforeAcquiring(t *testing.T) {
	client := &fakeSchedulerClient{jobs: []int64{4, 7}}
	it := newWorkIterator(client, 3, 2, log.NewEntry(log.StandardLogger()))

	assertNext(t, it, 4, true)
	assertNext(t, it, 7, true)
	assertNext(t, it, 0, false)

	assert.Equal(t, []string{"acquire 3", "done 4", "acquire 3", "done 7", "acquire 3"}, client.calls)
	assert.Equal(t, int64(0), it.Remaining())
	assert.Equal(t, int64(3), it.WorkerId())
}

func TestWorkIterator_DoneIsTerminal(t *testing.T) {
	client := &fakeSchedulerClient{}
	it := newWorkIterator(client, 1, 0, log.NewEntry(log.StandardLogger()))

	assertNext(t, it, 0, false)
	assertNext(t, it, 0, false)
	assert.Equal(t, []string{"acquire 1"}, client.calls)
}

func TestWorkIterator_FailedReportIsRetried(t *testing.T) {
	client := &fakeSchedulerClient{jobs: []int64{1, 2}}
	it := newWorkIterator(client, 1, 2, log.NewEntry(log.StandardLogger()))
	assertNext(t, it, 1, true)

	client.jobDoneErr = errors.New("connection refused")
	_, _, err := it.Next(context.Background())
	assert.Error(t, err)

	client.jobDoneErr = nil
	assertNext(t, it, 2, true)
	assert.Equal(t, []string{"acquire 1", "done 1", "done 1", "acquire 1"}, client.calls)
}

func TestWorkIterator_AcquireErrorIsReturned(t *testing.T) {
	client := &fakeSchedulerClient{acquireErr: errors.New("unavailable")}
	it := newWorkIterator(client, 1, 2, log.NewEntry(log.StandardLogger()))

	_, ok, err := it.Next(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestWorkIterator_FinishReportsHeldJobOnce(t *testing.T) {
	client := &fakeSchedulerClient{jobs: []int64{9}}
	it := newWorkIterator(client, 2, 1, log.NewEntry(log.StandardLogger()))
	assertNext(t, it, 9, true)

	require.NoError(t, it.Finish(context.Background()))
	require.NoError(t, it.Finish(context.Background()))
	assert.Equal(t, []string{"acquire 2", "done 9"}, client.calls)
}

func TestWorkIterator_AbandonedJobIsNotReported(t *testing.T) {
	client := &fakeSchedulerClient{jobs: []int64{9}}
	it := newWorkIterator(client, 2, 1, log.NewEntry(log.StandardLogger()))
	assertNext(t, it, 9, true)

	it.Abandon()
	require.NoError(t, it.Finish(context.Background()))
	assert.Equal(t, []string{"acquire 2"}, client.calls)
}

func assertNext(t *testing.T, it *WorkIterator, expectedJob int64, expectedOk bool) {
	t.Helper()
	jobId, ok, err := it.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, expectedOk, ok)
	assert.Equal(t, expectedJob, jobId)
}

// fakeSchedulerClient hands out jobs in order and then reports there are none left.
type fakeSchedulerClient struct {
	jobs       []int64
	calls      []string
	acquireErr error
	jobDoneErr error
}

func (c *fakeSchedulerClient) RegisterWorker(context.Context, *dispatchapi.RegisterWorkerRequest, ...grpc.CallOption) (*dispatchapi.RegisterWorkerResponse, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeSchedulerClient) AcquireJob(_ context.Context, in *dispatchapi.AcquireJobRequest, _ ...grpc.CallOption) (*dispatchapi.AcquireJobResponse, error) {
	c.calls = append(c.calls, fmt.Sprintf("acquire %d", in.WorkerId))
	if c.acquireErr != nil {
		return nil, c.acquireErr
	}
	if len(c.jobs) == 0 {
		return &dispatchapi.AcquireJobResponse{JobId: dispatchapi.NoMoreJobs}, nil
	}
	job := c.jobs[0]
	c.jobs = c.jobs[1:]
	return &dispatchapi.AcquireJobResponse{JobId: job, Remaining: int64(len(c.jobs) + 1)}, nil
}

func (c *fakeSchedulerClient) RemainingCount(context.Context, *dispatchapi.Empty, ...grpc.CallOption) (*dispatchapi.RemainingCountResponse, error) {
	return &dispatchapi.RemainingCountResponse{Remaining: int64(len(c.jobs))}, nil
}

func (c *fakeSchedulerClient) JobDone(_ context.Context, in *dispatchapi.JobDoneRequest, _ ...grpc.CallOption) (*dispatchapi.Empty, error) {
	c.calls = append(c.calls, fmt.Sprintf("done %d", in.JobId))
	if c.jobDoneErr != nil {
		return nil, c.jobDoneErr
	}
	return &dispatchapi.Empty{}, nil
}

func (c *fakeSchedulerClient) ListWorkers(context.Context, *dispatchapi.Empty, ...grpc.CallOption) (*dispatchapi.WorkerList, error) {
	return &dispatchapi.WorkerList{}, nil
}

func (c *fakeSchedulerClient) GetStatus(context.Context, *dispatchapi.Empty, ...grpc.CallOption) (*dispatchapi.StatusResponse, error) {
	return &dispatchapi.StatusResponse{}, nil
}
