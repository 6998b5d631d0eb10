package dispatchctl

import (
	"bytes"
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/G-Research/dispatch/pkg/dispatchapi"
)

func TestWorkers_SortedByHostThenId(t *testing.T) {
	app, out := newTestApp(&fakeSchedulerClient{status: &dispatchapi.StatusResponse{
		Queue: "sims",
		Workers: []*dispatchapi.WorkerInfo{
			{WorkerId: 4, Host: "node-b"},
			{WorkerId: 3, Host: "node-a"},
			{WorkerId: 1, Host: "node-b"},
			{WorkerId: 2, Host: ""},
		},
	}})

	require.NoError(t, app.Workers())

	assert.Equal(t, "queue id host\nsims 2 -\nsims 3 node-a\nsims 1 node-b\nsims 4 node-b\n", out.String())
}

func TestStatus(t *testing.T) {
	app, out := newTestApp(&fakeSchedulerClient{status: &dispatchapi.StatusResponse{
		Queue:      "sims",
		InstanceId: "01gf",
		Total:      4,
		Remaining:  3,
		Assigned:   2,
		Completion: 0.25,
		Workers:    []*dispatchapi.WorkerInfo{{WorkerId: 1}, {WorkerId: 2}},
	}})

	require.NoError(t, app.Status())

	expected := "" +
		"Queue:     sims\n" +
		"Instance:  01gf\n" +
		"Jobs:      4\n" +
		"Remaining: 3\n" +
		"Assigned:  2\n" +
		"Complete:  25.0%\n" +
		"Workers:   2\n"
	assert.Equal(t, expected, out.String())
}

func TestRemaining(t *testing.T) {
	app, out := newTestApp(&fakeSchedulerClient{remaining: 17})

	require.NoError(t, app.Remaining())

	assert.Equal(t, "17\n", out.String())
}

func TestErrorsArePropagated(t *testing.T) {
	app, out := newTestApp(&fakeSchedulerClient{err: errors.New("unavailable")})

	assert.Error(t, app.Workers())
	assert.Error(t, app.Status())
	assert.Error(t, app.Remaining())
	assert.Empty(t, out.String())
}

func newTestApp(client dispatchapi.SchedulerClient) (*App, *bytes.Buffer) {
	out := &bytes.Buffer{}
	app := New()
	app.Out = out
	app.Params.WithClient = func(ctx context.Context, action func(dispatchapi.SchedulerClient) error) error {
		return action(client)
	}
	return app, out
}

type fakeSchedulerClient struct {
	dispatchapi.SchedulerClient
	status    *dispatchapi.StatusResponse
	remaining int64
	err       error
}

func (c *fakeSchedulerClient) GetStatus(context.Context, *dispatchapi.Empty, ...grpc.CallOption) (*dispatchapi.StatusResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.status, nil
}

func (c *fakeSchedulerClient) RemainingCount(context.Context, *dispatchapi.Empty, ...grpc.CallOption) (*dispatchapi.RemainingCountResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &dispatchapi.RemainingCountResponse{Remaining: c.remaining}, nil
}
