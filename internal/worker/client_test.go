package worker

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/keepalive"

	"github.com/G-Research/dispatch/internal/common/dispatcherrors"
	grpccommon "github.com/G-Research/dispatch/internal/common/grpc"
	"github.com/G-Research/dispatch/internal/journal"
	"github.com/G-Research/dispatch/internal/scheduler"
	"github.com/G-Research/dispatch/internal/scheduler/configuration"
	"github.com/G-Research/dispatch/pkg/dispatchapi"
)

func TestClient_WorksThroughAllJobs(t *testing.T) {
	withMaster(t, []int64{3, 1, 2}, func(ctx context.Context, s *scheduler.Scheduler, masterUrl string) {
		client := newPublishedClient(t)
		defer client.Close()

		require.NoError(t, client.Register(ctx, masterUrl))
		assert.Equal(t, int64(1), client.WorkerId())
		it, err := client.Iterator()
		require.NoError(t, err)
		assert.Equal(t, int64(3), it.Remaining())

		var seen []int64
		for {
			jobId, ok, err := it.Next(ctx)
			require.NoError(t, err)
			if !ok {
				break
			}
			seen = append(seen, jobId)
		}
		assert.Equal(t, []int64{1, 2, 3}, seen)
		assert.Equal(t, int64(0), s.RemainingCount())
		assert.Equal(t, int64(0), it.Remaining())
	})
}

func TestClient_FinishReportsLastJob(t *testing.T) {
	withMaster(t, []int64{1}, func(ctx context.Context, s *scheduler.Scheduler, masterUrl string) {
		client := newPublishedClient(t)
		defer client.Close()
		require.NoError(t, client.Register(ctx, masterUrl))
		it, err := client.Iterator()
		require.NoError(t, err)

		jobId, ok, err := it.Next(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(1), jobId)
		assert.Equal(t, int64(1), s.RemainingCount())

		require.NoError(t, it.Finish(ctx))
		assert.Equal(t, int64(0), s.RemainingCount())
	})
}

func TestClient_MasterPingsPublishedEndpoint(t *testing.T) {
	withMaster(t, []int64{1}, func(ctx context.Context, s *scheduler.Scheduler, masterUrl string) {
		client := newPublishedClient(t)
		require.NoError(t, client.Register(ctx, masterUrl))

		monitor := scheduler.NewLivenessMonitor(s, configuration.LivenessConfig{
			Interval:    time.Second,
			PingTimeout: time.Second,
		}, prometheus.NewRegistry())

		monitor.CheckWorkers(ctx)
		require.Len(t, s.ListWorkers(), 1)
		assert.Equal(t, "127.0.0.1", s.ListWorkers()[0].Host)

		require.NoError(t, client.Close())
		monitor.CheckWorkers(ctx)
		assert.Empty(t, s.ListWorkers())
	})
}

func TestClient_UnreachableMaster(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	unused := lis.Addr().String()
	require.NoError(t, lis.Close())

	client := NewClient(200*time.Millisecond, "127.0.0.1")
	defer client.Close()
	_, err = client.Publish("127.0.0.1:0")
	require.NoError(t, err)

	err = client.Register(context.Background(), unused)
	var cannotResolve *dispatcherrors.ErrCannotResolveMaster
	require.ErrorAs(t, err, &cannotResolve)
	assert.Equal(t, unused, cannotResolve.Url)
}

func TestClient_StatesMustBeTakenInOrder(t *testing.T) {
	client := NewClient(time.Second, "127.0.0.1")
	defer client.Close()

	_, err := client.Iterator()
	assert.Error(t, err)
	assert.Error(t, client.Register(context.Background(), "127.0.0.1:1"))

	endpoint, err := client.Publish("127.0.0.1:0")
	require.NoError(t, err)
	host, _, err := net.SplitHostPort(endpoint)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)

	_, err = client.Publish("127.0.0.1:0")
	assert.Error(t, err)
}

func TestClient_IteratorOnlyOnce(t *testing.T) {
	withMaster(t, []int64{1}, func(ctx context.Context, s *scheduler.Scheduler, masterUrl string) {
		client := newPublishedClient(t)
		defer client.Close()
		require.NoError(t, client.Register(ctx, masterUrl))
		assert.Error(t, client.Register(ctx, masterUrl))

		_, err := client.Iterator()
		require.NoError(t, err)
		_, err = client.Iterator()
		assert.Error(t, err)
	})
}

func newPublishedClient(t *testing.T) *Client {
	t.Helper()
	client := NewClient(5*time.Second, "127.0.0.1")
	_, err := client.Publish("127.0.0.1:0")
	require.NoError(t, err)
	return client
}

func withMaster(t *testing.T, ids []int64, action func(ctx context.Context, s *scheduler.Scheduler, masterUrl string)) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	w, err := journal.NewTableWriter(&bytes.Buffer{}, journal.Columns, true)
	require.NoError(t, err)
	s, err := scheduler.NewScheduler("test", ids, w, false)
	require.NoError(t, err)
	defer s.Stop()

	server := grpccommon.CreateGrpcServer(keepalive.ServerParameters{}, keepalive.EnforcementPolicy{}, log.WithField("test", t.Name()))
	dispatchapi.RegisterSchedulerServer(server, scheduler.NewSchedulerServer(s, "instance", nil))
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.Serve(lis) }()
	defer server.Stop()

	action(ctx, s, lis.Addr().String())
}
