package scheduler

import (
	"context"
	"net"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	grpccommon "github.com/G-Research/dispatch/internal/common/grpc"
	"github.com/G-Research/dispatch/pkg/dispatchapi"
)

const testWorkerEndpoint = "worker-endpoint"

func TestSchedulerServer_RegisterAcquireAndComplete(t *testing.T) {
	withSchedulerServer(t, []int64{5, 6}, func(ctx context.Context, s *Scheduler, client dispatchapi.SchedulerClient, _ *grpc.Server) {
		registered, err := client.RegisterWorker(ctx, &dispatchapi.RegisterWorkerRequest{Endpoint: testWorkerEndpoint, Host: "host-a"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), registered.WorkerId)
		assert.Equal(t, int64(2), registered.Remaining)

		acquired, err := client.AcquireJob(ctx, &dispatchapi.AcquireJobRequest{WorkerId: registered.WorkerId})
		require.NoError(t, err)
		assert.Equal(t, int64(5), acquired.JobId)
		assert.False(t, acquired.Done())

		_, err = client.JobDone(ctx, &dispatchapi.JobDoneRequest{JobId: acquired.JobId})
		require.NoError(t, err)

		remaining, err := client.RemainingCount(ctx, &dispatchapi.Empty{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), remaining.Remaining)

		workers, err := client.ListWorkers(ctx, &dispatchapi.Empty{})
		require.NoError(t, err)
		assert.Equal(t, []*dispatchapi.WorkerInfo{{WorkerId: 1, Host: "host-a"}}, workers.Workers)

		statusResponse, err := client.GetStatus(ctx, &dispatchapi.Empty{})
		require.NoError(t, err)
		assert.Equal(t, testQueue, statusResponse.Queue)
		assert.Equal(t, "instance", statusResponse.InstanceId)
		assert.Equal(t, int64(2), statusResponse.Total)
		assert.Equal(t, int64(1), statusResponse.Remaining)
		assert.Equal(t, int64(0), statusResponse.Assigned)
		assert.InDelta(t, 0.5, statusResponse.Completion, 1e-9)
	})
}

func TestSchedulerServer_RegisteredWorkerCanBePinged(t *testing.T) {
	withSchedulerServer(t, []int64{1}, func(ctx context.Context, s *Scheduler, client dispatchapi.SchedulerClient, workerServer *grpc.Server) {
		_, err := client.RegisterWorker(ctx, &dispatchapi.RegisterWorkerRequest{Endpoint: testWorkerEndpoint})
		require.NoError(t, err)

		workers := s.Workers()
		require.Len(t, workers, 1)
		assert.NoError(t, workers[0].Endpoint.Ping(ctx))

		workerServer.Stop()
		assert.Error(t, workers[0].Endpoint.Ping(ctx))
		assert.NoError(t, workers[0].Endpoint.Close())
		assert.NoError(t, workers[0].Endpoint.Close())
	})
}

func TestSchedulerServer_ErrorsCarryStatusCodes(t *testing.T) {
	withSchedulerServer(t, []int64{1}, func(ctx context.Context, s *Scheduler, client dispatchapi.SchedulerClient, _ *grpc.Server) {
		_, err := client.RegisterWorker(ctx, &dispatchapi.RegisterWorkerRequest{})
		assert.Equal(t, codes.InvalidArgument, status.Code(err))

		_, err = client.AcquireJob(ctx, &dispatchapi.AcquireJobRequest{WorkerId: 9})
		assert.Equal(t, codes.NotFound, status.Code(err))

		_, err = client.JobDone(ctx, &dispatchapi.JobDoneRequest{JobId: 9})
		assert.Equal(t, codes.NotFound, status.Code(err))

		s.Stop()
		_, err = client.JobDone(ctx, &dispatchapi.JobDoneRequest{JobId: 1})
		assert.Equal(t, codes.Unavailable, status.Code(err))
	})
}

func TestSchedulerServer_NoMoreJobs(t *testing.T) {
	withSchedulerServer(t, []int64{1}, func(ctx context.Context, s *Scheduler, client dispatchapi.SchedulerClient, _ *grpc.Server) {
		registered, err := client.RegisterWorker(ctx, &dispatchapi.RegisterWorkerRequest{Endpoint: testWorkerEndpoint})
		require.NoError(t, err)
		require.NoError(t, s.JobDone(1))

		acquired, err := client.AcquireJob(ctx, &dispatchapi.AcquireJobRequest{WorkerId: registered.WorkerId})
		require.NoError(t, err)
		assert.True(t, acquired.Done())
		assert.Equal(t, int64(0), acquired.Remaining)
	})
}

func TestPeerHost(t *testing.T) {
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.5"), Port: 4000}})
	assert.Equal(t, "10.0.0.5", peerHost(ctx))
	assert.Equal(t, "", peerHost(context.Background()))
}

type pingServer struct {
	dispatchapi.UnimplementedWorkerServer
}

func (p *pingServer) Ping(context.Context, *dispatchapi.Empty) (*dispatchapi.PingResponse, error) {
	return &dispatchapi.PingResponse{WorkerId: 1}, nil
}

func withSchedulerServer(
	t *testing.T,
	ids []int64,
	action func(ctx context.Context, s *Scheduler, client dispatchapi.SchedulerClient, workerServer *grpc.Server),
) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workerLis := bufconn.Listen(1024 * 1024)
	workerServer := grpc.NewServer()
	dispatchapi.RegisterWorkerServer(workerServer, &pingServer{})
	go func() { _ = workerServer.Serve(workerLis) }()
	defer workerServer.Stop()

	s, _ := newTestScheduler(t, ids)
	dial := func(ctx context.Context, endpoint string) (*grpc.ClientConn, error) {
		require.Equal(t, testWorkerEndpoint, endpoint)
		return dialBufconn(ctx, workerLis)
	}
	schedulerLis := bufconn.Listen(1024 * 1024)
	server := grpccommon.CreateGrpcServer(keepalive.ServerParameters{}, keepalive.EnforcementPolicy{}, log.WithField("test", t.Name()))
	dispatchapi.RegisterSchedulerServer(server, NewSchedulerServer(s, "instance", dial))
	go func() { _ = server.Serve(schedulerLis) }()
	defer server.Stop()

	conn, err := dialBufconn(ctx, schedulerLis)
	require.NoError(t, err)
	defer conn.Close()

	action(ctx, s, dispatchapi.NewSchedulerClient(conn), workerServer)
}

func dialBufconn(ctx context.Context, lis *bufconn.Listener) (*grpc.ClientConn, error) {
	return grpc.DialContext(ctx, "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(dispatchapi.CallOption()),
	)
}
