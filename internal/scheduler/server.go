package scheduler

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"

	"github.com/G-Research/dispatch/internal/common/dispatcherrors"
	grpccommon "github.com/G-Research/dispatch/internal/common/grpc"
	"github.com/G-Research/dispatch/pkg/dispatchapi"
)

// DialFunc opens the connection used to ping a newly registered worker.
type DialFunc func(ctx context.Context, endpoint string) (*grpc.ClientConn, error)

// SchedulerServer exposes a Scheduler over gRPC.
type SchedulerServer struct {
	scheduler  *Scheduler
	instanceId string
	dial       DialFunc
}

func NewSchedulerServer(scheduler *Scheduler, instanceId string, dial DialFunc) *SchedulerServer {
	if dial == nil {
		dial = func(ctx context.Context, endpoint string) (*grpc.ClientConn, error) {
			return grpccommon.Dial(ctx, endpoint, false)
		}
	}
	return &SchedulerServer{scheduler: scheduler, instanceId: instanceId, dial: dial}
}

func (s *SchedulerServer) RegisterWorker(ctx context.Context, req *dispatchapi.RegisterWorkerRequest) (*dispatchapi.RegisterWorkerResponse, error) {
	if req.Endpoint == "" {
		return nil, errors.WithStack(&dispatcherrors.ErrInvalidArgument{
			Name:    "endpoint",
			Value:   req.Endpoint,
			Message: "workers must publish a ping endpoint before registering",
		})
	}
	host := req.Host
	if host == "" {
		host = peerHost(ctx)
	}
	conn, err := s.dial(ctx, req.Endpoint)
	if err != nil {
		return nil, errors.WithMessagef(err, "[RegisterWorker] cannot open connection to worker endpoint %s", req.Endpoint)
	}
	id := s.scheduler.RegisterWorker(newRemoteWorker(conn), host)
	return &dispatchapi.RegisterWorkerResponse{WorkerId: id, Remaining: s.scheduler.RemainingCount()}, nil
}

func (s *SchedulerServer) AcquireJob(ctx context.Context, req *dispatchapi.AcquireJobRequest) (*dispatchapi.AcquireJobResponse, error) {
	jobId, remaining, err := s.scheduler.AcquireJob(ctx, req.WorkerId)
	if err != nil {
		return nil, err
	}
	return &dispatchapi.AcquireJobResponse{JobId: jobId, Remaining: remaining}, nil
}

func (s *SchedulerServer) RemainingCount(ctx context.Context, _ *dispatchapi.Empty) (*dispatchapi.RemainingCountResponse, error) {
	return &dispatchapi.RemainingCountResponse{Remaining: s.scheduler.RemainingCount()}, nil
}

func (s *SchedulerServer) JobDone(ctx context.Context, req *dispatchapi.JobDoneRequest) (*dispatchapi.Empty, error) {
	if err := s.scheduler.JobDone(req.JobId); err != nil {
		return nil, err
	}
	return &dispatchapi.Empty{}, nil
}

func (s *SchedulerServer) ListWorkers(ctx context.Context, _ *dispatchapi.Empty) (*dispatchapi.WorkerList, error) {
	return &dispatchapi.WorkerList{Workers: toApiWorkers(s.scheduler.ListWorkers())}, nil
}

func (s *SchedulerServer) GetStatus(ctx context.Context, _ *dispatchapi.Empty) (*dispatchapi.StatusResponse, error) {
	return &dispatchapi.StatusResponse{
		Queue:      s.scheduler.Queue(),
		InstanceId: s.instanceId,
		Total:      int64(s.scheduler.TotalJobs()),
		Remaining:  s.scheduler.RemainingCount(),
		Assigned:   int64(s.scheduler.AssignedCount()),
		Completion: s.scheduler.CompletionFraction(),
		Workers:    toApiWorkers(s.scheduler.ListWorkers()),
	}, nil
}

func toApiWorkers(workers []WorkerInfo) []*dispatchapi.WorkerInfo {
	result := make([]*dispatchapi.WorkerInfo, len(workers))
	for i, w := range workers {
		result[i] = &dispatchapi.WorkerInfo{WorkerId: w.Id, Host: w.Host}
	}
	return result
}

// peerHost is the host the call came from, or empty if it cannot be told.
func peerHost(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		log.WithError(err).Debugf("Cannot determine host of %s", p.Addr)
		return ""
	}
	return host
}

// remoteWorker pings a worker through its gRPC ping service.
type remoteWorker struct {
	conn   *grpc.ClientConn
	client dispatchapi.WorkerClient
	once   sync.Once
}

func newRemoteWorker(conn *grpc.ClientConn) *remoteWorker {
	return &remoteWorker{conn: conn, client: dispatchapi.NewWorkerClient(conn)}
}

func (w *remoteWorker) Ping(ctx context.Context) error {
	_, err := w.client.Ping(ctx, &dispatchapi.Empty{})
	return err
}

func (w *remoteWorker) Close() error {
	var err error
	w.once.Do(func() { err = w.conn.Close() })
	return err
}
