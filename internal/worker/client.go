package worker

import (
	"context"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/G-Research/dispatch/internal/common/dispatcherrors"
	grpccommon "github.com/G-Research/dispatch/internal/common/grpc"
	"github.com/G-Research/dispatch/pkg/dispatchapi"
)

type state int

const (
	unregistered state = iota
	registered
	iterating
)

// Client connects a worker process to a dispatch master. A client is published, then registered,
// then iterated; each step can only be taken once.
type Client struct {
	connectTimeout time.Duration
	advertiseHost  string

	// Read by the ping service without taking mu.
	workerId int64

	mu        sync.Mutex
	state     state
	server    *grpc.Server
	endpoint  string
	conn      *grpc.ClientConn
	scheduler dispatchapi.SchedulerClient
	remaining int64
	log       *log.Entry
}

// NewClient creates an unregistered client. advertiseHost is the host the master should use to
// reach this worker; the machine's host name is used when it is empty.
func NewClient(connectTimeout time.Duration, advertiseHost string) *Client {
	return &Client{
		connectTimeout: connectTimeout,
		advertiseHost:  advertiseHost,
		log:            log.WithField("component", "worker"),
	}
}

// Publish starts the ping service the master uses to check this worker is alive, and returns the
// endpoint to hand to the master.
func (c *Client) Publish(listenAddress string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.server != nil {
		return "", errors.Errorf("ping service already published on %s", c.endpoint)
	}
	host, err := c.host()
	if err != nil {
		return "", err
	}
	lis, err := net.Listen("tcp", listenAddress)
	if err != nil {
		return "", errors.Wrapf(err, "failed to listen on %s", listenAddress)
	}
	port := lis.Addr().(*net.TCPAddr).Port

	c.server = grpccommon.CreateGrpcServer(keepalive.ServerParameters{}, keepalive.EnforcementPolicy{}, c.log)
	dispatchapi.RegisterWorkerServer(c.server, &pingService{client: c})
	server := c.server
	go func() {
		if err := server.Serve(lis); err != nil {
			c.log.WithError(err).Error("Ping service stopped")
		}
	}()
	c.endpoint = net.JoinHostPort(host, strconv.Itoa(port))
	c.log.Infof("Ping service listening on %s, published as %s", lis.Addr(), c.endpoint)
	return c.endpoint, nil
}

func (c *Client) host() (string, error) {
	if c.advertiseHost != "" {
		return c.advertiseHost, nil
	}
	host, err := os.Hostname()
	if err != nil {
		return "", errors.Wrap(err, "cannot determine host name, set an advertise host")
	}
	return host, nil
}

// Register announces the worker to the master at masterUrl. The master must be reachable within
// the connect timeout, otherwise *dispatcherrors.ErrCannotResolveMaster is returned.
func (c *Client) Register(ctx context.Context, masterUrl string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != unregistered {
		return errors.Errorf("worker %d is already registered", c.WorkerId())
	}
	if c.server == nil {
		return errors.New("the ping service must be published before registering")
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()
	conn, err := grpccommon.Dial(dialCtx, masterUrl, true)
	if err != nil {
		return errors.WithStack(&dispatcherrors.ErrCannotResolveMaster{Url: masterUrl, Cause: err})
	}
	scheduler := dispatchapi.NewSchedulerClient(conn)
	host, _, _ := net.SplitHostPort(c.endpoint)
	resp, err := scheduler.RegisterWorker(ctx, &dispatchapi.RegisterWorkerRequest{Endpoint: c.endpoint, Host: host})
	if err != nil {
		_ = conn.Close()
		return errors.WithMessagef(err, "registering with master %s", masterUrl)
	}

	c.conn = conn
	c.scheduler = scheduler
	atomic.StoreInt64(&c.workerId, resp.WorkerId)
	c.remaining = resp.Remaining
	c.state = registered
	c.log = c.log.WithField("workerId", resp.WorkerId)
	c.log.Infof("Registered with master %s, %d jobs remaining", masterUrl, resp.Remaining)
	return nil
}

// Iterator returns the work iterator of a registered client. It can only be called once.
func (c *Client) Iterator() (*WorkIterator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case unregistered:
		return nil, errors.New("worker must be registered before iterating")
	case iterating:
		return nil, errors.Errorf("worker %d is already iterating", c.WorkerId())
	}
	c.state = iterating
	return newWorkIterator(c.scheduler, c.WorkerId(), c.remaining, c.log), nil
}

// WorkerId is the id assigned by the master, zero until registered.
func (c *Client) WorkerId() int64 {
	return atomic.LoadInt64(&c.workerId)
}

// Close stops the ping service and drops the connection to the master. A master that still knows
// this worker will evict it on its next liveness check.
func (c *Client) Close() error {
	c.mu.Lock()
	server, conn := c.server, c.conn
	c.server, c.conn = nil, nil
	c.mu.Unlock()

	var result *multierror.Error
	if server != nil {
		server.Stop()
	}
	if conn != nil {
		result = multierror.Append(result, conn.Close())
	}
	return result.ErrorOrNil()
}

type pingService struct {
	dispatchapi.UnimplementedWorkerServer
	client *Client
}

func (p *pingService) Ping(context.Context, *dispatchapi.Empty) (*dispatchapi.PingResponse, error) {
	return &dispatchapi.PingResponse{WorkerId: p.client.WorkerId()}, nil
}
