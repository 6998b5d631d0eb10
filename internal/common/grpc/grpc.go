package grpc

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_logrus "github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_retry "github.com/grpc-ecosystem/go-grpc-middleware/retry"
	grpc_ctxtags "github.com/grpc-ecosystem/go-grpc-middleware/tags"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/G-Research/dispatch/internal/common/dispatcherrors"
	"github.com/G-Research/dispatch/internal/common/requestid"
	"github.com/G-Research/dispatch/pkg/dispatchapi"
)

// CreateGrpcServer creates a gRPC server with the interceptors shared by every dispatch service:
// request ids, logrus call logging, typed error mapping, panic recovery and prometheus metrics.
func CreateGrpcServer(
	keepaliveParams keepalive.ServerParameters,
	keepaliveEnforcementPolicy keepalive.EnforcementPolicy,
	logger *log.Entry,
) *grpc.Server {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepaliveParams),
		grpc.KeepaliveEnforcementPolicy(keepaliveEnforcementPolicy),
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_ctxtags.UnaryServerInterceptor(),
			requestid.UnaryServerInterceptor(false),
			grpc_prometheus.UnaryServerInterceptor,
			grpc_logrus.UnaryServerInterceptor(logger, grpc_logrus.WithLevels(callLogLevel)),
			dispatcherrors.UnaryServerInterceptor(),
			grpc_recovery.UnaryServerInterceptor(grpc_recovery.WithRecoveryHandler(panicRecoveryHandler)),
		)),
	)
	grpc_prometheus.Register(server)
	return server
}

// Listen binds the gRPC port. An error is returned rather than logged so callers can fail startup.
func Listen(port uint16) (net.Listener, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on port %d", port)
	}
	return lis, nil
}

// CreateShutdownHandler returns a function that shuts down the grpcServer when the context is closed.
// The server is given gracePeriod to perform a graceful shutdown and is then forcibly stopped if necessary.
func CreateShutdownHandler(ctx context.Context, gracePeriod time.Duration, grpcServer *grpc.Server) func() error {
	return func() error {
		<-ctx.Done()
		go func() {
			time.Sleep(gracePeriod)
			grpcServer.Stop()
		}()
		grpcServer.GracefulStop()
		return nil
	}
}

// Dial opens a client connection speaking the dispatch codec. With block set, the call waits until
// the connection is up or ctx expires.
func Dial(ctx context.Context, target string, block bool, extra ...grpc.UnaryClientInterceptor) (*grpc.ClientConn, error) {
	interceptors := append([]grpc.UnaryClientInterceptor{
		requestid.UnaryClientInterceptor(),
		grpc_prometheus.UnaryClientInterceptor,
	}, extra...)

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(dispatchapi.CallOption()),
		grpc.WithUnaryInterceptor(grpc_middleware.ChainUnaryClient(interceptors...)),
	}
	if block {
		opts = append(opts, grpc.WithBlock(), grpc.WithReturnConnectionError())
	}
	return grpc.DialContext(ctx, target, opts...)
}

// RetryInterceptor retries idempotent calls on transient transport failures.
func RetryInterceptor(attempts uint, backoff time.Duration) grpc.UnaryClientInterceptor {
	return grpc_retry.UnaryClientInterceptor(
		grpc_retry.WithMax(attempts),
		grpc_retry.WithBackoff(grpc_retry.BackoffLinear(backoff)),
		grpc_retry.WithCodes(codes.Unavailable, codes.ResourceExhausted),
	)
}

// Pings are frequent; only log them when they fail.
func callLogLevel(code codes.Code) log.Level {
	if code == codes.OK {
		return log.DebugLevel
	}
	return grpc_logrus.DefaultCodeToLevel(code)
}

// This function is called whenever a gRPC handler panics.
func panicRecoveryHandler(p interface{}) (err error) {
	log.Errorf("Request triggered panic with cause %v \n%s", p, string(debug.Stack()))
	return status.Errorf(codes.Internal, "Internal server error caused by %v", p)
}
