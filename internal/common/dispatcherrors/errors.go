// Package dispatcherrors contains the errors returned by the dispatch master and worker.
// The gRPC interceptor in this package maps them onto status codes, so handlers can return
// them wrapped with github.com/pkg/errors and clients still see a meaningful code.
package dispatcherrors

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/G-Research/dispatch/internal/common/requestid"
)

// ErrUnknownWorker is returned when a worker id was never registered or has since been evicted.
type ErrUnknownWorker struct {
	WorkerId int64
}

const unknownWorkerSuffix = " is not registered"

func (err *ErrUnknownWorker) Error() string {
	return fmt.Sprintf("worker %d%s", err.WorkerId, unknownWorkerSuffix)
}

// ErrUnknownJob is returned for a job id outside the fixed job set.
type ErrUnknownJob struct {
	JobId int64
}

func (err *ErrUnknownJob) Error() string {
	return fmt.Sprintf("job %d does not exist", err.JobId)
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "jobs.interval.end"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message to include with the error message
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %v is invalid for field %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %v is invalid for field %q; %s", err.Value, err.Name, err.Message)
}

// ErrSchedulerStopped is returned to callers blocked in, or arriving at, a stopped scheduler.
type ErrSchedulerStopped struct{}

func (err *ErrSchedulerStopped) Error() string {
	return "scheduler has been stopped"
}

// ErrCannotResolveMaster is returned by a worker that cannot reach the master it was pointed at.
type ErrCannotResolveMaster struct {
	Url   string
	Cause error
}

func (err *ErrCannotResolveMaster) Error() string {
	return fmt.Sprintf("cannot resolve master at %s: is the master running and is the url right? (%v)", err.Url, err.Cause)
}

func (err *ErrCannotResolveMaster) Unwrap() error {
	return err.Cause
}

// CodeFromError maps error types to gRPC return codes.
// Uses errors.As to look through the chain of errors, as opposed to just considering the topmost error in the chain.
func CodeFromError(err error) codes.Code {
	// If the error is nil or already a gRPC status, return the embedded code.
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}

	{
		var e *ErrUnknownWorker
		if errors.As(err, &e) {
			return codes.NotFound
		}
	}
	{
		var e *ErrUnknownJob
		if errors.As(err, &e) {
			return codes.NotFound
		}
	}
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return codes.InvalidArgument
		}
	}
	{
		var e *ErrSchedulerStopped
		if errors.As(err, &e) {
			return codes.Unavailable
		}
	}
	if errors.Is(err, context.Canceled) {
		return codes.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return codes.DeadlineExceeded
	}

	return codes.Unknown
}

// IsUnknownWorker reports whether err, or the gRPC status it carries, denotes an unknown worker.
// Unknown jobs share the NotFound code, so a status is matched on its message too.
func IsUnknownWorker(err error) bool {
	var e *ErrUnknownWorker
	if errors.As(err, &e) {
		return true
	}
	s, ok := status.FromError(err)
	return ok && s.Code() == codes.NotFound && strings.HasSuffix(s.Message(), unknownWorkerSuffix)
}

// UnaryServerInterceptor returns an interceptor that extracts the cause of an error chain
// and returns it as a gRPC status error.
//
// To log the full error chain and return only the cause to the user, insert this interceptor before
// the logging interceptor.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		rv, err := handler(ctx, req)

		if _, ok := status.FromError(err); ok {
			return rv, err
		}

		cause := errors.Cause(err)
		code := CodeFromError(cause)

		if id, ok := requestid.FromContext(ctx); ok {
			return rv, status.Error(code, fmt.Sprintf("[%s: %q] ", requestid.MetadataKey, id)+cause.Error())
		}
		return rv, status.Error(code, cause.Error())
	}
}
