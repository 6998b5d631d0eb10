package requestid

import (
	"context"

	grpc_ctxtags "github.com/grpc-ecosystem/go-grpc-middleware/tags"
	"github.com/renstrom/shortuuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// MetadataKey is the gRPC metadata key request ids travel under.
const MetadataKey = "x-request-id"

// TagKey is the ctxtags key under which the request id is exposed to the logging interceptor.
const TagKey = "requestId"

// FromContext returns the request id embedded in the incoming gRPC metadata of ctx, if any.
func FromContext(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	ids := md.Get(MetadataKey)
	if len(ids) == 0 || ids[0] == "" {
		return "", false
	}
	return ids[0], true
}

// FromContextOrMissing is FromContext returning "missing" when no id is available.
func FromContextOrMissing(ctx context.Context) string {
	if id, ok := FromContext(ctx); ok {
		return id
	}
	return "missing"
}

// AddToIncomingContext returns a copy of ctx whose incoming metadata carries id, replacing any existing id.
// The second return value is false if ctx has no incoming metadata.
func AddToIncomingContext(ctx context.Context, id string) (context.Context, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, false
	}
	md = md.Copy()
	md.Set(MetadataKey, id)
	return metadata.NewIncomingContext(ctx, md), true
}

// UnaryServerInterceptor annotates incoming requests with a shortuuid request id and records it in the
// ctxtags of the call. If replace is false, requests already carrying an id keep it.
func UnaryServerInterceptor(replace bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		id, ok := FromContext(ctx)
		if !ok || replace {
			id = shortuuid.New()
			ctx, _ = AddToIncomingContext(ctx, id)
		}
		grpc_ctxtags.Extract(ctx).Set(TagKey, id)
		return handler(ctx, req)
	}
}

// UnaryClientInterceptor stamps outgoing calls with a fresh request id unless one is already present.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		if len(md.Get(MetadataKey)) == 0 {
			ctx = metadata.AppendToOutgoingContext(ctx, MetadataKey, shortuuid.New())
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
