package dispatchapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SchedulerClient is the client API for the Scheduler service.
type SchedulerClient interface {
	RegisterWorker(ctx context.Context, in *RegisterWorkerRequest, opts ...grpc.CallOption) (*RegisterWorkerResponse, error)
	AcquireJob(ctx context.Context, in *AcquireJobRequest, opts ...grpc.CallOption) (*AcquireJobResponse, error)
	RemainingCount(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*RemainingCountResponse, error)
	JobDone(ctx context.Context, in *JobDoneRequest, opts ...grpc.CallOption) (*Empty, error)
	ListWorkers(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*WorkerList, error)
	GetStatus(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*StatusResponse, error)
}

type schedulerClient struct {
	cc grpc.ClientConnInterface
}

func NewSchedulerClient(cc grpc.ClientConnInterface) SchedulerClient {
	return &schedulerClient{cc}
}

func (c *schedulerClient) RegisterWorker(ctx context.Context, in *RegisterWorkerRequest, opts ...grpc.CallOption) (*RegisterWorkerResponse, error) {
	out := new(RegisterWorkerResponse)
	err := c.cc.Invoke(ctx, "/dispatchapi.Scheduler/RegisterWorker", in, out, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *schedulerClient) AcquireJob(ctx context.Context, in *AcquireJobRequest, opts ...grpc.CallOption) (*AcquireJobResponse, error) {
	out := new(AcquireJobResponse)
	err := c.cc.Invoke(ctx, "/dispatchapi.Scheduler/AcquireJob", in, out, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *schedulerClient) RemainingCount(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*RemainingCountResponse, error) {
	out := new(RemainingCountResponse)
	err := c.cc.Invoke(ctx, "/dispatchapi.Scheduler/RemainingCount", in, out, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *schedulerClient) JobDone(ctx context.Context, in *JobDoneRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	err := c.cc.Invoke(ctx, "/dispatchapi.Scheduler/JobDone", in, out, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *schedulerClient) ListWorkers(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*WorkerList, error) {
	out := new(WorkerList)
	err := c.cc.Invoke(ctx, "/dispatchapi.Scheduler/ListWorkers", in, out, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *schedulerClient) GetStatus(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	err := c.cc.Invoke(ctx, "/dispatchapi.Scheduler/GetStatus", in, out, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SchedulerServer is the server API for the Scheduler service.
type SchedulerServer interface {
	RegisterWorker(context.Context, *RegisterWorkerRequest) (*RegisterWorkerResponse, error)
	AcquireJob(context.Context, *AcquireJobRequest) (*AcquireJobResponse, error)
	RemainingCount(context.Context, *Empty) (*RemainingCountResponse, error)
	JobDone(context.Context, *JobDoneRequest) (*Empty, error)
	ListWorkers(context.Context, *Empty) (*WorkerList, error)
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
}

// UnimplementedSchedulerServer can be embedded to have forward compatible implementations.
type UnimplementedSchedulerServer struct{}

func (*UnimplementedSchedulerServer) RegisterWorker(ctx context.Context, req *RegisterWorkerRequest) (*RegisterWorkerResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method RegisterWorker not implemented")
}
func (*UnimplementedSchedulerServer) AcquireJob(ctx context.Context, req *AcquireJobRequest) (*AcquireJobResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method AcquireJob not implemented")
}
func (*UnimplementedSchedulerServer) RemainingCount(ctx context.Context, req *Empty) (*RemainingCountResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method RemainingCount not implemented")
}
func (*UnimplementedSchedulerServer) JobDone(ctx context.Context, req *JobDoneRequest) (*Empty, error) {
	return nil, status.Errorf(codes.Unimplemented, "method JobDone not implemented")
}
func (*UnimplementedSchedulerServer) ListWorkers(ctx context.Context, req *Empty) (*WorkerList, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListWorkers not implemented")
}
func (*UnimplementedSchedulerServer) GetStatus(ctx context.Context, req *Empty) (*StatusResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetStatus not implemented")
}

func RegisterSchedulerServer(s *grpc.Server, srv SchedulerServer) {
	s.RegisterService(&_Scheduler_serviceDesc, srv)
}

func _Scheduler_RegisterWorker_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RegisterWorkerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerServer).RegisterWorker(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/dispatchapi.Scheduler/RegisterWorker",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SchedulerServer).RegisterWorker(ctx, req.(*RegisterWorkerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Scheduler_AcquireJob_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AcquireJobRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerServer).AcquireJob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/dispatchapi.Scheduler/AcquireJob",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SchedulerServer).AcquireJob(ctx, req.(*AcquireJobRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Scheduler_RemainingCount_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerServer).RemainingCount(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/dispatchapi.Scheduler/RemainingCount",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SchedulerServer).RemainingCount(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Scheduler_JobDone_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(JobDoneRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerServer).JobDone(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/dispatchapi.Scheduler/JobDone",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SchedulerServer).JobDone(ctx, req.(*JobDoneRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Scheduler_ListWorkers_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerServer).ListWorkers(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/dispatchapi.Scheduler/ListWorkers",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SchedulerServer).ListWorkers(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Scheduler_GetStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/dispatchapi.Scheduler/GetStatus",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SchedulerServer).GetStatus(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var _Scheduler_serviceDesc = grpc.ServiceDesc{
	ServiceName: "dispatchapi.Scheduler",
	HandlerType: (*SchedulerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RegisterWorker",
			Handler:    _Scheduler_RegisterWorker_Handler,
		},
		{
			MethodName: "AcquireJob",
			Handler:    _Scheduler_AcquireJob_Handler,
		},
		{
			MethodName: "RemainingCount",
			Handler:    _Scheduler_RemainingCount_Handler,
		},
		{
			MethodName: "JobDone",
			Handler:    _Scheduler_JobDone_Handler,
		},
		{
			MethodName: "ListWorkers",
			Handler:    _Scheduler_ListWorkers_Handler,
		},
		{
			MethodName: "GetStatus",
			Handler:    _Scheduler_GetStatus_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pkg/dispatchapi/scheduler.go",
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{CallOption()}, opts...)
}
