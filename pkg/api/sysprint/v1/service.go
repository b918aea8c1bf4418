package sysprintv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jamesainslie/sysprint/pkg/sysprint/compare"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "sysprint.v1.Comparison"

// ComparisonServer is the server API for the Comparison service.
type ComparisonServer interface {
	Upload(context.Context, *UploadRequest) (*Project, error)
	List(context.Context, *ListRequest) (*ListResponse, error)
	Get(context.Context, *GetRequest) (*Project, error)
	Compare(context.Context, *CompareRequest) (*CompareResponse, error)
	FileDiff(context.Context, *FileDiffRequest) (*compare.FileDiff, error)
	Export(context.Context, *ExportRequest) (*ExportResponse, error)
	Delete(context.Context, *DeleteRequest) (*DeleteResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	Shutdown(context.Context, *ShutdownRequest) (*ShutdownResponse, error)
	WatchProjects(*WatchRequest, EventSender) error
}

// EventSender is the server side of a WatchProjects stream.
type EventSender interface {
	Send(*ProjectEvent) error
	Context() context.Context
}

// UnimplementedComparisonServer can be embedded to satisfy
// ComparisonServer while only implementing some methods.
type UnimplementedComparisonServer struct{}

func (UnimplementedComparisonServer) Upload(context.Context, *UploadRequest) (*Project, error) {
	return nil, status.Error(codes.Unimplemented, "method Upload not implemented")
}
func (UnimplementedComparisonServer) List(context.Context, *ListRequest) (*ListResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method List not implemented")
}
func (UnimplementedComparisonServer) Get(context.Context, *GetRequest) (*Project, error) {
	return nil, status.Error(codes.Unimplemented, "method Get not implemented")
}
func (UnimplementedComparisonServer) Compare(context.Context, *CompareRequest) (*CompareResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Compare not implemented")
}
func (UnimplementedComparisonServer) FileDiff(context.Context, *FileDiffRequest) (*compare.FileDiff, error) {
	return nil, status.Error(codes.Unimplemented, "method FileDiff not implemented")
}
func (UnimplementedComparisonServer) Export(context.Context, *ExportRequest) (*ExportResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Export not implemented")
}
func (UnimplementedComparisonServer) Delete(context.Context, *DeleteRequest) (*DeleteResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Delete not implemented")
}
func (UnimplementedComparisonServer) Status(context.Context, *StatusRequest) (*StatusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Status not implemented")
}
func (UnimplementedComparisonServer) Shutdown(context.Context, *ShutdownRequest) (*ShutdownResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Shutdown not implemented")
}
func (UnimplementedComparisonServer) WatchProjects(*WatchRequest, EventSender) error {
	return status.Error(codes.Unimplemented, "method WatchProjects not implemented")
}

// RegisterComparisonServer registers srv on s.
func RegisterComparisonServer(s grpc.ServiceRegistrar, srv ComparisonServer) {
	s.RegisterService(&ComparisonServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unary adapts a typed server method to a grpc.MethodHandler.
func unary[Req, Resp any](name string, call func(ComparisonServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			r := new(Req)
			if err := Decode(req.(*structpb.Struct), r); err != nil {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}
			resp, err := call(srv.(ComparisonServer), ctx, r)
			if err != nil {
				return nil, err
			}
			out, err := Encode(resp)
			if err != nil {
				return nil, status.Error(codes.Internal, err.Error())
			}
			return out, nil
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		return interceptor(ctx, in, info, handler)
	}
}

type eventSender struct {
	grpc.ServerStream
}

func (s *eventSender) Send(ev *ProjectEvent) error {
	out, err := Encode(ev)
	if err != nil {
		return err
	}
	return s.ServerStream.SendMsg(out)
}

func watchProjectsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	req := new(WatchRequest)
	if err := Decode(in, req); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return srv.(ComparisonServer).WatchProjects(req, &eventSender{stream})
}

// ComparisonServiceDesc is the grpc.ServiceDesc for the Comparison service.
var ComparisonServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ComparisonServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Upload", Handler: unary("Upload", ComparisonServer.Upload)},
		{MethodName: "List", Handler: unary("List", ComparisonServer.List)},
		{MethodName: "Get", Handler: unary("Get", ComparisonServer.Get)},
		{MethodName: "Compare", Handler: unary("Compare", ComparisonServer.Compare)},
		{MethodName: "FileDiff", Handler: unary("FileDiff", ComparisonServer.FileDiff)},
		{MethodName: "Export", Handler: unary("Export", ComparisonServer.Export)},
		{MethodName: "Delete", Handler: unary("Delete", ComparisonServer.Delete)},
		{MethodName: "Status", Handler: unary("Status", ComparisonServer.Status)},
		{MethodName: "Shutdown", Handler: unary("Shutdown", ComparisonServer.Shutdown)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchProjects",
			Handler:       watchProjectsHandler,
			ServerStreams: true,
		},
	},
}
