package sysprintv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jamesainslie/sysprint/pkg/sysprint/compare"
)

// ComparisonClient is the client API for the Comparison service.
type ComparisonClient struct {
	cc grpc.ClientConnInterface
}

// NewComparisonClient returns a client calling through cc.
func NewComparisonClient(cc grpc.ClientConnInterface) *ComparisonClient {
	return &ComparisonClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req any, opts []grpc.CallOption) (*Resp, error) {
	in, err := Encode(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	resp := new(Resp)
	if err := Decode(out, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *ComparisonClient) Upload(ctx context.Context, in *UploadRequest, opts ...grpc.CallOption) (*Project, error) {
	return invoke[Project](ctx, c.cc, "Upload", in, opts)
}

func (c *ComparisonClient) List(ctx context.Context, in *ListRequest, opts ...grpc.CallOption) (*ListResponse, error) {
	return invoke[ListResponse](ctx, c.cc, "List", in, opts)
}

func (c *ComparisonClient) Get(ctx context.Context, in *GetRequest, opts ...grpc.CallOption) (*Project, error) {
	return invoke[Project](ctx, c.cc, "Get", in, opts)
}

func (c *ComparisonClient) Compare(ctx context.Context, in *CompareRequest, opts ...grpc.CallOption) (*CompareResponse, error) {
	return invoke[CompareResponse](ctx, c.cc, "Compare", in, opts)
}

func (c *ComparisonClient) FileDiff(ctx context.Context, in *FileDiffRequest, opts ...grpc.CallOption) (*compare.FileDiff, error) {
	return invoke[compare.FileDiff](ctx, c.cc, "FileDiff", in, opts)
}

func (c *ComparisonClient) Export(ctx context.Context, in *ExportRequest, opts ...grpc.CallOption) (*ExportResponse, error) {
	return invoke[ExportResponse](ctx, c.cc, "Export", in, opts)
}

func (c *ComparisonClient) Delete(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteResponse, error) {
	return invoke[DeleteResponse](ctx, c.cc, "Delete", in, opts)
}

func (c *ComparisonClient) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, "Status", in, opts)
}

func (c *ComparisonClient) Shutdown(ctx context.Context, in *ShutdownRequest, opts ...grpc.CallOption) (*ShutdownResponse, error) {
	return invoke[ShutdownResponse](ctx, c.cc, "Shutdown", in, opts)
}

// EventStream is the client side of a WatchProjects stream.
type EventStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event. It returns io.EOF when the server ends
// the stream.
func (s *EventStream) Recv() (*ProjectEvent, error) {
	out := new(structpb.Struct)
	if err := s.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	ev := new(ProjectEvent)
	if err := Decode(out, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (c *ComparisonClient) WatchProjects(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (*EventStream, error) {
	stream, err := c.cc.NewStream(ctx, &ComparisonServiceDesc.Streams[0], fullMethod("WatchProjects"), opts...)
	if err != nil {
		return nil, err
	}
	msg, err := Encode(in)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(msg); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}
