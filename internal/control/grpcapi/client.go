package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a thin SandboxControl client over keyed maps.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func (c *Client) invoke(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// CreateSession creates a session; body follows the REST creation form.
func (c *Client) CreateSession(ctx context.Context, body map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	if body == nil {
		body = map[string]any{}
	}
	return c.invoke(ctx, MethodCreateSession, body, opts...)
}

func (c *Client) GetSession(ctx context.Context, id string, opts ...grpc.CallOption) (map[string]any, error) {
	return c.invoke(ctx, MethodGetSession, map[string]any{"session_id": id}, opts...)
}

func (c *Client) ListSessions(ctx context.Context, opts ...grpc.CallOption) (map[string]any, error) {
	return c.invoke(ctx, MethodListSessions, map[string]any{}, opts...)
}

func (c *Client) DeleteSession(ctx context.Context, id string, opts ...grpc.CallOption) error {
	_, err := c.invoke(ctx, MethodDeleteSession, map[string]any{"session_id": id}, opts...)
	return err
}

func (c *Client) ResetSession(ctx context.Context, id string, opts ...grpc.CallOption) (map[string]any, error) {
	return c.invoke(ctx, MethodResetSession, map[string]any{"session_id": id}, opts...)
}

func (c *Client) RunToCompletion(ctx context.Context, id string, replay bool, opts ...grpc.CallOption) (map[string]any, error) {
	return c.invoke(ctx, MethodRunToCompletion, map[string]any{"session_id": id, "replay": replay}, opts...)
}

func (c *Client) Step(ctx context.Context, id string, opts ...grpc.CallOption) (map[string]any, error) {
	return c.invoke(ctx, MethodStep, map[string]any{"session_id": id}, opts...)
}

// Control sends one live control message in its keyed form.
func (c *Client) Control(ctx context.Context, msg map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	return c.invoke(ctx, MethodControl, msg, opts...)
}

// WatchStream receives Watch frames.
type WatchStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next frame. io.EOF marks a clean end of stream.
func (w *WatchStream) Recv() (map[string]any, error) {
	out := new(structpb.Struct)
	if err := w.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Watch opens an event stream for a session.
func (c *Client) Watch(ctx context.Context, id string, untilComplete bool, opts ...grpc.CallOption) (*WatchStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], MethodWatch, opts...)
	if err != nil {
		return nil, err
	}
	in, err := structpb.NewStruct(map[string]any{"session_id": id, "until_complete": untilComplete})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchStream{stream: stream}, nil
}
