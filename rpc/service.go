// Package rpc exposes one account's execution engine over gRPC for relayers
// and tooling.
//
// The service descriptor is hand-written over protobuf well-known types
// (BytesValue/StringValue/UInt64Value/Struct) so this package does not
// require a protoc/codegen toolchain. Requests carry the canonical binary
// batch/envelope encodings; responses carry records as structs.
//
// Proto definition: account.proto.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "permutize.smartaccounts.v1.Account"

// AccountServer is the server API for the Account gRPC service.
type AccountServer interface {
	// Submit executes a signed envelope strictly.
	Submit(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)

	// Simulate previews a signed envelope best-effort.
	Simulate(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)

	// Nonce returns the next-expected nonce for a hex principal address.
	Nonce(context.Context, *wrapperspb.StringValue) (*wrapperspb.UInt64Value, error)

	// Digest returns the canonical digest CID for an encoded batch.
	Digest(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
}

// UnimplementedAccountServer can be embedded to have forward compatible
// implementations.
type UnimplementedAccountServer struct{}

func (UnimplementedAccountServer) Submit(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Submit not implemented")
}
func (UnimplementedAccountServer) Simulate(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Simulate not implemented")
}
func (UnimplementedAccountServer) Nonce(context.Context, *wrapperspb.StringValue) (*wrapperspb.UInt64Value, error) {
	return nil, status.Error(codes.Unimplemented, "method Nonce not implemented")
}
func (UnimplementedAccountServer) Digest(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Digest not implemented")
}

// RegisterAccountServer registers the Account service on a gRPC server.
func RegisterAccountServer(s grpc.ServiceRegistrar, srv AccountServer) {
	s.RegisterService(&Account_ServiceDesc, srv)
}

// AccountClient is the client API for the Account gRPC service.
type AccountClient interface {
	Submit(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	Simulate(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	Nonce(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.UInt64Value, error)
	Digest(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
}

type accountClient struct{ cc grpc.ClientConnInterface }

func NewAccountClient(cc grpc.ClientConnInterface) AccountClient { return &accountClient{cc: cc} }

func (c *accountClient) Submit(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/Submit", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *accountClient) Simulate(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/Simulate", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *accountClient) Nonce(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.UInt64Value, error) {
	out := new(wrapperspb.UInt64Value)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/Nonce", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *accountClient) Digest(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/Digest", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func _Account_Submit_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccountServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Submit"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AccountServer).Submit(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Account_Simulate_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccountServer).Simulate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Simulate"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AccountServer).Simulate(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Account_Nonce_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccountServer).Nonce(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Nonce"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AccountServer).Nonce(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Account_Digest_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccountServer).Digest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Digest"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AccountServer).Digest(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Account_ServiceDesc is the grpc.ServiceDesc for the Account service.
var Account_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AccountServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: _Account_Submit_Handler},
		{MethodName: "Simulate", Handler: _Account_Simulate_Handler},
		{MethodName: "Nonce", Handler: _Account_Nonce_Handler},
		{MethodName: "Digest", Handler: _Account_Digest_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "account.proto",
}
