// Package grpcsub carries the substrate contract over gRPC: content-
// addressed Put/Get/Has plus the authenticated pointer operations.
//
// We intentionally use protobuf well-known wrapper types so this package
// does not require a protoc/codegen toolchain. Pointer records travel as
// their canonical CBOR encoding inside BytesValue.
package grpcsub

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "/rrauch.ark.storage.grpcsub.v1.Substrate/"

// SubstrateServer is the server API for the substrate gRPC service.
type SubstrateServer interface {
	Put(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	GetPointer(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	PutPointer(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error)
}

// UnimplementedSubstrateServer can be embedded to have forward compatible
// implementations.
type UnimplementedSubstrateServer struct{}

func (UnimplementedSubstrateServer) Put(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Put not implemented")
}
func (UnimplementedSubstrateServer) Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Get not implemented")
}
func (UnimplementedSubstrateServer) Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Has not implemented")
}
func (UnimplementedSubstrateServer) GetPointer(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetPointer not implemented")
}
func (UnimplementedSubstrateServer) PutPointer(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "method PutPointer not implemented")
}

// RegisterSubstrateServer registers the service on a gRPC server.
func RegisterSubstrateServer(s grpc.ServiceRegistrar, srv SubstrateServer) {
	s.RegisterService(&Substrate_ServiceDesc, srv)
}

// SubstrateClient is the client API for the substrate gRPC service.
type SubstrateClient interface {
	Put(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Get(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Has(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
	GetPointer(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	PutPointer(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
}

type substrateClient struct{ cc grpc.ClientConnInterface }

func NewSubstrateClient(cc grpc.ClientConnInterface) SubstrateClient {
	return &substrateClient{cc: cc}
}

func (c *substrateClient) Put(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, serviceName+"Put", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *substrateClient) Get(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, serviceName+"Get", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *substrateClient) Has(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, serviceName+"Has", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *substrateClient) GetPointer(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, serviceName+"GetPointer", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *substrateClient) PutPointer(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, serviceName+"PutPointer", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _Substrate_Put_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SubstrateServer).Put(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "Put"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SubstrateServer).Put(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Substrate_Get_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SubstrateServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "Get"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SubstrateServer).Get(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Substrate_Has_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SubstrateServer).Has(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "Has"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SubstrateServer).Has(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Substrate_GetPointer_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SubstrateServer).GetPointer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "GetPointer"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SubstrateServer).GetPointer(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Substrate_PutPointer_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SubstrateServer).PutPointer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "PutPointer"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SubstrateServer).PutPointer(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Substrate_ServiceDesc is the grpc.ServiceDesc for the Substrate service.
var Substrate_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "rrauch.ark.storage.grpcsub.v1.Substrate",
	HandlerType: (*SubstrateServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Put", Handler: _Substrate_Put_Handler},
		{MethodName: "Get", Handler: _Substrate_Get_Handler},
		{MethodName: "Has", Handler: _Substrate_Has_Handler},
		{MethodName: "GetPointer", Handler: _Substrate_GetPointer_Handler},
		{MethodName: "PutPointer", Handler: _Substrate_PutPointer_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "substrate.proto",
}
