package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func RegisterVaultServer(s grpc.ServiceRegistrar, srv VaultServer) {
	s.RegisterService(&Vault_ServiceDesc, srv)
}

// unary builds the method descriptor for one VaultServer method.
func unary[Req any, Rsp any](name string, call func(VaultServer, context.Context, *Req) (*Rsp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(VaultServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(VaultServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var Vault_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VaultServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ExportMemoryCard", VaultServer.ExportMemoryCard),
		unary("ImportMemoryCard", VaultServer.ImportMemoryCard),
		unary("SaveState", VaultServer.SaveState),
		unary("LoadState", VaultServer.LoadState),
		unary("SelectSlot", VaultServer.SelectSlot),
		unary("ExportSlot", VaultServer.ExportSlot),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "psxvault/vault",
}

// VaultClient is the client API for the psxvault.Vault service.
type VaultClient struct {
	cc grpc.ClientConnInterface
}

func NewVaultClient(cc grpc.ClientConnInterface) *VaultClient {
	return &VaultClient{cc}
}

func (c *VaultClient) invoke(ctx context.Context, method string, in, out interface{}, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

func (c *VaultClient) ExportMemoryCard(ctx context.Context, opts ...grpc.CallOption) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.invoke(ctx, "ExportMemoryCard", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

func (c *VaultClient) ImportMemoryCard(ctx context.Context, data []byte, opts ...grpc.CallOption) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.invoke(ctx, "ImportMemoryCard", wrapperspb.Bytes(data), out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

func (c *VaultClient) SaveState(ctx context.Context, opts ...grpc.CallOption) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.invoke(ctx, "SaveState", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

func (c *VaultClient) LoadState(ctx context.Context, data []byte, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "LoadState", wrapperspb.Bytes(data), new(emptypb.Empty), opts...)
}

func (c *VaultClient) SelectSlot(ctx context.Context, slot int, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "SelectSlot", wrapperspb.Int32(int32(slot)), new(emptypb.Empty), opts...)
}

func (c *VaultClient) ExportSlot(ctx context.Context, opts ...grpc.CallOption) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.invoke(ctx, "ExportSlot", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}
