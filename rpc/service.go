// Package rpc exposes the vault over gRPC so scripts and other tools can back
// up and restore saves while the emulator runs. Messages are protobuf
// well-known types; no generated code is needed.
package rpc

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"psxvault/engine"
	"psxvault/interfaces"
	"psxvault/session"
)

const ServiceName = "psxvault.Vault"

// Engine is the subset of the view model the service drives.
type Engine interface {
	ExportMemoryCard(ctx context.Context) ([]byte, error)
	ImportMemoryCard(ctx context.Context, data []byte) (bool, error)
	ExportState(ctx context.Context) ([]byte, error)
	LoadState(ctx context.Context, data []byte) error
	SelectSlot(n int) error
	ExportSlot() (*interfaces.Download, error)
}

// VaultServer is the server API for the psxvault.Vault service.
type VaultServer interface {
	ExportMemoryCard(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
	ImportMemoryCard(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error)
	SaveState(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
	LoadState(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
	SelectSlot(context.Context, *wrapperspb.Int32Value) (*emptypb.Empty, error)
	ExportSlot(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
}

// Service implements VaultServer on top of an Engine.
type Service struct {
	e Engine
}

func NewService(e Engine) *Service {
	return &Service{e: e}
}

func (s *Service) ExportMemoryCard(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	data, err := s.e.ExportMemoryCard(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(data), nil
}

func (s *Service) ImportMemoryCard(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	accepted, err := s.e.ImportMemoryCard(ctx, in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bool(accepted), nil
}

func (s *Service) SaveState(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	data, err := s.e.ExportState(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(data), nil
}

func (s *Service) LoadState(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	if err := s.e.LoadState(ctx, in.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) SelectSlot(_ context.Context, in *wrapperspb.Int32Value) (*emptypb.Empty, error) {
	if err := s.e.SelectSlot(int(in.GetValue())); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) ExportSlot(_ context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	dl, err := s.e.ExportSlot()
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(dl.Data), nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, engine.ErrUnavailable), errors.Is(err, engine.ErrNotAccepted):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, engine.ErrEmptyData), errors.Is(err, session.ErrBadSlot):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, session.ErrNoSlotData):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// NewServer creates a gRPC server with the vault registered and every call
// logged.
func NewServer(e Engine, log *zap.SugaredLogger) *grpc.Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(log)))
	RegisterVaultServer(s, NewService(e))
	return s
}

func loggingInterceptor(log *zap.SugaredLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		rsp, err := handler(ctx, req)
		if err != nil {
			log.Warnf("rpc: %s failed after %v: %v", info.FullMethod, time.Since(start), err)
		} else {
			log.Infof("rpc: %s ok in %v", info.FullMethod, time.Since(start))
		}
		return rsp, err
	}
}
