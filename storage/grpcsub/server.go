package grpcsub

import (
	"context"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rrauch/ark/address"
	"github.com/rrauch/ark/codec"
	"github.com/rrauch/ark/storage"
)

// putPointerEnvelope pairs an address with its canonical record bytes for
// the PutPointer RPC.
type putPointerEnvelope struct {
	Address string `cbor:"address"`
	Record  []byte `cbor:"record"`
}

// Server exposes a storage.Substrate over the substrate gRPC service.
type Server struct {
	UnimplementedSubstrateServer
	Substrate storage.Substrate
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Substrate == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing substrate")
	}
	b := in.GetValue()
	// Enforce the CID contract on the server side too.
	expected, err := storage.ContentID(b)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	id, err := s.Substrate.Put(ctx, b)
	if err != nil {
		return nil, mapErr(err)
	}
	if id != expected {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Substrate == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing substrate")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	b, err := s.Substrate.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	got, err := storage.ContentID(b)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	if got != id {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.Substrate == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing substrate")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	return wrapperspb.Bool(s.Substrate.Has(ctx, id)), nil
}

func (s *Server) GetPointer(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Substrate == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing substrate")
	}
	addr, err := address.Parse(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed address")
	}
	rec, err := s.Substrate.GetPointer(ctx, addr)
	if err != nil {
		return nil, mapErr(err)
	}
	data, err := storage.EncodeRecord(rec)
	if err != nil {
		return nil, status.Error(codes.Internal, "record encoding failed")
	}
	return wrapperspb.Bytes(data), nil
}

func (s *Server) PutPointer(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.Substrate == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing substrate")
	}
	var env putPointerEnvelope
	if err := codec.Unmarshal(in.GetValue(), &env); err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed envelope")
	}
	addr, err := address.Parse(env.Address)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed address")
	}
	rec, err := storage.DecodeRecord(env.Record)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed record")
	}
	if err := s.Substrate.PutPointer(ctx, addr, rec); err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bool(true), nil
}
