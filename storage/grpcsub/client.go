package grpcsub

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rrauch/ark/address"
	"github.com/rrauch/ark/codec"
	"github.com/rrauch/ark/storage"
)

// Client implements storage.Substrate over the substrate gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client SubstrateClient

	// Timeout applies per RPC when non-zero, in addition to the caller's
	// context.
	Timeout time.Duration
}

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewSubstrateClient(cc)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(parent, c.Timeout)
	}
	return context.WithCancel(parent)
}

func (c *Client) Put(parent context.Context, data []byte) (cid.Cid, error) {
	expected, err := storage.ContentID(data)
	if err != nil {
		return cid.Undef, err
	}

	ctx, cancel := c.ctx(parent)
	defer cancel()

	reply, err := c.client.Put(ctx, wrapperspb.Bytes(data))
	if err != nil {
		return cid.Undef, mapRPC(err)
	}
	id, err := cid.Decode(reply.GetValue())
	if err != nil || !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}
	if id != expected {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func (c *Client) Get(parent context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	ctx, cancel := c.ctx(parent)
	defer cancel()

	reply, err := c.client.Get(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return nil, mapRPC(err)
	}
	b := reply.GetValue()
	got, err := storage.ContentID(b)
	if err != nil {
		return nil, err
	}
	if got != id {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *Client) Has(parent context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	ctx, cancel := c.ctx(parent)
	defer cancel()

	reply, err := c.client.Has(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return false
	}
	return reply.GetValue()
}

func (c *Client) GetPointer(parent context.Context, addr address.Address) (storage.PointerRecord, error) {
	ctx, cancel := c.ctx(parent)
	defer cancel()

	reply, err := c.client.GetPointer(ctx, wrapperspb.String(addr.String()))
	if err != nil {
		return storage.PointerRecord{}, mapRPC(err)
	}
	return storage.DecodeRecord(reply.GetValue())
}

func (c *Client) PutPointer(parent context.Context, addr address.Address, rec storage.PointerRecord) error {
	recData, err := storage.EncodeRecord(rec)
	if err != nil {
		return err
	}
	env, err := codec.Marshal(putPointerEnvelope{Address: addr.String(), Record: recData})
	if err != nil {
		return err
	}

	ctx, cancel := c.ctx(parent)
	defer cancel()

	if _, err := c.client.PutPointer(ctx, wrapperspb.Bytes(env)); err != nil {
		return mapRPC(err)
	}
	return nil
}
