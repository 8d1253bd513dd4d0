package rpc

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/Permutize/smart-accounts/batch"
)

// Result is a decoded execution record response.
type Result struct {
	Principal string
	Nonce     uint64
	Digest    string
	Simulated bool
}

// Client wraps the Account gRPC service for relayers and the CLI.
type Client struct {
	cc     *grpc.ClientConn
	client AccountClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
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
	return &Client{cc: cc, client: NewAccountClient(cc)}, nil
}

// NewClient wraps an existing connection (e.g. a bufconn in tests).
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewAccountClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) ctx() (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(context.Background(), c.Timeout)
	}
	return context.Background(), func() {}
}

// Submit executes a canonical signed envelope strictly.
func (c *Client) Submit(envelope []byte) (Result, error) {
	ctx, cancel := c.ctx()
	defer cancel()
	out, err := c.client.Submit(ctx, wrapperspb.Bytes(envelope))
	if err != nil {
		return Result{}, err
	}
	return decodeResult(out)
}

// Simulate previews a canonical signed envelope best-effort.
func (c *Client) Simulate(envelope []byte) (Result, error) {
	ctx, cancel := c.ctx()
	defer cancel()
	out, err := c.client.Simulate(ctx, wrapperspb.Bytes(envelope))
	if err != nil {
		return Result{}, err
	}
	return decodeResult(out)
}

// Nonce returns the next-expected nonce for a principal.
func (c *Client) Nonce(principal batch.Address) (uint64, error) {
	ctx, cancel := c.ctx()
	defer cancel()
	out, err := c.client.Nonce(ctx, wrapperspb.String(principal.String()))
	if err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// Digest returns the canonical digest CID for an encoded batch.
func (c *Client) Digest(encodedBatch []byte) (string, error) {
	ctx, cancel := c.ctx()
	defer cancel()
	out, err := c.client.Digest(ctx, wrapperspb.Bytes(encodedBatch))
	if err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

func decodeResult(s *structpb.Struct) (Result, error) {
	fields := s.GetFields()
	nonceStr := fields["nonce"].GetStringValue()
	n, err := strconv.ParseUint(nonceStr, 10, 64)
	if err != nil {
		return Result{}, fmt.Errorf("record nonce %q: %w", nonceStr, err)
	}
	return Result{
		Principal: fields["principal"].GetStringValue(),
		Nonce:     n,
		Digest:    fields["digest"].GetStringValue(),
		Simulated: fields["simulated"].GetBoolValue(),
	}, nil
}
