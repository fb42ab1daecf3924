package rpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// ErrUnavailable is returned when the peer can't be reached, as opposed to
// the peer rejecting the request.
var ErrUnavailable = errors.New("peer unavailable")

// Client sends RPCs to a peer node.
type Client struct {
	conn *grpc.ClientConn
	addr string
}

// Dial creates a client for the peer at the given address.
//
// The connection is established lazily so Dial doesn't block.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial: %s: %w", addr, err)
	}
	return &Client{
		conn: conn,
		addr: addr,
	}, nil
}

func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) Connect(ctx context.Context, req *NodeInfo) (*NodeInfo, error) {
	var resp NodeInfo
	if err := c.invoke(ctx, TypeConnect, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Echo(ctx context.Context, req *Echo) (*Echo, error) {
	var resp Echo
	if err := c.invoke(ctx, TypeEcho, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Pull(ctx context.Context, req *SlotUpdate) (*UpdateResult, error) {
	var resp UpdateResult
	if err := c.invoke(ctx, TypePull, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Heartbeat(ctx context.Context, req *NodeVersion) (*NodeVersion, error) {
	var resp NodeVersion
	if err := c.invoke(ctx, TypeHeartbeat, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) NewNodeNotify(ctx context.Context, req *NodeInfo) (*UpdateResult, error) {
	var resp UpdateResult
	if err := c.invoke(ctx, TypeNewNodeNotify, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) DeleteNodeNotify(ctx context.Context, req *NodeInfo) (*UpdateResult, error) {
	var resp UpdateResult
	if err := c.invoke(ctx, TypeDeleteNodeNotify, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, rpcType Type, req any, resp any) error {
	err := c.conn.Invoke(ctx, rpcType.FullMethod(), req, resp)
	if err == nil {
		return nil
	}

	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf(
			"%s: %w: %s", rpcType, ErrUnavailable, status.Convert(err).Message(),
		)
	default:
		return fmt.Errorf("%s: %w", rpcType, err)
	}
}
