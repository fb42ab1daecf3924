// Package client is a client for the node HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	fspath "path"
	"time"

	"github.com/tangrc99/Gossip/node"
	"github.com/tangrc99/Gossip/pkg/middleware"
	"github.com/tangrc99/Gossip/pkg/protocol"
	"github.com/tangrc99/Gossip/pkg/rpc"
	"github.com/tangrc99/Gossip/pkg/status"
)

type Client struct {
	httpClient *http.Client

	url *url.URL

	token string
}

func NewClient(url *url.URL, token string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Second * 15,
		},
		url:   url,
		token: token,
	}
}

// Insert sets the key in the node's local slot. Returns the new slot version.
func (c *Client) Insert(ctx context.Context, key string, value string) (int64, error) {
	var resp protocol.VersionResponse
	if err := c.request(
		ctx, http.MethodPut, "/v1/keys/"+url.PathEscape(key), nil,
		&protocol.PutRequest{Value: value}, &resp,
	); err != nil {
		return 0, err
	}
	return resp.Version, nil
}

// Get returns the value of the key in the node's local slot.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	var resp protocol.GetResponse
	if err := c.request(
		ctx, http.MethodGet, "/v1/keys/"+url.PathEscape(key), nil, nil, &resp,
	); err != nil {
		return "", err
	}
	return resp.Value, nil
}

// Search returns the value of the key in every slot known to the node.
func (c *Client) Search(ctx context.Context, key string, latest bool) ([]protocol.Value, error) {
	query := url.Values{}
	if latest {
		query.Set("latest", "true")
	}

	var values []protocol.Value
	if err := c.request(
		ctx, http.MethodGet, "/v1/keys/"+url.PathEscape(key)+"/all", query, nil, &values,
	); err != nil {
		return nil, err
	}
	return values, nil
}

// Delete removes the key from the node's local slot. Returns the new slot
// version.
func (c *Client) Delete(ctx context.Context, key string) (int64, error) {
	var resp protocol.VersionResponse
	if err := c.request(
		ctx, http.MethodDelete, "/v1/keys/"+url.PathEscape(key), nil, nil, &resp,
	); err != nil {
		return 0, err
	}
	return resp.Version, nil
}

// Connect requests the node connects to the peer at the given internal
// address.
func (c *Client) Connect(ctx context.Context, addr string) error {
	var resp protocol.ConnectResponse
	if err := c.request(
		ctx, http.MethodPost, "/v1/connect", nil,
		&protocol.ConnectRequest{Address: addr}, &resp,
	); err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("connect: %s", resp.Error)
	}
	return nil
}

// Shutdown requests the node leaves the cluster and stops. Returns false if
// the node was already shutting down.
func (c *Client) Shutdown(ctx context.Context) (bool, error) {
	var resp protocol.ShutdownResponse
	if err := c.request(
		ctx, http.MethodPost, "/v1/shutdown", nil, nil, &resp,
	); err != nil {
		return false, err
	}
	return resp.Accepted, nil
}

// Echo checks the node is reachable. When called from the same host as the
// node, the node token is returned.
func (c *Client) Echo(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/echo", nil, nil)
	if err != nil {
		return "", err
	}

	var resp protocol.EchoResponse
	header, err := c.do(req, &resp)
	if err != nil {
		return "", err
	}
	if resp.Value != rpc.EchoValue {
		return "", fmt.Errorf("unexpected echo: %s", resp.Value)
	}
	return header.Get(middleware.TokenHeader), nil
}

func (c *Client) Status(ctx context.Context) (*node.Snapshot, error) {
	var snapshot node.Snapshot
	if err := c.request(
		ctx, http.MethodGet, "/status/node", nil, nil, &snapshot,
	); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *Client) Peers(ctx context.Context) ([]node.PeerRecord, error) {
	var peers []node.PeerRecord
	if err := c.request(
		ctx, http.MethodGet, "/status/node/peers", nil, nil, &peers,
	); err != nil {
		return nil, err
	}
	return peers, nil
}

func (c *Client) Slots(ctx context.Context) ([]node.SlotStatus, error) {
	var slots []node.SlotStatus
	if err := c.request(
		ctx, http.MethodGet, "/status/node/slots", nil, nil, &slots,
	); err != nil {
		return nil, err
	}
	return slots, nil
}

func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) request(
	ctx context.Context,
	method string,
	path string,
	query url.Values,
	body any,
	resp any,
) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	_, err = c.do(req, resp)
	return err
}

func (c *Client) newRequest(
	ctx context.Context,
	method string,
	path string,
	query url.Values,
	body any,
) (*http.Request, error) {
	url := new(url.URL)
	*url = *c.url

	url.Path = fspath.Join(url.Path, path)
	if len(query) > 0 {
		url.RawQuery = query.Encode()
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url.String(), r)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set(middleware.TokenHeader, c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, v any) (http.Header, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp protocol.ErrorResponse
		// If we can't decode the error message, fallback to the status
		// text.
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error == "" {
			errResp.Error = http.StatusText(resp.StatusCode)
		}
		return nil, &status.ErrorInfo{
			StatusCode: resp.StatusCode,
			Message:    errResp.Error,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return resp.Header, nil
}
