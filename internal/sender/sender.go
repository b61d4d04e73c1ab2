// Package sender submits snapshots to a collector and polls it for commands.
package sender

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	kratoshttp "github.com/go-kratos/kratos/v2/transport/http"

	"github.com/go-tangra/go-tangra-cpuinfo/internal/api"
	_ "github.com/go-tangra/go-tangra-cpuinfo/internal/codec"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/collector"
)

const (
	sendTimeout   = 30 * time.Second
	pollMargin    = 10 * time.Second
	headerSecret  = "X-Client-Secret"
	operationPoll = "/cpuinfo.collector.v1.CollectorService/PollCommands"
	operationSend = "/cpuinfo.collector.v1.CollectorService/SubmitSnapshot"
)

// Client talks to one collector.
type Client struct {
	conn *kratoshttp.Client
}

// New connects to the collector at endpoint (http://host:port). When secret
// is non-empty, it is sent as the X-Client-Secret header. timeout bounds each
// call; long polls need it to exceed the collector's poll window.
func New(ctx context.Context, endpoint, secret string, timeout time.Duration) (*Client, error) {
	conn, err := kratoshttp.NewClient(ctx,
		kratoshttp.WithEndpoint(endpoint),
		kratoshttp.WithTimeout(timeout),
		kratoshttp.WithMiddleware(clientSecret(secret)),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to collector: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error { return c.conn.Close() }

// Submit sends a snapshot and returns where the collector stored it.
func (c *Client) Submit(ctx context.Context, snap *collector.Snapshot) (*api.SubmitSnapshotResponse, error) {
	var reply api.SubmitSnapshotResponse
	err := c.conn.Invoke(ctx, http.MethodPost, "/v1/snapshots",
		&api.SubmitSnapshotRequest{Snapshot: snap}, &reply,
		kratoshttp.Operation(operationSend))
	if err != nil {
		return nil, fmt.Errorf("submit snapshot: %w", err)
	}
	return &reply, nil
}

// PollCommands waits for commands queued for clientID. An empty result means
// the poll window elapsed.
func (c *Client) PollCommands(ctx context.Context, clientID, version string) ([]*api.Command, error) {
	path := "/v1/agents/" + url.PathEscape(clientID) + "/commands?version=" + url.QueryEscape(version)

	var reply api.PollCommandsResponse
	err := c.conn.Invoke(ctx, http.MethodGet, path, nil, &reply, kratoshttp.Operation(operationPoll))
	if err != nil {
		return nil, fmt.Errorf("poll commands: %w", err)
	}
	return reply.Commands, nil
}

// Send connects to the collector at endpoint and submits the snapshot.
// Returns the assigned record ID.
func Send(ctx context.Context, endpoint, secret string, snap *collector.Snapshot) (int64, error) {
	c, err := New(ctx, endpoint, secret, sendTimeout)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	resp, err := c.Submit(ctx, snap)
	if err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// PollTimeout is the client timeout that accommodates a collector poll
// window of wait.
func PollTimeout(wait time.Duration) time.Duration { return wait + pollMargin }

func clientSecret(secret string) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req any) (any, error) {
			if secret != "" {
				if tr, ok := transport.FromClientContext(ctx); ok {
					tr.RequestHeader().Set(headerSecret, secret)
				}
			}
			return handler(ctx, req)
		}
	}
}
