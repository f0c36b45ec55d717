package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/talsheldon/mcp-league/pkg/protocol"
)

// Retry policy for transient transport failures.
const (
	retryInitialInterval = 1 * time.Second
	retryMaxInterval     = 10 * time.Second
	retryMultiplier      = 2.0
	maxRetries           = 3
)

// RemoteError is a JSON-RPC error object returned by a peer. It is never
// retried: the peer answered, it just refused.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// Client posts league messages to peer endpoints.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a client whose calls are bounded by defaultTimeout
// unless the caller's context imposes a tighter deadline.
func NewClient(defaultTimeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		timeout:    defaultTimeout,
	}
}

// Call sends one message to endpoint and returns the peer's reply message.
// A nil reply with nil error means the peer returned an empty result.
func (c *Client) Call(ctx context.Context, endpoint string, msg *protocol.Message) (*protocol.Message, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	body, err := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  Method,
		Params:  Params{Message: raw},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s to %s: %w", msg.MessageType, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", endpoint, err)
	}

	var rpcResp Response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", endpoint, err)
	}
	if rpcResp.Error != nil {
		return nil, &RemoteError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return nil, nil
	}

	var reply protocol.Message
	if err := json.Unmarshal(rpcResp.Result, &reply); err != nil {
		return nil, fmt.Errorf("decode result from %s: %w", endpoint, err)
	}
	return &reply, nil
}

// CallWithRetry wraps Call in exponential backoff (1s initial, factor 2,
// 10s cap, up to 3 retries) for transient transport failures. Remote error
// envelopes are not retried.
func (c *Client) CallWithRetry(ctx context.Context, endpoint string, msg *protocol.Message) (*protocol.Message, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval
	bo.MaxInterval = retryMaxInterval
	bo.Multiplier = retryMultiplier

	return backoff.RetryWithData(func() (*protocol.Message, error) {
		reply, err := c.Call(ctx, endpoint, msg)
		if err != nil {
			var remote *RemoteError
			if errors.As(err, &remote) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return reply, nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
}

// Notify sends a fan-out message, logging and swallowing any failure.
// Used where the round must progress regardless of individual deliveries.
func (c *Client) Notify(ctx context.Context, endpoint string, msg *protocol.Message) {
	if _, err := c.Call(ctx, endpoint, msg); err != nil {
		slog.Error("Fan-out delivery failed",
			"message_type", msg.MessageType,
			"endpoint", endpoint,
			"error", err)
	}
}
