// Package jsonrpc implements JSON-RPC 2.0 framing plus an HTTP client for it.
// The frame types are shared by every transport in the module: the HTTP
// client below and the websocket wallet bridge.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	httptransport "github.com/gabapcia/dappkit/internal/pkg/transport/http"

	"github.com/hashicorp/go-retryablehttp"
)

// response is the subset of a response frame the HTTP client needs. Node ids
// may be numbers, so the id is not decoded.
type response struct {
	Error  *Error          `json:"error"`
	Result json.RawMessage `json:"result"`
}

// Client defines the interface for a generic JSON-RPC client.
type Client interface {
	// Fetch sends a JSON-RPC request with the given method name and parameters.
	// It returns the raw JSON result or an error if the request or response fails.
	Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// client sends JSON-RPC requests to a single endpoint over a retrying HTTP client.
type client struct {
	providerEndpoint string
	httpClient       *retryablehttp.Client
}

// Compile-time assertion that client implements the Client interface.
var _ Client = (*client)(nil)

// Fetch sends a JSON-RPC request to the remote server with the given method and parameters.
// It returns the raw result as a json.RawMessage or an error if the request or server fails.
// Server-side failures are returned as *Error.
func (c *client) Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	msg, err := NewRequest(method, params...)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.providerEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var data response
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		if res.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("unexpected status %d from %s", res.StatusCode, c.providerEndpoint)
		}
		return nil, err
	}

	if data.Error != nil {
		return nil, data.Error
	}

	if res.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("unexpected status %d from %s", res.StatusCode, c.providerEndpoint)
	}

	return data.Result, nil
}

// NewClient constructs a Client that sends JSON-RPC requests to the
// given endpoint. The options tune the underlying retrying HTTP client.
func NewClient(providerEndpoint string, opts ...httptransport.Option) *client {
	return &client{
		providerEndpoint: providerEndpoint,
		httpClient:       httptransport.NewClient(opts...),
	}
}
