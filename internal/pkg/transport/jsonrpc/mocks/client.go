// Package mocks provides a testify mock of jsonrpc.Client.
package mocks

import (
	"context"
	"encoding/json"

	"github.com/gabapcia/dappkit/internal/pkg/transport/jsonrpc"

	"github.com/stretchr/testify/mock"
)

// Client is a mock of jsonrpc.Client. Expectations receive ctx, method and
// then each param as separate arguments.
type Client struct {
	mock.Mock
}

var _ jsonrpc.Client = (*Client)(nil)

// Fetch records the call and returns the configured result. The first
// return value may be a json.RawMessage, a string of JSON or nil.
func (m *Client) Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	args := append([]any{ctx, method}, params...)
	ret := m.Called(args...)

	var result json.RawMessage
	switch v := ret.Get(0).(type) {
	case json.RawMessage:
		result = v
	case string:
		result = json.RawMessage(v)
	}

	return result, ret.Error(1)
}

// NewClient creates a mock that asserts its expectations when t finishes.
func NewClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *Client {
	m := new(Client)
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
