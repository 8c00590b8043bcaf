package jsonrpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httptransport "github.com/gabapcia/dappkit/internal/pkg/transport/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Fetch(t *testing.T) {
	t.Run("sends a 2.0 request and returns the result", func(t *testing.T) {
		var got Message
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0",
				"result":  "0x1",
				"id":      1,
			})
		}))
		defer server.Close()

		c := NewClient(server.URL)

		result, err := c.Fetch(t.Context(), "eth_chainId")
		require.NoError(t, err)
		assert.JSONEq(t, `"0x1"`, string(result))

		assert.Equal(t, Version, got.JSONRPC)
		assert.Equal(t, "eth_chainId", got.Method)
		assert.NotEmpty(t, got.ID)
		assert.JSONEq(t, `[]`, string(got.Params))
	})

	t.Run("response with JSON-RPC error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0",
				"error": map[string]any{
					"code":    -32601,
					"message": "method not found",
				},
				"id": "1",
			})
		}))
		defer server.Close()

		c := NewClient(server.URL)

		result, err := c.Fetch(t.Context(), "nonexistent_method")
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrProviderReturnedError)
		assert.Contains(t, err.Error(), "method not found")

		code, ok := ErrorCode(err)
		assert.True(t, ok)
		assert.Equal(t, CodeMethodNotFound, code)
	})

	t.Run("malformed JSON response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("this is not json"))
		}))
		defer server.Close()

		c := NewClient(server.URL)

		result, err := c.Fetch(t.Context(), "bad_json")
		assert.Error(t, err)
		assert.Nil(t, result)
		assert.Contains(t, err.Error(), "invalid character")
	})

	t.Run("client error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		c := NewClient(server.URL)

		_, err := c.Fetch(t.Context(), "eth_chainId")
		assert.ErrorContains(t, err, "unexpected status 401")
	})

	t.Run("network error when server is down", func(t *testing.T) {
		server := httptest.NewServer(nil)
		server.Close()

		c := NewClient(server.URL,
			httptransport.WithTimeout(1*time.Second),
			httptransport.WithRetryMax(0),
		)

		result, err := c.Fetch(t.Context(), "network_failure")
		assert.Error(t, err)
		assert.Nil(t, result)
	})
}

func TestNewClient(t *testing.T) {
	t.Run("forwards transport options", func(t *testing.T) {
		c := NewClient("http://localhost:8545",
			httptransport.WithTimeout(9*time.Second),
			httptransport.WithRetryMax(7),
		)

		assert.Equal(t, "http://localhost:8545", c.providerEndpoint)
		assert.Equal(t, 9*time.Second, c.httpClient.HTTPClient.Timeout)
		assert.Equal(t, 7, c.httpClient.RetryMax)
	})
}

func TestMessage(t *testing.T) {
	t.Run("request carries params as an array", func(t *testing.T) {
		msg, err := NewRequest("wallet_switchEthereumChain", map[string]string{"chainId": "0x89"})
		require.NoError(t, err)

		assert.False(t, msg.IsNotification())
		assert.False(t, msg.IsResponse())
		assert.JSONEq(t, `[{"chainId":"0x89"}]`, string(msg.Params))
	})

	t.Run("notification and response are told apart", func(t *testing.T) {
		note, err := NewNotification("wallet_event", map[string]any{"event": "disconnect"})
		require.NoError(t, err)
		assert.True(t, note.IsNotification())

		res, err := NewResult("abc", []string{"0x01"})
		require.NoError(t, err)
		assert.True(t, res.IsResponse())
		assert.NoError(t, res.Err())
	})

	t.Run("error response keeps its code", func(t *testing.T) {
		msg := NewErrorResponse("abc", CodeUserRejected, "user rejected the request")

		err := msg.Err()
		assert.ErrorIs(t, err, ErrProviderReturnedError)
		assert.Equal(t, "provider error: [4001] - user rejected the request", err.Error())

		code, ok := ErrorCode(err)
		assert.True(t, ok)
		assert.Equal(t, CodeUserRejected, code)
	})

	t.Run("error code absent from plain errors", func(t *testing.T) {
		_, ok := ErrorCode(errors.New("boom"))
		assert.False(t, ok)
	})
}
