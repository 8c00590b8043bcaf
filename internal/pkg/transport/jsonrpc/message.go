package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Version is the only protocol version spoken by this package.
const Version = "2.0"

// Error codes returned by wallet providers on top of the JSON-RPC 2.0 set
// (EIP-1193 and EIP-3326).
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupported       = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902
	CodeMethodNotFound    = -32601
	CodeInternal          = -32603
)

// ErrProviderReturnedError indicates that the remote JSON-RPC server returned an error response.
var ErrProviderReturnedError = errors.New("provider error")

// Error is the error object carried by a failed JSON-RPC response.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: [%d] - %s", ErrProviderReturnedError, e.Code, e.Message)
}

// Is reports every Error as ErrProviderReturnedError.
func (e *Error) Is(target error) bool {
	return target == ErrProviderReturnedError
}

// ErrorCode extracts the JSON-RPC code from err, if it carries one.
func ErrorCode(err error) (int, bool) {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Code, true
	}
	return 0, false
}

// Message is the union of every JSON-RPC 2.0 frame: requests, responses and
// notifications. Which fields are set tells them apart.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsNotification reports whether m is a server push without an id.
func (m Message) IsNotification() bool {
	return m.ID == "" && m.Method != ""
}

// IsResponse reports whether m answers a previous request.
func (m Message) IsResponse() bool {
	return m.ID != "" && m.Method == ""
}

// Err returns the response error, or nil on success.
func (m Message) Err() error {
	if m.Error == nil {
		return nil
	}
	return m.Error
}

// NewRequest builds a request frame with a fresh UUID id. A nil params list
// is sent as an empty array since several nodes reject a null value.
func NewRequest(method string, params ...any) (Message, error) {
	if params == nil {
		params = []any{}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return Message{}, err
	}

	return Message{
		JSONRPC: Version,
		ID:      uuid.NewString(),
		Method:  method,
		Params:  raw,
	}, nil
}

// NewResult builds a successful response to the request with the given id.
func NewResult(id string, result any) (Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Message{}, err
	}
	return Message{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewErrorResponse builds a failed response to the request with the given id.
func NewErrorResponse(id string, code int, message string) Message {
	return Message{JSONRPC: Version, ID: id, Error: &Error{Code: code, Message: message}}
}

// NewNotification builds an id-less server push.
func NewNotification(method string, params any) (Message, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Message{}, err
	}
	return Message{JSONRPC: Version, Method: method, Params: raw}, nil
}
