// Package chains holds the catalog of supported EVM networks and the
// ChainID value type every other package uses to talk about them.
package chains

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/gabapcia/dappkit/internal/pkg/types"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"
)

// ErrInvalidChainID is wrapped by every ParseChainID failure.
var ErrInvalidChainID = errors.New("invalid chain id")

// caip2Namespace is the CAIP-2 namespace of EVM chains.
const caip2Namespace = "eip155:"

// ChainID identifies an EVM network. The zero value is not a valid id.
type ChainID uint64

// ParseChainID normalizes the many shapes a chain id travels in:
//
//   - hex strings ("0x89") as returned by eth_chainId
//   - decimal strings ("137")
//   - CAIP-2 strings ("eip155:137")
//   - Go integer kinds, integral float64, *big.Int and json.Number
//
// Anything else, zero or a value that does not fit in 64 bits returns an
// error wrapping ErrInvalidChainID.
func ParseChainID(v any) (ChainID, error) {
	switch id := v.(type) {
	case ChainID:
		return checkNonZero(uint64(id), v)
	case string:
		return parseChainIDString(id)
	case types.Hex:
		return parseChainIDString(string(id))
	case json.Number:
		return parseChainIDString(id.String())
	case int:
		return fromSigned(int64(id), v)
	case int8:
		return fromSigned(int64(id), v)
	case int16:
		return fromSigned(int64(id), v)
	case int32:
		return fromSigned(int64(id), v)
	case int64:
		return fromSigned(id, v)
	case uint:
		return checkNonZero(uint64(id), v)
	case uint8:
		return checkNonZero(uint64(id), v)
	case uint16:
		return checkNonZero(uint64(id), v)
	case uint32:
		return checkNonZero(uint64(id), v)
	case uint64:
		return checkNonZero(id, v)
	case float64:
		if id != math.Trunc(id) || id <= 0 || id >= math.MaxUint64 {
			return 0, fmt.Errorf("%w: %v", ErrInvalidChainID, v)
		}
		return ChainID(id), nil
	case *big.Int:
		if id == nil || !id.IsUint64() {
			return 0, fmt.Errorf("%w: %v", ErrInvalidChainID, v)
		}
		return checkNonZero(id.Uint64(), v)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidChainID, v)
	}
}

// MustParseChainID is ParseChainID for literals known to be valid.
func MustParseChainID(v any) ChainID {
	id, err := ParseChainID(v)
	if err != nil {
		panic(err)
	}
	return id
}

func parseChainIDString(s string) (ChainID, error) {
	raw := strings.TrimSpace(s)

	var (
		n   uint64
		err error
	)
	switch {
	case strings.HasPrefix(raw, "0x"), strings.HasPrefix(raw, "0X"):
		n, err = strconv.ParseUint(raw[2:], 16, 64)
	case strings.HasPrefix(raw, caip2Namespace):
		n, err = strconv.ParseUint(strings.TrimPrefix(raw, caip2Namespace), 10, 64)
	default:
		n, err = strconv.ParseUint(raw, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChainID, s)
	}

	return checkNonZero(n, s)
}

func fromSigned(n int64, v any) (ChainID, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidChainID, v)
	}
	return ChainID(n), nil
}

func checkNonZero(n uint64, v any) (ChainID, error) {
	if n == 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidChainID, v)
	}
	return ChainID(n), nil
}

// Uint64 returns the numeric id.
func (c ChainID) Uint64() uint64 {
	return uint64(c)
}

// Hex returns the 0x-prefixed form used by wallet RPC methods.
func (c ChainID) Hex() string {
	return hexutil.EncodeUint64(uint64(c))
}

// String returns the decimal form.
func (c ChainID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// CAIP2 returns the chain id in "eip155:<id>" form.
func (c ChainID) CAIP2() string {
	return caip2Namespace + c.String()
}

// Big returns the id as a big.Int for go-ethereum APIs.
func (c ChainID) Big() *big.Int {
	return new(big.Int).SetUint64(uint64(c))
}

// UnmarshalYAML accepts both `chainId: 137` and `chainId: "0x89"`.
func (c *ChainID) UnmarshalYAML(value *yaml.Node) error {
	id, err := ParseChainID(value.Value)
	if err != nil {
		return err
	}

	*c = id
	return nil
}

// MarshalJSON encodes the id as a JSON number.
func (c ChainID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint64(c))
}

// UnmarshalJSON accepts a JSON number or any string form ParseChainID understands.
func (c *ChainID) UnmarshalJSON(data []byte) error {
	var raw any
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChainID, err)
	}

	id, err := ParseChainID(raw)
	if err != nil {
		return err
	}

	*c = id
	return nil
}
