package names

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var errEmptyOutput = errors.New("contract returned no output")

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// call packs method with args, calls the contract at to and unpacks the
// single return value.
func call(ctx context.Context, caller ContractCaller, contract abi.ABI, to common.Address, method string, args ...any) (any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", method, to.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s on %s: %w", method, to.Hex(), errEmptyOutput)
	}

	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s on %s: expected one return value, got %d", method, to.Hex(), len(values))
	}

	return values[0], nil
}

func callString(ctx context.Context, caller ContractCaller, contract abi.ABI, to common.Address, method string, args ...any) (string, error) {
	v, err := call(ctx, caller, contract, to, method, args...)
	if err != nil {
		return "", err
	}

	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s on %s: unexpected return type %T", method, to.Hex(), v)
	}
	return s, nil
}

func callAddress(ctx context.Context, caller ContractCaller, contract abi.ABI, to common.Address, method string, args ...any) (common.Address, error) {
	v, err := call(ctx, caller, contract, to, method, args...)
	if err != nil {
		return common.Address{}, err
	}

	addr, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s on %s: unexpected return type %T", method, to.Hex(), v)
	}
	return addr, nil
}
