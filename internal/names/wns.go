package names

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// WNSContract is the Wei Name Service registry on Ethereum mainnet.
var WNSContract = common.HexToAddress("0x0000000000696760E15f265e828DB644A0c242EB")

const wnsABIJSON = `[
	{"name":"reverseResolve","type":"function","stateMutability":"view",
	 "inputs":[{"name":"addr","type":"address"}],"outputs":[{"name":"","type":"string"}]},
	{"name":"resolve","type":"function","stateMutability":"view",
	 "inputs":[{"name":"name","type":"string"}],"outputs":[{"name":"","type":"address"}]}
]`

var wnsABI = mustParseABI(wnsABIJSON)

type wnsResolver struct{}

func (wnsResolver) resolve(ctx context.Context, caller ContractCaller, address common.Address) (Result, error) {
	name, err := callString(ctx, caller, wnsABI, WNSContract, "reverseResolve", address)
	if err != nil {
		return Result{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return Result{}, nil
	}
	return Result{Name: name, Source: SourceWNS}, nil
}
