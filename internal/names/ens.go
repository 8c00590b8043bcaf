package names

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ENSRegistry is the ENS registry with fallback on Ethereum mainnet.
var ENSRegistry = common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e")

const ipfsGateway = "https://ipfs.io/ipfs/"

const ensRegistryABIJSON = `[
	{"name":"resolver","type":"function","stateMutability":"view",
	 "inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]}
]`

const ensResolverABIJSON = `[
	{"name":"name","type":"function","stateMutability":"view",
	 "inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"string"}]},
	{"name":"addr","type":"function","stateMutability":"view",
	 "inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"text","type":"function","stateMutability":"view",
	 "inputs":[{"name":"node","type":"bytes32"},{"name":"key","type":"string"}],"outputs":[{"name":"","type":"string"}]}
]`

var (
	ensRegistryABI = mustParseABI(ensRegistryABIJSON)
	ensResolverABI = mustParseABI(ensResolverABIJSON)
)

// namehash implements the ENS name hashing algorithm (EIP-137).
func namehash(name string) common.Hash {
	var node common.Hash
	if name == "" {
		return node
	}

	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		label := crypto.Keccak256Hash([]byte(labels[i]))
		node = crypto.Keccak256Hash(node.Bytes(), label.Bytes())
	}
	return node
}

func reverseNode(address common.Address) common.Hash {
	return namehash(strings.ToLower(strings.TrimPrefix(address.Hex(), "0x")) + ".addr.reverse")
}

type ensResolver struct{}

// resolve reads the reverse record of address and keeps it only when the
// name resolves forward to the same address.
func (ensResolver) resolve(ctx context.Context, caller ContractCaller, address common.Address) (Result, error) {
	node := reverseNode(address)

	reverseResolver, err := callAddress(ctx, caller, ensRegistryABI, ENSRegistry, "resolver", node)
	if err != nil || reverseResolver == (common.Address{}) {
		return Result{}, err
	}

	name, err := callString(ctx, caller, ensResolverABI, reverseResolver, "name", node)
	if err != nil || name == "" {
		return Result{}, err
	}

	forward := namehash(name)
	forwardResolver, err := callAddress(ctx, caller, ensRegistryABI, ENSRegistry, "resolver", forward)
	if err != nil || forwardResolver == (common.Address{}) {
		return Result{}, err
	}

	resolved, err := callAddress(ctx, caller, ensResolverABI, forwardResolver, "addr", forward)
	if err != nil {
		return Result{}, err
	}
	if resolved != address {
		return Result{}, nil
	}

	// a missing avatar does not invalidate the name
	avatar, _ := callString(ctx, caller, ensResolverABI, forwardResolver, "text", forward, "avatar")

	return Result{Name: name, Avatar: avatarURL(avatar), Source: SourceENS}, nil
}

func avatarURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if cid, ok := strings.CutPrefix(raw, "ipfs://"); ok {
		return ipfsGateway + strings.TrimPrefix(cid, "ipfs/")
	}
	return raw
}
