package chains

import (
	"fmt"

	"github.com/gabapcia/dappkit/internal/pkg/validator"
)

// DefaultExplorerURL is used for transaction links on chains without an
// explorer of their own.
const DefaultExplorerURL = "https://etherscan.io/tx/"

// Network describes one supported chain. Visible networks form the
// allow-list: a wallet sitting on any other chain gets a warning.
type Network struct {
	// Key is the stable identifier, e.g. "ethereum". RPC overrides are
	// stored under "<Key>-rpc".
	Key         string  `yaml:"key" validate:"required"`
	Name        string  `yaml:"name" validate:"required"`
	RPCURL      string  `yaml:"rpcUrl" validate:"required,rpc_url"`
	ChainID     ChainID `yaml:"chainId" validate:"required"`
	ExplorerURL string  `yaml:"explorerUrl" validate:"omitempty,url"`
	Icon        string  `yaml:"icon"`
	Visible     bool    `yaml:"visible"`
}

// Validate checks the descriptor's required fields and URL formats.
func (n Network) Validate() error {
	if err := validator.Validate(n); err != nil {
		return fmt.Errorf("network %q: %w", n.Key, err)
	}
	return nil
}

// TxURL links hash on the network's explorer.
func (n Network) TxURL(hash string) string {
	if n.ExplorerURL == "" {
		return DefaultExplorerURL + hash
	}
	return n.ExplorerURL + hash
}

// Ethereum is the built-in mainnet descriptor used when no catalog is loaded.
var Ethereum = Network{
	Key:         "ethereum",
	Name:        "Ethereum",
	RPCURL:      "https://ethereum-rpc.publicnode.com",
	ChainID:     1,
	ExplorerURL: DefaultExplorerURL,
	Icon:        "./assets/img/eth.png",
	Visible:     true,
}

// DefaultNetworks returns the built-in catalog.
func DefaultNetworks() []Network {
	return []Network{Ethereum}
}
