package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/gabapcia/dappkit/internal/chains"
	"github.com/gabapcia/dappkit/internal/pkg/validator"

	"gopkg.in/yaml.v3"
)

// Wallet transports.
const (
	WalletBridge = "bridge"
	WalletRPC    = "rpc"
)

var ErrDuplicateWallet = errors.New("duplicate wallet name")

// Wallet is a wallet endpoint the CLI announces on startup.
type Wallet struct {
	Name string `yaml:"name" validate:"required"`
	Kind string `yaml:"kind" validate:"required,oneof=bridge rpc"`
	URL  string `yaml:"url" validate:"required,url"`
	Icon string `yaml:"icon"`
	RDNS string `yaml:"rdns"`
}

// Catalog lists the supported networks and the wallets to announce.
type Catalog struct {
	Networks []chains.Network
	Wallets  []Wallet
}

type walletsFile struct {
	Wallets []Wallet `yaml:"wallets"`
}

// DefaultCatalog is used when no catalog file is configured: Ethereum
// mainnet and no wallets.
func DefaultCatalog() Catalog {
	return Catalog{Networks: chains.DefaultNetworks()}
}

// LoadCatalog reads the catalog at path, or returns DefaultCatalog when
// path is empty.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, err
	}

	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog. Networks go through the chains
// parser; wallets are validated here and must have unique names.
func ParseCatalog(data []byte) (Catalog, error) {
	networks, err := chains.ParseNetworks(data)
	if err != nil {
		return Catalog{}, err
	}

	var file walletsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Catalog{}, fmt.Errorf("failed to decode wallets: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Wallets))
	for _, w := range file.Wallets {
		if err := validator.Validate(w); err != nil {
			return Catalog{}, fmt.Errorf("wallet %q: %w", w.Name, err)
		}
		if _, ok := seen[w.Name]; ok {
			return Catalog{}, fmt.Errorf("%w: %s", ErrDuplicateWallet, w.Name)
		}
		seen[w.Name] = struct{}{}
	}

	return Catalog{Networks: networks, Wallets: file.Wallets}, nil
}
