package chains

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/gabapcia/dappkit/internal/pkg/types"

	"gopkg.in/yaml.v3"
)

var (
	ErrNetworkNotFound  = errors.New("network not found")
	ErrDuplicateChainID = errors.New("duplicate chain id")
	ErrDuplicateNetwork = errors.New("duplicate network key")
	ErrEmptyCatalog     = errors.New("catalog has no networks")
)

// RPCOverrides supplies user-configured RPC endpoints that replace a
// network's default one. Lookups that fail behave as "no override".
type RPCOverrides interface {
	RPCOverride(ctx context.Context, network string) (string, bool)
}

// Registry is the read-only table of supported networks.
type Registry struct {
	networks  []Network
	byKey     map[string]int
	byChainID map[ChainID]int
	allowed   types.Set[ChainID]
	overrides RPCOverrides
}

type config struct {
	overrides RPCOverrides
}

// Option configures a Registry.
type Option func(*config)

// WithRPCOverrides makes RPCURL consult o before the static endpoint.
func WithRPCOverrides(o RPCOverrides) Option {
	return func(c *config) {
		c.overrides = o
	}
}

// NewRegistry validates networks and indexes them. Keys and chain ids must be
// unique across the catalog.
func NewRegistry(networks []Network, opts ...Option) (*Registry, error) {
	if len(networks) == 0 {
		return nil, ErrEmptyCatalog
	}

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Registry{
		networks:  slices.Clone(networks),
		byKey:     make(map[string]int, len(networks)),
		byChainID: make(map[ChainID]int, len(networks)),
		allowed:   types.NewSet[ChainID](),
		overrides: cfg.overrides,
	}

	var errs []error
	for i, n := range r.networks {
		if err := n.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}

		if _, ok := r.byKey[n.Key]; ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateNetwork, n.Key))
			continue
		}

		if other, ok := r.byChainID[n.ChainID]; ok {
			errs = append(errs, fmt.Errorf("%w: %s used by %s and %s", ErrDuplicateChainID, n.ChainID, r.networks[other].Key, n.Key))
			continue
		}

		r.byKey[n.Key] = i
		r.byChainID[n.ChainID] = i
		if n.Visible {
			r.allowed.Add(n.ChainID)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return r, nil
}

// WithOverrides returns a copy of r that reads RPC overrides from o.
func (r *Registry) WithOverrides(o RPCOverrides) *Registry {
	clone := *r
	clone.overrides = o
	return &clone
}

// Networks returns every network in catalog order.
func (r *Registry) Networks() []Network {
	return slices.Clone(r.networks)
}

// Visible returns the allow-listed networks in catalog order.
func (r *Registry) Visible() []Network {
	visible := make([]Network, 0, len(r.allowed))
	for _, n := range r.networks {
		if n.Visible {
			visible = append(visible, n)
		}
	}
	return visible
}

// ByKey looks a network up by its identifier.
func (r *Registry) ByKey(key string) (Network, bool) {
	i, ok := r.byKey[key]
	if !ok {
		return Network{}, false
	}
	return r.networks[i], true
}

// ByChainID looks a network up by its chain id.
func (r *Registry) ByChainID(id ChainID) (Network, bool) {
	i, ok := r.byChainID[id]
	if !ok {
		return Network{}, false
	}
	return r.networks[i], true
}

// IsAllowed reports whether id belongs to a visible network.
func (r *Registry) IsAllowed(id ChainID) bool {
	return r.allowed.Has(id)
}

// AllowedChainIDs returns the allow-list in ascending order.
func (r *Registry) AllowedChainIDs() []ChainID {
	return types.Sorted(r.allowed)
}

// DisplayName returns the network name for id, or "Unknown (0x..)".
func (r *Registry) DisplayName(id ChainID) string {
	if n, ok := r.ByChainID(id); ok {
		return n.Name
	}
	return fmt.Sprintf("Unknown (%s)", id.Hex())
}

// TxURL links hash on the explorer of chain id, falling back to etherscan.
func (r *Registry) TxURL(id ChainID, hash string) string {
	if n, ok := r.ByChainID(id); ok {
		return n.TxURL(hash)
	}
	return DefaultExplorerURL + hash
}

// RPCURL returns the endpoint for the network key, preferring a user
// override over the catalog value.
func (r *Registry) RPCURL(ctx context.Context, key string) (string, error) {
	n, ok := r.ByKey(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNetworkNotFound, key)
	}

	if r.overrides != nil {
		if url, ok := r.overrides.RPCOverride(ctx, key); ok && url != "" {
			return url, nil
		}
	}

	return n.RPCURL, nil
}

// catalogFile is the on-disk shape of a network catalog.
type catalogFile struct {
	Networks []Network `yaml:"networks"`
}

// LoadNetworks reads a YAML catalog of networks from path.
func LoadNetworks(path string) ([]Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParseNetworks(data)
}

// ParseNetworks decodes a YAML catalog of networks.
func ParseNetworks(data []byte) ([]Network, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode network catalog: %w", err)
	}

	if len(file.Networks) == 0 {
		return nil, ErrEmptyCatalog
	}

	return file.Networks, nil
}
