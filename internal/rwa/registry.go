package rwa

import (
	"sort"

	"EstabloLedger/internal/identity"
)

// MarketplaceState is the singleton marketplace record. AssetCount only
// ever increases; DefaultThresholdPct applies to future listings only.
type MarketplaceState struct {
	Admin               identity.ID
	LedgerRef           identity.ID
	CertAuthority       identity.ID
	AssetCount          uint64
	DefaultThresholdPct uint32
}

// Initialized reports whether initialize has run.
func (m *MarketplaceState) Initialized() bool {
	return !m.Admin.IsZero()
}

// Registry holds all collateral assets keyed by asset mint ref.
// Not thread-safe: the engine serializes all operations.
type Registry struct {
	assets map[identity.ID]*CollateralAsset
}

func NewRegistry() *Registry {
	return &Registry{
		assets: make(map[identity.ID]*CollateralAsset),
	}
}

// Get returns the asset or nil
func (r *Registry) Get(assetRef identity.ID) *CollateralAsset {
	return r.assets[assetRef]
}

// Put inserts or replaces an asset record
func (r *Registry) Put(asset *CollateralAsset) {
	r.assets[asset.AssetMintRef] = asset
}

// Len returns the number of registered assets
func (r *Registry) Len() int {
	return len(r.assets)
}

// All returns assets sorted by asset mint ref, for deterministic hashing
// and serialization.
func (r *Registry) All() []*CollateralAsset {
	result := make([]*CollateralAsset, 0, len(r.assets))
	for _, asset := range r.assets {
		result = append(result, asset)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AssetMintRef.String() < result[j].AssetMintRef.String()
	})
	return result
}
