package ledger

import (
	"sort"

	"EstabloLedger/internal/identity"
)

// State is the authoritative record for one issued stable token.
//
// reserveLiquid and collateralBase are admin-reported figures; the
// effective collateral value adds the per-asset contributions reported
// through the bridge on top of the base, keyed by asset mint ref so
// repeated revaluations of the same asset replace rather than accumulate.
type State struct {
	Admin           identity.ID
	ReserveAssetRef identity.ID
	ReserveAccount  identity.ID
	FeeRecipient    identity.ID
	MintRef         identity.ID
	MintAuthority   identity.ID
	Decimals        uint8

	TotalSupply           uint64
	FeeContributionsTotal uint64

	ReserveLiquid   uint64
	CollateralBase  uint64
	CollateralValue uint64

	contributions map[identity.ID]uint64
}

func NewState() *State {
	return &State{
		contributions: make(map[identity.ID]uint64),
	}
}

// Initialized reports whether initialize has run.
func (s *State) Initialized() bool {
	return !s.MintRef.IsZero()
}

// Contribution returns the recorded collateral contribution for an asset.
func (s *State) Contribution(assetRef identity.ID) (uint64, bool) {
	v, ok := s.contributions[assetRef]
	return v, ok
}

// Contributions returns a copy of the per-asset contribution map
// (for snapshot creation).
func (s *State) Contributions() map[identity.ID]uint64 {
	result := make(map[identity.ID]uint64, len(s.contributions))
	for k, v := range s.contributions {
		result[k] = v
	}
	return result
}

// RestoreContribution directly sets an asset contribution (snapshot restore).
// The caller is responsible for recomputing CollateralValue afterwards.
func (s *State) RestoreContribution(assetRef identity.ID, value uint64) {
	s.contributions[assetRef] = value
}

// SortedContributionRefs returns asset refs in stable order, for
// deterministic hashing and serialization.
func (s *State) SortedContributionRefs() []identity.ID {
	refs := make([]identity.ID, 0, len(s.contributions))
	for ref := range s.contributions {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].String() < refs[j].String()
	})
	return refs
}
