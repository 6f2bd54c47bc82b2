package rwa

import (
	"time"

	"EstabloLedger/internal/identity"
)

// AssetStatus tracks a collateral asset through its lifecycle
type AssetStatus int32

const (
	StatusListed AssetStatus = iota
	StatusAtRisk
	StatusLiquidated
)

func (as AssetStatus) String() string {
	switch as {
	case StatusListed:
		return "Listed"
	case StatusAtRisk:
		return "AtRisk"
	case StatusLiquidated:
		return "Liquidated"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates status transitions. Listed and AtRisk may
// oscillate on revaluation; Liquidated is terminal and reachable only
// from AtRisk.
func (as AssetStatus) CanTransitionTo(next AssetStatus) bool {
	validTransitions := map[AssetStatus][]AssetStatus{
		StatusListed: {
			StatusAtRisk,
		},
		StatusAtRisk: {
			StatusListed,
			StatusLiquidated,
		},
		StatusLiquidated: {},
	}

	allowed, ok := validTransitions[as]
	if !ok {
		return false
	}

	for _, allowedStatus := range allowed {
		if next == allowedStatus {
			return true
		}
	}

	return false
}

// CollateralAsset is one registered illiquid asset whose appraised value
// contributes to minting backing. Keyed by AssetMintRef.
type CollateralAsset struct {
	Owner                   identity.ID
	AssetMintRef            identity.ID
	CurrentValue            uint64
	InitialValue            uint64
	LastValuationTime       time.Time
	Location                string
	Details                 string
	Status                  AssetStatus
	LiquidationThresholdPct uint32
	Version                 int64
}

// CanonicalBytes returns deterministic serialization for hashing
func (a *CollateralAsset) CanonicalBytes() []byte {
	buf := make([]byte, 0, 160)

	buf = append(buf, a.Owner[:]...)
	buf = append(buf, a.AssetMintRef[:]...)
	buf = appendUint64LE(buf, a.CurrentValue)
	buf = appendUint64LE(buf, a.InitialValue)
	buf = appendUint64LE(buf, uint64(a.LastValuationTime.UnixMicro()))

	// location, details (length-prefixed)
	buf = appendUint64LE(buf, uint64(len(a.Location)))
	buf = append(buf, []byte(a.Location)...)
	buf = appendUint64LE(buf, uint64(len(a.Details)))
	buf = append(buf, []byte(a.Details)...)

	buf = append(buf, byte(a.Status))
	buf = appendUint64LE(buf, uint64(a.LiquidationThresholdPct))

	return buf
}

func appendUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}
