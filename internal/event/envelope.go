package event

import (
	"time"

	"github.com/google/uuid"
)

// OutcomeType discriminator for outcome records
type OutcomeType int32

const (
	OutcomeTypeUnknown OutcomeType = iota
	OutcomeTypeLedgerInitialized
	OutcomeTypeMinted
	OutcomeTypeBurned
	OutcomeTypeTransferred
	OutcomeTypeReservesUpdated
	OutcomeTypeFeeRecipientUpdated
	OutcomeTypeMarketplaceInitialized
	OutcomeTypeAssetListed
	OutcomeTypeAssetValuation
	OutcomeTypeAssetRisk
	OutcomeTypeAssetTransferred
	OutcomeTypeAssetLiquidated
	OutcomeTypeThresholdUpdated
)

// Envelope wraps every outcome record in the log
type Envelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Originating request
	RequestID uuid.UUID

	// Stable idempotency key of the originating request
	IdempotencyKey string

	// Outcome type discriminator
	Type OutcomeType

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// SHA-256 of state AFTER applying the originating request
	StateHash [32]byte

	// Previous outcome's state hash (chain integrity)
	PrevHash [32]byte
}

func (ot OutcomeType) String() string {
	switch ot {
	case OutcomeTypeLedgerInitialized:
		return "LedgerInitialized"
	case OutcomeTypeMinted:
		return "Minted"
	case OutcomeTypeBurned:
		return "Burned"
	case OutcomeTypeTransferred:
		return "Transferred"
	case OutcomeTypeReservesUpdated:
		return "ReservesUpdated"
	case OutcomeTypeFeeRecipientUpdated:
		return "FeeRecipientUpdated"
	case OutcomeTypeMarketplaceInitialized:
		return "MarketplaceInitialized"
	case OutcomeTypeAssetListed:
		return "AssetListed"
	case OutcomeTypeAssetValuation:
		return "AssetValuation"
	case OutcomeTypeAssetRisk:
		return "AssetRisk"
	case OutcomeTypeAssetTransferred:
		return "AssetTransferred"
	case OutcomeTypeAssetLiquidated:
		return "AssetLiquidated"
	case OutcomeTypeThresholdUpdated:
		return "ThresholdUpdated"
	default:
		return "Unknown"
	}
}
