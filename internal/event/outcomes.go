package event

import (
	"time"

	"EstabloLedger/internal/identity"
)

// Outcome is the interface all outcome records implement. Outcome records
// are append-only and observable by external monitors; one request may
// produce more than one (revalue below the floor emits both a valuation
// record and a risk record).
type Outcome interface {
	OutcomeType() OutcomeType
}

// LedgerInitialized records creation of the LedgerState singleton.
type LedgerInitialized struct {
	Admin           identity.ID `json:"admin"`
	ReserveAssetRef identity.ID `json:"reserve_asset_ref"`
	ReserveAccount  identity.ID `json:"reserve_account"`
	FeeRecipient    identity.ID `json:"fee_recipient"`
	MintRef         identity.ID `json:"mint_ref"`
	Decimals        uint8       `json:"decimals"`
}

func (o *LedgerInitialized) OutcomeType() OutcomeType { return OutcomeTypeLedgerInitialized }

// Minted records an issuance that passed the backing check.
type Minted struct {
	Recipient          identity.ID `json:"recipient"`
	Amount             uint64      `json:"amount"`
	RequiredLiquid     uint64      `json:"required_liquid"`
	RequiredCollateral uint64      `json:"required_collateral"`
	TotalSupply        uint64      `json:"total_supply"`
}

func (o *Minted) OutcomeType() OutcomeType { return OutcomeTypeMinted }

// Burned records a supply retirement and the matching reserve release.
type Burned struct {
	From           identity.ID `json:"from"`
	Amount         uint64      `json:"amount"`
	ReleasedLiquid uint64      `json:"released_liquid"`
	TotalSupply    uint64      `json:"total_supply"`
}

func (o *Burned) OutcomeType() OutcomeType { return OutcomeTypeBurned }

// Transferred records a fee-split transfer.
type Transferred struct {
	Sender                identity.ID `json:"sender"`
	Recipient             identity.ID `json:"recipient"`
	AmountAfterFee        uint64      `json:"amount_after_fee"`
	Fee                   uint64      `json:"fee"`
	FeeRecipient          identity.ID `json:"fee_recipient"`
	FeeContributionsTotal uint64      `json:"fee_contributions_total"`
}

func (o *Transferred) OutcomeType() OutcomeType { return OutcomeTypeTransferred }

// ReservesUpdated records an admin reserve adjustment. CollateralValue is
// the recomputed total (base plus per-asset contributions).
type ReservesUpdated struct {
	LiquidAmount    uint64 `json:"liquid_amount"`
	CollateralBase  uint64 `json:"collateral_base"`
	CollateralValue uint64 `json:"collateral_value"`
}

func (o *ReservesUpdated) OutcomeType() OutcomeType { return OutcomeTypeReservesUpdated }

// FeeRecipientUpdated records a fee-recipient rotation.
type FeeRecipientUpdated struct {
	Previous identity.ID `json:"previous"`
	New      identity.ID `json:"new"`
}

func (o *FeeRecipientUpdated) OutcomeType() OutcomeType { return OutcomeTypeFeeRecipientUpdated }

// MarketplaceInitialized records creation of the MarketplaceState singleton.
type MarketplaceInitialized struct {
	Admin               identity.ID `json:"admin"`
	LedgerRef           identity.ID `json:"ledger_ref"`
	DefaultThresholdPct uint32      `json:"default_threshold_pct"`
}

func (o *MarketplaceInitialized) OutcomeType() OutcomeType { return OutcomeTypeMarketplaceInitialized }

// AssetListed records a new collateral asset registration.
type AssetListed struct {
	AssetMintRef identity.ID `json:"asset_mint_ref"`
	Owner        identity.ID `json:"owner"`
	Value        uint64      `json:"value"`
	ThresholdPct uint32      `json:"threshold_pct"`
	AssetCount   uint64      `json:"asset_count"`
}

func (o *AssetListed) OutcomeType() OutcomeType { return OutcomeTypeAssetListed }

// AssetValuation records a completed revaluation.
type AssetValuation struct {
	AssetMintRef identity.ID `json:"asset_mint_ref"`
	OldValue     uint64      `json:"old_value"`
	NewValue     uint64      `json:"new_value"`
	Status       string      `json:"status"`
	ValuedAt     time.Time   `json:"valued_at"`
}

func (o *AssetValuation) OutcomeType() OutcomeType { return OutcomeTypeAssetValuation }

// AssetRisk is the risk warning emitted whenever a revaluation lands below
// the liquidation floor, including re-confirmations while already at risk.
type AssetRisk struct {
	AssetMintRef     identity.ID `json:"asset_mint_ref"`
	CurrentValue     uint64      `json:"current_value"`
	LiquidationFloor uint64      `json:"liquidation_floor"`
}

func (o *AssetRisk) OutcomeType() OutcomeType { return OutcomeTypeAssetRisk }

// AssetTransferred records an ownership change of the certificate unit.
type AssetTransferred struct {
	AssetMintRef  identity.ID `json:"asset_mint_ref"`
	PreviousOwner identity.ID `json:"previous_owner"`
	NewOwner      identity.ID `json:"new_owner"`
}

func (o *AssetTransferred) OutcomeType() OutcomeType { return OutcomeTypeAssetTransferred }

// AssetLiquidated records a terminal seizure of an at-risk asset.
type AssetLiquidated struct {
	AssetMintRef  identity.ID `json:"asset_mint_ref"`
	PreviousOwner identity.ID `json:"previous_owner"`
	SeizedBy      identity.ID `json:"seized_by"`
	FinalValue    uint64      `json:"final_value"`
}

func (o *AssetLiquidated) OutcomeType() OutcomeType { return OutcomeTypeAssetLiquidated }

// ThresholdUpdated records a change to the marketplace default threshold.
type ThresholdUpdated struct {
	Previous uint32 `json:"previous"`
	New      uint32 `json:"new"`
}

func (o *ThresholdUpdated) OutcomeType() OutcomeType { return OutcomeTypeThresholdUpdated }
