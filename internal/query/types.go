package query

import "time"

// LedgerStatusResponse is the projected ledger summary for API queries.
type LedgerStatusResponse struct {
	Admin        string `json:"admin"`
	MintRef      string `json:"mint_ref"`
	FeeRecipient string `json:"fee_recipient"`
	Decimals     int16  `json:"decimals"`

	TotalSupply           uint64 `json:"total_supply"`
	ReserveLiquid         uint64 `json:"reserve_liquid"`
	CollateralBase        uint64 `json:"collateral_base"`
	CollateralValue       uint64 `json:"collateral_value"`
	FeeContributionsTotal uint64 `json:"fee_contributions_total"`

	// Derived at query time from the projected reserve columns.
	TotalBacking uint64 `json:"total_backing"`
	FullyBacked  bool   `json:"fully_backed"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// AssetResponse represents a collateral asset for API queries.
type AssetResponse struct {
	AssetMintRef      string    `json:"asset_mint_ref"`
	Owner             string    `json:"owner"`
	CurrentValue      uint64    `json:"current_value"`
	InitialValue      uint64    `json:"initial_value"`
	Status            string    `json:"status"`
	ThresholdPct      int16     `json:"threshold_pct"`
	Location          string    `json:"location"`
	Details           string    `json:"details"`
	LastValuationTime time.Time `json:"last_valuation_time"`
	AsOfSequence      int64     `json:"as_of_sequence"`
}

// ValuationHistoryEntry represents one revaluation record for API queries.
type ValuationHistoryEntry struct {
	AssetMintRef string    `json:"asset_mint_ref"`
	Sequence     int64     `json:"sequence"`
	OldValue     uint64    `json:"old_value"`
	NewValue     uint64    `json:"new_value"`
	Status       string    `json:"status"`
	ValuedAt     time.Time `json:"valued_at"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// IntegrityReport is the result of an outcome-log integrity check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	CheckedThrough  int64   `json:"checked_through"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	SequenceGaps    []int64 `json:"sequence_gaps,omitempty"`
}
