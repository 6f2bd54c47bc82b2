package event

import (
	"time"

	"github.com/google/uuid"

	"EstabloLedger/internal/identity"
)

// RequestType discriminator for operation requests
type RequestType int32

const (
	RequestTypeUnknown RequestType = iota
	RequestTypeInitLedger
	RequestTypeMint
	RequestTypeBurn
	RequestTypeTransfer
	RequestTypeUpdateReserves
	RequestTypeUpdateFeeRecipient
	RequestTypeInitMarketplace
	RequestTypeListAsset
	RequestTypeRevalueAsset
	RequestTypeTransferAsset
	RequestTypeLiquidateAsset
	RequestTypeSetThreshold
)

func (rt RequestType) String() string {
	switch rt {
	case RequestTypeInitLedger:
		return "InitLedger"
	case RequestTypeMint:
		return "Mint"
	case RequestTypeBurn:
		return "Burn"
	case RequestTypeTransfer:
		return "Transfer"
	case RequestTypeUpdateReserves:
		return "UpdateReserves"
	case RequestTypeUpdateFeeRecipient:
		return "UpdateFeeRecipient"
	case RequestTypeInitMarketplace:
		return "InitMarketplace"
	case RequestTypeListAsset:
		return "ListAsset"
	case RequestTypeRevalueAsset:
		return "RevalueAsset"
	case RequestTypeTransferAsset:
		return "TransferAsset"
	case RequestTypeLiquidateAsset:
		return "LiquidateAsset"
	case RequestTypeSetThreshold:
		return "SetThreshold"
	default:
		return "Unknown"
	}
}

// Request is the interface all operation requests implement. The caller
// identity arrives pre-verified by the authorization layer; the core only
// compares it against stored admin/owner fields.
type Request interface {
	// Kind returns the discriminator
	Kind() RequestType

	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// CallerID returns the verified caller identity
	CallerID() identity.ID

	// RequestTime returns the versioned input timestamp
	RequestTime() time.Time

	// Ref returns the unique request id
	Ref() uuid.UUID
}

// InitLedger creates the singleton LedgerState. The caller becomes admin.
type InitLedger struct {
	RequestID       uuid.UUID   `json:"request_id"`
	Caller          identity.ID `json:"caller"`
	ReserveAssetRef identity.ID `json:"reserve_asset_ref"`
	FeeRecipient    identity.ID `json:"fee_recipient"`
	MintRef         identity.ID `json:"mint_ref"`
	Decimals        uint8       `json:"decimals"`
	Timestamp       time.Time   `json:"timestamp"`
}

func (r *InitLedger) Kind() RequestType      { return RequestTypeInitLedger }
func (r *InitLedger) IdempotencyKey() string { return "init-ledger:" + r.RequestID.String() }
func (r *InitLedger) CallerID() identity.ID  { return r.Caller }
func (r *InitLedger) RequestTime() time.Time { return r.Timestamp }
func (r *InitLedger) Ref() uuid.UUID         { return r.RequestID }

// Mint issues new supply to a recipient, subject to the backing check.
type Mint struct {
	RequestID uuid.UUID   `json:"request_id"`
	Caller    identity.ID `json:"caller"`
	Recipient identity.ID `json:"recipient"`
	Amount    uint64      `json:"amount"`
	Timestamp time.Time   `json:"timestamp"`
}

func (r *Mint) Kind() RequestType      { return RequestTypeMint }
func (r *Mint) IdempotencyKey() string { return "mint:" + r.RequestID.String() }
func (r *Mint) CallerID() identity.ID  { return r.Caller }
func (r *Mint) RequestTime() time.Time { return r.Timestamp }
func (r *Mint) Ref() uuid.UUID         { return r.RequestID }

// Burn retires supply from a holder and releases liquid reserve 1:1.
type Burn struct {
	RequestID uuid.UUID   `json:"request_id"`
	Caller    identity.ID `json:"caller"`
	From      identity.ID `json:"from"`
	Amount    uint64      `json:"amount"`
	Timestamp time.Time   `json:"timestamp"`
}

func (r *Burn) Kind() RequestType      { return RequestTypeBurn }
func (r *Burn) IdempotencyKey() string { return "burn:" + r.RequestID.String() }
func (r *Burn) CallerID() identity.ID  { return r.Caller }
func (r *Burn) RequestTime() time.Time { return r.Timestamp }
func (r *Burn) Ref() uuid.UUID         { return r.RequestID }

// Transfer moves tokens from the caller to a recipient with the fee split.
type Transfer struct {
	RequestID uuid.UUID   `json:"request_id"`
	Caller    identity.ID `json:"caller"`
	Recipient identity.ID `json:"recipient"`
	Amount    uint64      `json:"amount"`
	Timestamp time.Time   `json:"timestamp"`
}

func (r *Transfer) Kind() RequestType      { return RequestTypeTransfer }
func (r *Transfer) IdempotencyKey() string { return "transfer:" + r.RequestID.String() }
func (r *Transfer) CallerID() identity.ID  { return r.Caller }
func (r *Transfer) RequestTime() time.Time { return r.Timestamp }
func (r *Transfer) Ref() uuid.UUID         { return r.RequestID }

// UpdateReserves sets the admin-reported liquid reserve and base collateral
// value. Per-asset collateral contributions are tracked separately and added
// on top of the base.
type UpdateReserves struct {
	RequestID      uuid.UUID   `json:"request_id"`
	Caller         identity.ID `json:"caller"`
	LiquidAmount   uint64      `json:"liquid_amount"`
	CollateralBase uint64      `json:"collateral_base"`
	Timestamp      time.Time   `json:"timestamp"`
}

func (r *UpdateReserves) Kind() RequestType      { return RequestTypeUpdateReserves }
func (r *UpdateReserves) IdempotencyKey() string { return "reserves:" + r.RequestID.String() }
func (r *UpdateReserves) CallerID() identity.ID  { return r.Caller }
func (r *UpdateReserves) RequestTime() time.Time { return r.Timestamp }
func (r *UpdateReserves) Ref() uuid.UUID         { return r.RequestID }

// UpdateFeeRecipient redirects future transfer fees.
type UpdateFeeRecipient struct {
	RequestID    uuid.UUID   `json:"request_id"`
	Caller       identity.ID `json:"caller"`
	NewRecipient identity.ID `json:"new_recipient"`
	Timestamp    time.Time   `json:"timestamp"`
}

func (r *UpdateFeeRecipient) Kind() RequestType      { return RequestTypeUpdateFeeRecipient }
func (r *UpdateFeeRecipient) IdempotencyKey() string { return "fee-recipient:" + r.RequestID.String() }
func (r *UpdateFeeRecipient) CallerID() identity.ID  { return r.Caller }
func (r *UpdateFeeRecipient) RequestTime() time.Time { return r.Timestamp }
func (r *UpdateFeeRecipient) Ref() uuid.UUID         { return r.RequestID }

// InitMarketplace creates the singleton MarketplaceState. The caller
// becomes marketplace admin.
type InitMarketplace struct {
	RequestID           uuid.UUID   `json:"request_id"`
	Caller              identity.ID `json:"caller"`
	LedgerRef           identity.ID `json:"ledger_ref"`
	DefaultThresholdPct uint32      `json:"default_threshold_pct"` // 0 → 90
	Timestamp           time.Time   `json:"timestamp"`
}

func (r *InitMarketplace) Kind() RequestType      { return RequestTypeInitMarketplace }
func (r *InitMarketplace) IdempotencyKey() string { return "init-marketplace:" + r.RequestID.String() }
func (r *InitMarketplace) CallerID() identity.ID  { return r.Caller }
func (r *InitMarketplace) RequestTime() time.Time { return r.Timestamp }
func (r *InitMarketplace) Ref() uuid.UUID         { return r.RequestID }

// ListAsset registers a collateral asset owned by the caller and mints its
// certificate unit.
type ListAsset struct {
	RequestID    uuid.UUID   `json:"request_id"`
	Caller       identity.ID `json:"caller"`
	AssetMintRef identity.ID `json:"asset_mint_ref"`
	Value        uint64      `json:"value"`
	Location     string      `json:"location"`
	Details      string      `json:"details"`
	// ThresholdPct overrides the marketplace default when non-nil.
	ThresholdPct *uint32   `json:"threshold_pct,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func (r *ListAsset) Kind() RequestType      { return RequestTypeListAsset }
func (r *ListAsset) IdempotencyKey() string { return "list:" + r.RequestID.String() }
func (r *ListAsset) CallerID() identity.ID  { return r.Caller }
func (r *ListAsset) RequestTime() time.Time { return r.Timestamp }
func (r *ListAsset) Ref() uuid.UUID         { return r.RequestID }

// RevalueAsset reappraises a listed asset.
type RevalueAsset struct {
	RequestID    uuid.UUID   `json:"request_id"`
	Caller       identity.ID `json:"caller"`
	AssetMintRef identity.ID `json:"asset_mint_ref"`
	NewValue     uint64      `json:"new_value"`
	Timestamp    time.Time   `json:"timestamp"`
}

func (r *RevalueAsset) Kind() RequestType      { return RequestTypeRevalueAsset }
func (r *RevalueAsset) IdempotencyKey() string { return "revalue:" + r.RequestID.String() }
func (r *RevalueAsset) CallerID() identity.ID  { return r.Caller }
func (r *RevalueAsset) RequestTime() time.Time { return r.Timestamp }
func (r *RevalueAsset) Ref() uuid.UUID         { return r.RequestID }

// TransferAsset moves asset ownership; the caller must be the current owner.
type TransferAsset struct {
	RequestID    uuid.UUID   `json:"request_id"`
	Caller       identity.ID `json:"caller"`
	AssetMintRef identity.ID `json:"asset_mint_ref"`
	NewOwner     identity.ID `json:"new_owner"`
	Timestamp    time.Time   `json:"timestamp"`
}

func (r *TransferAsset) Kind() RequestType      { return RequestTypeTransferAsset }
func (r *TransferAsset) IdempotencyKey() string { return "asset-transfer:" + r.RequestID.String() }
func (r *TransferAsset) CallerID() identity.ID  { return r.Caller }
func (r *TransferAsset) RequestTime() time.Time { return r.Timestamp }
func (r *TransferAsset) Ref() uuid.UUID         { return r.RequestID }

// LiquidateAsset seizes an at-risk asset's certificate.
type LiquidateAsset struct {
	RequestID    uuid.UUID   `json:"request_id"`
	Caller       identity.ID `json:"caller"`
	AssetMintRef identity.ID `json:"asset_mint_ref"`
	Timestamp    time.Time   `json:"timestamp"`
}

func (r *LiquidateAsset) Kind() RequestType      { return RequestTypeLiquidateAsset }
func (r *LiquidateAsset) IdempotencyKey() string { return "liquidate:" + r.RequestID.String() }
func (r *LiquidateAsset) CallerID() identity.ID  { return r.Caller }
func (r *LiquidateAsset) RequestTime() time.Time { return r.Timestamp }
func (r *LiquidateAsset) Ref() uuid.UUID         { return r.RequestID }

// SetThreshold updates the marketplace default liquidation threshold.
// Existing assets keep their per-asset threshold.
type SetThreshold struct {
	RequestID uuid.UUID   `json:"request_id"`
	Caller    identity.ID `json:"caller"`
	Pct       uint32      `json:"pct"`
	Timestamp time.Time   `json:"timestamp"`
}

func (r *SetThreshold) Kind() RequestType      { return RequestTypeSetThreshold }
func (r *SetThreshold) IdempotencyKey() string { return "threshold:" + r.RequestID.String() }
func (r *SetThreshold) CallerID() identity.ID  { return r.Caller }
func (r *SetThreshold) RequestTime() time.Time { return r.Timestamp }
func (r *SetThreshold) Ref() uuid.UUID         { return r.RequestID }
