package core

import (
	"fmt"
	"strings"

	"EstabloLedger/internal/identity"
	"EstabloLedger/internal/rwa"
)

// SnapshotState is the JSON-serializable capture of the core's in-memory
// state. On warm restart the latest snapshot is loaded and the event log
// replayed from Sequence+1.
type SnapshotState struct {
	Sequence  int64  `json:"sequence"`
	StateHash []byte `json:"state_hash"`

	Ledger LedgerSnapshot        `json:"ledger"`
	Market MarketSnapshot        `json:"market"`
	Assets []*rwa.CollateralAsset `json:"assets"`

	Tokens []TokenSnapshot `json:"tokens"`
	// Balances keys are "token:holder" hex paths as produced by the book.
	Balances map[string]uint64 `json:"balances"`

	IdempotencyKeys []string `json:"idempotency_keys"`
}

type LedgerSnapshot struct {
	Admin           identity.ID `json:"admin"`
	ReserveAssetRef identity.ID `json:"reserve_asset_ref"`
	ReserveAccount  identity.ID `json:"reserve_account"`
	FeeRecipient    identity.ID `json:"fee_recipient"`
	MintRef         identity.ID `json:"mint_ref"`
	MintAuthority   identity.ID `json:"mint_authority"`
	Decimals        uint8       `json:"decimals"`

	TotalSupply           uint64 `json:"total_supply"`
	FeeContributionsTotal uint64 `json:"fee_contributions_total"`
	ReserveLiquid         uint64 `json:"reserve_liquid"`
	CollateralBase        uint64 `json:"collateral_base"`
	CollateralValue       uint64 `json:"collateral_value"`

	Contributions map[identity.ID]uint64 `json:"contributions"`
}

type MarketSnapshot struct {
	Admin               identity.ID `json:"admin"`
	LedgerRef           identity.ID `json:"ledger_ref"`
	CertAuthority       identity.ID `json:"cert_authority"`
	AssetCount          uint64      `json:"asset_count"`
	DefaultThresholdPct uint32      `json:"default_threshold_pct"`
}

type TokenSnapshot struct {
	Ref       identity.ID `json:"ref"`
	Authority identity.ID `json:"authority"`
	Supply    uint64      `json:"supply"`
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *Engine) CreateSnapshotState() *SnapshotState {
	ls := c.ledger.State()
	ms := c.market.Market()
	hash := c.hasher.GetPrevHash()

	tokens := make([]TokenSnapshot, 0)
	for ref, authority := range c.book.Tokens() {
		tokens = append(tokens, TokenSnapshot{
			Ref:       ref,
			Authority: authority,
			Supply:    c.book.Supply(ref),
		})
	}

	return &SnapshotState{
		Sequence:  c.sequence - 1, // last processed sequence
		StateHash: hash[:],
		Ledger: LedgerSnapshot{
			Admin:                 ls.Admin,
			ReserveAssetRef:       ls.ReserveAssetRef,
			ReserveAccount:        ls.ReserveAccount,
			FeeRecipient:          ls.FeeRecipient,
			MintRef:               ls.MintRef,
			MintAuthority:         ls.MintAuthority,
			Decimals:              ls.Decimals,
			TotalSupply:           ls.TotalSupply,
			FeeContributionsTotal: ls.FeeContributionsTotal,
			ReserveLiquid:         ls.ReserveLiquid,
			CollateralBase:        ls.CollateralBase,
			CollateralValue:       ls.CollateralValue,
			Contributions:         ls.Contributions(),
		},
		Market: MarketSnapshot{
			Admin:               ms.Admin,
			LedgerRef:           ms.LedgerRef,
			CertAuthority:       ms.CertAuthority,
			AssetCount:          ms.AssetCount,
			DefaultThresholdPct: ms.DefaultThresholdPct,
		},
		Assets:          c.market.Registry().All(),
		Tokens:          tokens,
		Balances:        c.book.SnapshotBalances(),
		IdempotencyKeys: c.idempotency.lru.GetAllKeys(),
	}
}

// RestoreFromSnapshot rebuilds the core's in-memory state from a snapshot.
// The event log from snap.Sequence+1 onward must be replayed afterwards.
func (c *Engine) RestoreFromSnapshot(snap *SnapshotState) error {
	c.sequence = snap.Sequence + 1

	var hash [32]byte
	copy(hash[:], snap.StateHash)
	c.hasher.SetPrevHash(hash)

	ls := c.ledger.State()
	ls.Admin = snap.Ledger.Admin
	ls.ReserveAssetRef = snap.Ledger.ReserveAssetRef
	ls.ReserveAccount = snap.Ledger.ReserveAccount
	ls.FeeRecipient = snap.Ledger.FeeRecipient
	ls.MintRef = snap.Ledger.MintRef
	ls.MintAuthority = snap.Ledger.MintAuthority
	ls.Decimals = snap.Ledger.Decimals
	ls.TotalSupply = snap.Ledger.TotalSupply
	ls.FeeContributionsTotal = snap.Ledger.FeeContributionsTotal
	ls.ReserveLiquid = snap.Ledger.ReserveLiquid
	ls.CollateralBase = snap.Ledger.CollateralBase
	ls.CollateralValue = snap.Ledger.CollateralValue
	for ref, value := range snap.Ledger.Contributions {
		ls.RestoreContribution(ref, value)
	}

	ms := c.market.Market()
	ms.Admin = snap.Market.Admin
	ms.LedgerRef = snap.Market.LedgerRef
	ms.CertAuthority = snap.Market.CertAuthority
	ms.AssetCount = snap.Market.AssetCount
	ms.DefaultThresholdPct = snap.Market.DefaultThresholdPct

	for _, asset := range snap.Assets {
		c.market.Registry().Put(asset)
	}

	for _, tok := range snap.Tokens {
		c.book.RestoreToken(tok.Ref, tok.Authority, tok.Supply)
	}
	for path, amount := range snap.Balances {
		tok, holder, err := parseHoldingPath(path)
		if err != nil {
			return fmt.Errorf("snapshot balance %q: %w", path, err)
		}
		c.book.RestoreHolding(tok, holder, amount)
	}

	c.idempotency.lru.WarmFromKeys(snap.IdempotencyKeys)

	return nil
}

func parseHoldingPath(path string) (tok, holder identity.ID, err error) {
	parts := strings.SplitN(path, ":", 2)
	if len(parts) != 2 {
		return tok, holder, fmt.Errorf("malformed holding path")
	}
	if tok, err = identity.Parse(parts[0]); err != nil {
		return tok, holder, err
	}
	holder, err = identity.Parse(parts[1])
	return tok, holder, err
}
