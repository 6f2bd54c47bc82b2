package ledger

import (
	"fmt"

	"EstabloLedger/internal/event"
	"EstabloLedger/internal/identity"
	"EstabloLedger/internal/safemath"
	"EstabloLedger/internal/token"
)

// Backing and fee parameters. Integer math throughout, truncating division.
const (
	liquidBackingPct     = 70
	collateralBackingPct = 30
	backingDenominator   = 100

	feeBasisPoints = 50
	bpsDenominator = 10_000
)

// Service implements the ledger operations against a State and the token
// collaborator. Not thread-safe: the engine serializes all operations.
//
// Every operation follows the same shape: validate, precompute all checked
// arithmetic, run the token batch (the last fallible step), then mutate
// state with the precomputed values. An error anywhere leaves state
// untouched.
type Service struct {
	state *State
	book  token.Transferrer
}

func NewService(state *State, book token.Transferrer) *Service {
	return &Service{state: state, book: book}
}

// State exposes the underlying record for snapshots and hashing.
func (s *Service) State() *State {
	return s.state
}

// Initialize creates the LedgerState with all accumulators zeroed. The
// caller becomes admin. The issued mint is registered with the caller as
// authority and then handed to a derived program authority, mirroring how
// the certificate mint's control leaves the admin's hands.
func (s *Service) Initialize(req *event.InitLedger) (*event.LedgerInitialized, error) {
	if s.state.Initialized() {
		return nil, ErrAlreadyInitialized
	}
	if req.Caller.IsZero() || req.MintRef.IsZero() || req.ReserveAssetRef.IsZero() {
		return nil, fmt.Errorf("initialize: null identity: %w", ErrInvalidAccount)
	}
	if req.FeeRecipient.IsZero() {
		return nil, fmt.Errorf("initialize: null fee recipient: %w", ErrInvalidDaoAccount)
	}

	mintAuthority := identity.Derive("establo/mint-authority/" + req.MintRef.String())
	reserveAccount := identity.Derive("establo/reserve/" + req.MintRef.String())

	if err := s.book.Register(req.MintRef, req.Caller); err != nil {
		return nil, fmt.Errorf("initialize: register mint: %w", err)
	}
	if err := s.book.SetAuthority(req.MintRef, mintAuthority); err != nil {
		return nil, fmt.Errorf("initialize: set mint authority: %w", err)
	}

	s.state.Admin = req.Caller
	s.state.ReserveAssetRef = req.ReserveAssetRef
	s.state.ReserveAccount = reserveAccount
	s.state.FeeRecipient = req.FeeRecipient
	s.state.MintRef = req.MintRef
	s.state.MintAuthority = mintAuthority
	s.state.Decimals = req.Decimals

	return &event.LedgerInitialized{
		Admin:           req.Caller,
		ReserveAssetRef: req.ReserveAssetRef,
		ReserveAccount:  reserveAccount,
		FeeRecipient:    req.FeeRecipient,
		MintRef:         req.MintRef,
		Decimals:        req.Decimals,
	}, nil
}

// Mint issues req.Amount to the recipient after the 70/30 backing check.
// The check compares the incremental amount against the current reserve
// snapshot; cumulative backing across repeated mints is reported by
// ReserveStatus, not enforced here.
func (s *Service) Mint(req *event.Mint) (*event.Minted, error) {
	if !s.state.Initialized() {
		return nil, ErrNotInitialized
	}
	if req.Caller != s.state.Admin {
		return nil, fmt.Errorf("mint: caller %s is not admin: %w", req.Caller.Short(), ErrUnauthorized)
	}
	if req.Recipient.IsZero() {
		return nil, fmt.Errorf("mint: null recipient: %w", ErrInvalidAccount)
	}
	if req.Amount == 0 {
		return nil, fmt.Errorf("mint: zero amount: %w", ErrInsufficientAmount)
	}

	requiredLiquid, err := safemath.MulDiv(req.Amount, liquidBackingPct, backingDenominator)
	if err != nil {
		return nil, fmt.Errorf("mint: required liquid: %w", err)
	}
	requiredCollateral, err := safemath.MulDiv(req.Amount, collateralBackingPct, backingDenominator)
	if err != nil {
		return nil, fmt.Errorf("mint: required collateral: %w", err)
	}

	if s.state.ReserveLiquid < requiredLiquid || s.state.CollateralValue < requiredCollateral {
		return nil, fmt.Errorf(
			"mint: liquid %d < %d or collateral %d < %d: %w",
			s.state.ReserveLiquid, requiredLiquid,
			s.state.CollateralValue, requiredCollateral,
			ErrInsufficientReserves,
		)
	}

	newSupply, err := safemath.Add(s.state.TotalSupply, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("mint: supply: %w", err)
	}

	batch := token.NewBatch(req.IdempotencyKey())
	batch.AddMint(s.state.MintRef, req.Recipient, s.state.MintAuthority, req.Amount)
	if err := s.book.Validate(batch); err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	if err := s.book.Apply(batch); err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}

	s.state.TotalSupply = newSupply

	return &event.Minted{
		Recipient:          req.Recipient,
		Amount:             req.Amount,
		RequiredLiquid:     requiredLiquid,
		RequiredCollateral: requiredCollateral,
		TotalSupply:        newSupply,
	}, nil
}

// Burn retires req.Amount from the holder and releases liquid reserve 1:1.
func (s *Service) Burn(req *event.Burn) (*event.Burned, error) {
	if !s.state.Initialized() {
		return nil, ErrNotInitialized
	}
	if req.Caller != s.state.Admin {
		return nil, fmt.Errorf("burn: caller %s is not admin: %w", req.Caller.Short(), ErrUnauthorized)
	}
	if req.From.IsZero() {
		return nil, fmt.Errorf("burn: null holder: %w", ErrInvalidAccount)
	}
	if req.Amount == 0 {
		return nil, fmt.Errorf("burn: zero amount: %w", ErrInsufficientAmount)
	}

	newSupply, err := safemath.Sub(s.state.TotalSupply, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("burn: supply underflow: %w", err)
	}
	newLiquid, err := safemath.Sub(s.state.ReserveLiquid, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("burn: reserve release %d > liquid %d: %w",
			req.Amount, s.state.ReserveLiquid, ErrInsufficientReserves)
	}

	batch := token.NewBatch(req.IdempotencyKey())
	batch.AddBurn(s.state.MintRef, req.From, s.state.MintAuthority, req.Amount)
	if err := s.book.Validate(batch); err != nil {
		return nil, fmt.Errorf("burn: %w", err)
	}
	if err := s.book.Apply(batch); err != nil {
		return nil, fmt.Errorf("burn: %w", err)
	}

	s.state.TotalSupply = newSupply
	s.state.ReserveLiquid = newLiquid

	return &event.Burned{
		From:           req.From,
		Amount:         req.Amount,
		ReleasedLiquid: req.Amount,
		TotalSupply:    newSupply,
	}, nil
}

// Transfer moves req.Amount from the caller to the recipient, splitting
// off the 0.5% fee to the fee recipient. Both legs commit or neither does.
func (s *Service) Transfer(req *event.Transfer) (*event.Transferred, error) {
	if !s.state.Initialized() {
		return nil, ErrNotInitialized
	}
	if req.Caller.IsZero() || req.Recipient.IsZero() {
		return nil, fmt.Errorf("transfer: null party: %w", ErrInvalidAccount)
	}
	if req.Amount == 0 {
		return nil, fmt.Errorf("transfer: zero amount: %w", ErrInsufficientAmount)
	}

	fee, err := safemath.MulDiv(req.Amount, feeBasisPoints, bpsDenominator)
	if err != nil {
		return nil, fmt.Errorf("transfer: fee: %w", err)
	}
	amountAfterFee, err := safemath.Sub(req.Amount, fee)
	if err != nil {
		return nil, fmt.Errorf("transfer: fee %d exceeds amount %d: %w",
			fee, req.Amount, ErrInsufficientAmount)
	}
	newContributions, err := safemath.Add(s.state.FeeContributionsTotal, fee)
	if err != nil {
		return nil, fmt.Errorf("transfer: fee accumulator: %w", err)
	}

	batch := token.NewBatch(req.IdempotencyKey())
	if amountAfterFee > 0 {
		batch.AddTransfer(s.state.MintRef, req.Caller, req.Recipient, amountAfterFee)
	}
	// Small transfers truncate to a zero fee; a sender who is also the fee
	// recipient keeps the fee in place.
	if fee > 0 && req.Caller != s.state.FeeRecipient {
		batch.AddTransfer(s.state.MintRef, req.Caller, s.state.FeeRecipient, fee)
	}
	if err := s.book.Validate(batch); err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	if err := s.book.Apply(batch); err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}

	s.state.FeeContributionsTotal = newContributions

	return &event.Transferred{
		Sender:                req.Caller,
		Recipient:             req.Recipient,
		AmountAfterFee:        amountAfterFee,
		Fee:                   fee,
		FeeRecipient:          s.state.FeeRecipient,
		FeeContributionsTotal: newContributions,
	}, nil
}

// UpdateReserves sets the admin-reported liquid reserve and base
// collateral value, then recomputes the effective collateral total.
func (s *Service) UpdateReserves(req *event.UpdateReserves) (*event.ReservesUpdated, error) {
	if !s.state.Initialized() {
		return nil, ErrNotInitialized
	}
	if req.Caller != s.state.Admin {
		return nil, fmt.Errorf("update reserves: caller %s is not admin: %w",
			req.Caller.Short(), ErrUnauthorized)
	}

	newTotal, err := s.collateralTotal(req.CollateralBase)
	if err != nil {
		return nil, fmt.Errorf("update reserves: %w", err)
	}

	s.state.ReserveLiquid = req.LiquidAmount
	s.state.CollateralBase = req.CollateralBase
	s.state.CollateralValue = newTotal

	return &event.ReservesUpdated{
		LiquidAmount:    req.LiquidAmount,
		CollateralBase:  req.CollateralBase,
		CollateralValue: newTotal,
	}, nil
}

// UpdateFeeRecipient redirects future transfer fees. The accumulated
// total is not transferred; it is a historical counter.
func (s *Service) UpdateFeeRecipient(req *event.UpdateFeeRecipient) (*event.FeeRecipientUpdated, error) {
	if !s.state.Initialized() {
		return nil, ErrNotInitialized
	}
	if req.Caller != s.state.Admin {
		return nil, fmt.Errorf("update fee recipient: caller %s is not admin: %w",
			req.Caller.Short(), ErrUnauthorized)
	}
	if req.NewRecipient.IsZero() {
		return nil, fmt.Errorf("update fee recipient: null identity: %w", ErrInvalidDaoAccount)
	}

	previous := s.state.FeeRecipient
	s.state.FeeRecipient = req.NewRecipient

	return &event.FeeRecipientUpdated{
		Previous: previous,
		New:      req.NewRecipient,
	}, nil
}

// SetAssetCollateral records the absolute collateral value for one asset,
// replacing its prior contribution. Bridge side of the marketplace link.
func (s *Service) SetAssetCollateral(assetRef identity.ID, value uint64) error {
	if !s.state.Initialized() {
		return ErrNotInitialized
	}

	prev, had := s.state.contributions[assetRef]
	s.state.contributions[assetRef] = value

	newTotal, err := s.collateralTotal(s.state.CollateralBase)
	if err != nil {
		// Roll back the map mutation so a failed bridge call leaves no trace.
		if had {
			s.state.contributions[assetRef] = prev
		} else {
			delete(s.state.contributions, assetRef)
		}
		return fmt.Errorf("set asset collateral %s: %w", assetRef.Short(), err)
	}

	s.state.CollateralValue = newTotal
	return nil
}

// RemoveAssetCollateral drops an asset's contribution entirely.
func (s *Service) RemoveAssetCollateral(assetRef identity.ID) error {
	if !s.state.Initialized() {
		return ErrNotInitialized
	}

	prev, had := s.state.contributions[assetRef]
	if !had {
		return nil
	}
	delete(s.state.contributions, assetRef)

	newTotal, err := s.collateralTotal(s.state.CollateralBase)
	if err != nil {
		s.state.contributions[assetRef] = prev
		return fmt.Errorf("remove asset collateral %s: %w", assetRef.Short(), err)
	}

	s.state.CollateralValue = newTotal
	return nil
}

// collateralTotal computes base + sum of per-asset contributions with
// checked arithmetic.
func (s *Service) collateralTotal(base uint64) (uint64, error) {
	total := base
	for _, v := range s.state.contributions {
		next, err := safemath.Add(total, v)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}

// ReserveStatus is the read-only reserve report, including the cumulative
// backing requirement for the outstanding supply.
type ReserveStatus struct {
	LiquidAmount          uint64 `json:"liquid_amount"`
	CollateralBase        uint64 `json:"collateral_base"`
	CollateralValue       uint64 `json:"collateral_value"`
	TotalSupply           uint64 `json:"total_supply"`
	FeeContributionsTotal uint64 `json:"fee_contributions_total"`

	// Backed reports whether a zero-amount mint would pass the incremental
	// backing check right now.
	Backed bool `json:"backed"`

	// Cumulative requirement for the whole outstanding supply. The mint
	// path only checks increments; this surfaces drift across mints.
	RequiredLiquid     uint64 `json:"required_liquid"`
	RequiredCollateral uint64 `json:"required_collateral"`
	SupplyFullyBacked  bool   `json:"supply_fully_backed"`
}

// ReserveStatus returns the current reserve report. Read-only.
func (s *Service) ReserveStatus() (*ReserveStatus, error) {
	if !s.state.Initialized() {
		return nil, ErrNotInitialized
	}

	requiredLiquid, err := safemath.MulDiv(s.state.TotalSupply, liquidBackingPct, backingDenominator)
	if err != nil {
		return nil, fmt.Errorf("reserve status: %w", err)
	}
	requiredCollateral, err := safemath.MulDiv(s.state.TotalSupply, collateralBackingPct, backingDenominator)
	if err != nil {
		return nil, fmt.Errorf("reserve status: %w", err)
	}

	return &ReserveStatus{
		LiquidAmount:          s.state.ReserveLiquid,
		CollateralBase:        s.state.CollateralBase,
		CollateralValue:       s.state.CollateralValue,
		TotalSupply:           s.state.TotalSupply,
		FeeContributionsTotal: s.state.FeeContributionsTotal,
		Backed:                true, // a zero increment requires nothing
		RequiredLiquid:        requiredLiquid,
		RequiredCollateral:    requiredCollateral,
		SupplyFullyBacked: s.state.ReserveLiquid >= requiredLiquid &&
			s.state.CollateralValue >= requiredCollateral,
	}, nil
}

// FeeContributions returns the cumulative fee total. Read-only.
func (s *Service) FeeContributions() (uint64, error) {
	if !s.state.Initialized() {
		return 0, ErrNotInitialized
	}
	return s.state.FeeContributionsTotal, nil
}
