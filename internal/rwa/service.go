package rwa

import (
	"fmt"

	"EstabloLedger/internal/bridge"
	"EstabloLedger/internal/event"
	"EstabloLedger/internal/identity"
	"EstabloLedger/internal/safemath"
	"EstabloLedger/internal/token"
)

// DefaultLiquidationThresholdPct applies when initialize and listing both
// omit a threshold.
const DefaultLiquidationThresholdPct = 90

// Service implements the asset lifecycle operations. Valuation changes
// reach the ledger only through the injected CollateralSink; the two
// sides never share mutable state.
//
// Sink calls are ordered so that a sink failure aborts the operation
// before any marketplace or token mutation, and any later failure is
// compensated with the inverse sink call. Not thread-safe: the engine
// serializes all operations.
type Service struct {
	market   *MarketplaceState
	registry *Registry
	book     token.Transferrer
	sink     bridge.CollateralSink
}

func NewService(market *MarketplaceState, registry *Registry, book token.Transferrer, sink bridge.CollateralSink) *Service {
	return &Service{
		market:   market,
		registry: registry,
		book:     book,
		sink:     sink,
	}
}

// Market exposes the singleton record for snapshots and hashing.
func (s *Service) Market() *MarketplaceState {
	return s.market
}

// Registry exposes the asset registry for snapshots and queries.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Initialize creates the MarketplaceState. The caller becomes admin.
func (s *Service) Initialize(req *event.InitMarketplace) (*event.MarketplaceInitialized, error) {
	if s.market.Initialized() {
		return nil, ErrAlreadyInitialized
	}
	if req.Caller.IsZero() {
		return nil, fmt.Errorf("initialize: null caller: %w", ErrInvalidAccount)
	}

	threshold := req.DefaultThresholdPct
	if threshold == 0 {
		threshold = DefaultLiquidationThresholdPct
	}
	if threshold > 100 {
		return nil, fmt.Errorf("initialize: threshold %d: %w", threshold, ErrInvalidThreshold)
	}

	s.market.Admin = req.Caller
	s.market.LedgerRef = req.LedgerRef
	s.market.CertAuthority = identity.Derive("establo/cert-authority/" + req.Caller.String())
	s.market.AssetCount = 0
	s.market.DefaultThresholdPct = threshold

	return &event.MarketplaceInitialized{
		Admin:               req.Caller,
		LedgerRef:           req.LedgerRef,
		DefaultThresholdPct: threshold,
	}, nil
}

// List registers a collateral asset, mints its single certificate unit to
// the owner, and reports the value to the ledger's collateral total.
func (s *Service) List(req *event.ListAsset) (*event.AssetListed, error) {
	if !s.market.Initialized() {
		return nil, ErrNotInitialized
	}
	if req.Caller.IsZero() || req.AssetMintRef.IsZero() {
		return nil, fmt.Errorf("list: null identity: %w", ErrInvalidAccount)
	}
	if s.registry.Get(req.AssetMintRef) != nil {
		return nil, fmt.Errorf("list: asset %s: %w", req.AssetMintRef.Short(), ErrAssetExists)
	}

	threshold := s.market.DefaultThresholdPct
	if req.ThresholdPct != nil {
		threshold = *req.ThresholdPct
		if threshold < 1 || threshold > 100 {
			return nil, fmt.Errorf("list: threshold %d: %w", threshold, ErrInvalidThreshold)
		}
	}

	newCount, err := safemath.Add(s.market.AssetCount, 1)
	if err != nil {
		return nil, fmt.Errorf("list: asset count: %w", err)
	}

	if err := s.sink.SetAssetCollateral(req.AssetMintRef, req.Value); err != nil {
		return nil, fmt.Errorf("list: collateral notification: %w", err)
	}

	// Certificate mint: one indivisible unit to the owner. Failures past the
	// sink call are compensated by removing the contribution again.
	if err := s.book.Register(req.AssetMintRef, s.market.CertAuthority); err != nil {
		s.compensateSinkRemove(req.AssetMintRef)
		return nil, fmt.Errorf("list: register certificate: %w", err)
	}
	batch := token.NewBatch(req.IdempotencyKey())
	batch.AddMint(req.AssetMintRef, req.Caller, s.market.CertAuthority, 1)
	if err := s.book.Validate(batch); err != nil {
		s.compensateSinkRemove(req.AssetMintRef)
		return nil, fmt.Errorf("list: %w", err)
	}
	if err := s.book.Apply(batch); err != nil {
		s.compensateSinkRemove(req.AssetMintRef)
		return nil, fmt.Errorf("list: %w", err)
	}

	s.registry.Put(&CollateralAsset{
		Owner:                   req.Caller,
		AssetMintRef:            req.AssetMintRef,
		CurrentValue:            req.Value,
		InitialValue:            req.Value,
		LastValuationTime:       req.Timestamp,
		Location:                req.Location,
		Details:                 req.Details,
		Status:                  StatusListed,
		LiquidationThresholdPct: threshold,
	})
	s.market.AssetCount = newCount

	return &event.AssetListed{
		AssetMintRef: req.AssetMintRef,
		Owner:        req.Caller,
		Value:        req.Value,
		ThresholdPct: threshold,
		AssetCount:   newCount,
	}, nil
}

// Revalue reappraises an asset, runs risk detection against the
// liquidation floor, and pushes the new absolute value to the ledger.
// A decrease requires the marketplace admin. Re-entering AtRisk while
// already at risk still re-emits the risk record, so monitoring never
// misses a re-confirmation.
func (s *Service) Revalue(req *event.RevalueAsset) (*event.AssetValuation, *event.AssetRisk, error) {
	if !s.market.Initialized() {
		return nil, nil, ErrNotInitialized
	}
	asset := s.registry.Get(req.AssetMintRef)
	if asset == nil {
		return nil, nil, fmt.Errorf("revalue: asset %s: %w", req.AssetMintRef.Short(), ErrUnknownAsset)
	}
	if asset.Status == StatusLiquidated {
		return nil, nil, fmt.Errorf("revalue: asset %s: %w", req.AssetMintRef.Short(), ErrAssetLiquidated)
	}
	if req.NewValue < asset.CurrentValue && req.Caller != s.market.Admin {
		return nil, nil, fmt.Errorf("revalue: decrease requires admin: %w", ErrUnauthorized)
	}

	floor, err := safemath.MulDiv(asset.InitialValue, uint64(asset.LiquidationThresholdPct), 100)
	if err != nil {
		return nil, nil, fmt.Errorf("revalue: liquidation floor: %w", err)
	}

	newStatus := asset.Status
	var risk *event.AssetRisk
	if req.NewValue < floor {
		newStatus = StatusAtRisk
		risk = &event.AssetRisk{
			AssetMintRef:     asset.AssetMintRef,
			CurrentValue:     req.NewValue,
			LiquidationFloor: floor,
		}
	} else if asset.Status == StatusAtRisk {
		newStatus = StatusListed
	}
	if newStatus != asset.Status && !asset.Status.CanTransitionTo(newStatus) {
		return nil, nil, fmt.Errorf("revalue: %s -> %s: %w", asset.Status, newStatus, ErrAssetLiquidated)
	}

	if req.NewValue != asset.CurrentValue {
		if err := s.sink.SetAssetCollateral(asset.AssetMintRef, req.NewValue); err != nil {
			return nil, nil, fmt.Errorf("revalue: collateral notification: %w", err)
		}
	}

	oldValue := asset.CurrentValue
	asset.CurrentValue = req.NewValue
	asset.LastValuationTime = req.Timestamp
	asset.Status = newStatus
	asset.Version++

	valuation := &event.AssetValuation{
		AssetMintRef: asset.AssetMintRef,
		OldValue:     oldValue,
		NewValue:     req.NewValue,
		Status:       newStatus.String(),
		ValuedAt:     req.Timestamp,
	}
	return valuation, risk, nil
}

// TransferOwnership moves the certificate unit and the asset record to a
// new owner. Owner-only; never after liquidation.
func (s *Service) TransferOwnership(req *event.TransferAsset) (*event.AssetTransferred, error) {
	if !s.market.Initialized() {
		return nil, ErrNotInitialized
	}
	asset := s.registry.Get(req.AssetMintRef)
	if asset == nil {
		return nil, fmt.Errorf("transfer: asset %s: %w", req.AssetMintRef.Short(), ErrUnknownAsset)
	}
	if asset.Status == StatusLiquidated {
		return nil, fmt.Errorf("transfer: asset %s: %w", req.AssetMintRef.Short(), ErrAssetLiquidated)
	}
	if req.Caller != asset.Owner {
		return nil, fmt.Errorf("transfer: caller %s is not the owner: %w", req.Caller.Short(), ErrUnauthorized)
	}
	if req.NewOwner.IsZero() {
		return nil, fmt.Errorf("transfer: null new owner: %w", ErrInvalidAccount)
	}

	batch := token.NewBatch(req.IdempotencyKey())
	batch.AddTransfer(asset.AssetMintRef, asset.Owner, req.NewOwner, 1)
	if err := s.book.Validate(batch); err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	if err := s.book.Apply(batch); err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}

	previous := asset.Owner
	asset.Owner = req.NewOwner
	asset.Version++

	return &event.AssetTransferred{
		AssetMintRef:  asset.AssetMintRef,
		PreviousOwner: previous,
		NewOwner:      req.NewOwner,
	}, nil
}

// Liquidate seizes an at-risk asset: the certificate moves to the admin,
// the status becomes terminal, and the asset's value leaves the ledger's
// collateral total.
func (s *Service) Liquidate(req *event.LiquidateAsset) (*event.AssetLiquidated, error) {
	if !s.market.Initialized() {
		return nil, ErrNotInitialized
	}
	asset := s.registry.Get(req.AssetMintRef)
	if asset == nil {
		return nil, fmt.Errorf("liquidate: asset %s: %w", req.AssetMintRef.Short(), ErrUnknownAsset)
	}
	if asset.Status != StatusAtRisk {
		return nil, fmt.Errorf("liquidate: status %s: %w", asset.Status, ErrNotEligibleForLiquidation)
	}
	if req.Caller != s.market.Admin {
		return nil, fmt.Errorf("liquidate: caller %s is not admin: %w", req.Caller.Short(), ErrUnauthorized)
	}

	batch := token.NewBatch(req.IdempotencyKey())
	batch.AddTransfer(asset.AssetMintRef, asset.Owner, s.market.Admin, 1)
	if err := s.book.Validate(batch); err != nil {
		return nil, fmt.Errorf("liquidate: %w", err)
	}

	if err := s.sink.RemoveAssetCollateral(asset.AssetMintRef); err != nil {
		return nil, fmt.Errorf("liquidate: collateral notification: %w", err)
	}

	// Validated above; cannot fail between Validate and Apply.
	if err := s.book.Apply(batch); err != nil {
		s.compensateSinkSet(asset.AssetMintRef, asset.CurrentValue)
		return nil, fmt.Errorf("liquidate: %w", err)
	}

	previousOwner := asset.Owner
	asset.Owner = s.market.Admin
	asset.Status = StatusLiquidated
	asset.Version++

	return &event.AssetLiquidated{
		AssetMintRef:  asset.AssetMintRef,
		PreviousOwner: previousOwner,
		SeizedBy:      s.market.Admin,
		FinalValue:    asset.CurrentValue,
	}, nil
}

// SetThreshold updates the marketplace default liquidation threshold.
// Existing assets keep their per-asset thresholds.
func (s *Service) SetThreshold(req *event.SetThreshold) (*event.ThresholdUpdated, error) {
	if !s.market.Initialized() {
		return nil, ErrNotInitialized
	}
	if req.Pct < 1 || req.Pct > 100 {
		return nil, fmt.Errorf("set threshold: %d: %w", req.Pct, ErrInvalidThreshold)
	}
	if req.Caller != s.market.Admin {
		return nil, fmt.Errorf("set threshold: caller %s is not admin: %w", req.Caller.Short(), ErrUnauthorized)
	}

	previous := s.market.DefaultThresholdPct
	s.market.DefaultThresholdPct = req.Pct

	return &event.ThresholdUpdated{
		Previous: previous,
		New:      req.Pct,
	}, nil
}

// compensateSinkRemove undoes a successful SetAssetCollateral when a
// later step fails. Removal of a just-added contribution cannot itself
// fail; an error here would mean the sink lost the contribution already.
func (s *Service) compensateSinkRemove(assetRef identity.ID) {
	_ = s.sink.RemoveAssetCollateral(assetRef)
}

// compensateSinkSet restores a contribution removed by a failed liquidation.
func (s *Service) compensateSinkSet(assetRef identity.ID, value uint64) {
	_ = s.sink.SetAssetCollateral(assetRef, value)
}
