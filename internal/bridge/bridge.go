// Package bridge decouples the asset marketplace from the stable-token
// ledger. Marketplace operations report collateral changes through a
// CollateralSink; the ledger implements the sink and folds the values
// into its reserve accounting.
package bridge

import "EstabloLedger/internal/identity"

// CollateralSink receives collateral value changes for listed assets.
//
// Callers must invoke the sink as the last fallible step of their
// operation: a sink error aborts the operation, and once the sink has
// accepted the update the caller commits unconditionally.
type CollateralSink interface {
	// SetAssetCollateral records the current collateral value of the
	// asset, replacing any previous value for the same asset.
	SetAssetCollateral(assetRef identity.ID, value uint64) error

	// RemoveAssetCollateral drops the asset's contribution entirely,
	// for assets leaving active collateral (liquidation).
	RemoveAssetCollateral(assetRef identity.ID) error
}

// NopSink discards all updates. Used by marketplace tests that do not
// exercise reserve accounting.
type NopSink struct{}

func (NopSink) SetAssetCollateral(identity.ID, uint64) error { return nil }
func (NopSink) RemoveAssetCollateral(identity.ID) error      { return nil }
