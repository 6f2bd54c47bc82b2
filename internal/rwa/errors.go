package rwa

import "errors"

var (
	// ErrNotInitialized is returned by operations before the marketplace
	// singleton is created.
	ErrNotInitialized = errors.New("marketplace not initialized")

	// ErrAlreadyInitialized is returned when initialize is called twice.
	ErrAlreadyInitialized = errors.New("marketplace already initialized")

	// ErrUnauthorized is returned when the caller lacks the required
	// privilege (marketplace admin, or the asset owner for transfers).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidAccount is returned when a referenced identity fails a
	// validity precondition (null identity where one is required).
	ErrInvalidAccount = errors.New("invalid account")

	// ErrInvalidThreshold is returned for a liquidation threshold outside
	// the 1..100 range.
	ErrInvalidThreshold = errors.New("invalid liquidation threshold")

	// ErrUnknownAsset is returned when the referenced asset was never
	// listed.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrAssetExists is returned when listing an asset mint ref that is
	// already registered.
	ErrAssetExists = errors.New("asset already listed")

	// ErrAssetLiquidated is returned for revaluation or ownership
	// transfer of a liquidated asset. Liquidated is terminal.
	ErrAssetLiquidated = errors.New("asset is liquidated")

	// ErrNotEligibleForLiquidation is returned when liquidation is
	// attempted on an asset that is not at risk.
	ErrNotEligibleForLiquidation = errors.New("asset not eligible for liquidation")
)
