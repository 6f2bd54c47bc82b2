package rwa_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EstabloLedger/internal/event"
	"EstabloLedger/internal/identity"
	"EstabloLedger/internal/rwa"
	"EstabloLedger/internal/token"
)

// recordingSink captures bridge calls for assertions.
type recordingSink struct {
	contributions map[identity.ID]uint64
	setCalls      int
	removeCalls   int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{contributions: make(map[identity.ID]uint64)}
}

func (s *recordingSink) SetAssetCollateral(assetRef identity.ID, value uint64) error {
	s.contributions[assetRef] = value
	s.setCalls++
	return nil
}

func (s *recordingSink) RemoveAssetCollateral(assetRef identity.ID) error {
	delete(s.contributions, assetRef)
	s.removeCalls++
	return nil
}

type fixture struct {
	svc   *rwa.Service
	book  *token.Book
	sink  *recordingSink
	admin identity.ID
	owner identity.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		book:  token.NewBook(),
		sink:  newRecordingSink(),
		admin: identity.Derive("test/marketplace-admin"),
		owner: identity.Derive("test/asset-owner"),
	}
	f.svc = rwa.NewService(&rwa.MarketplaceState{}, rwa.NewRegistry(), f.book, f.sink)

	_, err := f.svc.Initialize(&event.InitMarketplace{
		RequestID: uuid.New(),
		Caller:    f.admin,
		LedgerRef: identity.Derive("test/ledger"),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) list(t *testing.T, assetRef identity.ID, value uint64, thresholdPct *uint32) *event.AssetListed {
	t.Helper()
	out, err := f.svc.List(&event.ListAsset{
		RequestID:    uuid.New(),
		Caller:       f.owner,
		AssetMintRef: assetRef,
		Value:        value,
		Location:     "1 Test St",
		Details:      "test property",
		ThresholdPct: thresholdPct,
		Timestamp:    time.Unix(1_700_000_000, 0),
	})
	require.NoError(t, err)
	return out
}

func (f *fixture) revalue(assetRef identity.ID, caller identity.ID, newValue uint64) (*event.AssetValuation, *event.AssetRisk, error) {
	return f.svc.Revalue(&event.RevalueAsset{
		RequestID:    uuid.New(),
		Caller:       caller,
		AssetMintRef: assetRef,
		NewValue:     newValue,
		Timestamp:    time.Unix(1_700_000_100, 0),
	})
}

func TestInitialize_DefaultThreshold(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, uint32(90), f.svc.Market().DefaultThresholdPct)

	_, err := f.svc.Initialize(&event.InitMarketplace{RequestID: uuid.New(), Caller: f.admin})
	assert.ErrorIs(t, err, rwa.ErrAlreadyInitialized)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	assetRef := identity.Derive("test/asset-1")

	out := f.list(t, assetRef, 100_000, nil)
	assert.Equal(t, uint64(100_000), out.Value)
	assert.Equal(t, uint32(90), out.ThresholdPct)
	assert.Equal(t, uint64(1), out.AssetCount)

	// Certificate unit minted to the owner.
	assert.Equal(t, uint64(1), f.book.Balance(assetRef, f.owner))
	assert.Equal(t, uint64(1), f.book.Supply(assetRef))

	// Ledger notified of the full value.
	assert.Equal(t, uint64(100_000), f.sink.contributions[assetRef])

	asset := f.svc.Registry().Get(assetRef)
	require.NotNil(t, asset)
	assert.Equal(t, rwa.StatusListed, asset.Status)
	assert.Equal(t, uint64(100_000), asset.InitialValue)
}

func TestList_Duplicate(t *testing.T) {
	f := newFixture(t)
	assetRef := identity.Derive("test/asset-1")
	f.list(t, assetRef, 100_000, nil)

	_, err := f.svc.List(&event.ListAsset{
		RequestID:    uuid.New(),
		Caller:       f.owner,
		AssetMintRef: assetRef,
		Value:        50_000,
	})
	assert.ErrorIs(t, err, rwa.ErrAssetExists)
	assert.Equal(t, uint64(1), f.svc.Market().AssetCount)
}

func TestList_ThresholdOverride(t *testing.T) {
	f := newFixture(t)

	override := uint32(75)
	out := f.list(t, identity.Derive("test/asset-1"), 100_000, &override)
	assert.Equal(t, uint32(75), out.ThresholdPct)

	bad := uint32(0)
	_, err := f.svc.List(&event.ListAsset{
		RequestID:    uuid.New(),
		Caller:       f.owner,
		AssetMintRef: identity.Derive("test/asset-2"),
		Value:        1,
		ThresholdPct: &bad,
	})
	assert.ErrorIs(t, err, rwa.ErrInvalidThreshold)
}

func TestRevalue_RiskBoundary(t *testing.T) {
	f := newFixture(t)
	assetRef := identity.Derive("test/asset-1")
	f.list(t, assetRef, 100_000, nil) // floor = 90,000 at the default 90%

	// Strictly below the floor triggers AtRisk.
	valuation, risk, err := f.revalue(assetRef, f.admin, 89_999)
	require.NoError(t, err)
	require.NotNil(t, risk)
	assert.Equal(t, uint64(89_999), risk.CurrentValue)
	assert.Equal(t, uint64(90_000), risk.LiquidationFloor)
	assert.Equal(t, "AtRisk", valuation.Status)
	assert.Equal(t, uint64(89_999), f.sink.contributions[assetRef])

	// Exactly at the floor reverts to Listed.
	valuation, risk, err = f.revalue(assetRef, f.admin, 90_000)
	require.NoError(t, err)
	assert.Nil(t, risk)
	assert.Equal(t, "Listed", valuation.Status)
	assert.Equal(t, rwa.StatusListed, f.svc.Registry().Get(assetRef).Status)
}

func TestRevalue_AtRiskReemitsRisk(t *testing.T) {
	f := newFixture(t)
	assetRef := identity.Derive("test/asset-1")
	f.list(t, assetRef, 100_000, nil)

	_, risk, err := f.revalue(assetRef, f.admin, 80_000)
	require.NoError(t, err)
	require.NotNil(t, risk)

	// Still below the floor: the warning is re-emitted.
	_, risk, err = f.revalue(assetRef, f.admin, 79_000)
	require.NoError(t, err)
	require.NotNil(t, risk)
	assert.Equal(t, uint64(79_000), risk.CurrentValue)
}

func TestRevalue_DecreaseRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	assetRef := identity.Derive("test/asset-1")
	f.list(t, assetRef, 100_000, nil)

	_, _, err := f.revalue(assetRef, f.owner, 95_000)
	assert.ErrorIs(t, err, rwa.ErrUnauthorized)

	// Increases do not need the admin.
	valuation, _, err := f.revalue(assetRef, f.owner, 120_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000), valuation.OldValue)
	assert.Equal(t, uint64(120_000), valuation.NewValue)
	assert.Equal(t, uint64(120_000), f.sink.contributions[assetRef])
}

func TestRevalue_UnchangedValueSkipsBridge(t *testing.T) {
	f := newFixture(t)
	assetRef := identity.Derive("test/asset-1")
	f.list(t, assetRef, 100_000, nil)

	setCallsBefore := f.sink.setCalls
	_, _, err := f.revalue(assetRef, f.owner, 100_000)
	require.NoError(t, err)
	assert.Equal(t, setCallsBefore, f.sink.setCalls)
}

func TestTransferOwnership(t *testing.T) {
	f := newFixture(t)
	assetRef := identity.Derive("test/asset-1")
	newOwner := identity.New()
	f.list(t, assetRef, 100_000, nil)

	// Only the current owner may transfer.
	_, err := f.svc.TransferOwnership(&event.TransferAsset{
		RequestID:    uuid.New(),
		Caller:       identity.New(),
		AssetMintRef: assetRef,
		NewOwner:     newOwner,
	})
	assert.ErrorIs(t, err, rwa.ErrUnauthorized)

	out, err := f.svc.TransferOwnership(&event.TransferAsset{
		RequestID:    uuid.New(),
		Caller:       f.owner,
		AssetMintRef: assetRef,
		NewOwner:     newOwner,
	})
	require.NoError(t, err)
	assert.Equal(t, f.owner, out.PreviousOwner)
	assert.Equal(t, newOwner, out.NewOwner)

	// The certificate unit moved with the record.
	assert.Equal(t, uint64(0), f.book.Balance(assetRef, f.owner))
	assert.Equal(t, uint64(1), f.book.Balance(assetRef, newOwner))
	assert.Equal(t, newOwner, f.svc.Registry().Get(assetRef).Owner)
}

func TestLiquidate(t *testing.T) {
	f := newFixture(t)
	assetRef := identity.Derive("test/asset-1")
	f.list(t, assetRef, 100_000, nil)

	// Not at risk yet.
	_, err := f.svc.Liquidate(&event.LiquidateAsset{
		RequestID:    uuid.New(),
		Caller:       f.admin,
		AssetMintRef: assetRef,
	})
	assert.ErrorIs(t, err, rwa.ErrNotEligibleForLiquidation)

	_, _, err = f.revalue(assetRef, f.admin, 50_000)
	require.NoError(t, err)

	// Admin only.
	_, err = f.svc.Liquidate(&event.LiquidateAsset{
		RequestID:    uuid.New(),
		Caller:       f.owner,
		AssetMintRef: assetRef,
	})
	assert.ErrorIs(t, err, rwa.ErrUnauthorized)

	out, err := f.svc.Liquidate(&event.LiquidateAsset{
		RequestID:    uuid.New(),
		Caller:       f.admin,
		AssetMintRef: assetRef,
	})
	require.NoError(t, err)
	assert.Equal(t, f.owner, out.PreviousOwner)
	assert.Equal(t, f.admin, out.SeizedBy)
	assert.Equal(t, uint64(50_000), out.FinalValue)

	// Certificate seized, contribution removed, status terminal.
	assert.Equal(t, uint64(1), f.book.Balance(assetRef, f.admin))
	assert.Equal(t, uint64(0), f.book.Balance(assetRef, f.owner))
	_, has := f.sink.contributions[assetRef]
	assert.False(t, has)
	assert.Equal(t, rwa.StatusLiquidated, f.svc.Registry().Get(assetRef).Status)
}

func TestLiquidated_IsTerminal(t *testing.T) {
	f := newFixture(t)
	assetRef := identity.Derive("test/asset-1")
	f.list(t, assetRef, 100_000, nil)

	_, _, err := f.revalue(assetRef, f.admin, 50_000)
	require.NoError(t, err)
	_, err = f.svc.Liquidate(&event.LiquidateAsset{
		RequestID:    uuid.New(),
		Caller:       f.admin,
		AssetMintRef: assetRef,
	})
	require.NoError(t, err)

	_, _, err = f.revalue(assetRef, f.admin, 200_000)
	assert.ErrorIs(t, err, rwa.ErrAssetLiquidated)

	_, err = f.svc.TransferOwnership(&event.TransferAsset{
		RequestID:    uuid.New(),
		Caller:       f.admin,
		AssetMintRef: assetRef,
		NewOwner:     identity.New(),
	})
	assert.ErrorIs(t, err, rwa.ErrAssetLiquidated)

	assert.Equal(t, rwa.StatusLiquidated, f.svc.Registry().Get(assetRef).Status)
}

func TestSetThreshold(t *testing.T) {
	f := newFixture(t)
	assetRef := identity.Derive("test/asset-1")
	f.list(t, assetRef, 100_000, nil)

	for _, pct := range []uint32{0, 101} {
		_, err := f.svc.SetThreshold(&event.SetThreshold{
			RequestID: uuid.New(),
			Caller:    f.admin,
			Pct:       pct,
		})
		assert.ErrorIs(t, err, rwa.ErrInvalidThreshold, "pct=%d", pct)
	}

	for _, pct := range []uint32{1, 100} {
		out, err := f.svc.SetThreshold(&event.SetThreshold{
			RequestID: uuid.New(),
			Caller:    f.admin,
			Pct:       pct,
		})
		require.NoError(t, err, "pct=%d", pct)
		assert.Equal(t, pct, out.New)
	}

	_, err := f.svc.SetThreshold(&event.SetThreshold{
		RequestID: uuid.New(),
		Caller:    f.owner,
		Pct:       80,
	})
	assert.ErrorIs(t, err, rwa.ErrUnauthorized)

	// Existing assets keep their per-asset threshold.
	assert.Equal(t, uint32(90), f.svc.Registry().Get(assetRef).LiquidationThresholdPct)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, rwa.StatusListed.CanTransitionTo(rwa.StatusAtRisk))
	assert.True(t, rwa.StatusAtRisk.CanTransitionTo(rwa.StatusListed))
	assert.True(t, rwa.StatusAtRisk.CanTransitionTo(rwa.StatusLiquidated))

	assert.False(t, rwa.StatusListed.CanTransitionTo(rwa.StatusLiquidated), "no direct liquidation from Listed")
	assert.False(t, rwa.StatusLiquidated.CanTransitionTo(rwa.StatusListed))
	assert.False(t, rwa.StatusLiquidated.CanTransitionTo(rwa.StatusAtRisk))
}
