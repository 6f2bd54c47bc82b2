package core

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EstabloLedger/internal/event"
	"EstabloLedger/internal/identity"
	"EstabloLedger/internal/rwa"
)

var (
	testAdmin     = identity.Derive("test/admin")
	testUser      = identity.Derive("test/user")
	testRecipient = identity.Derive("test/recipient")
	testDao       = identity.Derive("test/dao")
	testMintRef   = identity.Derive("test/mint")
	testReserve   = identity.Derive("test/reserve-asset")
	testAssetRef  = identity.Derive("test/asset/villa-7")

	testTime = time.Unix(1700000000, 0).UTC()
)

func newTestEngine() (*Engine, chan CoreOutput, chan CoreOutput) {
	persistChan := make(chan CoreOutput, 256)
	projectionChan := make(chan CoreOutput, 256)
	eng := NewEngine(0, persistChan, projectionChan, nil, 4096, nil)
	return eng, persistChan, projectionChan
}

func drain(ch chan CoreOutput) []CoreOutput {
	var outputs []CoreOutput
	for {
		select {
		case out := <-ch:
			outputs = append(outputs, out)
		default:
			return outputs
		}
	}
}

func initLedgerReq() *event.InitLedger {
	return &event.InitLedger{
		RequestID:       uuid.New(),
		Caller:          testAdmin,
		Timestamp:       testTime,
		ReserveAssetRef: testReserve,
		FeeRecipient:    testDao,
		MintRef:         testMintRef,
		Decimals:        6,
	}
}

func updateReservesReq(liquid, base uint64) *event.UpdateReserves {
	return &event.UpdateReserves{
		RequestID:      uuid.New(),
		Caller:         testAdmin,
		Timestamp:      testTime,
		LiquidAmount:   liquid,
		CollateralBase: base,
	}
}

func mintReq(to identity.ID, amount uint64) *event.Mint {
	return &event.Mint{
		RequestID: uuid.New(),
		Caller:    testAdmin,
		Timestamp: testTime,
		Recipient: to,
		Amount:    amount,
	}
}

func initMarketReq() *event.InitMarketplace {
	return &event.InitMarketplace{
		RequestID: uuid.New(),
		Caller:    testAdmin,
		Timestamp: testTime,
		LedgerRef: testMintRef,
	}
}

func listAssetReq(owner identity.ID, value uint64) *event.ListAsset {
	return &event.ListAsset{
		RequestID:   uuid.New(),
		Caller:      owner,
		Timestamp:   testTime,
		AssetMintRef: testAssetRef,
		Value:       value,
		Location:    "12 Harbor Rd",
		Details:     "waterfront villa",
	}
}

func setupInitialized(t *testing.T, eng *Engine) {
	t.Helper()
	require.NoError(t, eng.ProcessRequest(initLedgerReq()))
	require.NoError(t, eng.ProcessRequest(updateReservesReq(700_000, 300_000)))
	require.NoError(t, eng.ProcessRequest(initMarketReq()))
}

func TestEngine_MintFlowAndHashChain(t *testing.T) {
	eng, persistChan, _ := newTestEngine()

	require.NoError(t, eng.ProcessRequest(initLedgerReq()))
	require.NoError(t, eng.ProcessRequest(updateReservesReq(700_000, 300_000)))
	require.NoError(t, eng.ProcessRequest(mintReq(testUser, 1_000_000)))

	assert.Equal(t, uint64(1_000_000), eng.Ledger().State().TotalSupply)
	assert.Equal(t, int64(3), eng.GetSequence())

	outputs := drain(persistChan)
	require.Len(t, outputs, 3)

	genesis := sha256.Sum256([]byte(GenesisHashSeed))
	prev := genesis
	for i, out := range outputs {
		assert.Equal(t, int64(i), out.Envelope.Sequence)
		assert.Equal(t, prev, out.Envelope.PrevHash, "chain broken at sequence %d", i)
		assert.NotEqual(t, prev, out.Envelope.StateHash)
		prev = out.Envelope.StateHash
	}
	assert.Equal(t, prev, eng.GetStateHash())

	assert.Equal(t, event.OutcomeTypeLedgerInitialized, outputs[0].Envelope.Type)
	assert.Equal(t, event.OutcomeTypeReservesUpdated, outputs[1].Envelope.Type)
	assert.Equal(t, event.OutcomeTypeMinted, outputs[2].Envelope.Type)
}

func TestEngine_DuplicateSuppressed(t *testing.T) {
	eng, persistChan, _ := newTestEngine()
	setupInitialized(t, eng)
	drain(persistChan)

	req := mintReq(testUser, 100_000)
	require.NoError(t, eng.ProcessRequest(req))
	seqAfterFirst := eng.GetSequence()
	hashAfterFirst := eng.GetStateHash()

	// Redelivery of the same request is absorbed without effect.
	require.NoError(t, eng.ProcessRequest(req))

	assert.Equal(t, seqAfterFirst, eng.GetSequence())
	assert.Equal(t, hashAfterFirst, eng.GetStateHash())
	assert.Equal(t, uint64(100_000), eng.Ledger().State().TotalSupply)
	assert.Len(t, drain(persistChan), 1)
}

func TestEngine_RejectionLeavesStateUntouched(t *testing.T) {
	eng, persistChan, _ := newTestEngine()
	setupInitialized(t, eng)
	drain(persistChan)

	seqBefore := eng.GetSequence()
	hashBefore := eng.GetStateHash()

	// Reserves cover 700k/300k; a 2M mint needs 1.4M liquid.
	err := eng.ProcessRequest(mintReq(testUser, 2_000_000))
	require.Error(t, err)

	assert.Equal(t, seqBefore, eng.GetSequence())
	assert.Equal(t, hashBefore, eng.GetStateHash())
	assert.Zero(t, eng.Ledger().State().TotalSupply)
	assert.Empty(t, drain(persistChan))

	// A rejected request is not marked processed; a corrected retry with
	// the same id would still be a new key, but the failed one must not
	// poison the dedup cache for an identical successful resubmission.
	require.NoError(t, eng.ProcessRequest(mintReq(testUser, 1_000_000)))
	assert.Equal(t, uint64(1_000_000), eng.Ledger().State().TotalSupply)
}

func TestEngine_RevalueBelowFloorEmitsRiskRecord(t *testing.T) {
	eng, persistChan, _ := newTestEngine()
	setupInitialized(t, eng)
	require.NoError(t, eng.ProcessRequest(listAssetReq(testUser, 100_000)))
	drain(persistChan)

	revalue := &event.RevalueAsset{
		RequestID:    uuid.New(),
		Caller:       testAdmin,
		Timestamp:    testTime.Add(time.Hour),
		AssetMintRef: testAssetRef,
		NewValue:     89_999,
	}
	require.NoError(t, eng.ProcessRequest(revalue))

	outputs := drain(persistChan)
	require.Len(t, outputs, 2)
	assert.Equal(t, event.OutcomeTypeAssetValuation, outputs[0].Envelope.Type)
	assert.Equal(t, event.OutcomeTypeAssetRisk, outputs[1].Envelope.Type)

	// Both outcomes carry the same request but their own chain links.
	assert.Equal(t, outputs[0].Envelope.IdempotencyKey, outputs[1].Envelope.IdempotencyKey)
	assert.Equal(t, outputs[0].Envelope.Sequence+1, outputs[1].Envelope.Sequence)
	assert.Equal(t, outputs[0].Envelope.StateHash, outputs[1].Envelope.PrevHash)

	asset := eng.Marketplace().Registry().Get(testAssetRef)
	require.NotNil(t, asset)
	assert.Equal(t, rwa.StatusAtRisk, asset.Status)

	// The devaluation flows through the bridge into the reserve state.
	assert.Equal(t, uint64(300_000+89_999), eng.Ledger().State().CollateralValue)
}

func TestEngine_LiquidationFlow(t *testing.T) {
	eng, persistChan, _ := newTestEngine()
	setupInitialized(t, eng)
	require.NoError(t, eng.ProcessRequest(listAssetReq(testUser, 100_000)))
	require.NoError(t, eng.ProcessRequest(&event.RevalueAsset{
		RequestID:    uuid.New(),
		Caller:       testAdmin,
		Timestamp:    testTime,
		AssetMintRef: testAssetRef,
		NewValue:     50_000,
	}))
	drain(persistChan)

	require.NoError(t, eng.ProcessRequest(&event.LiquidateAsset{
		RequestID:    uuid.New(),
		Caller:       testAdmin,
		Timestamp:    testTime,
		AssetMintRef: testAssetRef,
	}))

	outputs := drain(persistChan)
	require.Len(t, outputs, 1)
	assert.Equal(t, event.OutcomeTypeAssetLiquidated, outputs[0].Envelope.Type)

	asset := eng.Marketplace().Registry().Get(testAssetRef)
	assert.Equal(t, rwa.StatusLiquidated, asset.Status)
	assert.Equal(t, testAdmin, asset.Owner)

	// Seized collateral no longer counts toward reserves.
	assert.Equal(t, uint64(300_000), eng.Ledger().State().CollateralValue)
}

func TestEngine_ReplayReproducesHashChain(t *testing.T) {
	requests := []event.Request{
		initLedgerReq(),
		updateReservesReq(700_000, 300_000),
		initMarketReq(),
		mintReq(testUser, 1_000_000),
		listAssetReq(testUser, 100_000),
		&event.Transfer{
			RequestID: uuid.New(),
			Caller:    testUser,
			Timestamp: testTime,
			Recipient: testRecipient,
			Amount:    10_000,
		},
	}

	live, persistChan, _ := newTestEngine()
	for _, req := range requests {
		require.NoError(t, live.ProcessRequest(req))
	}
	drain(persistChan)

	replayed, _, _ := newTestEngine()
	for _, req := range requests {
		require.NoError(t, replayed.Replay(req))
	}

	assert.Equal(t, live.GetSequence(), replayed.GetSequence())
	assert.Equal(t, live.GetStateHash(), replayed.GetStateHash())
	assert.Equal(t, live.Ledger().State().TotalSupply, replayed.Ledger().State().TotalSupply)
}

func TestEngine_SnapshotRoundTrip(t *testing.T) {
	eng, persistChan, _ := newTestEngine()
	setupInitialized(t, eng)
	mint := mintReq(testUser, 1_000_000)
	require.NoError(t, eng.ProcessRequest(mint))
	require.NoError(t, eng.ProcessRequest(listAssetReq(testUser, 100_000)))
	drain(persistChan)

	snap := eng.CreateSnapshotState()
	assert.Equal(t, eng.GetSequence()-1, snap.Sequence)

	restored, restoredPersist, _ := newTestEngine()
	require.NoError(t, restored.RestoreFromSnapshot(snap))

	assert.Equal(t, eng.GetSequence(), restored.GetSequence())
	assert.Equal(t, eng.GetStateHash(), restored.GetStateHash())
	assert.Equal(t, uint64(1_000_000), restored.Ledger().State().TotalSupply)
	assert.Equal(t, uint64(300_000+100_000), restored.Ledger().State().CollateralValue)
	require.NotNil(t, restored.Marketplace().Registry().Get(testAssetRef))

	// Warmed LRU suppresses redelivery of pre-snapshot requests.
	require.NoError(t, restored.ProcessRequest(mint))
	assert.Empty(t, drain(restoredPersist))
	assert.Equal(t, uint64(1_000_000), restored.Ledger().State().TotalSupply)

	// Both instances must diverge identically on new input.
	next := mintReq(testRecipient, 100_000)
	require.NoError(t, eng.ProcessRequest(next))
	require.NoError(t, restored.ProcessRequest(next))
	assert.Equal(t, eng.GetStateHash(), restored.GetStateHash())
}

func TestEngine_FullStateDigestDiffers(t *testing.T) {
	a, _, _ := newTestEngine()
	b, _, _ := newTestEngine()

	req := initLedgerReq()
	require.NoError(t, a.Replay(req))
	require.NoError(t, b.Replay(req))
	assert.Equal(t, a.GetStateHash(), b.GetStateHash())

	// Divergent reserve figures must surface in the digest.
	require.NoError(t, a.Replay(&event.UpdateReserves{
		RequestID: uuid.New(), Caller: testAdmin, Timestamp: testTime,
		LiquidAmount: 1, CollateralBase: 0,
	}))
	require.NoError(t, b.Replay(&event.UpdateReserves{
		RequestID: uuid.New(), Caller: testAdmin, Timestamp: testTime,
		LiquidAmount: 2, CollateralBase: 0,
	}))
	assert.NotEqual(t, a.GetStateHash(), b.GetStateHash())
}
