package core

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"EstabloLedger/internal/bridge"
	"EstabloLedger/internal/event"
	"EstabloLedger/internal/identity"
	"EstabloLedger/internal/ledger"
	"EstabloLedger/internal/observability"
	"EstabloLedger/internal/rwa"
	"EstabloLedger/internal/safemath"
	"EstabloLedger/internal/token"
)

// Engine is the single-threaded deterministic request processor. It owns the
// ledger and marketplace services, the shared token book, the dedup tiers and
// the state hash chain. All mutation flows through ProcessRequest; the rest
// of the system observes via channels or read-only accessors.
type Engine struct {
	sequence    int64
	hasher      *StateHasher
	book        *token.Book
	ledger      *ledger.Service
	market      *rwa.Service
	idempotency *IdempotencyChecker
	metrics     *observability.Metrics

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// CoreOutput couples an envelope with the outcome record and the request
// that produced it, for persistence and downstream projections.
type CoreOutput struct {
	Envelope *event.Envelope
	Outcome  event.Outcome
	Request  event.Request
}

func NewEngine(
	startSequence int64,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	lruCapacity int,
	metrics *observability.Metrics,
) *Engine {
	book := token.NewBook()
	ledgerSvc := ledger.NewService(ledger.NewState(), book)

	// The ledger service doubles as the bridge sink: asset listings,
	// revaluations and liquidations report their collateral contribution
	// straight into the reserve state.
	var sink bridge.CollateralSink = ledgerSvc
	marketSvc := rwa.NewService(&rwa.MarketplaceState{}, rwa.NewRegistry(), book, sink)

	return &Engine{
		sequence:       startSequence,
		hasher:         NewStateHasher(),
		book:           book,
		ledger:         ledgerSvc,
		market:         marketSvc,
		idempotency:    NewIdempotencyChecker(lruCapacity, dbChecker),
		metrics:        metrics,
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}
}

// Ledger exposes the ledger service for read-only queries.
func (c *Engine) Ledger() *ledger.Service {
	return c.ledger
}

// Marketplace exposes the marketplace service for read-only queries.
func (c *Engine) Marketplace() *rwa.Service {
	return c.market
}

// ProcessRequest runs the full pipeline for a live request: two-tier dedup,
// dispatch, state digest, hash chain, channel emit, mark processed.
func (c *Engine) ProcessRequest(req event.Request) error {
	return c.process(req, true)
}

// Replay reprocesses a logged request during startup. Channel emits and the
// Postgres dedup tier are skipped so replay reproduces the exact sequence
// and hash chain without re-persisting or re-publishing.
func (c *Engine) Replay(req event.Request) error {
	return c.process(req, false)
}

func (c *Engine) process(req event.Request, emit bool) error {
	start := time.Now()
	opType := req.Kind().String()
	idempotencyKey := req.IdempotencyKey()

	var isDuplicate bool
	var tier DuplicateTier
	if emit {
		isDuplicate, tier = c.idempotency.IsDuplicate(opType, idempotencyKey)
	} else {
		isDuplicate = c.idempotency.IsDuplicateLocal(opType, idempotencyKey)
		tier = TierLRU
	}

	if isDuplicate {
		if c.metrics != nil {
			c.metrics.OpsRejected.WithLabelValues(opType, "duplicate").Inc()
			c.metrics.IdempotencyDuplicates.WithLabelValues(opType, string(tier)).Inc()
		}
		return nil
	}

	outcomes, err := c.dispatch(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.OpsRejected.WithLabelValues(opType, rejectReason(err)).Inc()
		}
		return fmt.Errorf("%s rejected: %w", opType, err)
	}

	// All outcomes of one request share the post-state; each gets its own
	// sequence and link in the hash chain.
	stateDigest := c.computeStateDigest()

	outputs := make([]CoreOutput, 0, len(outcomes))
	for _, outcome := range outcomes {
		prevHash := c.hasher.GetPrevHash()
		stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

		envelope := &event.Envelope{
			Sequence:       c.sequence,
			RequestID:      req.Ref(),
			IdempotencyKey: idempotencyKey,
			Type:           outcome.OutcomeType(),
			Timestamp:      req.RequestTime(),
			StateHash:      stateHash,
			PrevHash:       prevHash,
		}

		outputs = append(outputs, CoreOutput{
			Envelope: envelope,
			Outcome:  outcome,
			Request:  req,
		})
		c.sequence++
	}

	if emit {
		for _, output := range outputs {
			// Persistence: blocking send. The core stalls until the
			// persistence worker drains, so no outcome is ever lost.
			c.persistChan <- output

			// Projections: non-blocking send, drop on full. Projection
			// workers rebuild from the event log when they fall behind.
			select {
			case c.projectionChan <- output:
			default:
				if c.metrics != nil {
					c.metrics.ProjectionDrops.Inc()
				}
			}
		}
	}

	c.idempotency.MarkProcessed(opType, idempotencyKey)

	if c.metrics != nil {
		c.metrics.OpsApplied.WithLabelValues(opType).Inc()
		c.metrics.OpDuration.WithLabelValues(opType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
		c.metrics.DedupLRUSize.Set(float64(c.idempotency.lru.Size()))
		for _, outcome := range outcomes {
			c.metrics.OutcomesTotal.WithLabelValues(outcome.OutcomeType().String()).Inc()
			switch outcome.OutcomeType() {
			case event.OutcomeTypeAssetLiquidated:
				c.metrics.LiquidationsTotal.Inc()
			case event.OutcomeTypeAssetRisk:
				c.metrics.RiskWarningsTotal.Inc()
			}
		}
		c.updateStateMetrics()
	}

	return nil
}

func (c *Engine) dispatch(req event.Request) ([]event.Outcome, error) {
	switch r := req.(type) {
	case *event.InitLedger:
		out, err := c.ledger.Initialize(r)
		return single(out, err)
	case *event.Mint:
		out, err := c.ledger.Mint(r)
		return single(out, err)
	case *event.Burn:
		out, err := c.ledger.Burn(r)
		return single(out, err)
	case *event.Transfer:
		out, err := c.ledger.Transfer(r)
		return single(out, err)
	case *event.UpdateReserves:
		out, err := c.ledger.UpdateReserves(r)
		return single(out, err)
	case *event.UpdateFeeRecipient:
		out, err := c.ledger.UpdateFeeRecipient(r)
		return single(out, err)
	case *event.InitMarketplace:
		out, err := c.market.Initialize(r)
		return single(out, err)
	case *event.ListAsset:
		out, err := c.market.List(r)
		return single(out, err)
	case *event.RevalueAsset:
		valuation, risk, err := c.market.Revalue(r)
		if err != nil {
			return nil, err
		}
		outcomes := []event.Outcome{valuation}
		if risk != nil {
			outcomes = append(outcomes, risk)
		}
		return outcomes, nil
	case *event.TransferAsset:
		out, err := c.market.TransferOwnership(r)
		return single(out, err)
	case *event.LiquidateAsset:
		out, err := c.market.Liquidate(r)
		return single(out, err)
	case *event.SetThreshold:
		out, err := c.market.SetThreshold(r)
		return single(out, err)
	default:
		return nil, fmt.Errorf("unknown request type: %T", req)
	}
}

func single(out event.Outcome, err error) ([]event.Outcome, error) {
	if err != nil {
		return nil, err
	}
	return []event.Outcome{out}, nil
}

// rejectReason maps a dispatch error to a stable metrics label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrNotInitialized), errors.Is(err, rwa.ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, ledger.ErrAlreadyInitialized), errors.Is(err, rwa.ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, ledger.ErrUnauthorized), errors.Is(err, rwa.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ledger.ErrInvalidDaoAccount):
		return "invalid_dao_account"
	case errors.Is(err, ledger.ErrInvalidAccount), errors.Is(err, rwa.ErrInvalidAccount):
		return "invalid_account"
	case errors.Is(err, ledger.ErrInsufficientReserves):
		return "insufficient_reserves"
	case errors.Is(err, ledger.ErrInsufficientAmount):
		return "insufficient_amount"
	case errors.Is(err, token.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, rwa.ErrInvalidThreshold):
		return "invalid_threshold"
	case errors.Is(err, rwa.ErrUnknownAsset):
		return "unknown_asset"
	case errors.Is(err, rwa.ErrAssetExists):
		return "asset_exists"
	case errors.Is(err, rwa.ErrAssetLiquidated):
		return "asset_liquidated"
	case errors.Is(err, rwa.ErrNotEligibleForLiquidation):
		return "not_eligible"
	case errors.Is(err, safemath.ErrOverflow):
		return "overflow"
	default:
		return "invalid"
	}
}

// computeStateDigest serializes the full authoritative state into canonical
// bytes: ledger fields, sorted contributions, sorted token book, marketplace
// fields, sorted asset registry. Map iteration never reaches the digest.
func (c *Engine) computeStateDigest() []byte {
	digest := make([]byte, 0, 1024)

	ls := c.ledger.State()
	digest = append(digest, ls.Admin[:]...)
	digest = append(digest, ls.ReserveAssetRef[:]...)
	digest = append(digest, ls.ReserveAccount[:]...)
	digest = append(digest, ls.FeeRecipient[:]...)
	digest = append(digest, ls.MintRef[:]...)
	digest = append(digest, ls.MintAuthority[:]...)
	digest = append(digest, ls.Decimals)
	digest = appendUint64LE(digest, ls.TotalSupply)
	digest = appendUint64LE(digest, ls.FeeContributionsTotal)
	digest = appendUint64LE(digest, ls.ReserveLiquid)
	digest = appendUint64LE(digest, ls.CollateralBase)
	digest = appendUint64LE(digest, ls.CollateralValue)

	for _, ref := range ls.SortedContributionRefs() {
		value, _ := ls.Contribution(ref)
		digest = append(digest, ref[:]...)
		digest = appendUint64LE(digest, value)
	}

	tokens := c.book.Tokens()
	tokenRefs := make([]identity.ID, 0, len(tokens))
	for ref := range tokens {
		tokenRefs = append(tokenRefs, ref)
	}
	sort.Slice(tokenRefs, func(i, j int) bool {
		return tokenRefs[i].String() < tokenRefs[j].String()
	})
	for _, ref := range tokenRefs {
		authority := tokens[ref]
		digest = append(digest, ref[:]...)
		digest = append(digest, authority[:]...)
		digest = appendUint64LE(digest, c.book.Supply(ref))
	}

	balances := c.book.SnapshotBalances()
	paths := make([]string, 0, len(balances))
	for path := range balances {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendUint64LE(digest, balances[path])
	}

	ms := c.market.Market()
	digest = append(digest, ms.Admin[:]...)
	digest = append(digest, ms.LedgerRef[:]...)
	digest = append(digest, ms.CertAuthority[:]...)
	digest = appendUint64LE(digest, ms.AssetCount)
	digest = appendUint64LE(digest, uint64(ms.DefaultThresholdPct))

	for _, asset := range c.market.Registry().All() {
		digest = append(digest, asset.CanonicalBytes()...)
	}

	return digest
}

func appendUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// updateStateMetrics pushes the authoritative state into domain gauges.
func (c *Engine) updateStateMetrics() {
	ls := c.ledger.State()
	c.metrics.TotalSupply.Set(float64(ls.TotalSupply))
	c.metrics.ReserveLiquid.Set(float64(ls.ReserveLiquid))
	c.metrics.CollateralValue.Set(float64(ls.CollateralValue))
	c.metrics.FeeContributions.Set(float64(ls.FeeContributionsTotal))

	if ls.Initialized() {
		if status, err := c.ledger.ReserveStatus(); err == nil {
			backed := 0.0
			if status.SupplyFullyBacked {
				backed = 1.0
			}
			c.metrics.SupplyFullyBacked.Set(backed)
		}
	}

	ms := c.market.Market()
	if ms.Initialized() {
		c.metrics.AssetCount.Set(float64(ms.AssetCount))
		counts := map[rwa.AssetStatus]int{
			rwa.StatusListed:     0,
			rwa.StatusAtRisk:     0,
			rwa.StatusLiquidated: 0,
		}
		for _, asset := range c.market.Registry().All() {
			counts[asset.Status]++
		}
		for status, n := range counts {
			c.metrics.AssetsByStatus.WithLabelValues(status.String()).Set(float64(n))
		}
	}
}

// GetSequence returns the next sequence number to assign.
func (c *Engine) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current hash chain tip.
func (c *Engine) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// WarmLRU loads recent composite idempotency keys into the LRU cache.
func (c *Engine) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}
