package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"EstabloLedger/internal/observability"
)

// Service provides read-only access to the projection tables. Queries never
// touch the in-memory core; every response carries as_of_sequence so callers
// can reason about freshness relative to the outcome log.
type Service struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewService(db *sql.DB, metrics *observability.Metrics) *Service {
	return &Service{db: db, metrics: metrics}
}

// GetLedgerStatus returns the projected ledger summary, including the
// derived backing status.
func (qs *Service) GetLedgerStatus(ctx context.Context) (resp *LedgerStatusResponse, err error) {
	defer qs.observe("ledger_status", time.Now(), &err)

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	resp = &LedgerStatusResponse{}
	err = qs.db.QueryRowContext(ctx, `
		SELECT admin, mint_ref, fee_recipient, decimals,
		       total_supply, reserve_liquid, collateral_base, collateral_value,
		       fee_contributions_total
		FROM projections.ledger_status
		WHERE id = 1
	`).Scan(
		&resp.Admin, &resp.MintRef, &resp.FeeRecipient, &resp.Decimals,
		&resp.TotalSupply, &resp.ReserveLiquid, &resp.CollateralBase, &resp.CollateralValue,
		&resp.FeeContributionsTotal,
	)
	if err != nil {
		return nil, err
	}

	resp.TotalBacking = resp.ReserveLiquid + resp.CollateralBase
	resp.FullyBacked = resp.TotalBacking >= resp.TotalSupply
	resp.AsOfSequence = asOfSeq
	return resp, nil
}

// GetAsset returns a single collateral asset by its mint reference.
// Returns nil when the asset is unknown.
func (qs *Service) GetAsset(ctx context.Context, assetMintRef string) (resp *AssetResponse, err error) {
	defer qs.observe("asset", time.Now(), &err)

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var a AssetResponse
	err = qs.db.QueryRowContext(ctx, `
		SELECT asset_mint_ref, owner, current_value, initial_value, status,
		       threshold_pct, location, details, last_valuation_time
		FROM projections.assets
		WHERE asset_mint_ref = $1
	`, assetMintRef).Scan(
		&a.AssetMintRef, &a.Owner, &a.CurrentValue, &a.InitialValue, &a.Status,
		&a.ThresholdPct, &a.Location, &a.Details, &a.LastValuationTime,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.AsOfSequence = asOfSeq
	return &a, nil
}

// ListAssets returns collateral assets, optionally filtered by status and
// owner, ordered by mint reference. Cursor-based pagination: pass the last
// mint reference of the previous page as afterRef.
func (qs *Service) ListAssets(
	ctx context.Context,
	status *string,
	owner *string,
	limit int,
	afterRef *string,
) (assets []AssetResponse, err error) {
	defer qs.observe("assets", time.Now(), &err)

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	query := `
		SELECT asset_mint_ref, owner, current_value, initial_value, status,
		       threshold_pct, location, details, last_valuation_time
		FROM projections.assets
		WHERE 1 = 1
	`
	args := []interface{}{}
	argIdx := 1

	if status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *status)
		argIdx++
	}
	if owner != nil {
		query += fmt.Sprintf(" AND owner = $%d", argIdx)
		args = append(args, *owner)
		argIdx++
	}
	if afterRef != nil {
		query += fmt.Sprintf(" AND asset_mint_ref > $%d", argIdx)
		args = append(args, *afterRef)
		argIdx++
	}

	query += " ORDER BY asset_mint_ref"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var a AssetResponse
		a.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&a.AssetMintRef, &a.Owner, &a.CurrentValue, &a.InitialValue, &a.Status,
			&a.ThresholdPct, &a.Location, &a.Details, &a.LastValuationTime,
		); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}

	return assets, rows.Err()
}

// GetValuationHistory returns revaluation records for an asset, newest
// first. Cursor-based pagination: pass the lowest sequence of the previous
// page as beforeSequence.
func (qs *Service) GetValuationHistory(
	ctx context.Context,
	assetMintRef string,
	limit int,
	beforeSequence *int64,
) (history []ValuationHistoryEntry, err error) {
	defer qs.observe("valuation_history", time.Now(), &err)

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	query := `
		SELECT asset_mint_ref, sequence, old_value, new_value, status, valued_at
		FROM projections.valuation_history
		WHERE asset_mint_ref = $1
	`
	args := []interface{}{assetMintRef}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var h ValuationHistoryEntry
		h.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&h.AssetMintRef, &h.Sequence, &h.OldValue, &h.NewValue, &h.Status, &h.ValuedAt,
		); err != nil {
			return nil, err
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

// VerifyIntegrity checks the outcome log for hash chain breaks and
// sequence gaps. Admin API.
func (qs *Service) VerifyIntegrity(ctx context.Context) (report *IntegrityReport, err error) {
	defer qs.observe("verify_integrity", time.Now(), &err)

	report = &IntegrityReport{}

	err = qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence), -1) FROM event_log.outcomes
	`).Scan(&report.CheckedThrough)
	if err != nil {
		return nil, err
	}

	// Every row's prev_hash must equal the state_hash of its predecessor.
	rows, err := qs.db.QueryContext(ctx, `
		SELECT o1.sequence
		FROM event_log.outcomes o1
		JOIN event_log.outcomes o2 ON o2.sequence = o1.sequence - 1
		WHERE o1.prev_hash != o2.state_hash
		ORDER BY o1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	gapRows, err := qs.db.QueryContext(ctx, `
		SELECT o1.sequence + 1
		FROM event_log.outcomes o1
		LEFT JOIN event_log.outcomes o2 ON o2.sequence = o1.sequence + 1
		WHERE o2.sequence IS NULL
		  AND o1.sequence < (SELECT MAX(sequence) FROM event_log.outcomes)
		ORDER BY o1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer gapRows.Close()

	for gapRows.Next() {
		var seq int64
		if err := gapRows.Scan(&seq); err != nil {
			return nil, err
		}
		report.SequenceGaps = append(report.SequenceGaps, seq)
	}
	if err := gapRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.SequenceGaps) == 0
	return report, nil
}

// --- helpers ---

func (qs *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT sequence FROM projections.watermark WHERE id = 1
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return -1, nil
	}
	return seq, err
}

func (qs *Service) observe(endpoint string, start time.Time, errp *error) {
	if qs.metrics == nil {
		return
	}
	status := "ok"
	if *errp != nil {
		status = "error"
	}
	qs.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
	qs.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
