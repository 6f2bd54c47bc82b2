package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"EstabloLedger/internal/core"
	"EstabloLedger/internal/event"
	"EstabloLedger/internal/observability"
)

// Worker maintains the read models in the projections schema: the singleton
// ledger_status row, the assets table and the valuation history. The core
// sends on the projection channel non-blocking with drop; missed outcomes
// are recovered by Rebuild from the outcome log.
type Worker struct {
	db        *sql.DB
	inputChan <-chan core.CoreOutput
	metrics   *observability.Metrics
	log       zerolog.Logger
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan core.CoreOutput, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		log:       observability.NewLogger("projection"),
		lastSeq:   -1,
	}
}

// Run starts the projection worker loop.
func (pw *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				// Eventually consistent: a failed update is repaired by
				// the next Rebuild from the outcome log.
				pw.log.Warn().Err(err).Int64("sequence", output.Envelope.Sequence).Msg("projection update failed")
				if pw.metrics != nil {
					pw.metrics.ProjectionErrors.Inc()
				}
				continue
			}

			pw.lastSeq = output.Envelope.Sequence
			if pw.metrics != nil {
				pw.metrics.ProjectionUpdates.WithLabelValues(output.Envelope.Type.String()).Inc()
			}
		}
	}
}

func (pw *Worker) processOutput(ctx context.Context, output core.CoreOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := pw.apply(ctx, tx, output.Envelope.Sequence, output); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE projections.watermark SET sequence = $1 WHERE id = 1 AND sequence < $1
	`, output.Envelope.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *Worker) apply(ctx context.Context, tx *sql.Tx, seq int64, output core.CoreOutput) error {
	ts := output.Envelope.Timestamp

	switch o := output.Outcome.(type) {
	case *event.LedgerInitialized:
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.ledger_status
			SET admin = $1, mint_ref = $2, fee_recipient = $3, decimals = $4,
			    as_of_sequence = $5, updated_at = NOW()
			WHERE id = 1
		`, o.Admin.String(), o.MintRef.String(), o.FeeRecipient.String(), o.Decimals, seq)
		return err

	case *event.Minted:
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.ledger_status
			SET total_supply = $1, as_of_sequence = $2, updated_at = NOW()
			WHERE id = 1
		`, int64(o.TotalSupply), seq)
		return err

	case *event.Burned:
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.ledger_status
			SET total_supply = $1,
			    reserve_liquid = reserve_liquid - $2,
			    as_of_sequence = $3, updated_at = NOW()
			WHERE id = 1
		`, int64(o.TotalSupply), int64(o.ReleasedLiquid), seq)
		return err

	case *event.Transferred:
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.ledger_status
			SET fee_contributions_total = $1, as_of_sequence = $2, updated_at = NOW()
			WHERE id = 1
		`, int64(o.FeeContributionsTotal), seq)
		return err

	case *event.ReservesUpdated:
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.ledger_status
			SET reserve_liquid = $1, collateral_base = $2, collateral_value = $3,
			    as_of_sequence = $4, updated_at = NOW()
			WHERE id = 1
		`, int64(o.LiquidAmount), int64(o.CollateralBase), int64(o.CollateralValue), seq)
		return err

	case *event.FeeRecipientUpdated:
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.ledger_status
			SET fee_recipient = $1, as_of_sequence = $2, updated_at = NOW()
			WHERE id = 1
		`, o.New.String(), seq)
		return err

	case *event.AssetListed:
		// Location and details travel only on the request.
		var location, details string
		if listReq, ok := output.Request.(*event.ListAsset); ok {
			location, details = listReq.Location, listReq.Details
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.assets
				(asset_mint_ref, owner, current_value, initial_value, status,
				 threshold_pct, location, details, last_valuation_time, as_of_sequence)
			VALUES ($1, $2, $3, $3, 'Listed', $4, $5, $6, $7, $8)
			ON CONFLICT (asset_mint_ref) DO NOTHING
		`, o.AssetMintRef.String(), o.Owner.String(), int64(o.Value), o.ThresholdPct,
			location, details, ts, seq); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.ledger_status
			SET collateral_value = collateral_value + $1, as_of_sequence = $2, updated_at = NOW()
			WHERE id = 1
		`, int64(o.Value), seq)
		return err

	case *event.AssetValuation:
		if _, err := tx.ExecContext(ctx, `
			UPDATE projections.assets
			SET current_value = $1, status = $2, last_valuation_time = $3,
			    as_of_sequence = $4, updated_at = NOW()
			WHERE asset_mint_ref = $5 AND as_of_sequence < $4
		`, int64(o.NewValue), o.Status, o.ValuedAt, seq, o.AssetMintRef.String()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.valuation_history
				(asset_mint_ref, sequence, old_value, new_value, status, valued_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (asset_mint_ref, sequence) DO NOTHING
		`, o.AssetMintRef.String(), seq, int64(o.OldValue), int64(o.NewValue), o.Status, o.ValuedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.ledger_status
			SET collateral_value = collateral_value + $1 - $2,
			    as_of_sequence = $3, updated_at = NOW()
			WHERE id = 1
		`, int64(o.NewValue), int64(o.OldValue), seq)
		return err

	case *event.AssetRisk:
		// Status already captured by the paired valuation record.
		return nil

	case *event.AssetTransferred:
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.assets
			SET owner = $1, as_of_sequence = $2, updated_at = NOW()
			WHERE asset_mint_ref = $3 AND as_of_sequence < $2
		`, o.NewOwner.String(), seq, o.AssetMintRef.String())
		return err

	case *event.AssetLiquidated:
		if _, err := tx.ExecContext(ctx, `
			UPDATE projections.assets
			SET owner = $1, status = 'Liquidated', as_of_sequence = $2, updated_at = NOW()
			WHERE asset_mint_ref = $3 AND as_of_sequence < $2
		`, o.SeizedBy.String(), seq, o.AssetMintRef.String()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.ledger_status
			SET collateral_value = collateral_value - $1, as_of_sequence = $2, updated_at = NOW()
			WHERE id = 1
		`, int64(o.FinalValue), seq)
		return err

	case *event.MarketplaceInitialized, *event.ThresholdUpdated:
		// No read model derives from these.
		return nil

	default:
		pw.log.Debug().Str("type", output.Envelope.Type.String()).Msg("no projection for outcome")
		return nil
	}
}

// Rebuild truncates the read models and replays the whole outcome log.
func Rebuild(ctx context.Context, db *sql.DB, metrics *observability.Metrics) error {
	log := observability.NewLogger("projection-rebuild")

	statements := []string{
		`TRUNCATE projections.assets`,
		`TRUNCATE projections.valuation_history`,
		`UPDATE projections.ledger_status SET
			admin = '', mint_ref = '', fee_recipient = '', decimals = 0,
			total_supply = 0, reserve_liquid = 0, collateral_base = 0,
			collateral_value = 0, fee_contributions_total = 0,
			as_of_sequence = -1, updated_at = NOW()
		 WHERE id = 1`,
		`UPDATE projections.watermark SET sequence = -1 WHERE id = 1`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset projections: %w", err)
		}
	}

	worker := NewWorker(db, nil, metrics)

	const pageSize = 1000
	from := int64(0)
	for {
		rows, err := loadOutcomePage(ctx, db, from, pageSize)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			output, err := row.toCoreOutput()
			if err != nil {
				return fmt.Errorf("decode outcome seq %d: %w", row.sequence, err)
			}
			if err := worker.processOutput(ctx, output); err != nil {
				return fmt.Errorf("rebuild at seq %d: %w", row.sequence, err)
			}
			from = row.sequence + 1
		}
	}

	log.Info().Int64("through_sequence", from-1).Msg("projection rebuild complete")
	return nil
}

type outcomeLogRow struct {
	sequence    int64
	outcomeType string
	requestType string
	outcome     []byte
	request     []byte
	envelope    event.Envelope
}

func loadOutcomePage(ctx context.Context, db *sql.DB, from int64, limit int) ([]outcomeLogRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT sequence, outcome_type, request_type, outcome, request, timestamp
		FROM event_log.outcomes
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, from, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []outcomeLogRow
	for rows.Next() {
		var r outcomeLogRow
		if err := rows.Scan(&r.sequence, &r.outcomeType, &r.requestType, &r.outcome, &r.request, &r.envelope.Timestamp); err != nil {
			return nil, err
		}
		r.envelope.Sequence = r.sequence
		out = append(out, r)
	}
	return out, rows.Err()
}

func (r outcomeLogRow) toCoreOutput() (core.CoreOutput, error) {
	outcome, err := decodeOutcome(r.outcomeType, r.outcome)
	if err != nil {
		return core.CoreOutput{}, err
	}

	envelope := r.envelope
	envelope.Type = outcome.OutcomeType()

	output := core.CoreOutput{Envelope: &envelope, Outcome: outcome}

	// Only listings need the request payload (location and details).
	if r.requestType == "ListAsset" {
		var listReq event.ListAsset
		if err := json.Unmarshal(r.request, &listReq); err != nil {
			return core.CoreOutput{}, err
		}
		output.Request = &listReq
	}
	return output, nil
}

func decodeOutcome(outcomeType string, data []byte) (event.Outcome, error) {
	var o event.Outcome
	switch outcomeType {
	case "LedgerInitialized":
		o = &event.LedgerInitialized{}
	case "Minted":
		o = &event.Minted{}
	case "Burned":
		o = &event.Burned{}
	case "Transferred":
		o = &event.Transferred{}
	case "ReservesUpdated":
		o = &event.ReservesUpdated{}
	case "FeeRecipientUpdated":
		o = &event.FeeRecipientUpdated{}
	case "MarketplaceInitialized":
		o = &event.MarketplaceInitialized{}
	case "AssetListed":
		o = &event.AssetListed{}
	case "AssetValuation":
		o = &event.AssetValuation{}
	case "AssetRisk":
		o = &event.AssetRisk{}
	case "AssetTransferred":
		o = &event.AssetTransferred{}
	case "AssetLiquidated":
		o = &event.AssetLiquidated{}
	case "ThresholdUpdated":
		o = &event.ThresholdUpdated{}
	default:
		return nil, fmt.Errorf("unknown outcome type %q", outcomeType)
	}
	if err := json.Unmarshal(data, o); err != nil {
		return nil, err
	}
	return o, nil
}
