package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"EstabloLedger/internal/core"
)

// OutcomeRow is a row in event_log.outcomes. Each row carries both the
// outcome record and the request that produced it, so startup replay can
// re-feed the original requests through the core.
type OutcomeRow struct {
	Sequence       int64
	OutcomeType    string
	RequestType    string
	IdempotencyKey string
	RequestID      uuid.UUID
	Outcome        []byte // JSON-encoded outcome record
	Request        []byte // JSON-encoded request payload
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
}

// ToOutcomeRow converts a core output into its persisted form.
func ToOutcomeRow(out core.CoreOutput) (OutcomeRow, error) {
	outcomeJSON, err := json.Marshal(out.Outcome)
	if err != nil {
		return OutcomeRow{}, fmt.Errorf("marshal outcome seq %d: %w", out.Envelope.Sequence, err)
	}
	requestJSON, err := json.Marshal(out.Request)
	if err != nil {
		return OutcomeRow{}, fmt.Errorf("marshal request seq %d: %w", out.Envelope.Sequence, err)
	}

	return OutcomeRow{
		Sequence:       out.Envelope.Sequence,
		OutcomeType:    out.Envelope.Type.String(),
		RequestType:    out.Request.Kind().String(),
		IdempotencyKey: out.Envelope.IdempotencyKey,
		RequestID:      out.Envelope.RequestID,
		Outcome:        outcomeJSON,
		Request:        requestJSON,
		StateHash:      out.Envelope.StateHash[:],
		PrevHash:       out.Envelope.PrevHash[:],
		Timestamp:      out.Envelope.Timestamp,
	}, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// OutcomeLogWriter writes outcome rows to Postgres using multi-row INSERT.
// ON CONFLICT DO NOTHING keeps re-flushes after a retried batch idempotent.
type OutcomeLogWriter struct {
	db *sql.DB
}

func NewOutcomeLogWriter(db *sql.DB) *OutcomeLogWriter {
	return &OutcomeLogWriter{db: db}
}

// WriteBatch writes a batch of outcome rows inside the given executor.
func (w *OutcomeLogWriter) WriteBatch(ctx context.Context, ex execer, rows []OutcomeRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.outcomes
		(sequence, outcome_type, request_type, idempotency_key, request_id, outcome, request, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*10)

	for i, r := range rows {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			r.Sequence, r.OutcomeType, r.RequestType, r.IdempotencyKey, r.RequestID,
			r.Outcome, r.Request, r.StateHash, r.PrevHash, r.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}
