package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"EstabloLedger/internal/core"
)

// SnapshotStore persists and recovers core state snapshots. On warm restart
// the latest verified snapshot is loaded and the outcome log replayed from
// snapshot.sequence+1.
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save persists a snapshot. Re-saving the same sequence overwrites it.
func (ss *SnapshotStore) Save(ctx context.Context, snap *core.SnapshotState) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	const formatVersion = 1 // v1: JSON-encoded core.SnapshotState

	_, err = ss.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, uuid.New(), snap.Sequence, data, snap.StateHash, formatVersion, len(data), time.Now().UTC())

	return err
}

// LoadLatest loads the most recent verified snapshot, or nil on cold start.
func (ss *SnapshotStore) LoadLatest(ctx context.Context) (*core.SnapshotState, error) {
	row := ss.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap core.SnapshotState
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// MarkVerified marks a snapshot usable after its hash was checked against
// the outcome log.
func (ss *SnapshotStore) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := ss.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadOutcomesFrom pages outcome rows for startup replay.
func (ss *SnapshotStore) LoadOutcomesFrom(ctx context.Context, fromSequence int64, limit int) ([]OutcomeRow, error) {
	rows, err := ss.db.QueryContext(ctx, `
		SELECT sequence, outcome_type, request_type, idempotency_key, request_id,
		       outcome, request, state_hash, prev_hash, timestamp
		FROM event_log.outcomes
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutcomeRow
	for rows.Next() {
		var r OutcomeRow
		if err := rows.Scan(
			&r.Sequence, &r.OutcomeType, &r.RequestType, &r.IdempotencyKey, &r.RequestID,
			&r.Outcome, &r.Request, &r.StateHash, &r.PrevHash, &r.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetLatestSequence returns the highest sequence in the outcome log,
// or -1 when the log is empty.
func (ss *SnapshotStore) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := ss.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.outcomes
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}
