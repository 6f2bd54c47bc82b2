package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"EstabloLedger/internal/core"
	"EstabloLedger/internal/observability"
)

// Worker drains the persist channel and batch-writes to Postgres. The core
// sends on this channel with a BLOCKING send, so if the worker falls behind
// the core stalls rather than losing an outcome.
type Worker struct {
	writer       *OutcomeLogWriter
	db           *sql.DB
	inputChan    <-chan core.CoreOutput
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan core.CoreOutput,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewOutcomeLogWriter(db),
		db:           db,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          observability.NewLogger("persistence"),
	}
}

// Run starts the worker loop. Batches are flushed when full or when the
// flush timeout expires. Blocks until ctx is cancelled or the channel closes.
func (pw *Worker) Run(ctx context.Context) error {
	batch := make([]OutcomeRow, 0, pw.batchSize)

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				// Final flush with a background context so shutdown
				// does not drop the tail of the channel.
				if err := pw.flush(context.Background(), batch); err != nil {
					pw.log.Error().Err(err).Int("rows", len(batch)).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := pw.flush(context.Background(), batch); err != nil {
						pw.log.Error().Err(err).Int("rows", len(batch)).Msg("final flush failed")
					}
				}
				return nil
			}

			row, err := ToOutcomeRow(output)
			if err != nil {
				// Marshal failures are programming errors; the outcome
				// types are all plain structs.
				pw.log.Error().Err(err).Int64("sequence", output.Envelope.Sequence).Msg("row conversion failed")
				continue
			}
			batch = append(batch, row)

			if len(batch) >= pw.batchSize {
				pw.flushWithRetry(ctx, batch)
				batch = batch[:0]
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				pw.flushWithRetry(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff. The worker never drops
// outcomes; it retries until the write succeeds or shutdown forces a final
// background-context attempt.
func (pw *Worker) flushWithRetry(ctx context.Context, rows []OutcomeRow) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if pw.metrics != nil {
				pw.metrics.PersistRetry.Inc()
			}
			pw.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("rows", len(rows)).
				Msg("persistence retry")
			select {
			case <-ctx.Done():
				if err := pw.flush(context.Background(), rows); err != nil {
					pw.log.Error().Err(err).Msg("final flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := pw.flush(ctx, rows); err == nil {
			if attempt > 0 {
				pw.log.Info().Int("attempts", attempt).Msg("persistence flush recovered")
			}
			return
		}
	}
}

func (pw *Worker) flush(ctx context.Context, rows []OutcomeRow) error {
	start := time.Now()

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteBatch(ctx, tx, rows); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("write").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(rows)))
		pw.metrics.PersistOutcomesWritten.Add(float64(len(rows)))
		pw.metrics.PersistLastSequence.Set(float64(rows[len(rows)-1].Sequence))
	}

	return nil
}
