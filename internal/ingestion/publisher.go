package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"EstabloLedger/internal/observability"
)

const (
	OutcomeStreamName    = "ESTABLO_OUTCOMES"
	OutcomeSubjectPrefix = "establo.ledger.outcomes."
)

// PublishableOutcome is a processed outcome ready for outbound publishing.
// The orchestrator feeds these after persistence has confirmed the row.
type PublishableOutcome struct {
	Sequence       int64       `json:"sequence"`
	OutcomeType    string      `json:"outcome_type"`
	IdempotencyKey string      `json:"idempotency_key"`
	Record         interface{} `json:"record"`
	StateHash      []byte      `json:"state_hash"`
	Timestamp      time.Time   `json:"timestamp"`
}

// OutboundPublisher publishes outcome records for downstream consumers.
// Subjects follow establo.ledger.outcomes.{outcome_type}.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableOutcome
	metrics   *observability.Metrics
	log       zerolog.Logger
}

func NewOutboundPublisher(
	js jetstream.JetStream,
	inputChan <-chan PublishableOutcome,
	metrics *observability.Metrics,
) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
		log:       observability.NewLogger("publisher"),
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, out); err != nil {
				// Non-fatal: consumers can always read the outcome log.
				op.log.Warn().Err(err).Int64("sequence", out.Sequence).Msg("outbound publish failed")
				if op.metrics != nil {
					op.metrics.PublishErrors.Inc()
				}
				continue
			}
			if op.metrics != nil {
				op.metrics.OutcomesPublished.WithLabelValues(out.OutcomeType).Inc()
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, out PublishableOutcome) error {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	subject := OutcomeSubjectPrefix + subjectToken(out.OutcomeType)
	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// subjectToken lowercases an outcome type name into a subject token,
// e.g. "AssetListed" becomes "asset_listed".
func subjectToken(outcomeType string) string {
	var b strings.Builder
	for i, r := range outcomeType {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// EnsureOutcomeStream creates the outbound outcome stream.
func EnsureOutcomeStream(ctx context.Context, js jetstream.JetStream) error {
	log := observability.NewLogger("nats-streams")

	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      OutcomeStreamName,
		Subjects:  []string{OutcomeSubjectPrefix + ">"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outcome stream: %w", err)
	}
	log.Info().Str("stream", OutcomeStreamName).Msg("ensured stream")
	return nil
}
