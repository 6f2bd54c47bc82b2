package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"EstabloLedger/internal/observability"
)

const (
	RequestStreamName   = "ESTABLO_REQUESTS"
	RequestConsumerName = "establo-core"
)

// RawRequest is the undecoded request off NATS, ready for the shell to
// parse and validate before handing to the core. ACK only after the core
// accepted or rejected the request; NAK triggers redelivery.
type RawRequest struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func()
	NakFunc   func()
}

// Subscriber consumes the request stream and feeds raw requests into
// requestChan for the single decode-and-process loop.
type Subscriber struct {
	js          jetstream.JetStream
	requestChan chan<- RawRequest
	consumer    jetstream.ConsumeContext
	log         zerolog.Logger
}

func NewSubscriber(js jetstream.JetStream, requestChan chan<- RawRequest) *Subscriber {
	return &Subscriber{
		js:          js,
		requestChan: requestChan,
		log:         observability.NewLogger("nats-subscriber"),
	}
}

// Subscribe creates the durable consumer over the whole request subject
// space. A single consumer keeps request arrival totally ordered for
// the single-threaded core.
func (s *Subscriber) Subscribe(ctx context.Context) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, RequestStreamName, jetstream.ConsumerConfig{
		Durable:       RequestConsumerName,
		FilterSubject: RequestSubjectPrefix + ">",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", RequestConsumerName, err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		raw := RawRequest{
			Subject:   msg.Subject(),
			Data:      msg.Data(),
			Timestamp: time.Now(),
			AckFunc:   func() { msg.Ack() },
			NakFunc:   func() { msg.Nak() },
		}

		select {
		case s.requestChan <- raw:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", RequestConsumerName, err)
	}

	s.consumer = consumeCtx
	s.log.Info().
		Str("subject", RequestSubjectPrefix+">").
		Str("consumer", RequestConsumerName).
		Msg("subscribed")
	return nil
}

// Stop gracefully stops the consumer.
func (s *Subscriber) Stop() {
	if s.consumer != nil {
		s.consumer.Stop()
	}
	s.log.Info().Msg("subscriber stopped")
}

// EnsureStreams creates the inbound request stream if it does not exist.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	log := observability.NewLogger("nats-streams")

	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      RequestStreamName,
		Subjects:  []string{RequestSubjectPrefix + ">"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", RequestStreamName, err)
	}
	log.Info().Str("stream", RequestStreamName).Msg("ensured stream")
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	log := observability.NewLogger("nats")

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
