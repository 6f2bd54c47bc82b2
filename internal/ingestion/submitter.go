package ingestion

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"EstabloLedger/internal/event"
)

// Submitter publishes validated requests onto the request stream. The HTTP
// API uses it so externally submitted requests take the same ordered path
// through JetStream as everything else.
type Submitter struct {
	js jetstream.JetStream
}

func NewSubmitter(js jetstream.JetStream) *Submitter {
	return &Submitter{js: js}
}

// Submit validates the payload as the named request type and publishes it.
// Returns the decoded request so callers can echo back its identifiers.
func (s *Submitter) Submit(ctx context.Context, requestType string, payload []byte) (event.Request, error) {
	req, err := ParseRequest(requestType, payload)
	if err != nil {
		return nil, err
	}

	subject, err := RequestSubject(requestType)
	if err != nil {
		return nil, err
	}

	if _, err := s.js.Publish(ctx, subject, payload); err != nil {
		return nil, fmt.Errorf("publish %s: %w", subject, err)
	}
	return req, nil
}

// RequestSubject returns the stream subject for a request type name.
func RequestSubject(requestType string) (string, error) {
	for suffix, name := range subjectSuffixes {
		if name == requestType {
			return RequestSubjectPrefix + suffix, nil
		}
	}
	return "", fmt.Errorf("unknown request type %q", requestType)
}
