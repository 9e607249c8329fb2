package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
	"github.com/kirillkom/regulatory-assistant/internal/infrastructure/resilience"
)

type connFake struct {
	errs     []error
	subjects []string
	payloads [][]byte
	closed   bool
}

func (f *connFake) Publish(subject string, data []byte) error {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *connFake) Close() { f.closed = true }

func TestPublishRetrievalCompletedEncodesEnvelope(t *testing.T) {
	fake := &connFake{}
	pub := newPublisher(fake, "", nil)
	pub.now = func() time.Time { return time.Date(2026, 10, 14, 8, 30, 0, 0, time.UTC) }

	err := pub.PublishRetrievalCompleted(context.Background(), domain.RetrievalOutcome{
		Status:           domain.OutcomeSuccess,
		Subject:          "aspirin",
		DocumentsIndexed: 2,
	})
	if err != nil {
		t.Fatalf("PublishRetrievalCompleted() error = %v", err)
	}
	if len(fake.subjects) != 1 || fake.subjects[0] != DefaultSubject {
		t.Fatalf("unexpected subjects %v", fake.subjects)
	}

	var event retrievalEvent
	if err := json.Unmarshal(fake.payloads[0], &event); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if event.Type != "retrieval.completed" || event.Outcome.Subject != "aspirin" || event.Outcome.DocumentsIndexed != 2 {
		t.Fatalf("unexpected event %+v", event)
	}
	if !event.OccurredAt.Equal(time.Date(2026, 10, 14, 8, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %v", event.OccurredAt)
	}

	pub.Close()
	if !fake.closed {
		t.Fatalf("expected connection to be closed")
	}
}

func TestPublishRetriesTransientNATSErrors(t *testing.T) {
	fake := &connFake{errs: []error{nats.ErrTimeout}}
	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	})
	pub := newPublisher(fake, "custom.subject", exec)

	if err := pub.PublishRetrievalCompleted(context.Background(), domain.RetrievalOutcome{Subject: "x"}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(fake.subjects) != 2 || fake.subjects[1] != "custom.subject" {
		t.Fatalf("expected two publish attempts, got %v", fake.subjects)
	}
}

func TestClassifyNATSError(t *testing.T) {
	if class := classifyNATSError(context.Canceled); class.Retryable || class.RecordFailure {
		t.Fatalf("canceled must not retry or count, got %+v", class)
	}
	if class := classifyNATSError(nats.ErrNoServers); !class.Retryable {
		t.Fatalf("no servers must be retryable")
	}
	if class := classifyNATSError(errors.New("auth violation")); class.Retryable || !class.RecordFailure {
		t.Fatalf("unknown errors must fail fast, got %+v", class)
	}
}

func TestClassifyNATSErrorIgnoresCallerMistakes(t *testing.T) {
	if class := classifyNATSError(fmt.Errorf("nats publish: %w", nats.ErrMaxPayload)); class != resilience.Ignored {
		t.Fatalf("oversized payload must not trip the breaker, got %+v", class)
	}
}
