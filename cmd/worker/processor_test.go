package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/dolabb/dolabb-sub001/internal/webhook"
)

// --- mock implementations ---

type mockNotifier struct {
	calls  []webhook.Notification
	result webhook.Result
	err    error
}

func (m *mockNotifier) Notify(ctx context.Context, sessionID string, n webhook.Notification) (webhook.Result, error) {
	m.calls = append(m.calls, n)
	return m.result, m.err
}

func message(t *testing.T, id string, msg webhook.RetryMessage) events.SQSMessage {
	t.Helper()
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return events.SQSMessage{MessageId: id, Body: string(body)}
}

// --- test cases ---

func TestWorkerProcess_Success(t *testing.T) {
	n := &mockNotifier{result: webhook.Result{Sent: true}}
	p := NewProcessor(n, zap.NewNop())

	ev := events.SQSEvent{Records: []events.SQSMessage{
		message(t, "m1", webhook.RetryMessage{SessionID: "s1", Notification: webhook.Notification{PaymentID: "pay_1", OrderID: "o1", Amount: 100}}),
	}}
	resp, err := p.Handle(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected worker error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("expected no failures, got %v", resp.BatchItemFailures)
	}
	if len(n.calls) != 1 || n.calls[0].PaymentID != "pay_1" {
		t.Fatalf("expected one notification for pay_1, got %+v", n.calls)
	}
}

func TestWorkerProcess_FailureIsReported(t *testing.T) {
	n := &mockNotifier{err: webhook.ErrDeliveryFailed}
	p := NewProcessor(n, zap.NewNop())

	ev := events.SQSEvent{Records: []events.SQSMessage{
		message(t, "m1", webhook.RetryMessage{SessionID: "s1", Notification: webhook.Notification{PaymentID: "pay_1", OrderID: "o1"}}),
	}}
	resp, _ := p.Handle(context.Background(), ev)
	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "m1" {
		t.Fatalf("expected m1 reported as failed, got %v", resp.BatchItemFailures)
	}
}

func TestWorkerProcess_AlreadyNotifiedIsDone(t *testing.T) {
	n := &mockNotifier{result: webhook.Result{Skipped: true, SkipReason: webhook.SkipAlreadyNotified}}
	p := NewProcessor(n, zap.NewNop())

	ev := events.SQSEvent{Records: []events.SQSMessage{
		message(t, "m1", webhook.RetryMessage{SessionID: "s1", Notification: webhook.Notification{PaymentID: "pay_1", OrderID: "o1"}}),
	}}
	resp, _ := p.Handle(context.Background(), ev)
	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("duplicate delivery should be acknowledged, got %v", resp.BatchItemFailures)
	}
}

func TestWorkerProcess_InFlightIsRetried(t *testing.T) {
	n := &mockNotifier{result: webhook.Result{Skipped: true, SkipReason: webhook.SkipInFlight}}
	p := NewProcessor(n, zap.NewNop())

	ev := events.SQSEvent{Records: []events.SQSMessage{
		message(t, "m1", webhook.RetryMessage{SessionID: "s1", Notification: webhook.Notification{PaymentID: "pay_1", OrderID: "o1"}}),
	}}
	resp, _ := p.Handle(context.Background(), ev)
	if len(resp.BatchItemFailures) != 1 {
		t.Fatalf("expected in-flight message to be retried, got %v", resp.BatchItemFailures)
	}
}

func TestWorkerProcess_PoisonMessageDropped(t *testing.T) {
	n := &mockNotifier{}
	p := NewProcessor(n, zap.NewNop())

	ev := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "bad", Body: "not-json"},
		message(t, "m2", webhook.RetryMessage{SessionID: "s1"}),
	}}
	resp, err := p.Handle(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("poison messages must not be redelivered, got %v", resp.BatchItemFailures)
	}
	if len(n.calls) != 0 {
		t.Fatalf("notifier must not be called for poison messages")
	}
}
