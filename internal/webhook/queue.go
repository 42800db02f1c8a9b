package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// RetryMessage is what the API enqueues when a notification fails, and what
// cmd/worker consumes.
type RetryMessage struct {
	SessionID     string       `json:"session_id"`
	Notification  Notification `json:"notification"`
	CorrelationID string       `json:"correlation_id,omitempty"`
}

// Publisher is satisfied by aws.Publisher.
type Publisher interface {
	SendMessage(ctx context.Context, messageBody string, attributes map[string]string) error
}

// RetryQueue hands failed notifications to the retry worker.
type RetryQueue struct {
	pub Publisher
}

func NewRetryQueue(pub Publisher) *RetryQueue {
	return &RetryQueue{pub: pub}
}

// Enqueue publishes a retry for n and returns the correlation id used.
func (q *RetryQueue) Enqueue(ctx context.Context, sessionID string, n Notification) (string, error) {
	msg := RetryMessage{
		SessionID:     sessionID,
		Notification:  n,
		CorrelationID: uuid.NewString(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal retry message: %w", err)
	}
	attrs := map[string]string{
		"payment_id":     n.PaymentID,
		"correlation_id": msg.CorrelationID,
	}
	if err := q.pub.SendMessage(ctx, string(body), attrs); err != nil {
		return "", fmt.Errorf("enqueue webhook retry: %w", err)
	}
	return msg.CorrelationID, nil
}
