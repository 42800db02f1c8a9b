package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/dolabb/dolabb-sub001/internal/webhook"
)

// Notifier is satisfied by *webhook.Notifier.
type Notifier interface {
	Notify(ctx context.Context, sessionID string, n webhook.Notification) (webhook.Result, error)
}

// Processor re-sends webhook notifications that failed during a callback.
// The dedupe marker makes redelivered messages harmless.
type Processor struct {
	notifier Notifier
	logger   *zap.Logger
}

func NewProcessor(n Notifier, logger *zap.Logger) *Processor {
	return &Processor{notifier: n, logger: logger}
}

// Handle processes a batch and reports failed messages individually so SQS
// only redelivers those. Poison messages are dropped with an error log.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			if errors.Is(err, errPoison) {
				p.logger.Error("dropping malformed retry message", zap.String("message_id", rec.MessageId), zap.Error(err))
				continue
			}
			p.logger.Warn("webhook retry failed", zap.String("message_id", rec.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

var errPoison = errors.New("unprocessable message")

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg webhook.RetryMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("%w: invalid message body: %v", errPoison, err)
	}
	if msg.SessionID == "" || msg.Notification.PaymentID == "" {
		return fmt.Errorf("%w: missing session or payment id", errPoison)
	}

	res, err := p.notifier.Notify(ctx, msg.SessionID, msg.Notification)
	if err != nil {
		return err
	}
	if res.Skipped && res.SkipReason == webhook.SkipInFlight {
		// another sender holds the claim; check again on redelivery
		return fmt.Errorf("notification for %s still in flight", msg.Notification.PaymentID)
	}
	p.logger.Info("webhook retry processed",
		zap.String("payment_id", msg.Notification.PaymentID),
		zap.String("correlation_id", msg.CorrelationID),
		zap.Bool("sent", res.Sent),
		zap.String("skip_reason", res.SkipReason))
	return nil
}
