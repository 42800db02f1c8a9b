// Package webhook tells the backend that a payment reached paid. Each
// notification is guarded by a session-scoped dedupe marker so the backend's
// affiliate and seller accounting is credited at most once per payment.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dolabb/dolabb-sub001/internal/idempotency"
)

var (
	// ErrDeliveryFailed means the backend did not accept the notification. The
	// marker is left unset so a later pass may retry.
	ErrDeliveryFailed = errors.New("webhook delivery failed")
	ErrNoPaymentID    = errors.New("notification has no payment id")
)

// Skip reasons reported in Result.
const (
	SkipAlreadyNotified = "already_notified"
	SkipInFlight        = "in_flight"
	SkipNoOrders        = "no_orders"
)

// Notification is the webhook body. Status is always "paid".
type Notification struct {
	PaymentID string   `json:"id"`
	Status    string   `json:"status"`
	Amount    int64    `json:"amount"`
	OrderID   string   `json:"orderId,omitempty"`
	OrderIDs  []string `json:"orderIds,omitempty"`
	IsGroup   bool     `json:"isGroup,omitempty"`
	OfferID   string   `json:"offerId,omitempty"`
}

// Result describes what Notify did.
type Result struct {
	Sent       bool
	Skipped    bool
	SkipReason string
}

// Marker is the dedupe marker store; idempotency.Store and
// idempotency.MemoryStore both satisfy it.
type Marker interface {
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	CreateIfNotExists(ctx context.Context, key, paymentID string) (bool, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	Release(ctx context.Context, key string) error
}

type Notifier struct {
	URL   string
	Token string
	HTTP  *http.Client

	marker Marker
	logger *zap.Logger
	group  singleflight.Group
}

func NewNotifier(url, token string, marker Marker, logger *zap.Logger) *Notifier {
	return &Notifier{
		URL:    url,
		Token:  token,
		HTTP:   &http.Client{Timeout: 10 * time.Second},
		marker: marker,
		logger: logger,
	}
}

type ackBody struct {
	Success *bool  `json:"success"`
	Message string `json:"message,omitempty"`
}

// Notify posts n to the backend unless the marker for (sessionID, paymentID)
// says it was already accepted or is being sent right now.
func (nt *Notifier) Notify(ctx context.Context, sessionID string, n Notification) (Result, error) {
	if n.PaymentID == "" {
		return Result{}, ErrNoPaymentID
	}
	if n.OrderID == "" && len(n.OrderIDs) == 0 {
		nt.logger.Info("webhook skipped", zap.String("payment_id", n.PaymentID), zap.String("reason", SkipNoOrders))
		return Result{Skipped: true, SkipReason: SkipNoOrders}, nil
	}
	n.Status = "paid"

	key := idempotency.MarkerKey(sessionID, n.PaymentID)
	v, err, _ := nt.group.Do(key, func() (interface{}, error) {
		return nt.notifyOnce(ctx, key, n)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (nt *Notifier) notifyOnce(ctx context.Context, key string, n Notification) (Result, error) {
	rec, err := nt.marker.Get(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("read dedupe marker: %w", err)
	}
	if rec != nil {
		reason := SkipInFlight
		if rec.Done() {
			reason = SkipAlreadyNotified
		}
		nt.logger.Info("webhook skipped", zap.String("payment_id", n.PaymentID), zap.String("reason", reason))
		return Result{Skipped: true, SkipReason: reason}, nil
	}

	claimed, err := nt.marker.CreateIfNotExists(ctx, key, n.PaymentID)
	if err != nil {
		return Result{}, fmt.Errorf("claim dedupe marker: %w", err)
	}
	if !claimed {
		nt.logger.Info("webhook skipped", zap.String("payment_id", n.PaymentID), zap.String("reason", SkipInFlight))
		return Result{Skipped: true, SkipReason: SkipInFlight}, nil
	}

	body, status, err := nt.post(ctx, n)
	if err != nil {
		if rerr := nt.marker.Release(ctx, key); rerr != nil {
			nt.logger.Warn("release dedupe marker", zap.String("key", key), zap.Error(rerr))
		}
		nt.logger.Warn("webhook failed", zap.String("payment_id", n.PaymentID), zap.Error(err))
		return Result{}, err
	}

	nt.markDone(ctx, key, body, status)
	nt.logger.Info("webhook sent",
		zap.String("payment_id", n.PaymentID),
		zap.String("order_id", n.OrderID),
		zap.Strings("order_ids", n.OrderIDs),
		zap.Int64("amount", n.Amount))
	return Result{Sent: true}, nil
}

// markDoneAttempts bounds how often a DONE write is retried after the backend
// accepted; an unmarked claim lapses after idempotency.DefaultClaimTTL.
const markDoneAttempts = 3

// markDone ignores cancellation of ctx once the backend has accepted.
func (nt *Notifier) markDone(ctx context.Context, key, body string, status int) {
	ctx = context.WithoutCancel(ctx)
	var err error
	for i := 0; i < markDoneAttempts; i++ {
		if err = nt.marker.MarkDone(ctx, key, body, status); err == nil {
			return
		}
		nt.logger.Warn("mark dedupe marker done", zap.String("key", key), zap.Int("attempt", i+1), zap.Error(err))
	}
	nt.logger.Error("dedupe marker left in progress", zap.String("key", key), zap.Error(err))
}

func (nt *Notifier) post(ctx context.Context, n Notification) (string, int, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return "", 0, fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, nt.URL, bytes.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	if nt.Token != "" {
		req.Header.Set("authorization", "Bearer "+nt.Token)
	}

	resp, err := nt.HTTP.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", resp.StatusCode, fmt.Errorf("%w: backend returned %d", ErrDeliveryFailed, resp.StatusCode)
	}
	var ack ackBody
	if err := json.Unmarshal(raw, &ack); err == nil && ack.Success != nil && !*ack.Success {
		return "", resp.StatusCode, fmt.Errorf("%w: backend rejected: %s", ErrDeliveryFailed, ack.Message)
	}
	return string(raw), resp.StatusCode, nil
}
