package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dolabb/dolabb-sub001/internal/gateway"
	"github.com/dolabb/dolabb-sub001/internal/idempotency"
	"github.com/dolabb/dolabb-sub001/internal/payment"
	"github.com/dolabb/dolabb-sub001/internal/reconcile"
)

// Charger is satisfied by *gateway.Client.
type Charger interface {
	Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error)
	FetchPayment(ctx context.Context, paymentID string) (*payment.Payment, error)
}

type PendingSaver interface {
	Save(ctx context.Context, sessionID string, p payment.PendingPayment) error
}

type LedgerReader interface {
	List(ctx context.Context, sessionID string) ([]payment.LocalPaymentRecord, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, sessionID string, params reconcile.CallbackParams) reconcile.Outcome
}

// IdempotencyStore backs the Idempotency-Key header on POST /payments.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	CreateIfNotExists(ctx context.Context, key, paymentID string) (bool, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	Release(ctx context.Context, key string) error
}

// SessionConfig controls the browser session cookie that scopes the pending
// payment, ledger and dedupe marker.
type SessionConfig struct {
	Cookie string
	MaxAge time.Duration
	Secure bool
}

// HandlerConfig groups dependencies for the payment handlers.
type HandlerConfig struct {
	Gateway      Charger
	Pending      PendingSaver
	Ledger       LedgerReader
	Engine       Reconciler
	Idempotency  IdempotencyStore // optional
	Destinations reconcile.Destinations
	CallbackURL  string
	Currency     string
	Session      SessionConfig
	Logger       *zap.Logger
}
