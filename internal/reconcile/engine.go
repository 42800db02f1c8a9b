// Package reconcile decides the single authoritative outcome of a gateway
// callback from the redirect's parameters, the verified gateway status and the
// pending-payment snapshot.
//
// Trust boundary: when verification never reaches a terminal status but the
// redirect asserts status=paid, the payment is treated as paid. The resulting
// ledger record is marked Verified=false and the outcome is logged with
// verified=false so every such decision can be audited.
package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dolabb/dolabb-sub001/internal/payment"
	"github.com/dolabb/dolabb-sub001/internal/retry"
	"github.com/dolabb/dolabb-sub001/internal/webhook"
)

// DefaultPolicy polls verification five times, two seconds apart.
var DefaultPolicy = retry.Policy{Attempts: 5, Delay: 2 * time.Second}

type PendingSource interface {
	Consume(ctx context.Context, sessionID string) (*payment.PendingPayment, error)
}

// Verifier returns the gateway's current status for one payment. It must not
// retry.
type Verifier interface {
	Verify(ctx context.Context, paymentID string) (*payment.Payment, error)
}

// VerifierFunc adapts a function such as gateway.Client.FetchPayment.
type VerifierFunc func(ctx context.Context, paymentID string) (*payment.Payment, error)

func (f VerifierFunc) Verify(ctx context.Context, paymentID string) (*payment.Payment, error) {
	return f(ctx, paymentID)
}

type Ledger interface {
	Append(ctx context.Context, sessionID string, rec payment.LocalPaymentRecord) (payment.LocalPaymentRecord, error)
}

type Notifier interface {
	Notify(ctx context.Context, sessionID string, n webhook.Notification) (webhook.Result, error)
}

type RetryEnqueuer interface {
	Enqueue(ctx context.Context, sessionID string, n webhook.Notification) (string, error)
}

type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, kind, reason string) error
}

// Deps are the engine's collaborators. Retries and Metrics are optional.
type Deps struct {
	Pending  PendingSource
	Verifier Verifier
	Ledger   Ledger
	Notifier Notifier
	Retries  RetryEnqueuer
	Metrics  OutcomeRecorder
}

type Engine struct {
	deps     Deps
	policy   retry.Policy
	currency string
	logger   *zap.Logger
}

func NewEngine(deps Deps, policy retry.Policy, currency string, logger *zap.Logger) *Engine {
	return &Engine{deps: deps, policy: policy, currency: currency, logger: logger}
}

// Reconcile runs one callback to a terminal outcome. The pending snapshot is
// consumed on the way, so a second run for the same session only sees the URL.
func (e *Engine) Reconcile(ctx context.Context, sessionID string, params CallbackParams) Outcome {
	log := e.logger.With(zap.String("session_id", sessionID), zap.String("payment_id", params.PaymentID))

	pending, err := e.deps.Pending.Consume(ctx, sessionID)
	if err != nil {
		log.Warn("pending payment unavailable, using callback parameters", zap.Error(err))
		pending = nil
	}
	if pending != nil && pending.PaymentID != "" && params.PaymentID != "" && pending.PaymentID != params.PaymentID {
		log.Warn("pending payment belongs to another attempt", zap.String("pending_payment_id", pending.PaymentID))
		pending = nil
	}

	paymentID := params.PaymentID
	if paymentID == "" && pending != nil {
		paymentID = pending.PaymentID
	}

	out := Outcome{
		PaymentID: paymentID,
		Cart:      params.Cart,
	}
	out.OrderID, out.OrderIDs, out.IsGroup = resolveOrders(pending, params)

	if paymentID == "" {
		out.Kind, out.Reason, out.Message = KindFailure, ReasonPaymentError, msgMissingPayment
		return e.finish(ctx, log, out)
	}

	asserted := params.AssertedStatus()
	res := retry.Until(ctx, e.policy,
		func(ctx context.Context) (*payment.Payment, error) {
			p, err := e.deps.Verifier.Verify(ctx, paymentID)
			if err != nil {
				log.Warn("verification attempt failed", zap.Error(err))
				return nil, err
			}
			return p, nil
		},
		func(p *payment.Payment) bool { return p.Status.Terminal() },
	)
	out.Attempts = res.Attempts

	switch {
	case res.Resolved && res.Value.Status == payment.StatusPaid:
		out.Verified = true
		return e.succeed(ctx, log, sessionID, out, pending, params, res.Value)

	case res.Resolved:
		class := payment.ClassifyDecline(res.Value.Source.Message)
		log.Info("payment declined", zap.String("decline_class", string(class)))
		out.Kind, out.Reason, out.Message = KindFailure, ReasonPaymentFailed, class.Message()
		return e.finish(ctx, log, out)

	case asserted == payment.StatusPaid:
		log.Warn("verification unresolved, trusting redirect status=paid",
			zap.Int("attempts", res.Attempts), zap.Error(res.Err))
		return e.succeed(ctx, log, sessionID, out, pending, params, nil)

	case !res.Observed:
		out.Kind, out.Reason, out.Message = KindIndeterminate, ReasonVerificationFailed, msgVerificationFailed
		return e.finish(ctx, log, out)

	default:
		out.Kind, out.Reason, out.Message = KindIndeterminate, ReasonPaymentPending, msgPending
		return e.finish(ctx, log, out)
	}
}

// succeed records the payment and notifies the backend. verified is nil on the
// redirect fallback path.
func (e *Engine) succeed(ctx context.Context, log *zap.Logger, sessionID string, out Outcome, pending *payment.PendingPayment, params CallbackParams, verified *payment.Payment) Outcome {
	out.Kind = KindSuccess
	rec := e.merge(out, pending, params, verified)

	saved, err := e.deps.Ledger.Append(ctx, sessionID, rec)
	if err != nil {
		log.Error("append ledger record", zap.Error(err))
		saved = rec
	}
	out.Record = &saved

	n := webhook.Notification{
		PaymentID: out.PaymentID,
		Amount:    rec.Amount,
		OfferID:   rec.OfferID,
	}
	if out.IsGroup || len(out.OrderIDs) > 0 {
		n.OrderIDs, n.IsGroup = out.OrderIDs, out.IsGroup
	} else {
		n.OrderID = out.OrderID
	}
	if _, err := e.deps.Notifier.Notify(ctx, sessionID, n); err != nil {
		log.Warn("webhook notification failed", zap.Error(err))
		out.Warning = WarningWebhookFailed
		if e.deps.Retries != nil {
			corr, qerr := e.deps.Retries.Enqueue(ctx, sessionID, n)
			if qerr != nil {
				log.Error("enqueue webhook retry", zap.Error(qerr))
			} else {
				log.Info("webhook retry enqueued", zap.String("correlation_id", corr))
			}
		}
	}
	return e.finish(ctx, log, out)
}

// merge builds the ledger record: pending snapshot first, URL parameters for
// whatever it lacks, verified gateway fields over both.
func (e *Engine) merge(out Outcome, pending *payment.PendingPayment, params CallbackParams, verified *payment.Payment) payment.LocalPaymentRecord {
	rec := payment.LocalPaymentRecord{
		PaymentID: out.PaymentID,
		OrderID:   out.OrderID,
		OrderIDs:  out.OrderIDs,
		IsGroup:   out.IsGroup,
		Status:    payment.StatusPaid,
		Verified:  verified != nil,
		Currency:  e.currency,
	}
	if pending != nil {
		rec.OfferID = pending.OfferID
		rec.Product = pending.Product
		rec.Size = pending.Size
		rec.Price = pending.Price
		rec.OfferPrice = pending.OfferPrice
		rec.Shipping = pending.Shipping
		rec.TotalPrice = pending.TotalPrice
		if pending.Currency != "" {
			rec.Currency = pending.Currency
		}
	}
	rec.OfferID = firstNonEmpty(rec.OfferID, params.OfferID)
	rec.Product = firstNonEmpty(rec.Product, params.Product)
	rec.OfferPrice = firstNonEmpty(rec.OfferPrice, params.OfferPrice)
	rec.Shipping = firstNonEmpty(rec.Shipping, params.Shipping)

	if verified != nil {
		rec.Amount = verified.Amount
		if verified.Currency != "" {
			rec.Currency = verified.Currency
		}
		rec.CardBrand = verified.Source.CardBrand()
		rec.LastFour = verified.Source.LastFour()
	}
	if rec.Amount <= 0 {
		rec.Amount = fallbackAmount(rec)
	}
	return rec
}

// fallbackAmount prefers the snapshot total, then the offer (or list) price
// plus shipping.
func fallbackAmount(rec payment.LocalPaymentRecord) int64 {
	if rec.TotalPrice != "" {
		if v, err := payment.ToMinorUnits(rec.TotalPrice); err == nil {
			return v
		}
	}
	v, err := payment.SumMinorUnits(firstNonEmpty(rec.OfferPrice, rec.Price), rec.Shipping)
	if err != nil {
		return 0
	}
	return v
}

func (e *Engine) finish(ctx context.Context, log *zap.Logger, out Outcome) Outcome {
	log.Info("reconciliation outcome",
		zap.String("outcome", string(out.Kind)),
		zap.String("reason", out.Reason),
		zap.String("order_id", out.OrderID),
		zap.Bool("verified", out.Verified),
		zap.Int("attempts", out.Attempts),
		zap.String("warning", out.Warning))
	if e.deps.Metrics != nil {
		if err := e.deps.Metrics.RecordOutcome(ctx, string(out.Kind), out.Reason); err != nil {
			log.Warn("record outcome metric", zap.Error(err))
		}
	}
	return out
}

func resolveOrders(pending *payment.PendingPayment, params CallbackParams) (string, []string, bool) {
	orderID, orderIDs, isGroup := params.OrderID, params.OrderIDs, params.IsGroup
	if pending != nil {
		orderID = firstNonEmpty(pending.OrderID, orderID)
		if len(pending.OrderIDs) > 0 {
			orderIDs = pending.OrderIDs
		}
		isGroup = isGroup || pending.IsGroup
	}
	return orderID, orderIDs, isGroup
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
