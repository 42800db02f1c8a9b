package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/dolabb/dolabb-sub001/internal/payment"
)

// StripeProvider maps PaymentIntents onto initiated/paid/failed. Charges are
// confirmed on-session with a return_url so Stripe can require 3-D Secure.
type StripeProvider struct {
	client *client.API
}

// NewStripeProvider creates a provider with its own API client (no global state).
func NewStripeProvider(apiKey string, backends *stripe.Backends) *StripeProvider {
	sc := &client.API{}
	sc.Init(apiKey, backends)
	return &StripeProvider{client: sc}
}

func (sp *StripeProvider) Name() string { return "stripe" }

func (sp *StripeProvider) CreatePayment(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if req.Card.Token == "" {
		// raw card numbers never reach Stripe from the server
		return nil, ErrNoCard
	}
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountMinor),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(req.Card.Token),
		Confirm:       stripe.Bool(true),
		ReturnURL:     stripe.String(req.CallbackURL),
		Description:   stripe.String(req.Description),
	}
	if key := intentIdempotencyKey(req); key != "" {
		params.IdempotencyKey = stripe.String(key)
	}
	if len(req.Metadata) > 0 || req.OrderID != "" {
		params.Metadata = make(map[string]string, len(req.Metadata)+1)
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
		if req.OrderID != "" {
			params.Metadata["order_id"] = req.OrderID
		}
	}
	params.AddExpand("payment_method")
	params.Context = ctx

	pi, err := sp.client.PaymentIntents.New(params)
	if err != nil {
		return nil, sp.mapStripeError(err)
	}

	res := &ChargeResult{Payment: toPayment(pi)}
	if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
		res.RedirectURL = pi.NextAction.RedirectToURL.URL
	}
	return res, nil
}

// intentIdempotencyKey scopes Stripe's idempotency to one checkout attempt,
// never to the bare order. Keys are name-based UUIDs so client-supplied attempt
// keys stay within Stripe's 255-character limit.
func intentIdempotencyKey(req ChargeRequest) string {
	raw := req.AttemptKey
	if raw == "" {
		if req.OrderID == "" {
			return ""
		}
		raw = req.OrderID + "#" + req.Card.Token
	}
	return "charge_" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(raw)).String()
}

func (sp *StripeProvider) FetchPayment(ctx context.Context, paymentID string) (*payment.Payment, error) {
	params := &stripe.PaymentIntentParams{}
	params.AddExpand("payment_method")
	params.Context = ctx
	pi, err := sp.client.PaymentIntents.Get(paymentID, params)
	if err != nil {
		return nil, sp.mapStripeError(err)
	}
	p := toPayment(pi)
	return &p, nil
}

func toPayment(pi *stripe.PaymentIntent) payment.Payment {
	p := payment.Payment{
		ID:          pi.ID,
		Status:      mapIntentStatus(pi.Status),
		Amount:      pi.Amount,
		Currency:    strings.ToUpper(string(pi.Currency)),
		Description: pi.Description,
		Metadata:    pi.Metadata,
		Source:      payment.Source{Type: "card"},
	}
	if pm := pi.PaymentMethod; pm != nil && pm.Card != nil {
		p.Source.Brand = string(pm.Card.Brand)
		p.Source.Number = pm.Card.Last4
	}
	if pi.LastPaymentError != nil {
		p.Source.Message = pi.LastPaymentError.Msg
	}
	return p
}

func mapIntentStatus(s stripe.PaymentIntentStatus) payment.Status {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return payment.StatusPaid
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusCanceled:
		return payment.StatusFailed
	default:
		// requires_action, requires_confirmation, processing, requires_capture
		return payment.StatusInitiated
	}
}

// mapStripeError converts stripe-go errors into gateway errors so callers never
// import stripe-go.
func (sp *StripeProvider) mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: stripe returned %d", ErrUnavailable, stripeErr.HTTPStatusCode)
		}
		switch stripeErr.Code {
		case stripe.ErrorCodeRateLimit, stripe.ErrorCodeLockTimeout:
			return fmt.Errorf("%w: %s", ErrUnavailable, stripeErr.Code)
		case stripe.ErrorCodeCardDeclined:
			if stripeErr.DeclineCode == stripe.DeclineCodeInsufficientFunds {
				return &RejectedError{Message: "INSUFFICIENT funds"}
			}
			return &RejectedError{Message: "DECLINED: " + stripeErr.Msg}
		case stripe.ErrorCodeBalanceInsufficient:
			return &RejectedError{Message: "INSUFFICIENT funds: " + stripeErr.Msg}
		case stripe.ErrorCodeIncorrectNumber, stripe.ErrorCodeInvalidNumber, stripe.ErrorCodeResourceMissing:
			return &RejectedError{Message: "INVALID CARD: " + stripeErr.Msg}
		}
		if stripeErr.HTTPStatusCode >= http.StatusBadRequest {
			return &RejectedError{Message: stripeErr.Msg}
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
