package gateway

import (
	"context"
	"errors"

	"github.com/dolabb/dolabb-sub001/internal/payment"
)

// Standard gateway errors
var (
	ErrUnavailable   = errors.New("payment gateway unavailable") // network/timeout/5xx; the user may retry
	ErrRejected      = errors.New("payment gateway rejected the charge")
	ErrSelfPurchase  = errors.New("buyers cannot purchase their own listing")
	ErrInvalidAmount = errors.New("invalid payment amount")
	ErrNoCard        = errors.New("no card details or token supplied")
)

// RejectedError carries the gateway's decline message.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string { return ErrRejected.Error() + ": " + e.Message }
func (e *RejectedError) Unwrap() error { return ErrRejected }

// Class maps the decline message to user-facing copy.
func (e *RejectedError) Class() payment.DeclineClass { return payment.ClassifyDecline(e.Message) }

// Card holds raw card fields or a provider token.
type Card struct {
	Name   string
	Number string
	Month  string
	Year   string
	CVC    string
	Token  string // provider payment-method token, used instead of raw fields when set
}

// ChargeRequest encapsulates everything needed to open a payment.
type ChargeRequest struct {
	OrderID     string
	AttemptKey  string // identifies one checkout attempt; retries with another card get a new key
	AmountMinor int64
	Currency    string
	Description string
	CallbackURL string // where the provider sends the buyer back after step-up auth
	BuyerID     string
	SellerID    string
	Card        Card
	Metadata    map[string]string
}

// ChargeResult is the immediate answer to a charge request.
type ChargeResult struct {
	Payment     payment.Payment
	RedirectURL string // set when step-up authentication is required
}

// RequiresAction reports whether the buyer must be redirected before the
// payment can settle.
func (r *ChargeResult) RequiresAction() bool {
	return r.Payment.Status == payment.StatusInitiated && r.RedirectURL != ""
}

// Provider abstracts the money mover.
type Provider interface {
	Name() string
	CreatePayment(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	FetchPayment(ctx context.Context, paymentID string) (*payment.Payment, error)
}
