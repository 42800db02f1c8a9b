package reconcile

import (
	"net/url"
	"strings"

	"github.com/dolabb/dolabb-sub001/internal/payment"
)

// Kind is the reconciliation outcome.
type Kind string

const (
	KindSuccess       Kind = "success"
	KindFailure       Kind = "failure"
	KindIndeterminate Kind = "indeterminate"
)

// Error reason codes carried to the error screen as ?error=.
const (
	ReasonPaymentFailed      = "payment_failed"
	ReasonPaymentPending = "payment_pending"
	// ReasonVerificationFailed is the Indeterminate case where no verification
	// attempt got an answer and the redirect did not claim paid. It is never
	// a decline.
	ReasonVerificationFailed = "verification_failed"
	ReasonPaymentError       = "payment_error"
)

// WarningWebhookFailed is added to the success redirect when the backend was
// not notified. It is never a payment failure.
const WarningWebhookFailed = "webhook_failed"

const (
	msgPending            = "Your payment is still being processed. Please check your order status later."
	msgVerificationFailed = "We could not confirm your payment. Please check your order status before paying again."
	msgMissingPayment     = "Payment information is missing. Please try again."
)

// Outcome is computed once per callback and drives exactly one redirect.
type Outcome struct {
	Kind      Kind
	Reason    string
	Message   string
	PaymentID string
	OrderID   string
	OrderIDs  []string
	IsGroup   bool
	Cart      bool
	// Verified is false when success came from the redirect fallback.
	Verified bool
	Record   *payment.LocalPaymentRecord
	Warning  string
	Attempts int
}

// Destinations are the screens an outcome redirects to. Either may be an
// absolute URL or a path.
type Destinations struct {
	Success string
	Error   string
}

// Location builds the redirect target for o.
func (o Outcome) Location(d Destinations) string {
	q := url.Values{}
	base := d.Error
	if o.Kind == KindSuccess {
		base = d.Success
		if o.OrderID != "" {
			q.Set("orderId", o.OrderID)
		}
		if o.Warning != "" {
			q.Set("warning", o.Warning)
		}
	} else {
		q.Set("error", o.Reason)
		if o.Message != "" {
			q.Set("message", o.Message)
		}
	}
	if o.PaymentID != "" {
		q.Set("paymentId", o.PaymentID)
	}
	if o.Cart {
		q.Set("type", "cart")
	}
	if o.IsGroup && len(o.OrderIDs) > 0 {
		q.Set("isGroup", "true")
		q.Set("orderIds", strings.Join(o.OrderIDs, ","))
	}

	u, err := url.Parse(base)
	if err != nil {
		return base + "?" + q.Encode()
	}
	existing := u.Query()
	for k, vs := range q {
		existing[k] = vs
	}
	u.RawQuery = existing.Encode()
	return u.String()
}
