package payment

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the gateway's authoritative status for a payment.
type Status string

const (
	StatusInitiated Status = "initiated" // non-terminal, must be re-polled
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
)

// ErrUnknownStatus is returned for any status outside initiated/paid/failed.
var ErrUnknownStatus = errors.New("unrecognized payment status")

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return s, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusInitiated, StatusPaid, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further polling is needed.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed
}

// Source is the card/source metadata the gateway reports for a payment.
type Source struct {
	Type           string `json:"type,omitempty"`
	Company        string `json:"company,omitempty"`
	Brand          string `json:"brand,omitempty"`
	Name           string `json:"name,omitempty"`
	Number         string `json:"number,omitempty"` // masked
	Message        string `json:"message,omitempty"`
	TransactionURL string `json:"transaction_url,omitempty"`
}

// CardBrand prefers the explicit brand and falls back to the issuing company.
func (s Source) CardBrand() string {
	if s.Brand != "" {
		return s.Brand
	}
	return s.Company
}

// LastFour returns the trailing four digits of the masked card number.
func (s Source) LastFour() string {
	digits := make([]byte, 0, len(s.Number))
	for i := 0; i < len(s.Number); i++ {
		if c := s.Number[i]; c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	if len(digits) <= 4 {
		return string(digits)
	}
	return string(digits[len(digits)-4:])
}

// Payment is a gateway payment as seen through the verification proxy.
type Payment struct {
	ID          string            `json:"id"`
	Status      Status            `json:"status"`
	Amount      int64             `json:"amount,omitempty"` // minor units
	Currency    string            `json:"currency,omitempty"`
	Description string            `json:"description,omitempty"`
	Source      Source            `json:"source"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PendingPayment is the snapshot written before redirecting to step-up
// authentication and consumed once when the callback arrives.
type PendingPayment struct {
	OrderID    string    `json:"orderId"`
	PaymentID  string    `json:"paymentId"`
	OfferID    string    `json:"offerId,omitempty"`
	Product    string    `json:"product,omitempty"`
	Size       string    `json:"size,omitempty"`
	Price      string    `json:"price,omitempty"`
	OfferPrice string    `json:"offerPrice,omitempty"`
	Shipping   string    `json:"shipping,omitempty"`
	TotalPrice string    `json:"totalPrice,omitempty"`
	Currency   string    `json:"currency,omitempty"`
	IsGroup    bool      `json:"isGroup,omitempty"`
	OrderIDs   []string  `json:"orderIds,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// LocalPaymentRecord is the ledger mirror entry appended on a successful
// reconciliation. It is never mutated and may diverge from the backend.
type LocalPaymentRecord struct {
	ID         string    `json:"id"`
	PaymentID  string    `json:"paymentId"`
	OrderID    string    `json:"orderId,omitempty"`
	OrderIDs   []string  `json:"orderIds,omitempty"`
	IsGroup    bool      `json:"isGroup,omitempty"`
	OfferID    string    `json:"offerId,omitempty"`
	Product    string    `json:"product,omitempty"`
	Size       string    `json:"size,omitempty"`
	Price      string    `json:"price,omitempty"`
	OfferPrice string    `json:"offerPrice,omitempty"`
	Shipping   string    `json:"shipping,omitempty"`
	TotalPrice string    `json:"totalPrice,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	Currency   string    `json:"currency,omitempty"`
	Status     Status    `json:"status"`
	CardBrand  string    `json:"cardBrand,omitempty"`
	LastFour   string    `json:"lastFour,omitempty"`
	Verified   bool      `json:"verified"`
	CreatedAt  time.Time `json:"createdAt"`
}
