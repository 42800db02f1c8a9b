package gateway

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dolabb/dolabb-sub001/internal/payment"
)

// Client applies marketplace guards before handing a charge to the provider.
type Client struct {
	provider Provider
	currency string
	logger   *zap.Logger
}

func NewClient(provider Provider, currency string, logger *zap.Logger) *Client {
	return &Client{provider: provider, currency: currency, logger: logger}
}

// Charge submits a charge. A terminal decline comes back as *RejectedError.
func (c *Client) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if req.BuyerID != "" && strings.EqualFold(req.BuyerID, req.SellerID) {
		return nil, ErrSelfPurchase
	}
	if req.AmountMinor <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.Card.Token == "" && req.Card.Number == "" {
		return nil, ErrNoCard
	}
	if req.Currency == "" {
		req.Currency = c.currency
	}

	res, err := c.provider.CreatePayment(ctx, req)
	if err != nil {
		c.logger.Warn("charge attempt failed",
			zap.String("provider", c.provider.Name()),
			zap.String("order_id", req.OrderID),
			zap.Error(err))
		return nil, err
	}

	c.logger.Info("charge attempt",
		zap.String("provider", c.provider.Name()),
		zap.String("order_id", req.OrderID),
		zap.String("payment_id", res.Payment.ID),
		zap.String("status", string(res.Payment.Status)),
		zap.Bool("requires_action", res.RequiresAction()))

	if res.Payment.Status == payment.StatusFailed {
		return nil, &RejectedError{Message: res.Payment.Source.Message}
	}
	if res.Payment.Status == payment.StatusInitiated && res.RedirectURL == "" {
		return nil, fmt.Errorf("%w: initiated payment %s without redirect", ErrUnavailable, res.Payment.ID)
	}
	return res, nil
}

// FetchPayment reads the provider's current view of a payment.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*payment.Payment, error) {
	return c.provider.FetchPayment(ctx, paymentID)
}
