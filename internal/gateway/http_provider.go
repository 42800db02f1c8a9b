package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dolabb/dolabb-sub001/internal/payment"
)

// HTTPProvider talks to a REST gateway whose payments natively carry
// initiated/paid/failed statuses and a 3-D Secure transaction_url.
type HTTPProvider struct {
	BaseURL   string
	SecretKey string
	HTTP      *http.Client
}

func NewHTTPProvider(baseURL, secretKey string) *HTTPProvider {
	return &HTTPProvider{
		BaseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		SecretKey: secretKey,
		HTTP:      &http.Client{Timeout: 20 * time.Second},
	}
}

func (p *HTTPProvider) Name() string { return "http" }

type sourceRequest struct {
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
	Number string `json:"number,omitempty"`
	Month  string `json:"month,omitempty"`
	Year   string `json:"year,omitempty"`
	CVC    string `json:"cvc,omitempty"`
	Token  string `json:"token,omitempty"`
}

type createPaymentRequest struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description,omitempty"`
	CallbackURL string            `json:"callback_url"`
	Source      sourceRequest     `json:"source"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (p *HTTPProvider) CreatePayment(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	src := sourceRequest{Type: "creditcard", Name: req.Card.Name, Number: req.Card.Number, Month: req.Card.Month, Year: req.Card.Year, CVC: req.Card.CVC}
	if req.Card.Token != "" {
		src = sourceRequest{Type: "token", Token: req.Card.Token}
	}
	meta := map[string]string{}
	for k, v := range req.Metadata {
		meta[k] = v
	}
	if req.OrderID != "" {
		meta["order_id"] = req.OrderID
	}
	body, err := json.Marshal(createPaymentRequest{
		Amount:      req.AmountMinor,
		Currency:    req.Currency,
		Description: req.Description,
		CallbackURL: req.CallbackURL,
		Source:      src,
		Metadata:    meta,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payment request: %w", err)
	}

	pay, err := p.do(ctx, http.MethodPost, "/v1/payments", body)
	if err != nil {
		return nil, err
	}
	return &ChargeResult{Payment: *pay, RedirectURL: pay.Source.TransactionURL}, nil
}

func (p *HTTPProvider) FetchPayment(ctx context.Context, paymentID string) (*payment.Payment, error) {
	return p.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil)
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, body []byte) (*payment.Payment, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	req.SetBasicAuth(p.SecretKey, "")
	req.Header.Set("accept", "application/json")
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}

	resp, err := p.HTTP.Do(req)
	if err != nil {
		// transport failures and timeouts are never retried here
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: gateway returned %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		var ae apiError
		_ = json.Unmarshal(raw, &ae)
		msg := ae.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &RejectedError{Message: msg}
	}

	var pay payment.Payment
	if err := json.Unmarshal(raw, &pay); err != nil {
		return nil, fmt.Errorf("decode gateway payment: %w", err)
	}
	st, err := payment.ParseStatus(string(pay.Status))
	if err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	pay.Status = st
	return &pay, nil
}
