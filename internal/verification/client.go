// Package verification asks the same-origin proxy for a payment's
// authoritative gateway status. It never retries; the reconciliation engine
// owns the retry policy.
package verification

import (
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

// DefaultPath is where the proxy is mounted.
const DefaultPath = "/api/payment/verify"

var (
	// ErrNotVerified means the proxy answered with success=false.
	ErrNotVerified = errors.New("payment verification unsuccessful")
	// ErrMalformed means the proxy's payload did not match the expected shape.
	ErrMalformed = errors.New("malformed verification payload")
)

// Response is the proxy's envelope.
type Response struct {
	Success bool             `json:"success"`
	Payment *payment.Payment `json:"payment,omitempty"`
	Message string           `json:"message,omitempty"`
}

type Client struct {
	BaseURL string
	Path    string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Path:    DefaultPath,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify fetches the status of paymentID once.
func (c *Client) Verify(ctx context.Context, paymentID string) (*payment.Payment, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, fmt.Errorf("%w: empty payment id", ErrMalformed)
	}
	u := c.BaseURL + c.Path + "?" + url.Values{"paymentId": {paymentID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify payment %s: %w", paymentID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read verify response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("verify proxy returned %d", resp.StatusCode)
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !out.Success {
		return nil, fmt.Errorf("%w: %s", ErrNotVerified, out.Message)
	}
	if out.Payment == nil {
		return nil, fmt.Errorf("%w: missing payment", ErrMalformed)
	}
	st, err := payment.ParseStatus(string(out.Payment.Status))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	out.Payment.Status = st
	if out.Payment.ID == "" {
		out.Payment.ID = paymentID
	}
	return out.Payment, nil
}
