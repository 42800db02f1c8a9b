package idempotency

import "time"

// Status values for idempotency records
const (
	StatusInProgress = "IN_PROGRESS" // claim held while the guarded call is in flight
	StatusDone       = "DONE"        // guarded call completed; the marker is set
)

// Record is the shape persisted in the idempotency DynamoDB table. It backs both
// webhook dedupe markers and checkout Idempotency-Key claims.
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK: session#payment, or checkout#session#key
	Status         string    `dynamodbav:"status"`
	PaymentID      string    `dynamodbav:"payment_id,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"` // backend reply, small
	ResponseStatus int       `dynamodbav:"response_status,omitempty"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
}

// Done reports whether the marker is set.
func (r *Record) Done() bool { return r != nil && r.Status == StatusDone }

// MarkerKey scopes a payment's marker to a browser session.
func MarkerKey(sessionID, paymentID string) string {
	return sessionID + "#" + paymentID
}
