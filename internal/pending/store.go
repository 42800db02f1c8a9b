package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dolabb/dolabb-sub001/internal/kv"
	"github.com/dolabb/dolabb-sub001/internal/payment"
)

const keyName = "pending_payment"

// ErrCorrupt is returned when the stored snapshot cannot be decoded. The entry
// has already been removed when this is returned.
var ErrCorrupt = errors.New("pending payment record is corrupt")

// Store keeps at most one in-flight payment snapshot per session.
type Store struct {
	kv      kv.Store
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewStore returns a Store. ttl bounds how long an abandoned 3DS attempt is kept.
func NewStore(st kv.Store, ttl time.Duration) *Store {
	return &Store{kv: st, ttl: ttl, nowFunc: time.Now}
}

// Save writes the snapshot for sessionID, replacing any earlier one.
func (s *Store) Save(ctx context.Context, sessionID string, p payment.PendingPayment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.nowFunc().UTC()
	}
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending payment: %w", err)
	}
	if err := s.kv.Set(ctx, kv.SessionKey(sessionID, keyName), string(b), s.ttl); err != nil {
		return fmt.Errorf("save pending payment: %w", err)
	}
	return nil
}

// Consume returns and deletes the snapshot. It returns (nil, nil) when there is none.
func (s *Store) Consume(ctx context.Context, sessionID string) (*payment.PendingPayment, error) {
	raw, ok, err := kv.Take(ctx, s.kv, kv.SessionKey(sessionID, keyName))
	if err != nil {
		return nil, fmt.Errorf("consume pending payment: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var p payment.PendingPayment
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &p, nil
}
