// Package ledger keeps a per-session, append-only mirror of completed
// payments for optimistic display. It is not authoritative and may drift from
// the backend's order state.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dolabb/dolabb-sub001/internal/kv"
	"github.com/dolabb/dolabb-sub001/internal/payment"
)

const keyName = "payments"

// Mirror appends LocalPaymentRecords under a session key.
type Mirror struct {
	kv      kv.Store
	ttl     time.Duration
	nowFunc func() time.Time

	// one logical writer per session; mu only serializes writers in this process
	mu sync.Mutex
}

func NewMirror(st kv.Store, ttl time.Duration) *Mirror {
	return &Mirror{kv: st, ttl: ttl, nowFunc: time.Now}
}

// Append adds rec to the session's list. ID and CreatedAt are filled when empty.
func (m *Mirror) Append(ctx context.Context, sessionID string, rec payment.LocalPaymentRecord) (payment.LocalPaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, err := m.List(ctx, sessionID)
	if err != nil {
		return rec, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.nowFunc().UTC()
	}
	list = append(list, rec)

	b, err := json.Marshal(list)
	if err != nil {
		return rec, fmt.Errorf("marshal ledger: %w", err)
	}
	if err := m.kv.Set(ctx, kv.SessionKey(sessionID, keyName), string(b), m.ttl); err != nil {
		return rec, fmt.Errorf("save ledger: %w", err)
	}
	return rec, nil
}

// List returns the session's records, oldest first.
func (m *Mirror) List(ctx context.Context, sessionID string) ([]payment.LocalPaymentRecord, error) {
	raw, ok, err := m.kv.Get(ctx, kv.SessionKey(sessionID, keyName))
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if !ok {
		return []payment.LocalPaymentRecord{}, nil
	}
	var list []payment.LocalPaymentRecord
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	return list, nil
}
