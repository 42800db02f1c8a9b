package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process marker store with the same semantics as Store.
// Used when STORE_BACKEND=memory.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]Record
	ttlWindow time.Duration
	claimTTL  time.Duration
	nowFunc   func() time.Time
}

func NewMemoryStore(ttlWindow time.Duration) *MemoryStore {
	return &MemoryStore{
		records:   map[string]Record{},
		ttlWindow: ttlWindow,
		claimTTL:  DefaultClaimTTL,
		nowFunc:   time.Now,
	}
}

func (m *MemoryStore) CreateIfNotExists(ctx context.Context, key, paymentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFunc()
	if rec, ok := m.records[key]; ok && rec.ExpiresAt >= now.Unix() {
		return false, nil
	}
	m.records[key] = Record{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		PaymentID:      paymentID,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(m.claimTTL).Unix(),
	}
	return true, nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok || rec.ExpiresAt < m.nowFunc().Unix() {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFunc()
	rec := m.records[key]
	rec.IdempotencyKey = key
	rec.Status = StatusDone
	rec.ResponseBody = responseBody
	rec.ResponseStatus = responseStatus
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(m.ttlWindow).Unix()
	m.records[key] = rec
	return nil
}

func (m *MemoryStore) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if ok && rec.Status != StatusInProgress {
		return ErrConditionFailed
	}
	delete(m.records, key)
	return nil
}
