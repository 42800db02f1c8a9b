// Package kv is the session key-value layer behind the pending-payment store
// and the ledger mirror.
package kv

import (
	"context"
	"time"
)

// Store is a string key-value store. A zero ttl means the entry does not expire.
type Store interface {
	// Get returns (value, true, nil) when present and ("", false, nil) when absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Taker is implemented by stores that can read and delete a key atomically.
type Taker interface {
	Take(ctx context.Context, key string) (string, bool, error)
}

// Take reads and deletes key, atomically when st implements Taker and as
// Get followed by Delete otherwise.
func Take(ctx context.Context, st Store, key string) (string, bool, error) {
	if t, ok := st.(Taker); ok {
		return t.Take(ctx, key)
	}
	v, ok, err := st.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	if err := st.Delete(ctx, key); err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SessionKey namespaces a key under a browser session.
func SessionKey(sessionID, name string) string {
	return "session#" + sessionID + "#" + name
}
