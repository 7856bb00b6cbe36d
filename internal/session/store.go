// Package session implements the short-lived per-browser session backing the
// OAuth flow. A random session ID travels in a cookie; the values live
// server-side so the CSRF state is never exposed to the client.
package session

import (
	"context"
	"time"
)

// Store holds string values per session ID. Implementations must be safe for
// concurrent use; the redis implementation is shared across instances, the
// memory implementation backs tests and single-node dev runs.
// Get returns sentinel.ErrNotFound for missing sessions and missing keys.
type Store interface {
	Put(ctx context.Context, sid, key, value string, ttl time.Duration) error
	Get(ctx context.Context, sid, key string) (string, error)
	Delete(ctx context.Context, sid, key string) error
	Destroy(ctx context.Context, sid string) error
}
