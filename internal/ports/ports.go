// Package ports declares the interfaces between the simulator core and its
// replaceable collaborators. Implementations live under internal/cache,
// internal/broadcast and internal/storage; test harnesses inject fakes from
// internal/mocks.
package ports

import (
	"context"
	"time"

	"github.com/seu-repo/sigec-fleetsim/internal/domain"
)

// Cache is a string key/value store with per-entry expiration. Backed by the
// in-memory implementation by default, or Redis when a shared cache is wanted.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping() error
	Close() error
}

// Subscription is a handle to an active broadcast subscription.
type Subscription interface {
	Unsubscribe() error
}

// Broadcaster is a named in-process or brokered pub/sub channel. Delivery is
// best-effort, ordered per sender, unordered across subscribers.
type Broadcaster interface {
	Publish(channel string, data []byte) error
	Subscribe(channel string, handler func(data []byte)) (Subscription, error)
	Close() error
}

// TransactionJournal records started and completed transactions for
// post-run inspection. The simulator works identically without one.
type TransactionJournal interface {
	Create(ctx context.Context, record domain.TransactionRecord) error
	Complete(ctx context.Context, transactionID, stationID string, meterStop int64, reason string) error
	ListByStation(ctx context.Context, stationID string) ([]domain.TransactionRecord, error)
	Close() error
}
