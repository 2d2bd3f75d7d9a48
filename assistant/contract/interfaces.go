package contract

import (
	"context"
	"time"
)

// RecordStore is the exclusive owner of the cached-record lifecycle.
type RecordStore interface {
	// UpsertMany replaces-or-inserts the documents for one kind in a single
	// transaction, setting cached_at=now on every touched row.
	UpsertMany(ctx context.Context, kind Kind, docs []Document) error

	// Read returns rows matching an optional equality filter on
	// domain_fields, ordered by external id. No freshness logic.
	Read(ctx context.Context, kind Kind, filter map[string]any) ([]Record, error)

	// DeleteAll clears rows for one kind only.
	DeleteAll(ctx context.Context, kind Kind) error

	// Watermark returns the most recent cached_at across the kind's rows,
	// or the zero time when the kind is empty.
	Watermark(ctx context.Context, kind Kind) (time.Time, error)
}

// Upstream is the sole component permitted network calls to the external
// financial-record system.
type Upstream interface {
	List(ctx context.Context, kind Kind, filter Filter) ([]Document, error)
	Get(ctx context.Context, kind Kind, externalID string) (Document, error)
	Create(ctx context.Context, kind Kind, payload map[string]any) (Document, error)
	Update(ctx context.Context, kind Kind, externalID string, payload map[string]any) (Document, error)
}

// CacheReader is the read-through cache surface consumed by the context
// assembler and the sync orchestrator.
type CacheReader interface {
	Get(ctx context.Context, kind Kind, filter Filter, ttl time.Duration) ([]Record, error)
	Invalidate(ctx context.Context, kind Kind) error
}

// Mutator wraps domain mutations and forced-refresh operations so every
// successful mutation invalidates exactly its own cache partition.
type Mutator interface {
	CreateCustomer(ctx context.Context, data map[string]any) (Document, error)
	CreateInvoice(ctx context.Context, data map[string]any) (Document, error)
	UpdateInvoice(ctx context.Context, externalID string, data map[string]any) (Document, error)
	SyncPayments(ctx context.Context, daysBack int) (SyncSummary, error)
	ForceRefresh(ctx context.Context, kind Kind) ([]Record, error)
}
