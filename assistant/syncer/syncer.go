package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	contractx "github.com/finchat/booksync/assistant/contract"
)

const (
	maxFetchAttempts = 3
	retryBaseDelay   = 500 * time.Millisecond
)

// Orchestrator wraps domain mutations and forced-refresh operations. Every
// successful mutation invalidates exactly its own cache partition, never a
// neighbor's.
type Orchestrator struct {
	store    contractx.RecordStore
	upstream contractx.Upstream
	cache    contractx.CacheReader
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
	logger   zerolog.Logger
}

var _ contractx.Mutator = (*Orchestrator)(nil)

// Option customizes Orchestrator.
type Option func(*Orchestrator)

func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithSleep replaces the backoff sleeper, letting tests run retries without
// real delays.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

func New(store contractx.RecordStore, upstream contractx.Upstream, cache contractx.CacheReader, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("record store is required")
	}
	if upstream == nil {
		return nil, errors.New("upstream client is required")
	}
	if cache == nil {
		return nil, errors.New("cache service is required")
	}

	o := &Orchestrator{
		store:    store,
		upstream: upstream,
		cache:    cache,
		now:      time.Now,
		sleep:    sleepCtx,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o, nil
}

// CreateCustomer writes a new customer upstream, then invalidates the
// customers partition only.
func (o *Orchestrator) CreateCustomer(ctx context.Context, data map[string]any) (contractx.Document, error) {
	if err := requireString(data, "display_name"); err != nil {
		return contractx.Document{}, err
	}

	doc, err := o.upstream.Create(ctx, contractx.KindCustomer, data)
	if err != nil {
		return contractx.Document{}, err
	}
	return doc, o.cache.Invalidate(ctx, contractx.KindCustomer)
}

// CreateInvoice writes a new invoice upstream, then invalidates the invoices
// partition only.
func (o *Orchestrator) CreateInvoice(ctx context.Context, data map[string]any) (contractx.Document, error) {
	if err := requireString(data, "customer_ref"); err != nil {
		return contractx.Document{}, err
	}
	if _, ok := data["total_amount"]; !ok {
		return contractx.Document{}, fmt.Errorf("%w: total_amount is required", contractx.ErrValidation)
	}
	if _, err := parseAmount(data["total_amount"]); err != nil {
		return contractx.Document{}, err
	}

	doc, err := o.upstream.Create(ctx, contractx.KindInvoice, data)
	if err != nil {
		return contractx.Document{}, err
	}
	return doc, o.cache.Invalidate(ctx, contractx.KindInvoice)
}

// UpdateInvoice applies a sparse update upstream, then invalidates the
// invoices partition only.
func (o *Orchestrator) UpdateInvoice(ctx context.Context, externalID string, data map[string]any) (contractx.Document, error) {
	if strings.TrimSpace(externalID) == "" {
		return contractx.Document{}, fmt.Errorf("%w: invoice id is empty", contractx.ErrValidation)
	}
	if len(data) == 0 {
		return contractx.Document{}, fmt.Errorf("%w: update payload is empty", contractx.ErrValidation)
	}
	if amount, ok := data["total_amount"]; ok {
		if _, err := parseAmount(amount); err != nil {
			return contractx.Document{}, err
		}
	}

	doc, err := o.upstream.Update(ctx, contractx.KindInvoice, externalID, data)
	if err != nil {
		return contractx.Document{}, err
	}
	return doc, o.cache.Invalidate(ctx, contractx.KindInvoice)
}

// GetCustomers, GetInvoices and GetPayments are the read facade consumed by
// the routing layer; they serve through the cache at the kind's default TTL.
func (o *Orchestrator) GetCustomers(ctx context.Context, filter contractx.Filter) ([]contractx.Record, error) {
	return o.cache.Get(ctx, contractx.KindCustomer, filter, 0)
}

func (o *Orchestrator) GetInvoices(ctx context.Context, filter contractx.Filter) ([]contractx.Record, error) {
	return o.cache.Get(ctx, contractx.KindInvoice, filter, 0)
}

func (o *Orchestrator) GetPayments(ctx context.Context, filter contractx.Filter) ([]contractx.Record, error) {
	return o.cache.Get(ctx, contractx.KindPayment, filter, 0)
}

// ForceRefresh bypasses the freshness check for one kind: drop the partition,
// then pull it back through the read-through path.
func (o *Orchestrator) ForceRefresh(ctx context.Context, kind contractx.Kind) ([]contractx.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", contractx.ErrValidation, kind)
	}
	if err := o.cache.Invalidate(ctx, kind); err != nil {
		return nil, err
	}
	return o.cache.Get(ctx, kind, contractx.Filter{}, 0)
}

// SyncPayments force-syncs the last daysBack days of payments: fetch upstream
// directly (freshness is irrelevant to a forced sync), map each document to
// the local schema, and upsert. Records that fail mapping are skipped and
// counted, never fatal to the batch.
func (o *Orchestrator) SyncPayments(ctx context.Context, daysBack int) (contractx.SyncSummary, error) {
	if daysBack <= 0 {
		return contractx.SyncSummary{}, fmt.Errorf("%w: days_back must be positive", contractx.ErrValidation)
	}

	batchID := uuid.NewString()
	nowUTC := o.now().UTC()
	filter := contractx.Filter{
		StartDate: nowUTC.AddDate(0, 0, -daysBack),
		EndDate:   nowUTC,
	}

	docs, err := o.listWithBackoff(ctx, contractx.KindPayment, filter)
	if err != nil {
		return contractx.SyncSummary{}, err
	}

	customerIdx, err := o.customerIndex(ctx)
	if err != nil {
		return contractx.SyncSummary{}, err
	}

	existing, err := o.store.Read(ctx, contractx.KindPayment, nil)
	if err != nil {
		return contractx.SyncSummary{}, err
	}
	priorRaw := make(map[string]json.RawMessage, len(existing))
	for _, rec := range existing {
		priorRaw[rec.ExternalID] = rec.Raw
	}

	var summary contractx.SyncSummary
	mapped := make([]contractx.Document, 0, len(docs))
	for _, doc := range docs {
		local, err := mapPayment(doc, customerIdx)
		if err != nil {
			summary.Errors++
			o.logger.Warn().Err(err).
				Str("batch_id", batchID).
				Str("external_id", doc.ExternalID).
				Msg("skipping payment that failed mapping")
			continue
		}
		mapped = append(mapped, local)

		prior, seen := priorRaw[local.ExternalID]
		switch {
		case !seen:
			summary.New++
		case !bytes.Equal(prior, local.Raw):
			summary.Updated++
		}
	}

	if len(mapped) > 0 {
		if err := o.store.UpsertMany(ctx, contractx.KindPayment, mapped); err != nil {
			return contractx.SyncSummary{}, err
		}
	}
	summary.Synced = len(mapped)

	o.logger.Info().
		Str("batch_id", batchID).
		Int("synced", summary.Synced).
		Int("new", summary.New).
		Int("updated", summary.Updated).
		Int("errors", summary.Errors).
		Msg("payment sync finished")
	return summary, nil
}

// customerIndex warms the customers partition through the cache and indexes
// it by external id for linkage resolution.
func (o *Orchestrator) customerIndex(ctx context.Context) (map[string]contractx.Record, error) {
	customers, err := o.cache.Get(ctx, contractx.KindCustomer, contractx.Filter{}, 0)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]contractx.Record, len(customers))
	for _, rec := range customers {
		idx[rec.ExternalID] = rec
	}
	return idx, nil
}

// listWithBackoff retries transient upstream failures with capped exponential
// backoff. Rate limits and auth expiry propagate immediately.
func (o *Orchestrator) listWithBackoff(ctx context.Context, kind contractx.Kind, filter contractx.Filter) ([]contractx.Document, error) {
	var lastErr error
	delay := retryBaseDelay
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		docs, err := o.upstream.List(ctx, kind, filter)
		if err == nil {
			return docs, nil
		}
		if !errors.Is(err, contractx.ErrUpstreamUnavailable) {
			return nil, err
		}

		lastErr = err
		if attempt == maxFetchAttempts {
			break
		}
		o.logger.Warn().Err(err).Str("kind", string(kind)).Int("attempt", attempt).
			Msg("transient upstream failure, backing off")
		if err := o.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func requireString(data map[string]any, key string) error {
	v, ok := data[key]
	if !ok {
		return fmt.Errorf("%w: %s is required", contractx.ErrValidation, key)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s must be a non-empty string", contractx.ErrValidation, key)
	}
	return nil
}
