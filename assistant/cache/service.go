package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	contractx "github.com/finchat/booksync/assistant/contract"
)

// Service is the read-through cache over the record store. It owns freshness
// decisions, hit/miss accounting, and invalidation; only it and the sync
// orchestrator ever write records.
type Service struct {
	store    contractx.RecordStore
	upstream contractx.Upstream
	stats    *Stats
	group    singleflight.Group
	now      func() time.Time
	logger   zerolog.Logger
}

var _ contractx.CacheReader = (*Service)(nil)

// Option customizes Service.
type Option func(*Service)

func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store contractx.RecordStore, upstream contractx.Upstream, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("record store is required")
	}
	if upstream == nil {
		return nil, errors.New("upstream client is required")
	}

	s := &Service{
		store:    store,
		upstream: upstream,
		stats:    NewStats(),
		now:      time.Now,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Get serves a kind read-through: fresh cache counts a hit and reads the
// store; stale or empty counts a miss, refreshes the full collection from
// upstream in one transaction, then reads. A miss always leaves the cache
// warm by the time the call returns.
//
// Narrow filters (customer + date range) bypass the cache entirely and never
// touch the store or the counters. ttl <= 0 falls back to the kind's default.
func (s *Service) Get(ctx context.Context, kind contractx.Kind, filter contractx.Filter, ttl time.Duration) ([]contractx.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", contractx.ErrValidation, kind)
	}
	if ttl <= 0 {
		ttl = contractx.SpecFor(kind).TTL
	}

	if filter.Narrow() {
		return s.fetchDirect(ctx, kind, filter)
	}

	fresh, err := s.isFresh(ctx, kind, ttl)
	if err != nil {
		return nil, err
	}
	if fresh {
		s.stats.Hit(kind)
		return s.store.Read(ctx, kind, storeFilter(kind, filter))
	}

	s.stats.Miss(kind)
	if err := s.refresh(ctx, kind); err != nil {
		return nil, err
	}
	return s.store.Read(ctx, kind, storeFilter(kind, filter))
}

// Invalidate clears one kind's partition. Repopulation is lazy on the next
// Get; an in-place partial patch is never attempted, so a local write can
// never leave the partition half-updated.
func (s *Service) Invalidate(ctx context.Context, kind contractx.Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", contractx.ErrValidation, kind)
	}
	if err := s.store.DeleteAll(ctx, kind); err != nil {
		return err
	}
	s.logger.Debug().Str("kind", string(kind)).Msg("cache partition invalidated")
	return nil
}

// InvalidateAll clears every partition.
func (s *Service) InvalidateAll(ctx context.Context) error {
	for _, kind := range contractx.Kinds() {
		if err := s.Invalidate(ctx, kind); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns the current hit/miss counters.
func (s *Service) Snapshot() map[contractx.Kind]KindStats {
	return s.stats.Snapshot()
}

// ResetStats zeroes the counters.
func (s *Service) ResetStats() {
	s.stats.Reset()
}

func (s *Service) isFresh(ctx context.Context, kind contractx.Kind, ttl time.Duration) (bool, error) {
	wm, err := s.store.Watermark(ctx, kind)
	if err != nil {
		return false, err
	}
	if wm.IsZero() {
		return false, nil
	}
	return s.now().UTC().Sub(wm) <= ttl, nil
}

// refresh pulls the full collection so the freshness watermark covers the
// whole kind, then upserts it in one transaction. Concurrent misses for the
// same kind are collapsed through singleflight; duplicates would be wasteful
// against a rate-limited upstream but never corrupting.
func (s *Service) refresh(ctx context.Context, kind contractx.Kind) error {
	_, err, _ := s.group.Do(string(kind), func() (any, error) {
		docs, err := s.listWithRetry(ctx, kind, contractx.Filter{})
		if err != nil {
			return nil, err
		}
		return nil, s.store.UpsertMany(ctx, kind, docs)
	})
	return err
}

// fetchDirect serves a narrow read straight from upstream: the slice is not
// a superset of the kind, so writing it through would poison the watermark.
func (s *Service) fetchDirect(ctx context.Context, kind contractx.Kind, filter contractx.Filter) ([]contractx.Record, error) {
	docs, err := s.listWithRetry(ctx, kind, filter)
	if err != nil {
		return nil, err
	}

	stamped := s.now().UTC()
	out := make([]contractx.Record, 0, len(docs))
	for _, doc := range docs {
		fields, err := contractx.Project(kind, doc.Raw)
		if err != nil {
			s.logger.Warn().Err(err).Str("kind", string(kind)).Str("external_id", doc.ExternalID).
				Msg("dropping unprojectable upstream document")
			continue
		}
		out = append(out, contractx.Record{
			ExternalID: doc.ExternalID,
			Kind:       kind,
			Fields:     fields,
			Raw:        doc.Raw,
			CachedAt:   stamped,
		})
	}
	return out, nil
}

// listWithRetry retries exactly one transient failure before surfacing.
// Rate limits and auth expiry propagate immediately.
func (s *Service) listWithRetry(ctx context.Context, kind contractx.Kind, filter contractx.Filter) ([]contractx.Document, error) {
	docs, err := s.upstream.List(ctx, kind, filter)
	if err == nil {
		return docs, nil
	}
	if !errors.Is(err, contractx.ErrUpstreamUnavailable) {
		return nil, err
	}

	s.logger.Warn().Err(err).Str("kind", string(kind)).Msg("transient upstream failure, retrying once")
	return s.upstream.List(ctx, kind, filter)
}

// storeFilter translates the caller filter into the store's equality filter.
// Date ranges never reach here: with a customer they bypass the cache, and
// alone they are served unfiltered (the renderer bounds the slice anyway).
func storeFilter(kind contractx.Kind, filter contractx.Filter) map[string]any {
	if filter.CustomerID == "" {
		return nil
	}
	if kind == contractx.KindCustomer {
		return map[string]any{"id": filter.CustomerID}
	}
	return map[string]any{contractx.SpecFor(kind).LinkField: filter.CustomerID}
}
