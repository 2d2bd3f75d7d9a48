package store

import (
	"context"
	"sort"
	"sync"
	"time"

	contractx "github.com/finchat/booksync/assistant/contract"
)

// MemStore is an in-memory record store. It backs tests and single-instance
// deployments where no Postgres DSN is configured; it does not share state
// across processes.
type MemStore struct {
	mu   sync.RWMutex
	rows map[contractx.Kind]map[string]contractx.Record
	now  func() time.Time
}

var _ contractx.RecordStore = (*MemStore)(nil)

// MemOption customizes MemStore.
type MemOption func(*MemStore)

func WithNow(now func() time.Time) MemOption {
	return func(s *MemStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemStore(opts ...MemOption) *MemStore {
	s := &MemStore{
		rows: make(map[contractx.Kind]map[string]contractx.Record, 3),
		now:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemStore) UpsertMany(ctx context.Context, kind contractx.Kind, docs []contractx.Document) error {
	if !kind.Valid() {
		return newStoreError(CategoryConstraint, "upsert", contractx.ErrValidation)
	}

	// Project everything before taking the lock so a bad document leaves the
	// store untouched, matching the single-transaction contract.
	stamped := s.now().UTC()
	records := make([]contractx.Record, 0, len(docs))
	for _, doc := range docs {
		if doc.ExternalID == "" {
			return newStoreError(CategoryConstraint, "upsert", contractx.ErrValidation)
		}
		fields, err := contractx.Project(kind, doc.Raw)
		if err != nil {
			return newStoreError(CategoryConstraint, "upsert", err)
		}
		records = append(records, contractx.Record{
			ExternalID: doc.ExternalID,
			Kind:       kind,
			Fields:     fields,
			Raw:        doc.Raw,
			CachedAt:   stamped,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.rows[kind]
	if byID == nil {
		byID = make(map[string]contractx.Record, len(records))
		s.rows[kind] = byID
	}
	for _, rec := range records {
		byID[rec.ExternalID] = rec
	}
	return nil
}

func (s *MemStore) Read(ctx context.Context, kind contractx.Kind, filter map[string]any) ([]contractx.Record, error) {
	if !kind.Valid() {
		return nil, newStoreError(CategoryConstraint, "read", contractx.ErrValidation)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]contractx.Record, 0, len(s.rows[kind]))
	for _, rec := range s.rows[kind] {
		if matches(rec, filter) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExternalID < out[j].ExternalID
	})
	return out, nil
}

func (s *MemStore) DeleteAll(ctx context.Context, kind contractx.Kind) error {
	if !kind.Valid() {
		return newStoreError(CategoryConstraint, "delete", contractx.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, kind)
	return nil
}

func (s *MemStore) Watermark(ctx context.Context, kind contractx.Kind) (time.Time, error) {
	if !kind.Valid() {
		return time.Time{}, newStoreError(CategoryConstraint, "watermark", contractx.ErrValidation)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var wm time.Time
	for _, rec := range s.rows[kind] {
		if rec.CachedAt.After(wm) {
			wm = rec.CachedAt
		}
	}
	return wm, nil
}

func matches(rec contractx.Record, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := rec.Fields[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}
