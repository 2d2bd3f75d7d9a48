package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/finchat/booksync/assistant/contract"
)

// Config holds Postgres connection settings for the record store.
type Config struct {
	DSN      string        `split_words:"true"`
	Timeout  time.Duration `split_words:"true" default:"10s"`
	MaxConns int           `split_words:"true" default:"8"`
}

type recordRow struct {
	bun.BaseModel `bun:"table:cached_records,alias:cr"`

	ID         int64           `bun:"id,pk,autoincrement"`
	Kind       string          `bun:"kind,notnull"`
	ExternalID string          `bun:"external_id,notnull"`
	Fields     map[string]any  `bun:"domain_fields,type:jsonb"`
	Raw        json.RawMessage `bun:"raw_payload,type:jsonb"`
	CachedAt   time.Time       `bun:"cached_at,notnull"`
}

// BunStore persists cached records in Postgres. external_id is unique per
// kind; upserts replace by (kind, external_id) in one transaction.
type BunStore struct {
	db  *bun.DB
	now func() time.Time
}

var _ contractx.RecordStore = (*BunStore)(nil)

// BunOption customizes BunStore.
type BunOption func(*BunStore)

func WithBunNow(now func() time.Time) BunOption {
	return func(s *BunStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewBunStore(db *bun.DB, opts ...BunOption) (*BunStore, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	s := &BunStore{db: db, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Open dials Postgres and returns a ready store.
func Open(cfg Config, opts ...BunOption) (*BunStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithTimeout(timeout),
	))
	if cfg.MaxConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxConns)
	}

	return NewBunStore(bun.NewDB(sqldb, pgdialect.New()), opts...)
}

// Init creates the backing table and its per-kind uniqueness index.
func (s *BunStore) Init(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*recordRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return categorize("init", err)
	}

	if _, err := s.db.NewCreateIndex().
		Model((*recordRow)(nil)).
		Unique().
		IfNotExists().
		Index("cached_records_kind_external_id_idx").
		Column("kind", "external_id").
		Exec(ctx); err != nil {
		return categorize("init", err)
	}
	return nil
}

func (s *BunStore) UpsertMany(ctx context.Context, kind contractx.Kind, docs []contractx.Document) error {
	if !kind.Valid() {
		return newStoreError(CategoryConstraint, "upsert", contractx.ErrValidation)
	}
	if len(docs) == 0 {
		return nil
	}

	stamped := s.now().UTC()
	rows := make([]recordRow, 0, len(docs))
	for _, doc := range docs {
		if doc.ExternalID == "" {
			return newStoreError(CategoryConstraint, "upsert", contractx.ErrValidation)
		}
		fields, err := contractx.Project(kind, doc.Raw)
		if err != nil {
			return newStoreError(CategoryConstraint, "upsert", err)
		}
		rows = append(rows, recordRow{
			Kind:       string(kind),
			ExternalID: doc.ExternalID,
			Fields:     fields,
			Raw:        doc.Raw,
			CachedAt:   stamped,
		})
	}

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&rows).
			On("CONFLICT (kind, external_id) DO UPDATE").
			Set("domain_fields = EXCLUDED.domain_fields").
			Set("raw_payload = EXCLUDED.raw_payload").
			Set("cached_at = EXCLUDED.cached_at").
			Exec(ctx)
		return err
	})
	if err != nil {
		return categorize("upsert", err)
	}
	return nil
}

func (s *BunStore) Read(ctx context.Context, kind contractx.Kind, filter map[string]any) ([]contractx.Record, error) {
	if !kind.Valid() {
		return nil, newStoreError(CategoryConstraint, "read", contractx.ErrValidation)
	}

	var rows []recordRow
	q := s.db.NewSelect().
		Model(&rows).
		Where("kind = ?", string(kind)).
		OrderExpr("external_id ASC")
	for k, v := range filter {
		q = q.Where("domain_fields->>? = ?", k, fmt.Sprint(v))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, categorize("read", err)
	}

	out := make([]contractx.Record, len(rows))
	for i, row := range rows {
		out[i] = contractx.Record{
			ExternalID: row.ExternalID,
			Kind:       kind,
			Fields:     row.Fields,
			Raw:        row.Raw,
			CachedAt:   row.CachedAt,
		}
	}
	return out, nil
}

func (s *BunStore) DeleteAll(ctx context.Context, kind contractx.Kind) error {
	if !kind.Valid() {
		return newStoreError(CategoryConstraint, "delete", contractx.ErrValidation)
	}

	_, err := s.db.NewDelete().
		Model((*recordRow)(nil)).
		Where("kind = ?", string(kind)).
		Exec(ctx)
	if err != nil {
		return categorize("delete", err)
	}
	return nil
}

func (s *BunStore) Watermark(ctx context.Context, kind contractx.Kind) (time.Time, error) {
	if !kind.Valid() {
		return time.Time{}, newStoreError(CategoryConstraint, "watermark", contractx.ErrValidation)
	}

	var wm sql.NullTime
	err := s.db.NewSelect().
		Model((*recordRow)(nil)).
		ColumnExpr("max(cached_at)").
		Where("kind = ?", string(kind)).
		Scan(ctx, &wm)
	if err != nil {
		return time.Time{}, categorize("watermark", err)
	}
	if !wm.Valid {
		return time.Time{}, nil
	}
	return wm.Time, nil
}

// categorize maps driver failures onto the store error taxonomy.
func categorize(op string, err error) *StoreError {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		if pgErr.IntegrityViolation() {
			if pgErr.Field('C') == "23505" {
				return newStoreError(CategoryConflict, op, err)
			}
			return newStoreError(CategoryConstraint, op, err)
		}
	}
	return newStoreError(CategoryConnection, op, err)
}
