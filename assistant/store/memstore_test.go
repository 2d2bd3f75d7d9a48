package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	contractx "github.com/finchat/booksync/assistant/contract"
)

func doc(t *testing.T, id string, payload map[string]any) contractx.Document {
	t.Helper()

	payload["id"] = id
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return contractx.Document{ExternalID: id, Raw: raw}
}

func TestUpsertManySetsCachedAtAndProjectsFields(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s := NewMemStore(WithNow(func() time.Time { return now }))

	err := s.UpsertMany(context.Background(), contractx.KindCustomer, []contractx.Document{
		doc(t, "c-1", map[string]any{"display_name": "Acme", "email": "a@acme.io", "internal_note": "hidden"}),
	})
	if err != nil {
		t.Fatalf("UpsertMany() error = %v", err)
	}

	recs, err := s.Read(context.Background(), contractx.KindCustomer, nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}
	if !recs[0].CachedAt.Equal(now) {
		t.Fatalf("CachedAt = %v, want %v", recs[0].CachedAt, now)
	}
	if recs[0].Fields["display_name"] != "Acme" {
		t.Fatalf("display_name = %v", recs[0].Fields["display_name"])
	}
	if _, ok := recs[0].Fields["internal_note"]; ok {
		t.Fatal("internal_note must not be projected into domain fields")
	}
}

func TestUpsertManyReplacesByExternalID(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	ctx := context.Background()

	if err := s.UpsertMany(ctx, contractx.KindInvoice, []contractx.Document{
		doc(t, "inv-1", map[string]any{"doc_number": "001", "balance": 10.0}),
	}); err != nil {
		t.Fatalf("first UpsertMany() error = %v", err)
	}
	if err := s.UpsertMany(ctx, contractx.KindInvoice, []contractx.Document{
		doc(t, "inv-1", map[string]any{"doc_number": "001", "balance": 0.0}),
	}); err != nil {
		t.Fatalf("second UpsertMany() error = %v", err)
	}

	recs, err := s.Read(ctx, contractx.KindInvoice, nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}
	if recs[0].Fields["balance"] != 0.0 {
		t.Fatalf("balance = %v, want 0", recs[0].Fields["balance"])
	}
}

func TestReadEqualityFilterAndOrdering(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	ctx := context.Background()

	err := s.UpsertMany(ctx, contractx.KindInvoice, []contractx.Document{
		doc(t, "inv-2", map[string]any{"customer_ref": "c-1"}),
		doc(t, "inv-1", map[string]any{"customer_ref": "c-1"}),
		doc(t, "inv-3", map[string]any{"customer_ref": "c-2"}),
	})
	if err != nil {
		t.Fatalf("UpsertMany() error = %v", err)
	}

	recs, err := s.Read(ctx, contractx.KindInvoice, map[string]any{"customer_ref": "c-1"})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len(recs) = %d, want 2", len(recs))
	}
	if recs[0].ExternalID != "inv-1" || recs[1].ExternalID != "inv-2" {
		t.Fatalf("ordering = %s,%s, want inv-1,inv-2", recs[0].ExternalID, recs[1].ExternalID)
	}
}

func TestDeleteAllScopedToKind(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	ctx := context.Background()

	if err := s.UpsertMany(ctx, contractx.KindCustomer, []contractx.Document{
		doc(t, "c-1", map[string]any{"display_name": "Acme"}),
	}); err != nil {
		t.Fatalf("UpsertMany(customers) error = %v", err)
	}
	if err := s.UpsertMany(ctx, contractx.KindPayment, []contractx.Document{
		doc(t, "p-1", map[string]any{"total_amount": 5.0}),
	}); err != nil {
		t.Fatalf("UpsertMany(payments) error = %v", err)
	}

	if err := s.DeleteAll(ctx, contractx.KindCustomer); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}

	customers, _ := s.Read(ctx, contractx.KindCustomer, nil)
	payments, _ := s.Read(ctx, contractx.KindPayment, nil)
	if len(customers) != 0 {
		t.Fatalf("customers = %d, want 0", len(customers))
	}
	if len(payments) != 1 {
		t.Fatalf("payments = %d, want 1", len(payments))
	}
}

func TestWatermarkTracksMostRecentUpsert(t *testing.T) {
	t.Parallel()

	current := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s := NewMemStore(WithNow(func() time.Time { return current }))
	ctx := context.Background()

	wm, err := s.Watermark(ctx, contractx.KindPayment)
	if err != nil {
		t.Fatalf("Watermark() error = %v", err)
	}
	if !wm.IsZero() {
		t.Fatalf("empty kind watermark = %v, want zero", wm)
	}

	if err := s.UpsertMany(ctx, contractx.KindPayment, []contractx.Document{
		doc(t, "p-1", map[string]any{"total_amount": 5.0}),
	}); err != nil {
		t.Fatalf("UpsertMany() error = %v", err)
	}

	current = current.Add(10 * time.Minute)
	if err := s.UpsertMany(ctx, contractx.KindPayment, []contractx.Document{
		doc(t, "p-2", map[string]any{"total_amount": 7.0}),
	}); err != nil {
		t.Fatalf("UpsertMany() error = %v", err)
	}

	wm, err = s.Watermark(ctx, contractx.KindPayment)
	if err != nil {
		t.Fatalf("Watermark() error = %v", err)
	}
	if !wm.Equal(current) {
		t.Fatalf("Watermark() = %v, want %v", wm, current)
	}
}

func TestUpsertManyRejectsUndecodablePayloadAtomically(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	ctx := context.Background()

	err := s.UpsertMany(ctx, contractx.KindCustomer, []contractx.Document{
		doc(t, "c-1", map[string]any{"display_name": "Acme"}),
		{ExternalID: "c-2", Raw: json.RawMessage(`{broken`)},
	})
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("UpsertMany() error = %v, want *StoreError", err)
	}
	if storeErr.Category != CategoryConstraint {
		t.Fatalf("category = %s, want constraint", storeErr.Category)
	}

	recs, _ := s.Read(ctx, contractx.KindCustomer, nil)
	if len(recs) != 0 {
		t.Fatalf("store modified by failed batch: %d rows", len(recs))
	}
}
