package assembler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	contractx "github.com/finchat/booksync/assistant/contract"
	sessionx "github.com/finchat/booksync/assistant/session"
)

type cacheGet struct {
	kind   contractx.Kind
	filter contractx.Filter
	ttl    time.Duration
}

type fakeCache struct {
	records map[contractx.Kind][]contractx.Record
	errs    map[contractx.Kind]error
	gets    []cacheGet
}

func (f *fakeCache) Get(_ context.Context, kind contractx.Kind, filter contractx.Filter, ttl time.Duration) ([]contractx.Record, error) {
	f.gets = append(f.gets, cacheGet{kind: kind, filter: filter, ttl: ttl})
	if err := f.errs[kind]; err != nil {
		return nil, err
	}
	records := f.records[kind]
	if filter.CustomerID != "" && kind != contractx.KindCustomer {
		var filtered []contractx.Record
		for _, rec := range records {
			if rec.Fields["customer_ref"] == filter.CustomerID {
				filtered = append(filtered, rec)
			}
		}
		return filtered, nil
	}
	return records, nil
}

func (f *fakeCache) Invalidate(context.Context, contractx.Kind) error { return nil }

type fakeMutator struct {
	cache      *fakeCache
	syncCalls  int
	syncErr    error
	forceCalls []contractx.Kind
}

func (f *fakeMutator) CreateCustomer(context.Context, map[string]any) (contractx.Document, error) {
	return contractx.Document{}, errors.New("not expected in assembly")
}

func (f *fakeMutator) CreateInvoice(context.Context, map[string]any) (contractx.Document, error) {
	return contractx.Document{}, errors.New("not expected in assembly")
}

func (f *fakeMutator) UpdateInvoice(context.Context, string, map[string]any) (contractx.Document, error) {
	return contractx.Document{}, errors.New("not expected in assembly")
}

func (f *fakeMutator) SyncPayments(_ context.Context, _ int) (contractx.SyncSummary, error) {
	f.syncCalls++
	if f.syncErr != nil {
		return contractx.SyncSummary{}, f.syncErr
	}
	return contractx.SyncSummary{Synced: 2, New: 2}, nil
}

func (f *fakeMutator) ForceRefresh(_ context.Context, kind contractx.Kind) ([]contractx.Record, error) {
	f.forceCalls = append(f.forceCalls, kind)
	return f.cache.records[kind], nil
}

func record(kind contractx.Kind, id string, fields map[string]any) contractx.Record {
	fields["id"] = id
	return contractx.Record{ExternalID: id, Kind: kind, Fields: fields}
}

func newTestAssembler(t *testing.T, cache *fakeCache) (*Assembler, *fakeMutator, sessionx.Store) {
	t.Helper()

	mutator := &fakeMutator{cache: cache}
	sessions := sessionx.NewMemStore()
	asm, err := New(cache, mutator, sessions)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return asm, mutator, sessions
}

func TestBuildContextNeverEmpty(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{
		records: map[contractx.Kind][]contractx.Record{
			contractx.KindCustomer: {record(contractx.KindCustomer, "c-1", map[string]any{"display_name": "Acme", "balance": "10.00"})},
		},
	}
	asm, _, _ := newTestAssembler(t, cache)

	// Nothing in this utterance matches a keyword set.
	out, err := asm.BuildContext(context.Background(), "good morning", "s-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.TextBlock == "" {
		t.Fatal("text block must never be empty")
	}
	if len(out.UsedDomains) != 1 || out.UsedDomains[0] != contractx.KindCustomer {
		t.Fatalf("expected customer fallback, got %v", out.UsedDomains)
	}
	if len(out.Actions) == 0 || out.Actions[0].Name != "create_customer" {
		t.Fatalf("expected customer actions, got %+v", out.Actions)
	}
}

func TestBuildContextBoundedRender(t *testing.T) {
	t.Parallel()

	var many []contractx.Record
	for i := 0; i < 500; i++ {
		many = append(many, record(contractx.KindCustomer, fmt.Sprintf("c-%03d", i),
			map[string]any{"display_name": fmt.Sprintf("Customer %d", i)}))
	}
	cache := &fakeCache{records: map[contractx.Kind][]contractx.Record{contractx.KindCustomer: many}}
	asm, _, _ := newTestAssembler(t, cache)

	out, err := asm.BuildContext(context.Background(), "list all customers", "s-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.TextBlock, "## Customers (30 of 500)") {
		t.Fatalf("unexpected block header:\n%s", out.TextBlock)
	}
}

func TestBuildContextDegradesOnDomainFailure(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{
		records: map[contractx.Kind][]contractx.Record{
			contractx.KindCustomer: {record(contractx.KindCustomer, "c-1", map[string]any{"display_name": "Acme"})},
		},
		errs: map[contractx.Kind]error{
			contractx.KindInvoice: contractx.ErrUpstreamUnavailable,
		},
	}
	asm, _, _ := newTestAssembler(t, cache)

	out, err := asm.BuildContext(context.Background(), "customer invoices", "s-1")
	if err != nil {
		t.Fatalf("degraded load must not fail the request: %v", err)
	}
	if len(out.OmittedDomains) != 1 || out.OmittedDomains[0] != contractx.KindInvoice {
		t.Fatalf("expected invoice omission, got %v", out.OmittedDomains)
	}
	if !strings.Contains(out.TextBlock, "## Invoices (unavailable)") {
		t.Fatalf("expected omission note:\n%s", out.TextBlock)
	}
	for _, act := range out.Actions {
		if strings.Contains(act.Name, "invoice") {
			t.Fatalf("omitted domain must not contribute actions, got %s", act.Name)
		}
	}
}

func TestBuildContextForcedPaymentSync(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{
		records: map[contractx.Kind][]contractx.Record{
			contractx.KindPayment: {record(contractx.KindPayment, "p-1", map[string]any{"customer_ref": "c-1", "total_amount": "50.00"})},
		},
	}
	asm, mutator, _ := newTestAssembler(t, cache)

	out, err := asm.BuildContext(context.Background(), "sync the payments", "s-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mutator.syncCalls != 1 {
		t.Fatalf("expected one forced sync, got %d", mutator.syncCalls)
	}
	if !strings.Contains(out.TextBlock, "## Payments (1 of 1)") {
		t.Fatalf("unexpected block:\n%s", out.TextBlock)
	}
}

func TestBuildContextForcedRefreshNonPayment(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{
		records: map[contractx.Kind][]contractx.Record{
			contractx.KindCustomer: {record(contractx.KindCustomer, "c-1", map[string]any{"display_name": "Acme"})},
		},
	}
	asm, mutator, _ := newTestAssembler(t, cache)

	if _, err := asm.BuildContext(context.Background(), "refresh customers", "s-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mutator.forceCalls) != 1 || mutator.forceCalls[0] != contractx.KindCustomer {
		t.Fatalf("expected forced customer refresh, got %v", mutator.forceCalls)
	}
	if mutator.syncCalls != 0 {
		t.Fatalf("payment sync must not run for customer refresh, got %d", mutator.syncCalls)
	}
}

func TestBuildContextFollowUpReusesResolvedFilter(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{
		records: map[contractx.Kind][]contractx.Record{
			contractx.KindCustomer: {record(contractx.KindCustomer, "c-7", map[string]any{"display_name": "Acme"})},
			contractx.KindInvoice: {
				record(contractx.KindInvoice, "inv-1", map[string]any{"customer_ref": "c-7", "total_amount": "10.00"}),
				record(contractx.KindInvoice, "inv-2", map[string]any{"customer_ref": "c-9", "total_amount": "99.00"}),
			},
		},
	}
	asm, _, _ := newTestAssembler(t, cache)

	// First turn resolves exactly one customer; the id becomes session state.
	if _, err := asm.BuildContext(context.Background(), "show me the customer Acme", "s-9"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := asm.BuildContext(context.Background(), "what do they owe?", "s-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := cache.gets[len(cache.gets)-1]
	if last.kind != contractx.KindInvoice || last.filter.CustomerID != "c-7" {
		t.Fatalf("expected invoice read filtered to c-7, got %+v", last)
	}
	if strings.Contains(out.TextBlock, "inv-2") {
		t.Fatalf("other customers' invoices must not leak into a follow-up:\n%s", out.TextBlock)
	}
}

func TestBuildContextRejectsEmptyUtterance(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{records: map[contractx.Kind][]contractx.Record{}}
	asm, _, _ := newTestAssembler(t, cache)

	if _, err := asm.BuildContext(context.Background(), "   ", "s-1"); !errors.Is(err, ErrInvalidUtterance) {
		t.Fatalf("expected ErrInvalidUtterance, got %v", err)
	}
}
