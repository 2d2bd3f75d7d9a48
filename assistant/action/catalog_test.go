package action

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	contractx "github.com/finchat/booksync/assistant/contract"
)

func TestForKindsStableOrderAndFiltering(t *testing.T) {
	t.Parallel()

	infos := ForKinds([]contractx.Kind{contractx.KindInvoice, contractx.KindCustomer})
	if len(infos) != 3 {
		t.Fatalf("expected 3 descriptors, got %d", len(infos))
	}
	if infos[0].Name != ActionCreateCustomer {
		t.Fatalf("unexpected first action: %s", infos[0].Name)
	}
	if infos[1].Name != ActionCreateInvoice {
		t.Fatalf("unexpected second action: %s", infos[1].Name)
	}
	if infos[2].Name != ActionUpdateInvoice {
		t.Fatalf("unexpected third action: %s", infos[2].Name)
	}

	payments := ForKinds([]contractx.Kind{contractx.KindPayment})
	if len(payments) != 1 || payments[0].Name != ActionSyncPayments {
		t.Fatalf("unexpected payment descriptors: %+v", payments)
	}
}

func TestValidateRequiredAndEnum(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		action  string
		args    map[string]any
		wantErr bool
	}{
		{"valid customer", ActionCreateCustomer, map[string]any{"display_name": "Acme"}, false},
		{"missing display_name", ActionCreateCustomer, map[string]any{"email": "a@b.c"}, true},
		{"blank display_name", ActionCreateCustomer, map[string]any{"display_name": "   "}, true},
		{"valid invoice", ActionCreateInvoice, map[string]any{"customer_ref": "c-1", "total_amount": 125.50, "status": "open"}, false},
		{"bad status enum", ActionCreateInvoice, map[string]any{"customer_ref": "c-1", "total_amount": 10.0, "status": "pending"}, true},
		{"unknown parameter", ActionUpdateInvoice, map[string]any{"id": "inv-1", "color": "red"}, true},
		{"unknown action", "delete_everything", map[string]any{}, true},
		{"valid sync", ActionSyncPayments, map[string]any{"days_back": 30}, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := Validate(tc.action, tc.args)
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr && err != nil && !errors.Is(err, contractx.ErrValidation) {
				t.Fatalf("error must wrap ErrValidation, got %v", err)
			}
		})
	}
}

type fakeMutator struct {
	created      []string
	syncedDays   int
	failCreate   error
	lastCustomer map[string]any
}

func (f *fakeMutator) CreateCustomer(_ context.Context, data map[string]any) (contractx.Document, error) {
	if f.failCreate != nil {
		return contractx.Document{}, f.failCreate
	}
	f.created = append(f.created, ActionCreateCustomer)
	f.lastCustomer = data
	return contractx.Document{ExternalID: "c-new", Raw: json.RawMessage(`{"id":"c-new"}`)}, nil
}

func (f *fakeMutator) CreateInvoice(_ context.Context, _ map[string]any) (contractx.Document, error) {
	f.created = append(f.created, ActionCreateInvoice)
	return contractx.Document{ExternalID: "inv-new", Raw: json.RawMessage(`{"id":"inv-new"}`)}, nil
}

func (f *fakeMutator) UpdateInvoice(_ context.Context, externalID string, data map[string]any) (contractx.Document, error) {
	if _, ok := data["id"]; ok {
		return contractx.Document{}, errors.New("id must not leak into the patch")
	}
	return contractx.Document{ExternalID: externalID, Raw: json.RawMessage(`{"id":"` + externalID + `"}`)}, nil
}

func (f *fakeMutator) SyncPayments(_ context.Context, daysBack int) (contractx.SyncSummary, error) {
	f.syncedDays = daysBack
	return contractx.SyncSummary{Synced: 3, New: 1}, nil
}

func (f *fakeMutator) ForceRefresh(_ context.Context, _ contractx.Kind) ([]contractx.Record, error) {
	return nil, nil
}

func TestInvokeValidationFailureNeverReachesMutator(t *testing.T) {
	t.Parallel()

	mutator := &fakeMutator{}
	invoker, err := NewInvoker(mutator)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := invoker.Invoke(context.Background(), ActionCreateCustomer, map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Error == "" {
		t.Fatal("expected validation error in result")
	}
	if len(mutator.created) != 0 {
		t.Fatalf("mutator must not be invoked on bad input, got %v", mutator.created)
	}
}

func TestInvokeCreateCustomer(t *testing.T) {
	t.Parallel()

	mutator := &fakeMutator{}
	invoker, err := NewInvoker(mutator)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := invoker.Invoke(context.Background(), ActionCreateCustomer, map[string]any{"display_name": "Acme"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Error != "" {
		t.Fatalf("unexpected result error: %s", out.Error)
	}
	doc, ok := out.Result.(contractx.Document)
	if !ok {
		t.Fatalf("unexpected result type: %T", out.Result)
	}
	if doc.ExternalID != "c-new" {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestInvokeUpdateInvoiceStripsID(t *testing.T) {
	t.Parallel()

	invoker, err := NewInvoker(&fakeMutator{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := invoker.Invoke(context.Background(), ActionUpdateInvoice, map[string]any{
		"id":     "inv-9",
		"status": "paid",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Error != "" {
		t.Fatalf("unexpected result error: %s", out.Error)
	}
}

func TestInvokeSyncPaymentsCoercesDays(t *testing.T) {
	t.Parallel()

	mutator := &fakeMutator{}
	invoker, err := NewInvoker(mutator)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// JSON-decoded arguments arrive as float64.
	out, err := invoker.Invoke(context.Background(), ActionSyncPayments, map[string]any{"days_back": float64(14)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Error != "" {
		t.Fatalf("unexpected result error: %s", out.Error)
	}
	if mutator.syncedDays != 14 {
		t.Fatalf("expected 14 days, got %d", mutator.syncedDays)
	}

	out, err = invoker.Invoke(context.Background(), ActionSyncPayments, map[string]any{"days_back": 2.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Error == "" {
		t.Fatal("expected non-integer days_back to fail")
	}
}

func TestInvokeExecutionFailurePropagates(t *testing.T) {
	t.Parallel()

	mutator := &fakeMutator{failCreate: contractx.ErrUpstreamUnavailable}
	invoker, err := NewInvoker(mutator)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = invoker.Invoke(context.Background(), ActionCreateCustomer, map[string]any{"display_name": "Acme"})
	if !errors.Is(err, contractx.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
