package contract

import (
	"encoding/json"
	"fmt"
	"time"
)

// KindSpec is the load-time configuration for one record kind: default TTL,
// classification keywords, the queryable field subset projected into
// domain_fields, and the summary subset rendered into context blocks.
type KindSpec struct {
	TTL           time.Duration
	Keywords      []string
	DomainFields  []string
	SummaryFields []string

	// LinkField names the field holding the external customer linkage on
	// kinds that reference a customer. Empty for the customer kind itself.
	LinkField string
}

var kindSpecs = map[Kind]KindSpec{
	KindCustomer: {
		TTL:           5 * time.Minute,
		Keywords:      []string{"customer", "customers", "client", "clients", "contact", "who"},
		DomainFields:  []string{"id", "display_name", "email", "phone", "balance", "active"},
		SummaryFields: []string{"id", "display_name", "balance"},
	},
	KindInvoice: {
		TTL:           5 * time.Minute,
		Keywords:      []string{"invoice", "invoices", "bill", "bills", "billing", "owe", "owes", "outstanding", "due", "overdue", "balance"},
		DomainFields:  []string{"id", "doc_number", "customer_ref", "customer_name", "total_amount", "balance", "due_date", "txn_date", "status"},
		SummaryFields: []string{"id", "doc_number", "customer_ref", "total_amount", "balance", "due_date"},
		LinkField:     "customer_ref",
	},
	KindPayment: {
		TTL:           5 * time.Minute,
		Keywords:      []string{"payment", "payments", "paid", "pay", "receipt", "received", "deposit"},
		DomainFields:  []string{"id", "customer_ref", "customer_name", "total_amount", "txn_date", "method"},
		SummaryFields: []string{"id", "customer_ref", "total_amount", "txn_date"},
		LinkField:     "customer_ref",
	},
}

// SpecFor returns the load-time spec for a kind. Unknown kinds get a zero
// spec; callers are expected to validate kinds first.
func SpecFor(kind Kind) KindSpec {
	return kindSpecs[kind]
}

// Project derives the queryable domain_fields subset from a raw upstream
// payload. It is the only sanctioned way to produce Record.Fields, so the
// fields can never drift from the payload they were cut from.
func Project(kind Kind, raw json.RawMessage) (map[string]any, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrValidation, kind)
	}
	var full map[string]any
	if err := json.Unmarshal(raw, &full); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrMapping, err)
	}

	spec := kindSpecs[kind]
	fields := make(map[string]any, len(spec.DomainFields))
	for _, name := range spec.DomainFields {
		if v, ok := full[name]; ok {
			fields[name] = v
		}
	}
	return fields, nil
}
