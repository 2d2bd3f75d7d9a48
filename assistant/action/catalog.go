package action

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/finchat/booksync/assistant/contract"
)

const (
	ActionCreateCustomer = "create_customer"
	ActionCreateInvoice  = "create_invoice"
	ActionUpdateInvoice  = "update_invoice"
	ActionSyncPayments   = "sync_payments"
)

// InvoiceStatuses is the enum allow-list for the invoice status field.
var InvoiceStatuses = []string{"draft", "open", "paid", "void"}

type actionSpec struct {
	kind     contractx.Kind
	desc     string
	params   map[string]*schema.ParameterInfo
	required []string
	enums    map[string][]string
}

// actionSpecs is the single source for descriptors and validation; the two
// can never disagree on what an action accepts.
var actionSpecs = map[string]actionSpec{
	ActionCreateCustomer: {
		kind: contractx.KindCustomer,
		desc: "Create a new customer record in the financial system.",
		params: map[string]*schema.ParameterInfo{
			"display_name": {Type: schema.String, Desc: "Customer display name", Required: true},
			"email":        {Type: schema.String, Desc: "Contact email"},
			"phone":        {Type: schema.String, Desc: "Contact phone"},
		},
		required: []string{"display_name"},
	},
	ActionCreateInvoice: {
		kind: contractx.KindInvoice,
		desc: "Create a new invoice for an existing customer.",
		params: map[string]*schema.ParameterInfo{
			"customer_ref": {Type: schema.String, Desc: "External id of the customer being billed", Required: true},
			"total_amount": {Type: schema.Number, Desc: "Invoice total", Required: true},
			"due_date":     {Type: schema.String, Desc: "Due date, YYYY-MM-DD"},
			"status":       {Type: schema.String, Desc: "Invoice status", Enum: InvoiceStatuses},
		},
		required: []string{"customer_ref", "total_amount"},
		enums:    map[string][]string{"status": InvoiceStatuses},
	},
	ActionUpdateInvoice: {
		kind: contractx.KindInvoice,
		desc: "Apply a sparse update to an existing invoice.",
		params: map[string]*schema.ParameterInfo{
			"id":           {Type: schema.String, Desc: "External id of the invoice", Required: true},
			"total_amount": {Type: schema.Number, Desc: "New invoice total"},
			"due_date":     {Type: schema.String, Desc: "New due date, YYYY-MM-DD"},
			"status":       {Type: schema.String, Desc: "New invoice status", Enum: InvoiceStatuses},
		},
		required: []string{"id"},
		enums:    map[string][]string{"status": InvoiceStatuses},
	},
	ActionSyncPayments: {
		kind: contractx.KindPayment,
		desc: "Force a bulk sync of recent payments from the source system.",
		params: map[string]*schema.ParameterInfo{
			"days_back": {Type: schema.Integer, Desc: "How many days of payments to sync", Required: true},
		},
		required: []string{"days_back"},
	},
}

// descriptorOrder keeps catalog output stable.
var descriptorOrder = []string{
	ActionCreateCustomer,
	ActionCreateInvoice,
	ActionUpdateInvoice,
	ActionSyncPayments,
}

// ForKinds returns descriptors for the actions relevant to the matched
// domains, in stable order.
func ForKinds(kinds []contractx.Kind) []*schema.ToolInfo {
	wanted := make(map[contractx.Kind]bool, len(kinds))
	for _, kind := range kinds {
		wanted[kind] = true
	}

	var out []*schema.ToolInfo
	for _, name := range descriptorOrder {
		spec := actionSpecs[name]
		if !wanted[spec.kind] {
			continue
		}
		out = append(out, &schema.ToolInfo{
			Name:        name,
			Desc:        spec.desc,
			ParamsOneOf: schema.NewParamsOneOfByParams(spec.params),
		})
	}
	return out
}

// Validate checks an action call against the allow-list: the action must
// exist, required parameters must be present and non-empty, and
// enum-constrained fields must hold allowed values. It never invokes
// anything.
func Validate(name string, args map[string]any) error {
	spec, ok := actionSpecs[name]
	if !ok {
		return fmt.Errorf("%w: unknown action %q", contractx.ErrValidation, name)
	}

	for _, req := range spec.required {
		v, ok := args[req]
		if !ok {
			return fmt.Errorf("%w: %s: %s is required", contractx.ErrValidation, name, req)
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: %s: %s is empty", contractx.ErrValidation, name, req)
		}
	}

	for param := range args {
		if _, known := spec.params[param]; !known {
			return fmt.Errorf("%w: %s: unknown parameter %q", contractx.ErrValidation, name, param)
		}
	}

	for field, allowed := range spec.enums {
		v, ok := args[field]
		if !ok {
			continue
		}
		s, isString := v.(string)
		if !isString || !contains(allowed, s) {
			return fmt.Errorf("%w: %s: %s must be one of %s, got %v",
				contractx.ErrValidation, name, field, strings.Join(allowed, "|"), v)
		}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
