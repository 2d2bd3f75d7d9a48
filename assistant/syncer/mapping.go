package syncer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	contractx "github.com/finchat/booksync/assistant/contract"
)

// mapPayment translates one upstream payment document into the local schema,
// resolving the customer linkage against the cached customers. The local
// payload is rebuilt field by field so two syncs of an unchanged upstream
// document produce byte-identical raw payloads.
func mapPayment(doc contractx.Document, customers map[string]contractx.Record) (contractx.Document, error) {
	var src map[string]any
	if err := json.Unmarshal(doc.Raw, &src); err != nil {
		return contractx.Document{}, fmt.Errorf("%w: decode payment %s: %v", contractx.ErrMapping, doc.ExternalID, err)
	}

	ref, _ := src["customer_ref"].(string)
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return contractx.Document{}, fmt.Errorf("%w: payment %s has no customer_ref", contractx.ErrMapping, doc.ExternalID)
	}
	customer, ok := customers[ref]
	if !ok {
		return contractx.Document{}, fmt.Errorf("%w: payment %s references unknown customer %s", contractx.ErrMapping, doc.ExternalID, ref)
	}

	amount, err := parseAmount(src["total_amount"])
	if err != nil {
		return contractx.Document{}, fmt.Errorf("%w: payment %s: %v", contractx.ErrMapping, doc.ExternalID, err)
	}

	local := map[string]any{
		"id":           doc.ExternalID,
		"customer_ref": ref,
		"total_amount": amount.String(),
	}
	if name, ok := customer.Fields["display_name"].(string); ok && name != "" {
		local["customer_name"] = name
	}
	if txnDate, ok := src["txn_date"].(string); ok && txnDate != "" {
		local["txn_date"] = txnDate
	}
	if method, ok := src["method"].(string); ok && method != "" {
		local["method"] = method
	}

	raw, err := json.Marshal(local)
	if err != nil {
		return contractx.Document{}, fmt.Errorf("%w: encode payment %s: %v", contractx.ErrMapping, doc.ExternalID, err)
	}
	return contractx.Document{ExternalID: doc.ExternalID, Raw: raw}, nil
}

// parseAmount normalizes a monetary value from any of the encodings the
// upstream uses (JSON number or string) into a decimal.
func parseAmount(v any) (decimal.Decimal, error) {
	switch amount := v.(type) {
	case float64:
		return decimal.NewFromFloat(amount), nil
	case string:
		dec, err := decimal.NewFromString(strings.TrimSpace(amount))
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: invalid amount %q", contractx.ErrValidation, amount)
		}
		return dec, nil
	case json.Number:
		dec, err := decimal.NewFromString(amount.String())
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: invalid amount %q", contractx.ErrValidation, amount)
		}
		return dec, nil
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: amount has unsupported type %T", contractx.ErrValidation, v)
	}
}
