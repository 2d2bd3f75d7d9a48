package assemblernode

import (
	"fmt"
	"strings"

	contractx "github.com/finchat/booksync/assistant/contract"
)

var kindLabels = map[contractx.Kind]string{
	contractx.KindCustomer: "Customers",
	contractx.KindInvoice:  "Invoices",
	contractx.KindPayment:  "Payments",
}

// Render turns the loaded slices into the bounded text block. At most
// MaxItemsPerDomain items per domain; the summary field subset by default,
// the full field set when the detail cue matched. Omitted domains get an
// explicit unavailability line so the downstream model never hallucinates
// data it was not given.
func Render(in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	var b strings.Builder
	omitted := make(map[contractx.Kind]bool, len(in.Omitted))
	for _, kind := range in.Omitted {
		omitted[kind] = true
	}

	for _, kind := range in.Domains {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		if omitted[kind] {
			fmt.Fprintf(&b, "## %s (unavailable)\n", kindLabels[kind])
			continue
		}
		renderDomain(&b, kind, in.Loaded[kind], in.Budget.MaxItemsPerDomain, in.Detailed)
	}

	in.TextBlock = b.String()
	return in, nil
}

func renderDomain(b *strings.Builder, kind contractx.Kind, records []contractx.Record, maxItems int, detailed bool) {
	shown := len(records)
	if shown > maxItems {
		shown = maxItems
	}
	fmt.Fprintf(b, "## %s (%d of %d)\n", kindLabels[kind], shown, len(records))

	if len(records) == 0 {
		b.WriteString("- (none)\n")
		return
	}

	spec := contractx.SpecFor(kind)
	fields := spec.SummaryFields
	if detailed {
		fields = spec.DomainFields
	}

	for _, rec := range records[:shown] {
		b.WriteString("-")
		for _, name := range fields {
			v, ok := rec.Fields[name]
			if !ok {
				continue
			}
			fmt.Fprintf(b, " %s=%v", name, v)
		}
		b.WriteString("\n")
	}
}
