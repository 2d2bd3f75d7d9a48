package assemblernode

import (
	"fmt"

	contractx "github.com/finchat/booksync/assistant/contract"
)

// forceTokens route the load through the forced-refresh path instead of the
// freshness check. "books" is the name users call the source system.
var forceTokens = []string{"sync", "refresh", "books"}

// detailTokens switch rendering from the summary field subset to the full
// field set, with a tighter item budget.
var detailTokens = []string{"detail", "details", "full", "everything"}

// followUpTokens mark an ambiguous utterance that leans on the previous
// turn ("show me their invoices").
var followUpTokens = []string{"them", "they", "those", "their", "same", "it"}

// Classify maps the utterance onto a set of domain tags, detects the force
// and detail modifiers, and resolves follow-up filters from session memory.
// The domain set is never empty: when nothing matches, the customer domain
// is loaded as the minimal grounding.
func Classify(in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	for _, kind := range contractx.Kinds() {
		if matchesAny(in.Tokens, contractx.SpecFor(kind).Keywords) {
			in.Domains = append(in.Domains, kind)
		}
	}
	if len(in.Domains) == 0 {
		in.Domains = []contractx.Kind{contractx.KindCustomer}
	}

	in.Forced = matchesAny(in.Tokens, forceTokens)
	in.Detailed = matchesAny(in.Tokens, detailTokens)
	if in.Detailed {
		in.Budget.MaxItemsPerDomain = contractx.DetailedMaxItemsPerDomain
	}

	if matchesAny(in.Tokens, followUpTokens) && in.Memory != nil && !in.Memory.LastFilters.IsZero() {
		in.Filter = in.Memory.LastFilters
		in.FollowUp = true
	}

	return in, nil
}

func matchesAny(tokens map[string]bool, keywords []string) bool {
	for _, kw := range keywords {
		if tokens[kw] {
			return true
		}
	}
	return false
}
