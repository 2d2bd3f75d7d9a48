package assemblernode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/finchat/booksync/assistant/contract"
)

// forcedSyncDaysBack is the payment sync window used when the force modifier
// matched without an explicit range.
const forcedSyncDaysBack = 30

// LoadDomains pulls bounded record slices for every matched domain. Forced
// requests route through the orchestrator's refresh path; everything else
// goes through the read-through cache with the budget's freshness window.
// A domain that fails to load is omitted and noted, never a hard failure.
func LoadDomains(ctx context.Context, in *GraphState, cache contractx.CacheReader, mutator contractx.Mutator) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	for _, kind := range in.Domains {
		records, err := loadDomain(ctx, kind, in, cache, mutator)
		if err != nil {
			log.Warn().Err(err).Str("kind", string(kind)).Msg("domain load failed, omitting from context")
			in.Omitted = append(in.Omitted, kind)
			continue
		}
		in.Loaded[kind] = records
	}

	// An unambiguous single-customer slice becomes the implied filter for
	// the next follow-up turn.
	if customers, ok := in.Loaded[contractx.KindCustomer]; ok && len(customers) == 1 {
		in.Filter.CustomerID = customers[0].ExternalID
	}

	return in, nil
}

func loadDomain(ctx context.Context, kind contractx.Kind, in *GraphState, cache contractx.CacheReader, mutator contractx.Mutator) ([]contractx.Record, error) {
	if !in.Forced {
		return cache.Get(ctx, kind, in.Filter, in.Budget.MaxAge)
	}

	if kind == contractx.KindPayment {
		summary, err := mutator.SyncPayments(ctx, forcedSyncDaysBack)
		if err != nil {
			return nil, err
		}
		in.LastAction = "sync_payments"
		log.Info().
			Int("synced", summary.Synced).
			Int("errors", summary.Errors).
			Msg("forced payment sync completed")
		return cache.Get(ctx, kind, in.Filter, in.Budget.MaxAge)
	}

	records, err := mutator.ForceRefresh(ctx, kind)
	if err != nil {
		return nil, err
	}
	in.LastAction = "force_refresh"
	return records, nil
}
