package assemblernode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/finchat/booksync/assistant/contract"
	sessionx "github.com/finchat/booksync/assistant/session"
)

// SaveSession persists the resolved filters and last action for follow-up
// resolution on the next turn. A save failure only costs that follow-up
// context, so it is logged, not surfaced.
func SaveSession(ctx context.Context, in *GraphState, store sessionx.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.SessionID == "" || store == nil {
		return in, nil
	}

	mem := &sessionx.Memory{
		SessionID:   in.SessionID,
		LastFilters: in.Filter,
		LastAction:  in.LastAction,
	}
	// Carry forward what this turn did not override.
	if in.Memory != nil {
		if mem.LastFilters.IsZero() {
			mem.LastFilters = in.Memory.LastFilters
		}
		if mem.LastAction == "" {
			mem.LastAction = in.Memory.LastAction
		}
	}

	if err := store.Save(ctx, mem); err != nil {
		log.Warn().Err(err).Str("session_id", in.SessionID).Msg("session save failed")
	}
	return in, nil
}
