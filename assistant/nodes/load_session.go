package assemblernode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/finchat/booksync/assistant/contract"
	sessionx "github.com/finchat/booksync/assistant/session"
)

// LoadSession pulls prior session memory when the caller supplied a session
// id. A missing or broken session never fails the request; the utterance is
// just handled without follow-up context.
func LoadSession(ctx context.Context, in *GraphState, store sessionx.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.SessionID == "" || store == nil {
		return in, nil
	}

	mem, err := store.Load(ctx, in.SessionID)
	if err != nil {
		if !errors.Is(err, sessionx.ErrNotFound) {
			log.Warn().Err(err).Str("session_id", in.SessionID).Msg("session load failed, continuing without memory")
		}
		return in, nil
	}

	in.Memory = mem
	return in, nil
}
