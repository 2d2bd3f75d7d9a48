package assemblernode

import (
	"fmt"

	actionx "github.com/finchat/booksync/assistant/action"
	contractx "github.com/finchat/booksync/assistant/contract"
)

// AttachActions binds the callable action descriptors for the domains that
// actually loaded. Omitted domains contribute no actions: offering a
// mutation on data the model could not see invites blind writes.
func AttachActions(in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	in.Actions = actionx.ForKinds(in.UsedDomains())
	return in, nil
}
