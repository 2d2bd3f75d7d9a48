package assemblernode

import (
	"fmt"

	contractx "github.com/finchat/booksync/assistant/contract"
)

// Finalize shapes the graph state into the context result handed back to
// the conversational layer.
func Finalize(in *GraphState) (contractx.ContextResult, error) {
	if in == nil {
		return contractx.ContextResult{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	return contractx.ContextResult{
		TextBlock:      in.TextBlock,
		Actions:        in.Actions,
		UsedDomains:    in.UsedDomains(),
		OmittedDomains: in.Omitted,
	}, nil
}
