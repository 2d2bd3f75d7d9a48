package assemblernode

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/finchat/booksync/assistant/contract"
	sessionx "github.com/finchat/booksync/assistant/session"
)

var ErrInvalidUtterance = errors.New("utterance is empty")

type GraphInput struct {
	SessionID string
	Utterance string
}

// GraphState is threaded through every node of the context-assembly graph.
// One instance per utterance; never shared across requests.
type GraphState struct {
	SessionID string
	Utterance string
	Tokens    map[string]bool
	Now       time.Time
	Budget    contractx.ContextBudget

	Memory *sessionx.Memory

	Domains    []contractx.Kind
	Forced     bool
	Detailed   bool
	FollowUp   bool
	Filter     contractx.Filter
	LastAction string

	Loaded  map[contractx.Kind][]contractx.Record
	Omitted []contractx.Kind

	TextBlock string
	Actions   []*schema.ToolInfo
}

// UsedDomains returns the matched domains that actually loaded, in the
// stable classification order.
func (s *GraphState) UsedDomains() []contractx.Kind {
	omitted := make(map[contractx.Kind]bool, len(s.Omitted))
	for _, kind := range s.Omitted {
		omitted[kind] = true
	}

	var used []contractx.Kind
	for _, kind := range s.Domains {
		if !omitted[kind] {
			used = append(used, kind)
		}
	}
	return used
}

// ValidateRequest normalizes the inbound utterance and seeds the per-request
// state. The session id is optional: without one the request simply runs
// without follow-up memory.
func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	utterance := strings.TrimSpace(in.Utterance)
	if utterance == "" {
		return nil, ErrInvalidUtterance
	}

	return &GraphState{
		SessionID: strings.TrimSpace(in.SessionID),
		Utterance: utterance,
		Tokens:    tokenize(utterance),
		Now:       nowFn().UTC(),
		Budget:    contractx.DefaultBudget(),
		Loaded:    make(map[contractx.Kind][]contractx.Record),
	}, nil
}

func tokenize(utterance string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(utterance), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_'
	})

	tokens := make(map[string]bool, len(fields))
	for _, f := range fields {
		tokens[f] = true
	}
	return tokens
}
