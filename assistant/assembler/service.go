package assembler

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/finchat/booksync/assistant/contract"
	nodex "github.com/finchat/booksync/assistant/nodes"
	sessionx "github.com/finchat/booksync/assistant/session"
)

var ErrInvalidUtterance = nodex.ErrInvalidUtterance

// Assembler turns one user utterance into a grounded context block: it
// classifies the utterance into domains, loads bounded record slices
// through the cache, renders them, and attaches the callable actions.
type Assembler struct {
	cache    contractx.CacheReader
	mutator  contractx.Mutator
	sessions sessionx.Store

	graphRunner compose.Runnable[nodex.GraphInput, contractx.ContextResult]

	now func() time.Time
}

type Option func(*Assembler)

func WithNow(now func() time.Time) Option {
	return func(a *Assembler) {
		if now != nil {
			a.now = now
		}
	}
}

func New(cache contractx.CacheReader, mutator contractx.Mutator, sessions sessionx.Store, opts ...Option) (*Assembler, error) {
	if cache == nil {
		return nil, errors.New("cache reader is required")
	}
	if mutator == nil {
		return nil, errors.New("mutator is required")
	}
	if sessions == nil {
		return nil, errors.New("session store is required")
	}

	a := &Assembler{
		cache:    cache,
		mutator:  mutator,
		sessions: sessions,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	graphRunner, err := a.compileBuildContextGraph(context.Background())
	if err != nil {
		return nil, err
	}
	a.graphRunner = graphRunner

	return a, nil
}

// BuildContext runs the assembly graph for one utterance. sessionID may be
// empty; the utterance is then handled without follow-up memory.
func (a *Assembler) BuildContext(ctx context.Context, utterance string, sessionID string) (contractx.ContextResult, error) {
	return a.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID: sessionID,
		Utterance: utterance,
	})
}
