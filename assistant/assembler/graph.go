package assembler

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/finchat/booksync/assistant/contract"
	nodex "github.com/finchat/booksync/assistant/nodes"
)

func (a *Assembler) compileBuildContextGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, contractx.ContextResult], error) {
	graph := compose.NewGraph[nodex.GraphInput, contractx.ContextResult]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, a.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("load_session",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadSession(ctx, in, a.sessions)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_session: %w", err)
	}

	if err := graph.AddLambdaNode("classify",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Classify(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node classify: %w", err)
	}

	if err := graph.AddLambdaNode("load_domains",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadDomains(ctx, in, a.cache, a.mutator)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_domains: %w", err)
	}

	if err := graph.AddLambdaNode("render",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Render(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node render: %w", err)
	}

	if err := graph.AddLambdaNode("attach_actions",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.AttachActions(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node attach_actions: %w", err)
	}

	if err := graph.AddLambdaNode("save_session",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.SaveSession(ctx, in, a.sessions)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node save_session: %w", err)
	}

	if err := graph.AddLambdaNode("finalize",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (contractx.ContextResult, error) {
			return nodex.Finalize(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "load_session"},
		{"load_session", "classify"},
		{"classify", "load_domains"},
		{"load_domains", "render"},
		{"render", "attach_actions"},
		{"attach_actions", "save_session"},
		{"save_session", "finalize"},
		{"finalize", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("assembler.build_context"))
	if err != nil {
		return nil, fmt.Errorf("compile assembler graph: %w", err)
	}
	return runner, nil
}
