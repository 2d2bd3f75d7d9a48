package action

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/finchat/booksync/assistant/contract"
)

// Result is the outcome of a single action call. Error carries validation
// and execution failures as text so the caller can surface them
// conversationally instead of aborting the turn.
type Result struct {
	Action string `json:"action"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Invoker validates action calls against the catalog and executes them
// through a mutator.
type Invoker struct {
	mutator contractx.Mutator
}

func NewInvoker(mutator contractx.Mutator) (*Invoker, error) {
	if mutator == nil {
		return nil, errors.New("action: mutator must not be nil")
	}
	return &Invoker{mutator: mutator}, nil
}

// Invoke runs one action. Validation failures never reach the mutator; they
// come back as a Result with a non-empty Error and a nil error return.
// Execution failures from the mutator are returned as errors so the caller
// can distinguish a bad request from a broken backend.
func (i *Invoker) Invoke(ctx context.Context, name string, args map[string]any) (Result, error) {
	if err := Validate(name, args); err != nil {
		return Result{Action: name, Error: err.Error()}, nil
	}

	switch name {
	case ActionCreateCustomer:
		rec, err := i.mutator.CreateCustomer(ctx, args)
		if err != nil {
			return Result{Action: name}, err
		}
		return Result{Action: name, Result: rec}, nil
	case ActionCreateInvoice:
		rec, err := i.mutator.CreateInvoice(ctx, args)
		if err != nil {
			return Result{Action: name}, err
		}
		return Result{Action: name, Result: rec}, nil
	case ActionUpdateInvoice:
		id, _ := args["id"].(string)
		patch := make(map[string]any, len(args))
		for k, v := range args {
			if k == "id" {
				continue
			}
			patch[k] = v
		}
		rec, err := i.mutator.UpdateInvoice(ctx, id, patch)
		if err != nil {
			return Result{Action: name}, err
		}
		return Result{Action: name, Result: rec}, nil
	case ActionSyncPayments:
		daysBack, err := intArg(args, "days_back")
		if err != nil {
			return Result{Action: name, Error: err.Error()}, nil
		}
		summary, err := i.mutator.SyncPayments(ctx, daysBack)
		if err != nil {
			return Result{Action: name}, err
		}
		return Result{Action: name, Result: summary}, nil
	default:
		return Result{Action: name, Error: fmt.Sprintf("action=%s is not executable", name)}, nil
	}
}

func intArg(args map[string]any, key string) (int, error) {
	switch v := args[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%w: %s must be an integer, got %v", contractx.ErrValidation, key, v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("%w: %s must be an integer, got %T", contractx.ErrValidation, key, args[key])
	}
}
