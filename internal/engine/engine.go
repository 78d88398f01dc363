// Package engine runs the tool-invocation loop: ask the model, execute
// whatever it called, feed the results back, repeat until it answers
// without calling anything.
package engine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/exedev/beeline/internal/conv"
	"github.com/exedev/beeline/internal/funcs"
	"github.com/exedev/beeline/internal/provider"
)

// DefaultMaxIterations caps model turns per Run. Unbounded tool-call
// chains are possible otherwise; the cap is a safety valve, not a
// correctness bound.
const DefaultMaxIterations = 20

// MaxIterationsError reports a run that hit the iteration cap. The
// transcript up to the cap is still returned alongside it; callers
// decide whether to surface it as fatal.
type MaxIterationsError struct {
	Limit int
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("tool loop did not settle within %d model turns", e.Limit)
}

type state int

const (
	awaitingModel state = iota
	executingTools
	done
)

// Engine drives one conversation against one provider adapter.
type Engine struct {
	Adapter provider.Adapter
	Funcs   *funcs.Registry
	HTTP    *http.Client

	// MaxIterations overrides DefaultMaxIterations when positive.
	MaxIterations int
}

// Run executes turns until the model stops calling tools, appending every
// assistant and tool message to the conversation. It returns the messages
// appended during this invocation. Transport and parse failures abort;
// tool failures are folded into the transcript as error-marked results
// and the loop keeps going.
func (e *Engine) Run(ctx context.Context, c *conv.Conversation) ([]*conv.Message, error) {
	client := e.HTTP
	if client == nil {
		client = provider.NewHTTPClient(0)
	}
	limit := e.MaxIterations
	if limit <= 0 {
		limit = DefaultMaxIterations
	}

	var appended []*conv.Message
	var calls []conv.CallPart
	turns := 0

	for st := awaitingModel; st != done; {
		switch st {
		case awaitingModel:
			if turns >= limit {
				capErr := &MaxIterationsError{Limit: limit}
				msg := &conv.Message{Role: conv.RoleTool, Parts: []conv.Part{
					conv.ResultPart{Name: "tool_loop", Result: "ERROR: " + capErr.Error()},
				}}
				c.Append(msg)
				appended = append(appended, msg)
				return appended, capErr
			}
			turns++

			msg, usage, err := provider.Send(ctx, client, e.Adapter, c, e.tools())
			if err != nil {
				return appended, err
			}
			c.TokensIn += usage.TokensIn
			c.TokensOut += usage.TokensOut
			if len(msg.Parts) > 0 {
				c.Append(msg)
				appended = append(appended, msg)
			}

			calls = msg.Calls()
			if len(calls) == 0 {
				st = done
				break
			}
			st = executingTools

		case executingTools:
			results := make([]conv.Part, 0, len(calls))
			for _, call := range calls {
				results = append(results, e.invoke(ctx, call))
			}
			msg := &conv.Message{Role: conv.RoleTool, Parts: results}
			c.Append(msg)
			appended = append(appended, msg)
			st = awaitingModel
		}
	}
	return appended, nil
}

// invoke runs one tool call and folds any failure into the result text,
// keeping the loop alive.
func (e *Engine) invoke(ctx context.Context, call conv.CallPart) conv.ResultPart {
	if e.Funcs == nil {
		return conv.ResultPart{ID: call.ID, Name: call.Name, Result: "ERROR: unknown function: " + call.Name}
	}
	result, err := e.Funcs.Call(ctx, call.Name, call.Args)
	if err != nil {
		result = "ERROR: " + err.Error()
	}
	return conv.ResultPart{ID: call.ID, Name: call.Name, Result: result}
}

func (e *Engine) tools() []provider.Tool {
	if e.Funcs == nil {
		return nil
	}
	defs := e.Funcs.Definitions()
	tools := make([]provider.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, provider.Tool{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		})
	}
	return tools
}
