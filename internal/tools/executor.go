package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/clawinfra/tenx/internal/types"
)

// Execution is everything an executor returns for one call.
type Execution struct {
	Artifact *types.Artifact
	Result   Result
	Detail   string
}

// Executor runs tool calls against the outside world. Implementations must
// not panic or block forever and must encode every failure, including
// malformed arguments, in a failed Result. They may be called concurrently.
type Executor interface {
	Execute(ctx context.Context, call Call) Execution
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, call Call) Execution

func (f ExecutorFunc) Execute(ctx context.Context, call Call) Execution { return f(ctx, call) }

// SafeExecute runs call on exec and normalises the outcome: panics become
// failed results, and missing tool name, input echo, timestamp or duration
// are filled in. Exactly one Result comes back for every call.
func SafeExecute(ctx context.Context, exec Executor, call Call) (out Execution) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Execution{Result: Failed(call, fmt.Sprintf("executor panic: %v", r))}
		}
		if out.Result.Tool == "" {
			out.Result.Tool = call.Name
		}
		if out.Result.Input == nil && len(call.Args) > 0 {
			out.Result.Input = call.Args.Stringify()
		}
		if out.Result.Timestamp.IsZero() {
			out.Result.Timestamp = start
		}
		if out.Result.Duration == 0 {
			out.Result.Duration = time.Since(start)
		}
		if out.Result.Success && out.Result.Output == "" && out.Artifact != nil {
			out.Result.Output = out.Artifact.Summary()
		}
	}()
	if err := ctx.Err(); err != nil {
		return Execution{Result: Failed(call, fmt.Sprintf("not executed: %v", err))}
	}
	return exec.Execute(ctx, call)
}
