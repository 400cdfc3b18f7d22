package tools

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Result is the outcome of executing one Call. It is a value; helpers that
// change it return copies.
type Result struct {
	Success   bool              `json:"success"`
	Tool      string            `json:"tool"`
	Input     map[string]string `json:"input,omitempty"`
	Output    string            `json:"output,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Duration  time.Duration     `json:"duration"`
}

// Succeeded builds a successful result for call.
func Succeeded(call Call, output string) Result {
	return Result{
		Success:   true,
		Tool:      call.Name,
		Input:     call.Args.Stringify(),
		Output:    output,
		Timestamp: time.Now(),
	}
}

// Failed builds a failed result for call.
func Failed(call Call, err string) Result {
	return Result{
		Success:   false,
		Tool:      call.Name,
		Input:     call.Args.Stringify(),
		Error:     err,
		Timestamp: time.Now(),
	}
}

// Downgrade returns a failed copy carrying reason as the error.
func (r Result) Downgrade(reason string) Result {
	r.Success = false
	if r.Error == "" {
		r.Error = reason
	} else if reason != "" {
		r.Error = reason + " (" + r.Error + ")"
	}
	return r
}

// Format renders the result as the text block fed back to the model.
func (r Result) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tool: %s\n", r.Tool)
	if r.Success {
		b.WriteString("Status: ✅ SUCCESS")
	} else {
		b.WriteString("Status: ❌ FAILED")
	}

	if len(r.Input) > 0 {
		keys := make([]string, 0, len(r.Input))
		for k := range r.Input {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + r.Input[k]
		}
		b.WriteString("\nInput: " + strings.Join(parts, ", "))
	}
	if r.Output != "" {
		b.WriteString("\nOutput: " + r.Output)
	}
	if r.Error != "" {
		b.WriteString("\nError: " + r.Error)
	}
	fmt.Fprintf(&b, "\nExecution Time: %dms", r.Duration.Milliseconds())
	return b.String()
}
