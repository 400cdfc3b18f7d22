// Package tools defines tool calls, their results, the executor boundary
// and the per-tool acceptance policy.
package tools

// Call is one model-proposed tool invocation.
type Call struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args Args   `json:"input"`
}

// Signature identifies calls with the same name and arguments.
func (c Call) Signature() string {
	return c.Name + ":" + c.Args.Signature()
}

// Spec describes a tool offered to the model.
type Spec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`

	// InlinePayload asks the loop to paste the artifact payload into the
	// result turn so the model can read it.
	InlinePayload bool `json:"-"`
}

// Names lists the names of specs in order.
func Names(specs []Spec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Name
	}
	return out
}
