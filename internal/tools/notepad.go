package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/clawinfra/tenx/internal/types"
)

// Notepad serves the scratch-notepad tools in process and hands every other
// call to the wrapped executor.
type Notepad struct {
	next Executor

	mu      sync.Mutex
	content string
}

// NewNotepad wraps next.
func NewNotepad(next Executor) *Notepad {
	return &Notepad{next: next}
}

// Content returns the current notepad text.
func (n *Notepad) Content() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.content
}

func (n *Notepad) Execute(ctx context.Context, call Call) Execution {
	start := time.Now()
	var ex Execution
	switch call.Name {
	case "write_to_notepad":
		ex = n.write(call)
	case "read_notepad":
		ex = n.read(call)
	case "clear_notepad":
		n.mu.Lock()
		n.content = ""
		n.mu.Unlock()
		ex = Execution{Result: Succeeded(call, "Notepad cleared"), Detail: "Notepad cleared"}
	default:
		return n.next.Execute(ctx, call)
	}
	ex.Result.Duration = time.Since(start)
	return ex
}

func (n *Notepad) write(call Call) Execution {
	text, ok := call.Args["content"].Str()
	if !ok || strings.TrimSpace(text) == "" {
		return Execution{Result: Failed(call, "content is required")}
	}
	mode := call.Args.String("mode")
	if mode == "" {
		mode = "append"
	}

	n.mu.Lock()
	switch mode {
	case "replace":
		n.content = text
	case "append":
		if n.content == "" {
			n.content = text
		} else {
			n.content += "\n" + text
		}
	default:
		n.mu.Unlock()
		return Execution{Result: Failed(call, fmt.Sprintf("unknown mode %q", mode))}
	}
	size := len(n.content)
	n.mu.Unlock()

	art := types.NewArtifact(types.ArtifactNotepad, "Notepad", fmt.Sprintf("%d chars", size), "")
	return Execution{
		Artifact: art,
		Result:   Succeeded(call, art.Summary()),
		Detail:   "Notepad updated",
	}
}

func (n *Notepad) read(call Call) Execution {
	content := n.Content()
	if content == "" {
		return Execution{Result: Succeeded(call, "Notepad is empty"), Detail: "Notepad is empty"}
	}
	art := types.NewArtifact(types.ArtifactNotepad, "Notepad", fmt.Sprintf("%d chars", len(content)), content)
	return Execution{Artifact: art, Result: Succeeded(call, art.Summary()), Detail: content}
}
