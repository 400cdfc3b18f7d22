package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotepadHandlesItsTools(t *testing.T) {
	var delegated []string
	next := ExecutorFunc(func(_ context.Context, c Call) Execution {
		delegated = append(delegated, c.Name)
		return Execution{Result: Succeeded(c, "ok")}
	})
	np := NewNotepad(next)
	ctx := context.Background()

	out := np.Execute(ctx, Call{Name: "write_to_notepad", Args: Args{"content": String("Bob owes the budget")}})
	require.True(t, out.Result.Success)
	require.NotNil(t, out.Artifact)

	np.Execute(ctx, Call{Name: "write_to_notepad", Args: Args{"content": String("Friday deadline")}})
	assert.Equal(t, "Bob owes the budget\nFriday deadline", np.Content())

	read := np.Execute(ctx, Call{Name: "read_notepad"})
	require.NotNil(t, read.Artifact)
	assert.Equal(t, np.Content(), read.Artifact.Payload)

	np.Execute(ctx, Call{Name: "write_to_notepad", Args: Args{"content": String("fresh"), "mode": String("replace")}})
	assert.Equal(t, "fresh", np.Content())

	np.Execute(ctx, Call{Name: "clear_notepad"})
	assert.Empty(t, np.Content())

	bad := np.Execute(ctx, Call{Name: "write_to_notepad", Args: Args{"content": Number(3)}})
	assert.False(t, bad.Result.Success)

	np.Execute(ctx, Call{Name: "create_reminder"})
	assert.Equal(t, []string{"create_reminder"}, delegated)
}
