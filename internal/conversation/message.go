// Package conversation holds chat history and the token-budgeted window
// sent to the model on each call.
package conversation

import (
	"time"

	"github.com/clawinfra/tenx/internal/types"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of conversation history. Messages are never edited
// after they are appended; windowing copies subsequences.
type Message struct {
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	CreatedAt time.Time         `json:"created_at"`
	Artifacts []*types.Artifact `json:"artifacts,omitempty"`
}

// User builds a user message stamped with the current time.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content, CreatedAt: time.Now()}
}

// Assistant builds an assistant message stamped with the current time.
func Assistant(content string, artifacts ...*types.Artifact) Message {
	return Message{Role: RoleAssistant, Content: content, CreatedAt: time.Now(), Artifacts: artifacts}
}
