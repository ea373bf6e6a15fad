package domain

// ChatMessage is the provider-agnostic chat message shape used by the
// assistant, the session store and the oracle integration.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
