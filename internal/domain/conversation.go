package domain

// Message is a single persisted conversation turn: the user's utterance and
// the assistant's reply.
type Message struct {
	PK        string
	SK        string
	SessionID string
	UserText  string
	Reply     string
	Intent    string
	Status    string
	TTL       int64
}

// SessionMeta stores aggregate session state, including the serialized
// ConversationContext carried between turns.
type SessionMeta struct {
	PK           string
	SK           string
	SessionID    string
	UserID       string
	LastActivity string
	Turns        int
	Context      string
	TTL          int64
}

// ToChat expands persisted turns into chronological chat messages.
func ToChat(msgs []Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs)*2)
	for _, m := range msgs {
		if m.UserText != "" {
			out = append(out, ChatMessage{Role: RoleUser, Content: m.UserText})
		}
		if m.Reply != "" {
			out = append(out, ChatMessage{Role: RoleAssistant, Content: m.Reply})
		}
	}
	return out
}

// CompletedTurn is what the session store persists after a successful turn.
// Context is the JSON-encoded ConversationContext after the turn.
type CompletedTurn struct {
	SessionID string
	UserID    string
	UserText  string
	Reply     string
	Intent    string
	Context   string
	Turns     int
}
