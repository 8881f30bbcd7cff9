package models

// ChatState is the persisted mirror of a live chat: the message list plus
// the backend conversation id, if the thread has been synced server-side.
// The VisitorID field scopes the record: state is only restored when it
// matches the live session's visitor id, otherwise it is stale and dropped.
type ChatState struct {
	Messages       []Message `json:"messages"`
	ConversationID string    `json:"conversation_id,omitempty"`
	VisitorID      string    `json:"visitor_id"`
}
