package domain

import "time"

type Command interface {
	Conversation() ConversationID
}

// SendMessageCommand is the intent of one client to deliver a message.
type SendMessageCommand struct {
	ConversationID ConversationID
	SenderID       string
	RecipientID    string
	Content        string
	CreatedAt      time.Time
}

func (c SendMessageCommand) Conversation() ConversationID {
	return c.ConversationID
}

// HistoryCommand asks for the persisted messages of one conversation.
type HistoryCommand struct {
	ConversationID ConversationID
	Cursor         *string
}

func (c HistoryCommand) Conversation() ConversationID {
	return c.ConversationID
}
