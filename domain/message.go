// Package domain contains core concepts of the messaging system.
// This file defines Message and related rules.
// Messages are immutable and validated by the domain.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"mentorlink/errors"
)

// Message represents one immutable unit of communication between exactly
// two users. The conversation key is derived, redundant for indexing.
type Message struct {
	ID             uuid.UUID
	ConversationID ConversationID
	SenderID       string
	RecipientID    string
	Content        string
	CreatedAt      time.Time
}

// NewMessage validates and builds a message. Content must be non-empty
// after trimming and sender and recipient must differ; both are checked
// here, before any I/O.
func NewMessage(senderID, recipientID, content string, at time.Time) (Message, error) {
	if senderID == recipientID {
		return Message{}, errors.ErrSelfMessage
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, errors.ErrEmptyContent
	}
	conversationID, err := NewConversationID(senderID, recipientID)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		RecipientID:    recipientID,
		Content:        content,
		CreatedAt:      at,
	}, nil
}
