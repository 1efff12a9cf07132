package domain

import (
	"strings"

	"mentorlink/errors"
)

// conversationSeparator joins the two sorted participant identifiers.
// Changing it would silently re-key every stored conversation.
const conversationSeparator = "_"

type ConversationID string

// NewConversationID derives the canonical key of the thread between two
// users: the identifiers sorted lexicographically, joined with "_".
// Both participants always compute the same key regardless of who
// initiated: NewConversationID(a, b) == NewConversationID(b, a).
// Pure function, no persistence lookup.
func NewConversationID(a, b string) (ConversationID, error) {
	if a == "" || b == "" {
		return "", errors.ErrEmptyUserID
	}
	if a == b {
		return "", errors.ErrSelfConversation
	}
	if a > b {
		a, b = b, a
	}
	return ConversationID(a + conversationSeparator + b), nil
}

// Participants returns the two user identifiers of a conversation key, in
// sorted order. The boolean is false for keys not produced by
// NewConversationID.
func (c ConversationID) Participants() (string, string, bool) {
	parts := strings.SplitN(string(c), conversationSeparator, 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Other returns the peer of the given participant within the conversation.
func (c ConversationID) Other(userID string) (string, bool) {
	first, second, ok := c.Participants()
	if !ok {
		return "", false
	}
	switch userID {
	case first:
		return second, true
	case second:
		return first, true
	}
	return "", false
}
