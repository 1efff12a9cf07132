// Package event defines the closed set of events carried on a channel.
// Every event kind is a distinct struct so malformed payloads are caught
// at compile time instead of at delivery.
package event

import (
	"time"

	"github.com/google/uuid"

	"mentorlink/domain"
)

// ChannelEvent is implemented by every event a channel can carry.
type ChannelEvent interface {
	Kind() Kind
}

type Kind string

const (
	KindNewMessage  Kind = "new_message"
	KindUserTyping  Kind = "user_typing"
	KindStopTyping  Kind = "user_stop_typing"
	KindUserOnline  Kind = "user_online"
	KindUserOffline Kind = "user_offline"
	KindOnlineUsers Kind = "online_users"
)

// NewMessage announces one message to the two participants' channels.
type NewMessage struct {
	ID             uuid.UUID
	ConversationID domain.ConversationID
	SenderID       string
	RecipientID    string
	Content        string
	At             time.Time
}

func (NewMessage) Kind() Kind { return KindNewMessage }

// UserTyping signals a keystroke in a conversation. Seq is a monotonic
// per-(conversation, user) counter assigned at emit time; receivers drop
// any typing event whose Seq does not advance, so a stale stop can never
// clear a newer start.
type UserTyping struct {
	ConversationID domain.ConversationID
	UserID         string
	Seq            uint64
}

func (UserTyping) Kind() Kind { return KindUserTyping }

type UserStopTyping struct {
	ConversationID domain.ConversationID
	UserID         string
	Seq            uint64
}

func (UserStopTyping) Kind() Kind { return KindStopTyping }

// UserOnline is broadcast when a user's first channel connects.
type UserOnline struct {
	UserID string
}

func (UserOnline) Kind() Kind { return KindUserOnline }

// UserOffline is broadcast when a user's last channel disconnects.
type UserOffline struct {
	UserID string
}

func (UserOffline) Kind() Kind { return KindUserOffline }

// OnlineUsers seeds a newly connected channel with current presence so it
// does not wait for incremental events to learn the existing online set.
type OnlineUsers struct {
	UserIDs []string
}

func (OnlineUsers) Kind() Kind { return KindOnlineUsers }
