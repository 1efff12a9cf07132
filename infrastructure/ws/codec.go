package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mentorlink/domain"
	"mentorlink/domain/event"
)

// Envelope is the wire form of every server-to-client event. One flat
// struct instead of per-kind payloads keeps the codec symmetric with
// DecodeEvent and the unused fields cost nothing thanks to omitempty.
type Envelope struct {
	Type           event.Kind            `json:"type"`
	ID             string                `json:"id,omitempty"`
	ConversationID domain.ConversationID `json:"conversation_id,omitempty"`
	SenderID       string                `json:"sender_id,omitempty"`
	RecipientID    string                `json:"recipient_id,omitempty"`
	UserID         string                `json:"user_id,omitempty"`
	UserIDs        []string              `json:"user_ids,omitempty"`
	Content        string                `json:"content,omitempty"`
	Seq            uint64                `json:"seq,omitempty"`
	At             time.Time             `json:"at,omitempty"`
}

// EncodeEvent serializes a channel event into its wire envelope.
func EncodeEvent(e event.ChannelEvent) ([]byte, error) {
	var envelope Envelope
	switch evt := e.(type) {
	case event.NewMessage:
		envelope = Envelope{
			Type:           event.KindNewMessage,
			ID:             evt.ID.String(),
			ConversationID: evt.ConversationID,
			SenderID:       evt.SenderID,
			RecipientID:    evt.RecipientID,
			Content:        evt.Content,
			At:             evt.At,
		}
	case event.UserTyping:
		envelope = Envelope{
			Type:           event.KindUserTyping,
			ConversationID: evt.ConversationID,
			UserID:         evt.UserID,
			Seq:            evt.Seq,
		}
	case event.UserStopTyping:
		envelope = Envelope{
			Type:           event.KindStopTyping,
			ConversationID: evt.ConversationID,
			UserID:         evt.UserID,
			Seq:            evt.Seq,
		}
	case event.UserOnline:
		envelope = Envelope{Type: event.KindUserOnline, UserID: evt.UserID}
	case event.UserOffline:
		envelope = Envelope{Type: event.KindUserOffline, UserID: evt.UserID}
	case event.OnlineUsers:
		envelope = Envelope{Type: event.KindOnlineUsers, UserIDs: evt.UserIDs}
	default:
		return nil, fmt.Errorf("no wire form for event %T", e)
	}
	return json.Marshal(envelope)
}

// DecodeEvent rebuilds the typed event from its wire envelope. The client
// side uses it so both ends share one codec.
func DecodeEvent(data []byte) (event.ChannelEvent, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}

	switch envelope.Type {
	case event.KindNewMessage:
		id, err := uuid.Parse(envelope.ID)
		if err != nil {
			return nil, fmt.Errorf("malformed message id %q: %w", envelope.ID, err)
		}
		return event.NewMessage{
			ID:             id,
			ConversationID: envelope.ConversationID,
			SenderID:       envelope.SenderID,
			RecipientID:    envelope.RecipientID,
			Content:        envelope.Content,
			At:             envelope.At,
		}, nil
	case event.KindUserTyping:
		return event.UserTyping{
			ConversationID: envelope.ConversationID,
			UserID:         envelope.UserID,
			Seq:            envelope.Seq,
		}, nil
	case event.KindStopTyping:
		return event.UserStopTyping{
			ConversationID: envelope.ConversationID,
			UserID:         envelope.UserID,
			Seq:            envelope.Seq,
		}, nil
	case event.KindUserOnline:
		return event.UserOnline{UserID: envelope.UserID}, nil
	case event.KindUserOffline:
		return event.UserOffline{UserID: envelope.UserID}, nil
	case event.KindOnlineUsers:
		return event.OnlineUsers{UserIDs: envelope.UserIDs}, nil
	}
	return nil, fmt.Errorf("unknown event type %q", envelope.Type)
}

// FrameType enumerates the client-to-server control frames. Messages do
// not travel this way: sending goes through the HTTP endpoint so the
// caller gets a synchronous verdict on validation and persistence.
type FrameType string

const (
	FrameSelectConversation FrameType = "select_conversation"
	FrameDeselect           FrameType = "deselect"
	FrameTyping             FrameType = "typing"
	FrameStopTyping         FrameType = "stop_typing"
)

// ClientFrame is one inbound control frame on the events channel.
type ClientFrame struct {
	Type   FrameType `json:"type"`
	PeerID string    `json:"peer_id,omitempty"`
}

func EncodeFrame(frame ClientFrame) ([]byte, error) {
	return json.Marshal(frame)
}

func DecodeFrame(data []byte) (ClientFrame, error) {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ClientFrame{}, err
	}
	switch frame.Type {
	case FrameSelectConversation, FrameDeselect, FrameTyping, FrameStopTyping:
		return frame, nil
	}
	return ClientFrame{}, fmt.Errorf("unknown frame type %q", frame.Type)
}
