package ws

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"mentorlink/domain/event"
)

func TestCodec_NewMessageRoundTrip(t *testing.T) {
	req := require.New(t)
	sent := event.NewMessage{
		ID:             uuid.New(),
		ConversationID: "u1_u2",
		SenderID:       "u1",
		RecipientID:    "u2",
		Content:        "ready for the session?",
		At:             time.Now().UTC().Truncate(time.Millisecond),
	}

	data, err := EncodeEvent(sent)
	req.NoError(err)
	decoded, err := DecodeEvent(data)
	req.NoError(err)
	req.Equal(sent, decoded)
}

func TestCodec_TypingCarriesSequence(t *testing.T) {
	req := require.New(t)
	data, err := EncodeEvent(event.UserTyping{ConversationID: "u1_u2", UserID: "u1", Seq: 7})
	req.NoError(err)

	decoded, err := DecodeEvent(data)
	req.NoError(err)
	req.Equal(uint64(7), decoded.(event.UserTyping).Seq)
}

func TestCodec_RejectsUnknownPayloads(t *testing.T) {
	req := require.New(t)

	_, err := DecodeEvent([]byte(`{"type":"shrug"}`))
	req.Error(err)

	_, err = DecodeFrame([]byte(`{"type":"shout"}`))
	req.Error(err)

	_, err = DecodeFrame([]byte(`not json`))
	req.Error(err)
}

func TestCodec_MalformedMessageIDIsRejected(t *testing.T) {
	req := require.New(t)
	_, err := DecodeEvent([]byte(`{"type":"new_message","id":"not-a-uuid"}`))
	req.Error(err)
}
