package search

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"mentorlink/domain/event"
)

func openTestIndex(t *testing.T) *MessageIndex {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	return NewMessageIndex(writer, logs.GetLoggerFromLevel(slog.LevelDebug), 100)
}

func TestMessageIndex_SearchScopedToConversation(t *testing.T) {
	req := require.New(t)
	idx := openTestIndex(t)
	ctx := context.Background()

	// Given: messages in two conversations mentioning the same word
	matching := uuid.New()
	req.NoError(idx.Consume(ctx, event.NewMessage{
		ID: matching, ConversationID: "u1_u2", SenderID: "u1",
		Content: "the invoice is ready", At: time.Now().UTC(),
	}))
	req.NoError(idx.Consume(ctx, event.NewMessage{
		ID: uuid.New(), ConversationID: "u1_u3", SenderID: "u3",
		Content: "another invoice entirely", At: time.Now().UTC(),
	}))
	req.NoError(idx.Consume(ctx, event.NewMessage{
		ID: uuid.New(), ConversationID: "u1_u2", SenderID: "u2",
		Content: "nothing relevant here", At: time.Now().UTC(),
	}))
	req.NoError(idx.Flush())

	// When: searching the first conversation
	results, total, err := idx.Search(ctx, "u1_u2", NewQuery("/find invoice"))

	// Then: only that conversation's match comes back
	req.NoError(err)
	req.Equal(uint64(1), total)
	req.Len(results, 1)
	req.Equal(matching, results[0].MessageID)
	req.Equal("the invoice is ready", results[0].Content)
	req.Equal("u1", results[0].SenderID)
}

func TestMessageIndex_SearchFiltersBySender(t *testing.T) {
	req := require.New(t)
	idx := openTestIndex(t)
	ctx := context.Background()

	req.NoError(idx.Consume(ctx, event.NewMessage{
		ID: uuid.New(), ConversationID: "u1_u2", SenderID: "u1",
		Content: "deadline moved to friday", At: time.Now().UTC(),
	}))
	req.NoError(idx.Consume(ctx, event.NewMessage{
		ID: uuid.New(), ConversationID: "u1_u2", SenderID: "u2",
		Content: "noted, friday works", At: time.Now().UTC(),
	}))
	req.NoError(idx.Flush())

	results, _, err := idx.Search(ctx, "u1_u2", NewQuery("/find friday --from u2"))
	req.NoError(err)
	req.Len(results, 1)
	req.Equal("u2", results[0].SenderID)
}

func TestMessageIndex_NonMessageEventsIgnored(t *testing.T) {
	req := require.New(t)
	idx := openTestIndex(t)
	ctx := context.Background()

	req.NoError(idx.Consume(ctx, event.UserTyping{ConversationID: "u1_u2", UserID: "u1", Seq: 1}))
	req.NoError(idx.Consume(ctx, event.UserOnline{UserID: "u1"}))
	req.NoError(idx.Flush())

	_, total, err := idx.Search(ctx, "u1_u2", NewQuery("anything"))
	req.NoError(err)
	req.Zero(total)
}

func TestMessageIndex_AutoFlushAtBatchSize(t *testing.T) {
	req := require.New(t)
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	t.Cleanup(func() { _ = writer.Close() })
	idx := NewMessageIndex(writer, logs.GetLoggerFromLevel(slog.LevelDebug), 2)
	ctx := context.Background()

	// Two messages reach batchSize: searchable without an explicit Flush.
	for i := 0; i < 2; i++ {
		req.NoError(idx.Consume(ctx, event.NewMessage{
			ID: uuid.New(), ConversationID: "u1_u2", SenderID: "u1",
			Content: "standup notes", At: time.Now().UTC(),
		}))
	}

	_, total, err := idx.Search(ctx, "u1_u2", NewQuery("standup"))
	req.NoError(err)
	req.Equal(uint64(2), total)
}

func TestNewQuery_ParsesFlagsAndTerms(t *testing.T) {
	req := require.New(t)

	query := NewQuery(`/find "budget review" --from u2 --limit 5`)
	req.Equal("budget review", query.Terms)
	req.Equal("u2", query.From)
	req.Equal(5, query.Limit)

	// Defaults apply when flags are absent or malformed.
	query = NewQuery("plain words --limit nope")
	req.Equal("plain words", query.Terms)
	req.Empty(query.From)
	req.Equal(defaultLimit, query.Limit)
}
