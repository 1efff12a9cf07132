package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"mentorlink/domain"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestStoreMessage_HistoryIsOldestFirst(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewMessageRepository(db, slog.Default(), nil)
	conversationID := domain.ConversationID("u1_u2")
	at := time.Now().UTC()
	diskMessages := []DiskMessage{
		{uuid.New(), conversationID, "u1", "u2", "first", at},
		{uuid.New(), conversationID, "u2", "u1", "second", at.Add(1 * time.Minute)},
		{uuid.New(), conversationID, "u1", "u2", "third", at.Add(2 * time.Minute)},
	}
	// Append out of order to prove key ordering, not insert ordering
	for _, i := range []int{2, 0, 1} {
		req.NoError(repository.StoreMessage(diskMessages[i]))
	}

	fetched, _, err := repository.GetMessages(conversationID, nil)
	req.NoError(err)
	req.Len(fetched, len(diskMessages))
	req.Equal(diskMessages, fetched)
}

func TestGetMessages_ConversationIsolation(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewMessageRepository(db, slog.Default(), nil)
	at := time.Now().UTC()
	req.NoError(repository.StoreMessage(DiskMessage{uuid.New(), "u1_u2", "u1", "u2", "for u2", at}))
	req.NoError(repository.StoreMessage(DiskMessage{uuid.New(), "u1_u3", "u1", "u3", "for u3", at}))

	fetched, _, err := repository.GetMessages("u1_u2", nil)
	req.NoError(err)
	req.Len(fetched, 1)
	req.Equal("for u2", fetched[0].Content)
}

func TestGetMessages_CursorPagination(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	limit := 2
	repository := NewMessageRepository(db, slog.Default(), &limit)
	conversationID := domain.ConversationID("u1_u2")
	at := time.Now().UTC()
	contents := []string{"one", "two", "three"}
	for i, content := range contents {
		req.NoError(repository.StoreMessage(DiskMessage{
			uuid.New(), conversationID, "u1", "u2", content, at.Add(time.Duration(i) * time.Minute),
		}))
	}

	// First page honors the limit
	page, cursor, err := repository.GetMessages(conversationID, nil)
	req.NoError(err)
	req.Len(page, limit)
	req.Equal("one", page[0].Content)
	req.Equal("two", page[1].Content)
	req.NotNil(cursor)

	// Next page resumes after the cursor
	page, _, err = repository.GetMessages(conversationID, cursor)
	req.NoError(err)
	req.Len(page, 1)
	req.Equal("three", page[0].Content)
}

func TestGetMessages_EmptyConversation(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewMessageRepository(db, slog.Default(), lo.ToPtr(10))
	fetched, cursor, err := repository.GetMessages("u1_u2", nil)
	req.NoError(err)
	req.Empty(fetched)
	req.Nil(cursor)
}
