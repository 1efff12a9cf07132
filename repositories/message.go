//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"mentorlink/domain"
	apperrors "mentorlink/errors"
)

type IMessageRepository interface {
	StoreMessage(message DiskMessage) error
	GetMessages(conversationID domain.ConversationID, cursor *string) ([]DiskMessage, *string, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// DiskMessage is the storage representation of a message.
type DiskMessage struct {
	ID             uuid.UUID             `json:"id"`
	ConversationID domain.ConversationID `json:"conversation_id"`
	SenderID       string                `json:"sender_id"`
	RecipientID    string                `json:"recipient_id"`
	Content        string                `json:"content"`
	At             time.Time             `json:"at"`
}

// StoreMessage persists a message in BadgerDB.
// The key is formatted as "msg:{conversation_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two
//     messages arrive at the same nanosecond.
func (m MessageRepository) StoreMessage(message DiskMessage) error {
	key := fmt.Sprintf("msg:%s:%019d:%s",
		message.ConversationID,
		message.At.UnixNano(),
		message.ID,
	)
	bytes, err := json.Marshal(message)
	if err != nil {
		return apperrors.NewPersistenceError("append", err)
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
	if err != nil {
		return apperrors.NewPersistenceError("append", err)
	}
	return nil
}

// GetMessages retrieves the history of a conversation using a prefix scan,
// oldest first. Thanks to the padded timestamp in the key, messages are
// naturally sorted by time. The returned cursor points past the last
// collected message so the next call resumes where this one stopped.
func (m MessageRepository) GetMessages(conversationID domain.ConversationID, cursor *string) ([]DiskMessage, *string, error) {
	var byteMessages [][]byte
	var diskMessages []DiskMessage
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", conversationID)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seekKey := prefix
		if cursor != nil {
			seekKey = append([]byte(prefixStr), []byte(*cursor)...)
		}

		it.Seek(seekKey)

		// The cursor names the last key of the previous page, skip it
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(byteMessages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			item := it.Item()
			// Memorize cursor part of the actual key
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				byteMessages = append(byteMessages, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, apperrors.NewPersistenceError("fetch", err)
	}

	for _, b := range byteMessages {
		var message DiskMessage
		if err = json.Unmarshal(b, &message); err != nil {
			return nil, nil, apperrors.NewPersistenceError("fetch", err)
		}
		diskMessages = append(diskMessages, message)
	}
	if lastKey == "" {
		return diskMessages, nil, nil
	}
	return diskMessages, &lastKey, nil
}

// FromDomain converts a validated domain message into its storage form.
func FromDomain(message domain.Message) DiskMessage {
	return DiskMessage{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		RecipientID:    message.RecipientID,
		Content:        message.Content,
		At:             message.CreatedAt,
	}
}

// ToDomain converts a storage message back to the domain representation.
func ToDomain(message DiskMessage) domain.Message {
	return domain.Message{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		RecipientID:    message.RecipientID,
		Content:        message.Content,
		CreatedAt:      message.At.UTC(),
	}
}
