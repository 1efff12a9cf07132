// Package search maintains a full-text index over delivered messages and
// answers conversation-scoped queries. It feeds off the fanout as a
// permanent sink, so indexing can never block or fail a send.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/blugelabs/bluge/index"
	"github.com/google/uuid"

	"mentorlink/domain"
	"mentorlink/domain/event"
)

// Result is one indexed message matching a query.
type Result struct {
	MessageID      uuid.UUID
	ConversationID domain.ConversationID
	SenderID       string
	Content        string
	At             time.Time
}

// MessageIndex buffers documents into batches; Flush applies the pending
// batch. A batch is also applied automatically once it reaches batchSize.
type MessageIndex struct {
	log       *slog.Logger
	writer    *bluge.Writer
	batchSize int

	mu      sync.Mutex
	batch   *index.Batch
	pending int
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger, batchSize int) *MessageIndex {
	return &MessageIndex{
		log:       log,
		writer:    writer,
		batchSize: batchSize,
		batch:     bluge.NewBatch(),
	}
}

// Consume indexes message events and ignores everything else. It
// implements the fanout's sink contract.
func (idx *MessageIndex) Consume(_ context.Context, e event.ChannelEvent) error {
	message, ok := e.(event.NewMessage)
	if !ok {
		return nil
	}

	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField("conversation_id", string(message.ConversationID)).StoreValue()).
		AddField(bluge.NewKeywordField("sender_id", message.SenderID).StoreValue()).
		AddField(bluge.NewTextField("content", message.Content).StoreValue()).
		AddField(bluge.NewDateTimeField("at", message.At).StoreValue())

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.batch.Update(doc.ID(), doc)
	idx.pending++
	if idx.pending >= idx.batchSize {
		return idx.flushLocked()
	}
	return nil
}

// Flush applies the pending batch so its documents become searchable.
func (idx *MessageIndex) Flush() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.flushLocked()
}

func (idx *MessageIndex) flushLocked() error {
	if idx.pending == 0 {
		return nil
	}
	if err := idx.writer.Batch(idx.batch); err != nil {
		return fmt.Errorf("apply index batch: %w", err)
	}
	idx.log.Debug("Applied index batch", "documents", idx.pending)
	idx.batch = bluge.NewBatch()
	idx.pending = 0
	return nil
}

// Search runs a parsed query against one conversation. Results come back
// by relevance along with the total match count.
func (idx *MessageIndex) Search(ctx context.Context, conversationID domain.ConversationID, query *Query) ([]Result, uint64, error) {
	// Apply whatever is pending so a query right after a send still sees
	// the message.
	if err := idx.Flush(); err != nil {
		return nil, 0, err
	}

	reader, err := idx.writer.Reader()
	if err != nil {
		return nil, 0, fmt.Errorf("open index reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	boolean := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(conversationID)).SetField("conversation_id")).
		AddMust(bluge.NewMatchQuery(query.Terms).SetField("content"))
	if query.From != "" {
		boolean.AddMust(bluge.NewTermQuery(query.From).SetField("sender_id"))
	}

	request := bluge.NewTopNSearch(query.Limit, boolean).WithStandardAggregations()
	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, 0, fmt.Errorf("search index: %w", err)
	}

	var results []Result
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, 0, err
		}
		if match == nil {
			break
		}

		var result Result
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				if id, parseErr := uuid.Parse(string(value)); parseErr == nil {
					result.MessageID = id
				}
			case "conversation_id":
				result.ConversationID = domain.ConversationID(value)
			case "sender_id":
				result.SenderID = string(value)
			case "content":
				result.Content = string(value)
			case "at":
				if at, parseErr := bluge.DecodeDateTime(value); parseErr == nil {
					result.At = at
				}
			}
			return true
		})
		if err != nil {
			return nil, 0, err
		}
		results = append(results, result)
	}

	return results, iterator.Aggregations().Count(), nil
}
