//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"mentorlink/domain"
	"mentorlink/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// initialization or lifecycle events, avoiding the need for manual naming
// in the Worker interface.
func GetWorkerName(w Worker) WorkerName {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return WorkerName(t.Name())
}

// ChannelID identifies one live client connection. A user with several
// open tabs holds several channel identifiers.
type ChannelID string

type EventSink interface {
	Consume(ctx context.Context, e event.ChannelEvent) error
}

// IRegistry owns the channel-to-user map and conversation subscriptions.
// The raw maps are never exposed to callers.
type IRegistry interface {
	Register(handle ChannelID, userID string, sink EventSink)
	Unregister(handle ChannelID)
	Subscribe(handle ChannelID, conversationID domain.ConversationID)
	Unsubscribe(handle ChannelID)
	SinksForUser(userID string) []EventSink
	SinksForConversation(conversationID domain.ConversationID, exceptUserID string) []EventSink
	AllSinks() []EventSink
	Selected(handle ChannelID) (string, domain.ConversationID, bool)
}

// IPresence tracks which users currently hold at least one open channel.
type IPresence interface {
	Connect(userID string, handle ChannelID) bool
	Disconnect(handle ChannelID) (string, bool)
	Snapshot() []string
}
