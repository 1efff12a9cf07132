package runtime

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"mentorlink/contract"
	"mentorlink/domain"
	"mentorlink/domain/event"
	"mentorlink/errors"
	"mentorlink/moderation"
	"mentorlink/repositories"
	"mentorlink/runtime/workers"
)

//go:embed censored/*
var censoredFolder embed.FS

// Orchestrator wires presence, the channel registry, moderation, the
// message store and the fanout worker together. Transports (websocket
// server, terminal client over the loopback) talk to it exclusively; they
// never reach into the registry or the store directly.
type Orchestrator struct {
	mu              sync.Mutex
	log             *slog.Logger
	supervisor      contract.ISupervisor
	registry        contract.IRegistry
	presence        contract.IPresence
	messages        repositories.IMessageRepository
	moderator       *moderation.Moderator
	events          chan event.ChannelEvent
	permanentSinks  []contract.EventSink
	sinkTimeout     time.Duration
	charReplacement rune

	typingMu  sync.Mutex
	typingSeq map[string]uint64
}

func NewOrchestrator(log *slog.Logger, supervisor *workers.Supervisor,
	registry *Registry, presence *Presence, messages repositories.IMessageRepository,
	bufferSize int, sinkTimeout time.Duration, charReplacement rune) *Orchestrator {
	return &Orchestrator{
		log:             log,
		supervisor:      supervisor,
		registry:        registry,
		presence:        presence,
		messages:        messages,
		events:          make(chan event.ChannelEvent, bufferSize),
		sinkTimeout:     sinkTimeout,
		charReplacement: charReplacement,
		typingSeq:       make(map[string]uint64),
	}
}

// Add appends permanent sinks (search index, telemetry) that consume every
// routed event. Must be called before Start.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// Attach registers an authenticated channel: the registry learns its sink,
// presence counts it, and the channel is seeded with the current online
// set. When it is the user's first channel, everyone is told the user came
// online.
func (o *Orchestrator) Attach(ctx context.Context, userID string, handle contract.ChannelID, sink contract.EventSink) {
	o.registry.Register(handle, userID, sink)
	first := o.presence.Connect(userID, handle)

	// Seed before any incremental presence event can race past this channel.
	seedCtx, cancel := context.WithTimeout(ctx, o.sinkTimeout)
	defer cancel()
	if err := sink.Consume(seedCtx, event.OnlineUsers{UserIDs: o.presence.Snapshot()}); err != nil {
		o.log.Warn("Failed to seed channel with online users", "handle", handle, "error", err)
	}

	if first {
		o.Emit(event.UserOnline{UserID: userID})
	}
}

// Detach unregisters the channel. Safe to call more than once for the same
// handle, which the abnormal termination path relies on.
func (o *Orchestrator) Detach(handle contract.ChannelID) {
	o.registry.Unregister(handle)
	if userID, last := o.presence.Disconnect(handle); last {
		o.Emit(event.UserOffline{UserID: userID})
	}
}

// OnlineUsers returns the identifiers of users with at least one live
// channel.
func (o *Orchestrator) OnlineUsers() []string {
	return o.presence.Snapshot()
}

// SelectConversation scopes the channel to the conversation with peerID.
// Any previous selection of the same channel is replaced.
func (o *Orchestrator) SelectConversation(handle contract.ChannelID, peerID string) (domain.ConversationID, error) {
	userID, _, ok := o.registry.Selected(handle)
	if !ok {
		return "", errors.ErrNotConnected
	}
	conversationID, err := domain.NewConversationID(userID, peerID)
	if err != nil {
		return "", err
	}
	o.registry.Subscribe(handle, conversationID)
	return conversationID, nil
}

// Deselect clears the channel's conversation scope. Typing signals stop
// reaching it until the next selection.
func (o *Orchestrator) Deselect(handle contract.ChannelID) {
	o.registry.Unsubscribe(handle)
}

// SendMessage validates, censors, persists and then emits one message.
// The store write happens before any live delivery so a PersistenceError
// means no channel saw the message; validation failures are returned
// before any I/O at all.
func (o *Orchestrator) SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	message, err := domain.NewMessage(cmd.SenderID, cmd.RecipientID, cmd.Content, cmd.CreatedAt)
	if err != nil {
		return domain.Message{}, err
	}

	if censored, matched := o.censor(message.Content); len(matched) > 0 {
		o.log.Info(fmt.Sprintf("Censored %d words in message %s", len(matched), message.ID))
		message.Content = censored
	}

	if err := o.messages.StoreMessage(repositories.FromDomain(message)); err != nil {
		return domain.Message{}, err
	}

	o.Emit(event.NewMessage{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		RecipientID:    message.RecipientID,
		Content:        message.Content,
		At:             message.CreatedAt,
	})
	return message, nil
}

// History returns one page of a conversation, oldest first, and the cursor
// to resume from.
func (o *Orchestrator) History(cmd domain.HistoryCommand) ([]domain.Message, *string, error) {
	diskMessages, cursor, err := o.messages.GetMessages(cmd.ConversationID, cmd.Cursor)
	if err != nil {
		return nil, nil, err
	}
	messages := lo.Map(diskMessages, func(item repositories.DiskMessage, _ int) domain.Message {
		return repositories.ToDomain(item)
	})
	return messages, cursor, nil
}

// Typing emits a typing signal for the channel's selected conversation.
func (o *Orchestrator) Typing(handle contract.ChannelID) error {
	conversationID, userID, seq, err := o.typingState(handle)
	if err != nil {
		return err
	}
	o.Emit(event.UserTyping{ConversationID: conversationID, UserID: userID, Seq: seq})
	return nil
}

// StopTyping emits the end of a typing burst for the channel's selected
// conversation.
func (o *Orchestrator) StopTyping(handle contract.ChannelID) error {
	conversationID, userID, seq, err := o.typingState(handle)
	if err != nil {
		return err
	}
	o.Emit(event.UserStopTyping{ConversationID: conversationID, UserID: userID, Seq: seq})
	return nil
}

// typingState resolves the channel's user and conversation and advances
// the per-(conversation, user) sequence. The sequence is shared by start
// and stop so receivers can order them even across a reconnect.
func (o *Orchestrator) typingState(handle contract.ChannelID) (domain.ConversationID, string, uint64, error) {
	userID, conversationID, ok := o.registry.Selected(handle)
	if !ok {
		return "", "", 0, errors.ErrNotConnected
	}
	if conversationID == "" {
		return "", "", 0, errors.ErrNoPeerSelected
	}

	o.typingMu.Lock()
	key := string(conversationID) + "|" + userID
	o.typingSeq[key]++
	seq := o.typingSeq[key]
	o.typingMu.Unlock()

	return conversationID, userID, seq, nil
}

// Emit queues an event for fan-out without blocking the caller. A full
// queue drops the event with a warning; the store stays authoritative for
// messages, and presence and typing are transient by nature.
func (o *Orchestrator) Emit(evt event.ChannelEvent) {
	select {
	case o.events <- evt:
	default:
		o.log.Warn(fmt.Sprintf("Event channel full, dropping %s", evt.Kind()))
	}
}

func (o *Orchestrator) censor(content string) (string, []string) {
	o.mu.Lock()
	moderator := o.moderator
	o.mu.Unlock()
	if moderator == nil {
		return content, nil
	}
	return moderator.Censor(content)
}

// Start initiates the orchestrator by preparing all components (moderation,
// fanout pipeline) and then starting the supervisor. It uses a preparation
// pattern to minimize mutex locking time.
func (o *Orchestrator) Start(ctx context.Context) error {
	// 1. Preparation phase (No Lock)
	// Heavy tasks like I/O (loading files) and CPU (Aho-Corasick build) are done here.
	moderator, err := o.prepareModeration("censored", o.charReplacement)
	if err != nil {
		return err
	}
	fanoutWorker := workers.NewFanout(o.log, o.registry, o.events, o.sinkTimeout)

	// 2. Critical Section (Short Lock)
	o.mu.Lock()
	o.moderator = moderator
	fanoutWorker.Add(o.permanentSinks...)
	o.supervisor.Add(fanoutWorker)
	o.mu.Unlock()

	// 3. Execution phase (No Lock)
	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
	return nil
}

// prepareModeration loads censored words and builds the Aho-Corasick automaton.
func (o *Orchestrator) prepareModeration(path string, charReplacement rune) (*moderation.Moderator, error) {
	loader := NewCensoredLoader(censoredFolder)
	data, err := loader.LoadAll(path)
	if err != nil {
		return nil, err
	}

	o.log.Info(fmt.Sprintf("%d censored files loaded [%s]",
		len(data.Languages), strings.Join(data.Languages, ",")))
	o.log.Info(fmt.Sprintf("%d unique censored words loaded", len(data.Words)))

	moderator, err := moderation.NewModerator(data.Words, charReplacement, o.log)
	if err != nil {
		return nil, err
	}
	return &moderator, nil
}

// Stop initiates a graceful shutdown: the supervision context is canceled,
// which signals every worker to stop.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
