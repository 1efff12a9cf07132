package runtime

import (
	"sync"

	"mentorlink/contract"
	"mentorlink/domain"
)

type channelEntry struct {
	userID       string
	sink         contract.EventSink
	conversation domain.ConversationID // empty while no peer is selected
}

// Registry owns the channel-to-user map and per-channel conversation
// subscriptions. Concurrent connect/disconnect from many clients must not
// corrupt it, so every access goes through the mutex; the raw maps are
// never handed to callers.
type Registry struct {
	mu       sync.RWMutex
	channels map[contract.ChannelID]*channelEntry
	byUser   map[string]map[contract.ChannelID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[contract.ChannelID]*channelEntry),
		byUser:   make(map[string]map[contract.ChannelID]struct{}),
	}
}

// Register binds a live channel to its authenticated user.
func (r *Registry) Register(handle contract.ChannelID, userID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.channels[handle] = &channelEntry{userID: userID, sink: sink}
	if _, ok := r.byUser[userID]; !ok {
		r.byUser[userID] = make(map[contract.ChannelID]struct{})
	}
	r.byUser[userID][handle] = struct{}{}
}

// Unregister removes the channel and cleans up empty user sets so the
// registry does not leak over time.
func (r *Registry) Unregister(handle contract.ChannelID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.channels[handle]
	if !ok {
		return
	}
	delete(r.channels, handle)

	if handles, ok := r.byUser[entry.userID]; ok {
		delete(handles, handle)
		if len(handles) == 0 {
			delete(r.byUser, entry.userID)
		}
	}
}

// Subscribe scopes the channel to one conversation. Any previous
// subscription of the same channel is replaced, so switching peers can
// never leave a stale subscription behind.
func (r *Registry) Subscribe(handle contract.ChannelID, conversationID domain.ConversationID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.channels[handle]; ok {
		entry.conversation = conversationID
	}
}

// Unsubscribe clears the channel's conversation scope.
func (r *Registry) Unsubscribe(handle contract.ChannelID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.channels[handle]; ok {
		entry.conversation = ""
	}
}

// SinksForUser returns the sinks of every channel the user currently has
// open, regardless of conversation subscription. Used for directed message
// delivery and notification fan-out.
func (r *Registry) SinksForUser(userID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	var sinks []contract.EventSink
	for handle := range handles {
		if entry, exists := r.channels[handle]; exists {
			sinks = append(sinks, entry.sink)
		}
	}
	return sinks
}

// SinksForConversation returns the sinks of channels currently subscribed
// to the conversation, excluding every channel of exceptUserID. Used for
// typing signals, which must never reach channels scoped to another
// conversation.
func (r *Registry) SinksForConversation(conversationID domain.ConversationID, exceptUserID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sinks []contract.EventSink
	for _, entry := range r.channels {
		if entry.conversation != conversationID {
			continue
		}
		if entry.userID == exceptUserID {
			continue
		}
		sinks = append(sinks, entry.sink)
	}
	return sinks
}

// AllSinks returns every connected channel's sink, used for presence
// broadcasts.
func (r *Registry) AllSinks() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make([]contract.EventSink, 0, len(r.channels))
	for _, entry := range r.channels {
		sinks = append(sinks, entry.sink)
	}
	return sinks
}

// Selected reports the owning user and current conversation of a channel.
func (r *Registry) Selected(handle contract.ChannelID) (string, domain.ConversationID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.channels[handle]
	if !ok {
		return "", "", false
	}
	return entry.userID, entry.conversation, true
}
