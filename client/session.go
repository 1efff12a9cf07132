// Package client implements the user-facing side of the messaging system:
// a session controller driving one events channel, and the HTTP transport
// behind it. UIs (terminal, tests) consume the controller through hooks
// and never touch the wire directly.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"mentorlink/domain"
	"mentorlink/domain/event"
	"mentorlink/errors"
	"mentorlink/infrastructure/ws"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StatePeerSelected State = "peer_selected"
)

// Channel is one live events channel. The concrete implementation dials a
// websocket; tests substitute an in-memory pair.
type Channel interface {
	Events() <-chan event.ChannelEvent
	Send(frame ws.ClientFrame) error
	Close() error
}

// ChannelFactory dials the events channel with a session credential.
type ChannelFactory func(ctx context.Context, token string) (Channel, error)

// Messenger covers the synchronous message operations of the transport.
type Messenger interface {
	SendMessage(ctx context.Context, token, recipientID, content string) (domain.Message, error)
	History(ctx context.Context, token, peerID string, cursor *string) ([]domain.Message, *string, error)
}

// Hooks receive session updates. They are invoked from the session's event
// loop goroutine; a nil hook is skipped.
type Hooks struct {
	OnMessage        func(message domain.Message)
	OnPresenceChange func(online []string)
	OnTyping         func(userID string, typing bool)
}

// Session is the client-side controller. It owns the connection state
// machine, the active conversation, the known online set and the typing
// sequence bookkeeping.
type Session struct {
	log       *slog.Logger
	dial      ChannelFactory
	messenger Messenger
	hooks     Hooks

	mu                 sync.Mutex
	state              State
	token              string
	userID             string
	channel            Channel
	activePeer         string
	activeConversation domain.ConversationID
	online             map[string]struct{}
	typingSeq          map[string]uint64
	done               chan struct{}
	loopExited         chan struct{}
}

func NewSession(log *slog.Logger, dial ChannelFactory, messenger Messenger, hooks Hooks) *Session {
	return &Session{
		log:       log,
		dial:      dial,
		messenger: messenger,
		hooks:     hooks,
		state:     StateDisconnected,
		online:    make(map[string]struct{}),
		typingSeq: make(map[string]uint64),
	}
}

// Open dials the events channel for the authenticated user and starts the
// event loop. Only a disconnected session can be opened.
func (s *Session) Open(ctx context.Context, userID, token string) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("session already open in state %s", s.state)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	channel, err := s.dial(ctx, token)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", errors.ErrNotConnected, err)
	}

	s.mu.Lock()
	s.state = StateConnected
	s.token = token
	s.userID = userID
	s.channel = channel
	s.done = make(chan struct{})
	s.loopExited = make(chan struct{})
	s.mu.Unlock()

	go s.loop(channel, s.done, s.loopExited)
	return nil
}

// Close tears the channel down and resets all live state. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	channel := s.channel
	done := s.done
	loopExited := s.loopExited
	s.reset()
	s.mu.Unlock()

	close(done)
	err := channel.Close()
	<-loopExited
	return err
}

// reset drops everything tied to one connection. Caller holds the mutex.
func (s *Session) reset() {
	s.state = StateDisconnected
	s.token = ""
	s.userID = ""
	s.channel = nil
	s.activePeer = ""
	s.activeConversation = ""
	s.online = make(map[string]struct{})
	s.typingSeq = make(map[string]uint64)
}

// SelectPeer scopes the session to the conversation with peerID and
// returns its first page of history, oldest first. A previous selection is
// torn down before the new one takes effect, so no event of the old
// conversation can reach the hooks once this returns. On any error the
// session falls back to Connected with no selection, never to a
// conversation whose history the caller does not have.
func (s *Session) SelectPeer(ctx context.Context, peerID string) ([]domain.Message, error) {
	s.mu.Lock()
	if s.state != StateConnected && s.state != StatePeerSelected {
		s.mu.Unlock()
		return nil, errors.ErrNotConnected
	}
	conversationID, err := domain.NewConversationID(s.userID, peerID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	channel := s.channel
	token := s.token
	s.activePeer = peerID
	s.activeConversation = conversationID
	s.state = StatePeerSelected
	s.mu.Unlock()

	if err := channel.Send(ws.ClientFrame{Type: ws.FrameSelectConversation, PeerID: peerID}); err != nil {
		s.rollbackSelection(false)
		return nil, fmt.Errorf("%w: %v", errors.ErrChannelClosed, err)
	}

	messages, _, err := s.messenger.History(ctx, token, peerID, nil)
	if err != nil {
		// The server already accepted the selection, so undo it there too.
		s.rollbackSelection(true)
		return nil, err
	}
	return messages, nil
}

// rollbackSelection undoes a selection that could not complete. The server
// is told to deselect only when the select frame already went out.
func (s *Session) rollbackSelection(notifyServer bool) {
	s.mu.Lock()
	if s.state != StatePeerSelected {
		s.mu.Unlock()
		return
	}
	channel := s.channel
	s.activePeer = ""
	s.activeConversation = ""
	s.state = StateConnected
	s.mu.Unlock()

	if notifyServer && channel != nil {
		_ = channel.Send(ws.ClientFrame{Type: ws.FrameDeselect})
	}
}

// ClearPeer leaves the current conversation. Message and typing events for
// it stop reaching the hooks as soon as this returns.
func (s *Session) ClearPeer() error {
	s.mu.Lock()
	if s.state != StatePeerSelected {
		s.mu.Unlock()
		return nil
	}
	channel := s.channel
	s.activePeer = ""
	s.activeConversation = ""
	s.state = StateConnected
	s.mu.Unlock()

	if err := channel.Send(ws.ClientFrame{Type: ws.FrameDeselect}); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrChannelClosed, err)
	}
	return nil
}

// SendMessage delivers content to the selected peer. The returned message
// carries the server-assigned identity and censored content.
func (s *Session) SendMessage(ctx context.Context, content string) (domain.Message, error) {
	s.mu.Lock()
	state, peer, token := s.state, s.activePeer, s.token
	s.mu.Unlock()

	if state == StateDisconnected || state == StateConnecting {
		return domain.Message{}, errors.ErrNotConnected
	}
	if state != StatePeerSelected {
		return domain.Message{}, errors.ErrNoPeerSelected
	}
	return s.messenger.SendMessage(ctx, token, peer, content)
}

// NotifyTyping signals the start or end of a typing burst in the selected
// conversation.
func (s *Session) NotifyTyping(typing bool) error {
	s.mu.Lock()
	state, channel := s.state, s.channel
	s.mu.Unlock()

	if state == StateDisconnected || state == StateConnecting {
		return errors.ErrNotConnected
	}
	if state != StatePeerSelected {
		return errors.ErrNoPeerSelected
	}

	frameType := ws.FrameTyping
	if !typing {
		frameType = ws.FrameStopTyping
	}
	if err := channel.Send(ws.ClientFrame{Type: frameType}); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrChannelClosed, err)
	}
	return nil
}

// Online returns the known online user identifiers, sorted.
func (s *Session) Online() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.online))
	for userID := range s.online {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// State reports the current state of the controller.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActiveConversation reports the selected conversation, empty when none.
func (s *Session) ActiveConversation() domain.ConversationID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeConversation
}

// ActivePeer reports the selected peer, empty when none.
func (s *Session) ActivePeer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activePeer
}

func (s *Session) loop(channel Channel, done <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)
	for {
		select {
		case <-done:
			return
		case evt, ok := <-channel.Events():
			if !ok {
				s.mu.Lock()
				// A server-side close while we still think we are live.
				if s.channel == channel {
					s.reset()
				}
				s.mu.Unlock()
				return
			}
			s.handle(evt)
		}
	}
}

func (s *Session) handle(evt event.ChannelEvent) {
	switch e := evt.(type) {
	case event.NewMessage:
		s.handleMessage(e)
	case event.OnlineUsers:
		s.mu.Lock()
		s.online = make(map[string]struct{}, len(e.UserIDs))
		for _, userID := range e.UserIDs {
			s.online[userID] = struct{}{}
		}
		s.mu.Unlock()
		s.notifyPresence()
	case event.UserOnline:
		s.mu.Lock()
		s.online[e.UserID] = struct{}{}
		s.mu.Unlock()
		s.notifyPresence()
	case event.UserOffline:
		s.mu.Lock()
		delete(s.online, e.UserID)
		s.mu.Unlock()
		s.notifyPresence()
	case event.UserTyping:
		s.handleTyping(e.ConversationID, e.UserID, e.Seq, true)
	case event.UserStopTyping:
		s.handleTyping(e.ConversationID, e.UserID, e.Seq, false)
	default:
		s.log.Debug(fmt.Sprintf("Ignoring event %T", evt))
	}
}

// handleMessage forwards a message to the hook only when it belongs to the
// conversation currently on screen. Messages for other conversations stay
// in the store and show up when that conversation is selected.
func (s *Session) handleMessage(e event.NewMessage) {
	s.mu.Lock()
	active := s.activeConversation
	s.mu.Unlock()

	if active == "" || e.ConversationID != active {
		return
	}
	if s.hooks.OnMessage != nil {
		s.hooks.OnMessage(domain.Message{
			ID:             e.ID,
			ConversationID: e.ConversationID,
			SenderID:       e.SenderID,
			RecipientID:    e.RecipientID,
			Content:        e.Content,
			CreatedAt:      e.At,
		})
	}
}

// handleTyping drops stale indicators: only a sequence strictly above the
// last one seen for the (conversation, user) pair may flip the state.
func (s *Session) handleTyping(conversationID domain.ConversationID, userID string, seq uint64, typing bool) {
	s.mu.Lock()
	if s.activeConversation == "" || conversationID != s.activeConversation {
		s.mu.Unlock()
		return
	}
	key := string(conversationID) + "|" + userID
	if seq <= s.typingSeq[key] {
		s.mu.Unlock()
		return
	}
	s.typingSeq[key] = seq
	s.mu.Unlock()

	if s.hooks.OnTyping != nil {
		s.hooks.OnTyping(userID, typing)
	}
}

func (s *Session) notifyPresence() {
	if s.hooks.OnPresenceChange != nil {
		s.hooks.OnPresenceChange(s.Online())
	}
}
