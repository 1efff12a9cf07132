// Package ws exposes the messaging core over HTTP and websocket. Account
// and message operations are plain HTTP so callers get synchronous
// verdicts; the events channel is a websocket carrying the closed event
// set plus inbound control frames.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"mentorlink/auth"
	"mentorlink/contract"
	"mentorlink/domain"
	apperrors "mentorlink/errors"
	"mentorlink/observability"
	"mentorlink/search"
	"mentorlink/services"
)

// Searcher is the slice of the search index the HTTP layer needs.
type Searcher interface {
	Search(ctx context.Context, conversationID domain.ConversationID, query *search.Query) ([]search.Result, uint64, error)
}

type Server struct {
	log           *slog.Logger
	messaging     services.IMessagingService
	accounts      services.IAuthService
	upgrader      websocket.Upgrader
	channelBuffer int
	writeTimeout  time.Duration
	monitoring    *observability.MonitoringManager
	searcher      Searcher
}

func NewServer(log *slog.Logger, messaging services.IMessagingService,
	accounts services.IAuthService, channelBuffer int, writeTimeout time.Duration) *Server {
	return &Server{
		log:       log,
		messaging: messaging,
		accounts:  accounts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		channelBuffer: channelBuffer,
		writeTimeout:  writeTimeout,
	}
}

// WithMonitoring attaches the metrics manager. Optional; a nil manager
// simply disables counting.
func (s *Server) WithMonitoring(monitoring *observability.MonitoringManager) *Server {
	s.monitoring = monitoring
	return s
}

// WithSearch enables the message search route. Optional; without it the
// route answers 501.
func (s *Server) WithSearch(searcher Searcher) *Server {
	s.searcher = searcher
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("GET /api/users", s.withAuth(s.handleDirectory))
	mux.HandleFunc("POST /api/messages", s.withAuth(s.handleSendMessage))
	mux.HandleFunc("GET /api/messages", s.withAuth(s.handleHistory))
	mux.HandleFunc("GET /api/search", s.withAuth(s.handleSearch))
	mux.HandleFunc("GET /api/online", s.withAuth(s.handleOnline))
	mux.HandleFunc("GET /ws", s.handleChannel)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

type authedHandler func(w http.ResponseWriter, r *http.Request, claims *auth.CustomClaims)

// withAuth resolves the bearer token before the handler runs. No operation
// past this point ever sees an unauthenticated request.
func (s *Server) withAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.authenticate(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		next(w, r, claims)
	}
}

func (s *Server) authenticate(r *http.Request) (*auth.CustomClaims, error) {
	token := ""
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if token == "" {
		// Browsers cannot set headers on websocket dials.
		token = r.URL.Query().Get("token")
	}
	claims, err := s.accounts.Identify(token)
	if err != nil && s.monitoring != nil {
		s.monitoring.IncrAuthFailures()
	}
	return claims, err
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	token, err := s.accounts.Register(services.RegisterCommand{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Role:        domain.Role(req.Role),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"token": string(token)})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	token, err := s.accounts.Login(req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"token": string(token)})
}

type directoryUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func (s *Server) handleDirectory(w http.ResponseWriter, _ *http.Request, claims *auth.CustomClaims) {
	users, err := s.accounts.Directory()
	if err != nil {
		s.writeError(w, err)
		return
	}
	// The caller picks a peer from this list; itself is not a valid peer.
	users = lo.Filter(users, func(u domain.User, _ int) bool {
		return u.ID != claims.UserID
	})
	s.writeJSON(w, http.StatusOK, lo.Map(users, func(u domain.User, _ int) directoryUser {
		return directoryUser{ID: u.ID, DisplayName: u.DisplayName, Role: string(u.Role)}
	}))
}

// handleOnline serves the presence snapshot for callers without a live
// channel; connected channels receive it as their first event instead.
func (s *Server) handleOnline(w http.ResponseWriter, _ *http.Request, _ *auth.CustomClaims) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"online": s.messaging.OnlineUsers()})
}

type sendMessageRequest struct {
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
}

type messageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	RecipientID    string    `json:"recipient_id"`
	Content        string    `json:"content"`
	At             time.Time `json:"at"`
}

// handleSendMessage accepts a message over plain HTTP. The response is the
// synchronous verdict: 201 means validated and persisted, anything else
// means the caller must not display the message as sent. Live delivery to
// the recipient happens on the events channel afterwards.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, claims *auth.CustomClaims) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	message, err := s.messaging.SendMessage(r.Context(), domain.SendMessageCommand{
		SenderID:    claims.UserID,
		RecipientID: req.RecipientID,
		Content:     req.Content,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toMessageResponse(message))
}

type historyResponse struct {
	Messages []messageResponse `json:"messages"`
	Cursor   *string           `json:"cursor,omitempty"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, claims *auth.CustomClaims) {
	peerID := r.URL.Query().Get("peer")
	conversationID, err := domain.NewConversationID(claims.UserID, peerID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var cursor *string
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor = &raw
	}

	messages, next, err := s.messaging.History(domain.HistoryCommand{
		ConversationID: conversationID,
		Cursor:         cursor,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, historyResponse{
		Messages: lo.Map(messages, func(m domain.Message, _ int) messageResponse {
			return toMessageResponse(m)
		}),
		Cursor: next,
	})
}

type searchResult struct {
	MessageID string    `json:"message_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	At        time.Time `json:"at"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
	Total   uint64         `json:"total"`
}

// handleSearch runs a full-text query scoped to one conversation. The
// conversation is derived from the caller and the peer, so a user can
// never search a conversation it does not belong to.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, claims *auth.CustomClaims) {
	if s.searcher == nil {
		http.Error(w, "search is not enabled", http.StatusNotImplemented)
		return
	}

	conversationID, err := domain.NewConversationID(claims.UserID, r.URL.Query().Get("peer"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	query := search.NewQuery(r.URL.Query().Get("q"))
	results, total, err := s.searcher.Search(r.Context(), conversationID, query)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, searchResponse{
		Results: lo.Map(results, func(res search.Result, _ int) searchResult {
			return searchResult{
				MessageID: res.MessageID.String(),
				SenderID:  res.SenderID,
				Content:   res.Content,
				At:        res.At,
			}
		}),
		Total: total,
	})
}

// handleChannel authenticates, upgrades, and runs the two pumps of one
// events channel. Authentication happens before the upgrade so an invalid
// token is refused with a plain 401 and never holds a socket.
func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	handle := contract.ChannelID(uuid.NewString())
	sink := NewChannelSink(s.log, s.channelBuffer, s.monitoring)
	s.messaging.OpenChannel(r.Context(), claims.UserID, handle, sink)
	s.log.Info(fmt.Sprintf("Channel %s opened for user %s", handle, claims.UserID))

	done := make(chan struct{})
	go s.writePump(conn, sink, done)

	s.readPump(conn, handle)

	// Read pump exit means the client went away: tear everything down. A
	// second Detach from any other path is a no-op.
	s.messaging.CloseChannel(handle)
	close(done)
	_ = conn.Close()
	s.log.Info(fmt.Sprintf("Channel %s closed for user %s", handle, claims.UserID))
}

func (s *Server) writePump(conn *websocket.Conn, sink *ChannelSink, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case evt := <-sink.Events():
			data, err := EncodeEvent(evt)
			if err != nil {
				s.log.Error("Failed to encode event", "kind", evt.Kind(), "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Warn("Failed to push event to channel", "error", err)
				return
			}
		}
	}
}

func (s *Server) readPump(conn *websocket.Conn, handle contract.ChannelID) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := DecodeFrame(data)
		if err != nil {
			s.log.Warn("Ignoring malformed client frame", "handle", handle, "error", err)
			continue
		}

		switch frame.Type {
		case FrameSelectConversation:
			if _, err := s.messaging.SelectConversation(handle, frame.PeerID); err != nil {
				s.log.Warn("Rejected conversation selection", "handle", handle, "error", err)
			}
		case FrameDeselect:
			s.messaging.Deselect(handle)
		case FrameTyping:
			if err := s.messaging.Typing(handle); err != nil {
				s.log.Debug("Dropped typing frame", "handle", handle, "error", err)
			}
		case FrameStopTyping:
			if err := s.messaging.StopTyping(handle); err != nil {
				s.log.Debug("Dropped stop typing frame", "handle", handle, "error", err)
			}
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write response", "error", err)
	}
}

// writeError maps domain errors onto HTTP statuses. Credentials failures
// all collapse onto 401 so the body never reveals whether the account
// exists.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var persistence *apperrors.PersistenceError
	switch {
	case errors.Is(err, apperrors.ErrMissingToken),
		errors.Is(err, apperrors.ErrInvalidToken),
		errors.Is(err, apperrors.ErrInvalidCredentials):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, apperrors.ErrSelfMessage),
		errors.Is(err, apperrors.ErrSelfConversation),
		errors.Is(err, apperrors.ErrEmptyContent),
		errors.Is(err, apperrors.ErrEmptyUserID),
		errors.Is(err, apperrors.ErrInvalidPassword):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &persistence):
		http.Error(w, "message could not be stored", http.StatusInternalServerError)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toMessageResponse(m domain.Message) messageResponse {
	return messageResponse{
		ID:             m.ID.String(),
		ConversationID: string(m.ConversationID),
		SenderID:       m.SenderID,
		RecipientID:    m.RecipientID,
		Content:        m.Content,
		At:             m.CreatedAt,
	}
}
