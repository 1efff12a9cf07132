package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"mentorlink/auth"
	"mentorlink/contract"
	"mentorlink/domain"
	"mentorlink/domain/event"
	apperrors "mentorlink/errors"
	"mentorlink/search"
	"mentorlink/services"
)

type fakeMessaging struct {
	mu         sync.Mutex
	sendErr    error
	sent       []domain.SendMessageCommand
	history    []domain.Message
	sinks      map[contract.ChannelID]contract.EventSink
	selected   []string
	deselected int
	typing     int
	stopTyping int
	closed     []contract.ChannelID
}

func newFakeMessaging() *fakeMessaging {
	return &fakeMessaging{sinks: make(map[contract.ChannelID]contract.EventSink)}
}

func (f *fakeMessaging) SendMessage(_ context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return domain.Message{}, f.sendErr
	}
	f.sent = append(f.sent, cmd)
	return domain.NewMessage(cmd.SenderID, cmd.RecipientID, cmd.Content, cmd.CreatedAt)
}

func (f *fakeMessaging) History(domain.HistoryCommand) ([]domain.Message, *string, error) {
	return f.history, nil, nil
}

func (f *fakeMessaging) OpenChannel(_ context.Context, _ string, handle contract.ChannelID, sink contract.EventSink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks[handle] = sink
}

func (f *fakeMessaging) CloseChannel(handle contract.ChannelID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, handle)
}

func (f *fakeMessaging) SelectConversation(_ contract.ChannelID, peerID string) (domain.ConversationID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = append(f.selected, peerID)
	return "u1_u2", nil
}

func (f *fakeMessaging) Deselect(contract.ChannelID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deselected++
}

func (f *fakeMessaging) Typing(contract.ChannelID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
	return nil
}

func (f *fakeMessaging) StopTyping(contract.ChannelID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopTyping++
	return nil
}

func (f *fakeMessaging) OnlineUsers() []string {
	return []string{"u1"}
}

func (f *fakeMessaging) onlySink() contract.EventSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sink := range f.sinks {
		return sink
	}
	return nil
}

// fakeAccounts accepts the single token "valid-token" as user u1.
type fakeAccounts struct{}

func (fakeAccounts) Register(services.RegisterCommand) (services.Token, error) {
	return "valid-token", nil
}

func (fakeAccounts) Login(string, string) (services.Token, error) {
	return "valid-token", nil
}

func (fakeAccounts) Identify(token string) (*auth.CustomClaims, error) {
	switch token {
	case "":
		return nil, apperrors.ErrMissingToken
	case "valid-token":
		return &auth.CustomClaims{UserID: "u1", DisplayName: "Alice", Role: "mentor"}, nil
	}
	return nil, apperrors.ErrInvalidToken
}

func (fakeAccounts) Directory() ([]domain.User, error) {
	return []domain.User{
		{ID: "u1", DisplayName: "Alice", Role: domain.RoleMentor},
		{ID: "u2", DisplayName: "Bob", Role: domain.RoleStudent},
	}, nil
}

func newTestServer(t *testing.T, messaging *fakeMessaging) *httptest.Server {
	t.Helper()
	server := NewServer(logs.GetLoggerFromLevel(slog.LevelDebug), messaging, fakeAccounts{}, 16, time.Second)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestServer_SendMessage(t *testing.T) {
	t.Run("should persist and answer 201 when valid", func(t *testing.T) {
		req := require.New(t)
		messaging := newFakeMessaging()
		ts := newTestServer(t, messaging)

		resp := postJSON(t, ts.URL+"/api/messages", "valid-token",
			`{"recipient_id":"u2","content":"hello"}`)

		req.Equal(http.StatusCreated, resp.StatusCode)
		req.Len(messaging.sent, 1)
		req.Equal("u1", messaging.sent[0].SenderID)
		req.Equal("u2", messaging.sent[0].RecipientID)
	})

	t.Run("should answer 401 without a token", func(t *testing.T) {
		req := require.New(t)
		messaging := newFakeMessaging()
		ts := newTestServer(t, messaging)

		resp := postJSON(t, ts.URL+"/api/messages", "",
			`{"recipient_id":"u2","content":"hello"}`)

		req.Equal(http.StatusUnauthorized, resp.StatusCode)
		req.Empty(messaging.sent)
	})

	t.Run("should answer 400 on a validation failure", func(t *testing.T) {
		req := require.New(t)
		messaging := newFakeMessaging()
		messaging.sendErr = apperrors.ErrSelfMessage
		ts := newTestServer(t, messaging)

		resp := postJSON(t, ts.URL+"/api/messages", "valid-token",
			`{"recipient_id":"u1","content":"note to self"}`)

		req.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("should answer 500 when the store fails", func(t *testing.T) {
		req := require.New(t)
		messaging := newFakeMessaging()
		messaging.sendErr = apperrors.NewPersistenceError("append", apperrors.ErrChannelClosed)
		ts := newTestServer(t, messaging)

		resp := postJSON(t, ts.URL+"/api/messages", "valid-token",
			`{"recipient_id":"u2","content":"hello"}`)

		req.Equal(http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestServer_DirectoryExcludesCaller(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t, newFakeMessaging())

	request, err := http.NewRequest(http.MethodGet, ts.URL+"/api/users", nil)
	req.NoError(err)
	request.Header.Set("Authorization", "Bearer valid-token")
	resp, err := http.DefaultClient.Do(request)
	req.NoError(err)
	defer func() { _ = resp.Body.Close() }()

	req.Equal(http.StatusOK, resp.StatusCode)
	var users []directoryUser
	req.NoError(json.NewDecoder(resp.Body).Decode(&users))
	req.Len(users, 1)
	req.Equal("u2", users[0].ID)
}

// fakeSearcher records the scope it was queried with.
type fakeSearcher struct {
	conversation domain.ConversationID
	query        *search.Query
	results      []search.Result
}

func (f *fakeSearcher) Search(_ context.Context, conversationID domain.ConversationID, query *search.Query) ([]search.Result, uint64, error) {
	f.conversation = conversationID
	f.query = query
	return f.results, uint64(len(f.results)), nil
}

func TestServer_Search(t *testing.T) {
	getSearch := func(t *testing.T, ts *httptest.Server, token, rawQuery string) *http.Response {
		t.Helper()
		request, err := http.NewRequest(http.MethodGet,
			ts.URL+"/api/search?peer=u2&q="+url.QueryEscape(rawQuery), nil)
		require.NoError(t, err)
		if token != "" {
			request.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(request)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	t.Run("should scope the query to the caller's conversation", func(t *testing.T) {
		req := require.New(t)
		searcher := &fakeSearcher{results: []search.Result{{
			MessageID: uuid.New(), SenderID: "u2", Content: "about the invoice", At: time.Now().UTC(),
		}}}
		server := NewServer(logs.GetLoggerFromLevel(slog.LevelDebug),
			newFakeMessaging(), fakeAccounts{}, 16, time.Second).WithSearch(searcher)
		ts := httptest.NewServer(server.Handler())
		t.Cleanup(ts.Close)

		resp := getSearch(t, ts, "valid-token", `/find "invoice" --from u2`)

		req.Equal(http.StatusOK, resp.StatusCode)
		req.Equal(domain.ConversationID("u1_u2"), searcher.conversation)
		req.Equal("invoice", searcher.query.Terms)
		req.Equal("u2", searcher.query.From)

		var body searchResponse
		req.NoError(json.NewDecoder(resp.Body).Decode(&body))
		req.Len(body.Results, 1)
		req.Equal(uint64(1), body.Total)
		req.Equal("about the invoice", body.Results[0].Content)
	})

	t.Run("should answer 501 when search is not wired", func(t *testing.T) {
		req := require.New(t)
		ts := newTestServer(t, newFakeMessaging())

		resp := getSearch(t, ts, "valid-token", "anything")

		req.Equal(http.StatusNotImplemented, resp.StatusCode)
	})
}

func TestServer_ChannelLifecycle(t *testing.T) {
	req := require.New(t)
	messaging := newFakeMessaging()
	ts := newTestServer(t, messaging)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=valid-token"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	req.NoError(err)
	defer func() { _ = conn.Close() }()

	// The channel is registered with a sink the fanout can reach.
	req.Eventually(func() bool { return messaging.onlySink() != nil },
		time.Second, 5*time.Millisecond)

	// An event consumed by the sink reaches the client as an envelope.
	messageID := uuid.New()
	err = messaging.onlySink().Consume(context.Background(), event.NewMessage{
		ID:             messageID,
		ConversationID: "u1_u2",
		SenderID:       "u2",
		RecipientID:    "u1",
		Content:        "hi there",
		At:             time.Now().UTC(),
	})
	req.NoError(err)

	req.NoError(conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	req.NoError(err)
	decoded, err := DecodeEvent(data)
	req.NoError(err)
	received, ok := decoded.(event.NewMessage)
	req.True(ok)
	req.Equal(messageID, received.ID)
	req.Equal("hi there", received.Content)

	// Control frames reach the messaging facade.
	frame, _ := EncodeFrame(ClientFrame{Type: FrameSelectConversation, PeerID: "u2"})
	req.NoError(conn.WriteMessage(websocket.TextMessage, frame))
	frame, _ = EncodeFrame(ClientFrame{Type: FrameTyping})
	req.NoError(conn.WriteMessage(websocket.TextMessage, frame))
	frame, _ = EncodeFrame(ClientFrame{Type: FrameStopTyping})
	req.NoError(conn.WriteMessage(websocket.TextMessage, frame))
	frame, _ = EncodeFrame(ClientFrame{Type: FrameDeselect})
	req.NoError(conn.WriteMessage(websocket.TextMessage, frame))

	req.Eventually(func() bool {
		messaging.mu.Lock()
		defer messaging.mu.Unlock()
		return len(messaging.selected) == 1 && messaging.typing == 1 &&
			messaging.stopTyping == 1 && messaging.deselected == 1
	}, time.Second, 5*time.Millisecond)

	// Closing the socket tears the channel down.
	req.NoError(conn.Close())
	req.Eventually(func() bool {
		messaging.mu.Lock()
		defer messaging.mu.Unlock()
		return len(messaging.closed) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestServer_ChannelRefusesBadToken(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t, newFakeMessaging())

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}
