package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"mentorlink/auth"
	"mentorlink/domain"
	"mentorlink/domain/event"
	apperrors "mentorlink/errors"
	"mentorlink/infrastructure/ws"
)

// Transport talks to the server over HTTP and dials the websocket events
// channel. It implements Messenger and provides the ChannelFactory for a
// Session.
type Transport struct {
	log     *slog.Logger
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer
}

func NewTransport(log *slog.Logger, baseURL string, timeout time.Duration) *Transport {
	return &Transport{
		log:     log,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		dialer:  websocket.DefaultDialer,
	}
}

// Credentials is what Login hands back: the bearer token plus the identity
// extracted from its claims.
type Credentials struct {
	Token       string
	UserID      string
	DisplayName string
}

func (t *Transport) Register(ctx context.Context, email, password, displayName string, role domain.Role) (Credentials, error) {
	payload := map[string]string{
		"email":        email,
		"password":     password,
		"display_name": displayName,
		"role":         string(role),
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := t.post(ctx, "/api/register", "", payload, &resp); err != nil {
		return Credentials{}, err
	}
	return t.toCredentials(resp.Token)
}

func (t *Transport) Login(ctx context.Context, email, password string) (Credentials, error) {
	payload := map[string]string{"email": email, "password": password}
	var resp struct {
		Token string `json:"token"`
	}
	if err := t.post(ctx, "/api/login", "", payload, &resp); err != nil {
		return Credentials{}, err
	}
	return t.toCredentials(resp.Token)
}

// toCredentials reads the identity claims out of the token without
// verifying the signature; only the server holds the secret, the client
// just needs to know who it is.
func (t *Transport) toCredentials(token string) (Credentials, error) {
	claims := &auth.CustomClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}
	return Credentials{
		Token:       token,
		UserID:      claims.UserID,
		DisplayName: claims.DisplayName,
	}, nil
}

type directoryEntry struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func (t *Transport) Directory(ctx context.Context, token string) ([]domain.User, error) {
	var resp []directoryEntry
	if err := t.get(ctx, "/api/users", token, &resp); err != nil {
		return nil, err
	}
	return lo.Map(resp, func(u directoryEntry, _ int) domain.User {
		return domain.User{ID: u.ID, DisplayName: u.DisplayName, Role: domain.Role(u.Role)}
	}), nil
}

type wireMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	RecipientID    string    `json:"recipient_id"`
	Content        string    `json:"content"`
	At             time.Time `json:"at"`
}

func (t *Transport) SendMessage(ctx context.Context, token, recipientID, content string) (domain.Message, error) {
	payload := map[string]string{"recipient_id": recipientID, "content": content}
	var resp wireMessage
	if err := t.post(ctx, "/api/messages", token, payload, &resp); err != nil {
		return domain.Message{}, err
	}
	return toDomainMessage(resp)
}

func (t *Transport) History(ctx context.Context, token, peerID string, cursor *string) ([]domain.Message, *string, error) {
	path := "/api/messages?peer=" + url.QueryEscape(peerID)
	if cursor != nil {
		path += "&cursor=" + url.QueryEscape(*cursor)
	}
	var resp struct {
		Messages []wireMessage `json:"messages"`
		Cursor   *string       `json:"cursor"`
	}
	if err := t.get(ctx, path, token, &resp); err != nil {
		return nil, nil, err
	}

	messages := make([]domain.Message, 0, len(resp.Messages))
	for _, wire := range resp.Messages {
		message, err := toDomainMessage(wire)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, message)
	}
	return messages, resp.Cursor, nil
}

// SearchResult is one match from a conversation search.
type SearchResult struct {
	MessageID string
	SenderID  string
	Content   string
	At        time.Time
}

type wireSearchResult struct {
	MessageID string    `json:"message_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	At        time.Time `json:"at"`
}

// Search runs a full-text query against the conversation with peerID. The
// raw query supports the "--from <user>" and "--limit <n>" flags.
func (t *Transport) Search(ctx context.Context, token, peerID, rawQuery string) ([]SearchResult, uint64, error) {
	path := "/api/search?peer=" + url.QueryEscape(peerID) + "&q=" + url.QueryEscape(rawQuery)
	var resp struct {
		Results []wireSearchResult `json:"results"`
		Total   uint64             `json:"total"`
	}
	if err := t.get(ctx, path, token, &resp); err != nil {
		return nil, 0, err
	}
	results := lo.Map(resp.Results, func(r wireSearchResult, _ int) SearchResult {
		return SearchResult{MessageID: r.MessageID, SenderID: r.SenderID, Content: r.Content, At: r.At}
	})
	return results, resp.Total, nil
}

// DialChannel opens the websocket events channel. It satisfies
// ChannelFactory.
func (t *Transport) DialChannel(ctx context.Context, token string) (Channel, error) {
	wsURL := "ws" + strings.TrimPrefix(t.baseURL, "http") + "/ws?token=" + url.QueryEscape(token)
	conn, _, err := t.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}

	channel := &wsChannel{
		log:    t.log,
		conn:   conn,
		events: make(chan event.ChannelEvent, 64),
	}
	go channel.readLoop()
	return channel, nil
}

// wsChannel adapts one websocket connection to the Channel interface.
type wsChannel struct {
	log    *slog.Logger
	conn   *websocket.Conn
	events chan event.ChannelEvent
}

func (c *wsChannel) Events() <-chan event.ChannelEvent {
	return c.events
}

func (c *wsChannel) Send(frame ws.ClientFrame) error {
	data, err := ws.EncodeFrame(frame)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsChannel) Close() error {
	return c.conn.Close()
}

func (c *wsChannel) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		evt, err := ws.DecodeEvent(data)
		if err != nil {
			c.log.Warn("Dropping undecodable event", "error", err)
			continue
		}
		c.events <- evt
	}
}

func (t *Transport) post(ctx context.Context, path, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(req, token, out)
}

func (t *Transport) get(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
	if err != nil {
		return err
	}
	return t.do(req, token, out)
}

func (t *Transport) do(req *http.Request, token string, out any) error {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrNotConnected, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return mapStatus(resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// mapStatus turns an HTTP failure back into the domain's error taxonomy so
// callers of the client never branch on status codes.
func mapStatus(status int, detail string) error {
	switch status {
	case http.StatusUnauthorized:
		return apperrors.ErrInvalidCredentials
	case http.StatusConflict:
		return apperrors.ErrUserAlreadyExists
	case http.StatusBadRequest:
		return fmt.Errorf("rejected: %s", detail)
	}
	return fmt.Errorf("server answered %d: %s", status, detail)
}

func toDomainMessage(wire wireMessage) (domain.Message, error) {
	id, err := uuid.Parse(wire.ID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("malformed message id %q: %w", wire.ID, err)
	}
	return domain.Message{
		ID:             id,
		ConversationID: domain.ConversationID(wire.ConversationID),
		SenderID:       wire.SenderID,
		RecipientID:    wire.RecipientID,
		Content:        wire.Content,
		CreatedAt:      wire.At,
	}, nil
}
