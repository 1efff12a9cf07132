package services

import (
	"context"

	"mentorlink/contract"
	"mentorlink/domain"
	"mentorlink/runtime"
)

type IMessagingService interface {
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	History(cmd domain.HistoryCommand) ([]domain.Message, *string, error)
	OpenChannel(ctx context.Context, userID string, handle contract.ChannelID, sink contract.EventSink)
	CloseChannel(handle contract.ChannelID)
	SelectConversation(handle contract.ChannelID, peerID string) (domain.ConversationID, error)
	Deselect(handle contract.ChannelID)
	Typing(handle contract.ChannelID) error
	StopTyping(handle contract.ChannelID) error
	OnlineUsers() []string
}

// MessagingService is the transport-facing facade over the orchestrator.
// It keeps handlers free of any knowledge of the registry or the store.
type MessagingService struct {
	orchestrator *runtime.Orchestrator
}

func NewMessagingService(o *runtime.Orchestrator) *MessagingService {
	return &MessagingService{orchestrator: o}
}

func (s *MessagingService) SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	return s.orchestrator.SendMessage(ctx, cmd)
}

func (s *MessagingService) History(cmd domain.HistoryCommand) ([]domain.Message, *string, error) {
	return s.orchestrator.History(cmd)
}

func (s *MessagingService) OpenChannel(ctx context.Context, userID string, handle contract.ChannelID, sink contract.EventSink) {
	s.orchestrator.Attach(ctx, userID, handle, sink)
}

func (s *MessagingService) CloseChannel(handle contract.ChannelID) {
	s.orchestrator.Detach(handle)
}

func (s *MessagingService) SelectConversation(handle contract.ChannelID, peerID string) (domain.ConversationID, error) {
	return s.orchestrator.SelectConversation(handle, peerID)
}

func (s *MessagingService) Deselect(handle contract.ChannelID) {
	s.orchestrator.Deselect(handle)
}

func (s *MessagingService) Typing(handle contract.ChannelID) error {
	return s.orchestrator.Typing(handle)
}

func (s *MessagingService) StopTyping(handle contract.ChannelID) error {
	return s.orchestrator.StopTyping(handle)
}

func (s *MessagingService) OnlineUsers() []string {
	return s.orchestrator.OnlineUsers()
}
