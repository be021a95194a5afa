package services

import (
	"context"
	"sync"

	"github.com/Ananth-NQI/whatsapp-relay/internal/models"
	"github.com/Ananth-NQI/whatsapp-relay/internal/storage"
)

type fakeAI struct {
	mu      sync.Mutex
	calls   int
	inbound []string
	history [][]models.Message
	reply   func(ctx context.Context, text string, history []models.Message) (string, error)
}

func (f *fakeAI) GenerateReply(ctx context.Context, text string, history []models.Message) (string, error) {
	f.mu.Lock()
	f.calls++
	f.inbound = append(f.inbound, text)
	f.history = append(f.history, history)
	f.mu.Unlock()
	if f.reply == nil {
		return "Olá! Como posso ajudar?", nil
	}
	return f.reply(ctx, text, history)
}

func (f *fakeAI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sentMessage struct {
	To   string
	Text string
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeMessenger) Send(ctx context.Context, to, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{To: to, Text: text})
	if f.err != nil {
		return "", f.err
	}
	return "SM-fake", nil
}

func (f *fakeMessenger) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

// faultyStore wraps a working store and fails selected operations
type faultyStore struct {
	storage.Store
	appendErr  func(sender models.Sender) error
	infoErr    error
	historyErr error
}

func (s *faultyStore) AppendMessage(ctx context.Context, id uint, sender models.Sender, text string, mediaURL *string) (*models.Message, error) {
	if s.appendErr != nil {
		if err := s.appendErr(sender); err != nil {
			return nil, err
		}
	}
	return s.Store.AppendMessage(ctx, id, sender, text, mediaURL)
}

func (s *faultyStore) GetConversationInfo(ctx context.Context, id uint) (*models.ConversationInfo, error) {
	if s.infoErr != nil {
		return nil, s.infoErr
	}
	return s.Store.GetConversationInfo(ctx, id)
}

func (s *faultyStore) RecentMessages(ctx context.Context, id uint, limit int) ([]models.Message, error) {
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return s.Store.RecentMessages(ctx, id, limit)
}
