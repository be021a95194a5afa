package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Ananth-NQI/whatsapp-relay/internal/models"
)

// MemoryStore holds conversations in memory. Not for production: nothing
// survives a restart. All operations are serialized by a single mutex, which
// is what makes resolve-or-create and append atomic here.
type MemoryStore struct {
	mu sync.RWMutex

	conversations map[uint]*models.Conversation
	byClient      map[string]uint
	messages      map[uint][]models.Message

	// Counters for ID generation
	conversationCounter uint
	messageCounter      uint

	now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[uint]*models.Conversation),
		byClient:      make(map[string]uint),
		messages:      make(map[uint][]models.Message),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) ResolveOrCreate(ctx context.Context, clientNumber string) (*models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("resolve conversation", err)
	}
	clientNumber = strings.TrimSpace(clientNumber)
	if clientNumber == "" {
		return nil, errors.New("storage: client number is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byClient[clientNumber]; ok {
		conv := *m.conversations[id]
		return &conv, nil
	}

	m.conversationCounter++
	now := m.now()
	conv := &models.Conversation{
		ID:            m.conversationCounter,
		ClientNumber:  clientNumber,
		Mode:          models.ModeBot,
		CreatedAt:     now,
		LastMessageAt: now,
	}
	m.conversations[conv.ID] = conv
	m.byClient[clientNumber] = conv.ID

	out := *conv
	return &out, nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, conversationID uint, sender models.Sender, text string, mediaURL *string) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("append message", err)
	}
	if !sender.Valid() {
		return nil, errors.New("storage: invalid sender")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}

	ts := m.now()
	if conv.LastMessageAt.After(ts) {
		ts = conv.LastMessageAt
	}

	m.messageCounter++
	conv.LastSeq++
	conv.LastMessageAt = ts

	msg := models.Message{
		ID:             m.messageCounter,
		ConversationID: conversationID,
		Seq:            conv.LastSeq,
		Sender:         sender,
		Text:           text,
		MediaURL:       copyString(mediaURL),
		Timestamp:      ts,
	}
	m.messages[conversationID] = append(m.messages[conversationID], msg)
	return &msg, nil
}

func (m *MemoryStore) ListRecentConversations(ctx context.Context, limit int) ([]models.ConversationSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("list conversations", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]models.ConversationSummary, 0, len(m.conversations))
	for _, conv := range m.conversations {
		summary := models.ConversationSummary{
			ID:            conv.ID,
			ClientNumber:  conv.ClientNumber,
			Mode:          conv.Mode,
			LastMessageAt: conv.LastMessageAt,
		}
		if msgs := m.messages[conv.ID]; len(msgs) > 0 {
			summary.LastMessagePreview = msgs[len(msgs)-1].Text
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].LastMessageAt.Equal(summaries[j].LastMessageAt) {
			return summaries[i].LastMessageAt.After(summaries[j].LastMessageAt)
		}
		return summaries[i].ID > summaries[j].ID
	})

	if limit = clampLimit(limit); len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, conversationID uint) ([]models.Message, error) {
	return m.RecentMessages(ctx, conversationID, -1)
}

// RecentMessages returns the last limit messages; a negative limit returns all
func (m *MemoryStore) RecentMessages(ctx context.Context, conversationID uint, limit int) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("list messages", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}

	msgs := m.messages[conversationID]
	if limit >= 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *MemoryStore) GetConversationInfo(ctx context.Context, conversationID uint) (*models.ConversationInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("get conversation", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	return &models.ConversationInfo{ClientNumber: conv.ClientNumber, Mode: conv.Mode}, nil
}

func (m *MemoryStore) SetMode(ctx context.Context, conversationID uint, mode models.Mode) error {
	if err := ctx.Err(); err != nil {
		return wrap("set mode", err)
	}
	if !mode.Valid() {
		return ErrInvalidMode
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	conv.Mode = mode
	return nil
}

func (m *MemoryStore) Stats(ctx context.Context) (*models.StoreStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.StoreStats{Conversations: int64(len(m.conversations))}
	for _, msgs := range m.messages {
		stats.Messages += int64(len(msgs))
	}
	return stats, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
