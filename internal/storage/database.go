package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Ananth-NQI/whatsapp-relay/internal/models"
)

// DatabaseStore is the gorm-backed conversation store (postgres in
// production, sqlite for local runs and tests).
type DatabaseStore struct {
	db *gorm.DB
}

var _ Store = (*DatabaseStore)(nil)

// NewDatabaseStore creates a store over an already migrated connection
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func (d *DatabaseStore) ResolveOrCreate(ctx context.Context, clientNumber string) (*models.Conversation, error) {
	clientNumber = strings.TrimSpace(clientNumber)
	if clientNumber == "" {
		return nil, errors.New("storage: client number is required")
	}

	var conv models.Conversation
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := latestConversation(tx, clientNumber, &conv)
		if err == nil || !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// First contact. The unique index on client_number turns a concurrent
		// insert for the same number into a no-op; the re-select below then
		// returns whichever row won.
		now := time.Now().UTC()
		candidate := models.Conversation{
			ClientNumber:  clientNumber,
			Mode:          models.ModeBot,
			CreatedAt:     now,
			LastMessageAt: now,
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_number"}},
			DoNothing: true,
		}).Create(&candidate).Error
		if err != nil {
			return err
		}
		return latestConversation(tx, clientNumber, &conv)
	})
	if err != nil {
		return nil, wrap("resolve conversation", err)
	}
	return &conv, nil
}

func latestConversation(tx *gorm.DB, clientNumber string, out *models.Conversation) error {
	return tx.Where("client_number = ?", clientNumber).
		Order("last_message_at DESC").
		Order("id DESC").
		Take(out).Error
}

func (d *DatabaseStore) AppendMessage(ctx context.Context, conversationID uint, sender models.Sender, text string, mediaURL *string) (*models.Message, error) {
	if !sender.Valid() {
		return nil, errors.New("storage: invalid sender")
	}

	var msg models.Message
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		// Updating the conversation row first takes its row lock, which
		// serializes appends per conversation: seq strictly increases and the
		// timestamp never goes backwards.
		res := tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Updates(map[string]interface{}{
				"last_seq":        gorm.Expr("last_seq + 1"),
				"last_message_at": gorm.Expr("CASE WHEN last_message_at > ? THEN last_message_at ELSE ? END", now, now),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		var conv models.Conversation
		if err := tx.Select("id", "last_seq", "last_message_at").
			Where("id = ?", conversationID).
			Take(&conv).Error; err != nil {
			return err
		}

		msg = models.Message{
			ConversationID: conversationID,
			Seq:            conv.LastSeq,
			Sender:         sender,
			Text:           text,
			MediaURL:       mediaURL,
			Timestamp:      conv.LastMessageAt,
		}
		return tx.Create(&msg).Error
	})
	if err != nil {
		return nil, wrap("append message", err)
	}
	return &msg, nil
}

func (d *DatabaseStore) ListRecentConversations(ctx context.Context, limit int) ([]models.ConversationSummary, error) {
	summaries := make([]models.ConversationSummary, 0)
	err := d.db.WithContext(ctx).
		Table("conversations AS c").
		Select(`c.id, c.client_number, c.mode, c.last_message_at,
			COALESCE((SELECT m.text FROM messages m WHERE m.conversation_id = c.id ORDER BY m.seq DESC LIMIT 1), '') AS last_message_preview`).
		Order("c.last_message_at DESC").
		Order("c.id DESC").
		Limit(clampLimit(limit)).
		Scan(&summaries).Error
	if err != nil {
		return nil, wrap("list conversations", err)
	}
	return summaries, nil
}

func (d *DatabaseStore) ListMessages(ctx context.Context, conversationID uint) ([]models.Message, error) {
	messages := make([]models.Message, 0)
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := conversationExists(tx, conversationID); err != nil {
			return err
		}
		return tx.Where("conversation_id = ?", conversationID).
			Order("sent_at ASC").
			Order("seq ASC").
			Find(&messages).Error
	})
	if err != nil {
		return nil, wrap("list messages", err)
	}
	return messages, nil
}

func (d *DatabaseStore) RecentMessages(ctx context.Context, conversationID uint, limit int) ([]models.Message, error) {
	messages := make([]models.Message, 0)
	if limit <= 0 {
		return messages, nil
	}
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := conversationExists(tx, conversationID); err != nil {
			return err
		}
		return tx.Where("conversation_id = ?", conversationID).
			Order("seq DESC").
			Limit(limit).
			Find(&messages).Error
	})
	if err != nil {
		return nil, wrap("recent messages", err)
	}

	// newest-first from the query, callers want chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (d *DatabaseStore) GetConversationInfo(ctx context.Context, conversationID uint) (*models.ConversationInfo, error) {
	var conv models.Conversation
	err := d.db.WithContext(ctx).
		Select("id", "client_number", "mode").
		Where("id = ?", conversationID).
		Take(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap("get conversation", err)
	}
	return &models.ConversationInfo{ClientNumber: conv.ClientNumber, Mode: conv.Mode}, nil
}

func (d *DatabaseStore) SetMode(ctx context.Context, conversationID uint, mode models.Mode) error {
	if !mode.Valid() {
		return ErrInvalidMode
	}
	res := d.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("mode", mode)
	if res.Error != nil {
		return wrap("set mode", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DatabaseStore) Stats(ctx context.Context) (*models.StoreStats, error) {
	var stats models.StoreStats
	db := d.db.WithContext(ctx)
	if err := db.Model(&models.Conversation{}).Count(&stats.Conversations).Error; err != nil {
		return nil, wrap("count conversations", err)
	}
	if err := db.Model(&models.Message{}).Count(&stats.Messages).Error; err != nil {
		return nil, wrap("count messages", err)
	}
	return &stats, nil
}

// Close releases the underlying connection pool
func (d *DatabaseStore) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func conversationExists(tx *gorm.DB, conversationID uint) error {
	var count int64
	if err := tx.Model(&models.Conversation{}).Where("id = ?", conversationID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}
