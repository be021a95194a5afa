package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ananth-NQI/whatsapp-relay/internal/models"
)

const (
	DefaultConversationLimit = 50
	MaxConversationLimit     = 500
)

var (
	// ErrNotFound is returned for an unknown conversation id
	ErrNotFound = errors.New("conversation not found")

	ErrInvalidMode = errors.New("invalid conversation mode")
)

// StorageError wraps a durable-store failure (connectivity, constraint
// violation, cancelled transaction). The store never retries.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err carries a *StorageError
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// Store defines the conversation storage operations. Every method runs as a
// single atomic unit against the backing store.
type Store interface {
	// ResolveOrCreate returns the active conversation for clientNumber,
	// creating it in Bot mode on first contact. Safe under concurrent calls.
	ResolveOrCreate(ctx context.Context, clientNumber string) (*models.Conversation, error)

	// AppendMessage stores a message and bumps the conversation's
	// LastMessageAt in the same transaction.
	AppendMessage(ctx context.Context, conversationID uint, sender models.Sender, text string, mediaURL *string) (*models.Message, error)

	ListRecentConversations(ctx context.Context, limit int) ([]models.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID uint) ([]models.Message, error)
	RecentMessages(ctx context.Context, conversationID uint, limit int) ([]models.Message, error)
	GetConversationInfo(ctx context.Context, conversationID uint) (*models.ConversationInfo, error)
	SetMode(ctx context.Context, conversationID uint, mode models.Mode) error
	Stats(ctx context.Context) (*models.StoreStats, error)

	Close() error
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultConversationLimit
	}
	if limit > MaxConversationLimit {
		return MaxConversationLimit
	}
	return limit
}

func wrap(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidMode) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
