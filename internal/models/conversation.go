package models

import (
	"fmt"
	"strings"
	"time"
)

// Mode governs whether inbound messages of a conversation are auto-answered
type Mode int16

const (
	ModeBot   Mode = 0
	ModeHuman Mode = 1
)

func (m Mode) Valid() bool {
	return m == ModeBot || m == ModeHuman
}

func (m Mode) String() string {
	switch m {
	case ModeBot:
		return "bot"
	case ModeHuman:
		return "human"
	default:
		return fmt.Sprintf("mode(%d)", int16(m))
	}
}

// MarshalText never fails; out-of-range values render as "mode(N)".
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode accepts "bot" or "human" (case-insensitive)
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bot":
		return ModeBot, nil
	case "human":
		return ModeHuman, nil
	}
	return 0, fmt.Errorf("unknown mode %q (expected bot or human)", s)
}

// Sender is the provenance tag of a message
type Sender int16

const (
	SenderClient Sender = 0
	SenderBot    Sender = 1
	SenderHuman  Sender = 2
)

func (s Sender) Valid() bool {
	return s == SenderClient || s == SenderBot || s == SenderHuman
}

func (s Sender) String() string {
	switch s {
	case SenderClient:
		return "client"
	case SenderBot:
		return "bot"
	case SenderHuman:
		return "human"
	default:
		return fmt.Sprintf("sender(%d)", int16(s))
	}
}

func (s Sender) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Conversation is the durable thread exchanged with one client number
type Conversation struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	ClientNumber  string    `json:"client_number" gorm:"size:64;not null;uniqueIndex"`
	Mode          Mode      `json:"mode" gorm:"not null;default:0"`
	LastSeq       int64     `json:"-" gorm:"not null;default:0"`
	CreatedAt     time.Time `json:"created_at" gorm:"not null"`
	LastMessageAt time.Time `json:"last_message_at" gorm:"not null;index"`

	Messages []Message `json:"-" gorm:"foreignKey:ConversationID;constraint:OnDelete:RESTRICT"`
}

// Message is immutable once stored. Seq is the per-conversation insertion order.
type Message struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ConversationID uint      `json:"conversation_id" gorm:"not null;uniqueIndex:idx_messages_conversation_seq,priority:1"`
	Seq            int64     `json:"seq" gorm:"not null;uniqueIndex:idx_messages_conversation_seq,priority:2"`
	Sender         Sender    `json:"sender" gorm:"not null"`
	Text           string    `json:"text" gorm:"type:text;not null"`
	MediaURL       *string   `json:"media_url,omitempty" gorm:"size:2048"`
	Timestamp      time.Time `json:"timestamp" gorm:"column:sent_at;not null"`
}

// ConversationSummary is one row of the recent conversations listing
type ConversationSummary struct {
	ID                 uint      `json:"id"`
	ClientNumber       string    `json:"client_number"`
	Mode               Mode      `json:"mode"`
	LastMessageAt      time.Time `json:"last_message_at"`
	LastMessagePreview string    `json:"last_message_preview"`
}

type ConversationInfo struct {
	ClientNumber string `json:"client_number"`
	Mode         Mode   `json:"mode"`
}

type StoreStats struct {
	Conversations int64 `json:"conversations"`
	Messages      int64 `json:"messages"`
}

// NormalizeClientNumber turns a provider sender id ("whatsapp:+15551230000")
// into the canonical resolution key ("+15551230000").
func NormalizeClientNumber(raw string) string {
	n := strings.TrimSpace(raw)
	if len(n) >= 9 && strings.EqualFold(n[:9], "whatsapp:") {
		n = strings.TrimSpace(n[9:])
	}
	return n
}
