package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/Ananth-NQI/whatsapp-relay/internal/models"
)

// AIResponder produces the automated reply to an inbound message. history
// holds earlier messages of the conversation, oldest first.
type AIResponder interface {
	GenerateReply(ctx context.Context, inboundText string, history []models.Message) (string, error)
}

// OutboundMessenger delivers a text message to a client number and returns
// the provider's delivery id.
type OutboundMessenger interface {
	Send(ctx context.Context, to, text string) (string, error)
}

// ErrOutboundDisabled is returned by LogMessenger
var ErrOutboundDisabled = errors.New("outbound messaging is not configured")

// LogMessenger stands in for Twilio when credentials are absent outside
// production. Messages are only logged.
type LogMessenger struct {
	log logrus.FieldLogger
}

func NewLogMessenger(log logrus.FieldLogger) *LogMessenger {
	return &LogMessenger{log: log}
}

func (m *LogMessenger) Send(ctx context.Context, to, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.log.WithFields(logrus.Fields{
		"to":   to,
		"text": text,
	}).Info("📤 Outbound disabled, message not sent")
	return "", ErrOutboundDisabled
}
