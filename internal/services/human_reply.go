package services

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Ananth-NQI/whatsapp-relay/internal/models"
	"github.com/Ananth-NQI/whatsapp-relay/internal/storage"
)

// HumanReplyResult reports the stored operator message and its delivery
type HumanReplyResult struct {
	Message    *models.Message `json:"message"`
	Delivered  bool            `json:"delivered"`
	DeliveryID string          `json:"delivery_id,omitempty"`
}

// HumanReplyService sends operator-authored replies
type HumanReplyService struct {
	store           storage.Store
	messenger       OutboundMessenger
	outboundTimeout time.Duration
	log             logrus.FieldLogger
}

func NewHumanReplyService(store storage.Store, messenger OutboundMessenger, outboundTimeout time.Duration, log logrus.FieldLogger) *HumanReplyService {
	return &HumanReplyService{
		store:           store,
		messenger:       messenger,
		outboundTimeout: outboundTimeout,
		log:             log,
	}
}

// SendHumanReply stores text as a human message and delivers it to the client.
// The conversation mode is left as it is. A failed delivery is reported in the
// result; the stored message stays.
func (h *HumanReplyService) SendHumanReply(ctx context.Context, conversationID uint, text string) (*HumanReplyResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ValidationError{Field: "text", Message: "must not be blank"}
	}

	info, err := h.store.GetConversationInfo(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	msg, err := h.store.AppendMessage(ctx, conversationID, models.SenderHuman, text, nil)
	if err != nil {
		return nil, err
	}

	log := h.log.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"client":          info.ClientNumber,
		"seq":             msg.Seq,
	})
	result := &HumanReplyResult{Message: msg}

	sendCtx, cancel := withTimeout(ctx, h.outboundTimeout)
	defer cancel()

	deliveryID, err := h.messenger.Send(sendCtx, info.ClientNumber, text)
	if err != nil {
		log.WithError(&UpstreamError{Collaborator: "outbound", Err: err}).Error("❌ Failed to deliver human reply")
		return result, nil
	}

	result.Delivered = true
	result.DeliveryID = deliveryID
	log.WithField("delivery_id", deliveryID).Info("👤 Human reply delivered")
	return result, nil
}
