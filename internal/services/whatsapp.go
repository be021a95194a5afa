package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Ananth-NQI/whatsapp-relay/internal/models"
	"github.com/Ananth-NQI/whatsapp-relay/internal/storage"
)

var errAIUnavailable = errors.New("ai responder not configured")

// InboundMessage is a verified inbound webhook payload
type InboundMessage struct {
	From       string
	Body       string
	MediaURL   *string
	MessageSID string
}

// InboundResult describes what the relay did with an inbound message
type InboundResult struct {
	ConversationID uint
	Decision       Decision
	UsedFallback   bool
	ReplySent      bool
	DeliveryID     string
}

type WhatsAppOptions struct {
	AITimeout       time.Duration
	OutboundTimeout time.Duration
	HistoryLimit    int
	FallbackReply   string
}

// WhatsAppService handles WhatsApp message processing
type WhatsAppService struct {
	store     storage.Store
	ai        AIResponder
	messenger OutboundMessenger
	opts      WhatsAppOptions
	log       logrus.FieldLogger
}

// NewWhatsAppService creates a new WhatsApp service. A nil responder makes
// every automated reply the fallback text.
func NewWhatsAppService(store storage.Store, ai AIResponder, messenger OutboundMessenger, opts WhatsAppOptions, log logrus.FieldLogger) *WhatsAppService {
	return &WhatsAppService{
		store:     store,
		ai:        ai,
		messenger: messenger,
		opts:      opts,
		log:       log,
	}
}

// HandleInbound records an inbound client message and, when the conversation
// is in bot mode, answers it. Errors are only returned before the inbound
// message is durably stored; everything after that is logged and absorbed.
func (w *WhatsAppService) HandleInbound(ctx context.Context, in InboundMessage) (*InboundResult, error) {
	from := models.NormalizeClientNumber(in.From)
	if from == "" {
		return nil, &ValidationError{Field: "From", Message: "sender number is required"}
	}

	conv, err := w.store.ResolveOrCreate(ctx, from)
	if err != nil {
		return nil, err
	}

	log := w.log.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"client":          from,
	})
	if in.MessageSID != "" {
		log = log.WithField("message_sid", in.MessageSID)
	}

	inbound, err := w.store.AppendMessage(ctx, conv.ID, models.SenderClient, in.Body, in.MediaURL)
	if err != nil {
		return nil, err
	}
	log.WithField("seq", inbound.Seq).Info("📥 Inbound message stored")

	result := &InboundResult{ConversationID: conv.ID, Decision: DecisionSuppress}

	// re-read the mode so an operator switch made since resolution wins
	info, err := w.store.GetConversationInfo(ctx, conv.ID)
	if err != nil {
		log.WithError(err).Error("Failed to read conversation mode, suppressing automation")
		return result, nil
	}

	result.Decision = Decide(info.Mode)
	if result.Decision == DecisionSuppress {
		log.WithField("mode", info.Mode.String()).Info("🤝 Conversation handled by a human, automation suppressed")
		return result, nil
	}

	reply, usedFallback := w.generateReply(ctx, log, conv.ID, inbound)
	result.UsedFallback = usedFallback

	// every delivered message must be on record, so nothing is sent unless
	// the reply was stored first
	if _, err := w.store.AppendMessage(ctx, conv.ID, models.SenderBot, reply, nil); err != nil {
		log.WithError(err).Error("❌ Failed to store bot reply, not sending it")
		return result, nil
	}

	deliveryID, err := w.send(ctx, info.ClientNumber, reply)
	if err != nil {
		log.WithError(&UpstreamError{Collaborator: "outbound", Err: err}).Error("❌ Failed to deliver bot reply")
		return result, nil
	}

	result.ReplySent = true
	result.DeliveryID = deliveryID
	log.WithField("delivery_id", deliveryID).Info("🤖 Bot reply delivered")
	return result, nil
}

func (w *WhatsAppService) generateReply(ctx context.Context, log logrus.FieldLogger, conversationID uint, inbound *models.Message) (string, bool) {
	history := w.history(ctx, log, conversationID, inbound.Seq)

	var (
		reply string
		err   error
	)
	if w.ai == nil {
		err = errAIUnavailable
	} else {
		aiCtx, cancel := withTimeout(ctx, w.opts.AITimeout)
		reply, err = w.ai.GenerateReply(aiCtx, inbound.Text, history)
		cancel()
	}

	if err == nil && strings.TrimSpace(reply) != "" {
		return reply, false
	}
	if err == nil {
		err = errEmptyCompletion
	}
	log.WithError(&UpstreamError{Collaborator: "ai", Err: err}).Warn("AI reply unavailable, using fallback")
	return w.opts.FallbackReply, true
}

// history returns up to HistoryLimit messages that precede the inbound one
func (w *WhatsAppService) history(ctx context.Context, log logrus.FieldLogger, conversationID uint, beforeSeq int64) []models.Message {
	limit := w.opts.HistoryLimit
	if limit <= 0 {
		return nil
	}

	// one extra row covers the inbound message itself
	recent, err := w.store.RecentMessages(ctx, conversationID, limit+1)
	if err != nil {
		log.WithError(err).Warn("Failed to load history, replying without context")
		return nil
	}

	history := make([]models.Message, 0, len(recent))
	for _, m := range recent {
		if m.Seq < beforeSeq {
			history = append(history, m)
		}
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

func (w *WhatsAppService) send(ctx context.Context, to, text string) (string, error) {
	sendCtx, cancel := withTimeout(ctx, w.opts.OutboundTimeout)
	defer cancel()
	return w.messenger.Send(sendCtx, to, text)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
