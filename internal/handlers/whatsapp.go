package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Ananth-NQI/whatsapp-relay/internal/services"
)

// WhatsAppHandler handles WhatsApp webhook requests
type WhatsAppHandler struct {
	whatsappService *services.WhatsAppService
	log             logrus.FieldLogger
}

// NewWhatsAppHandler creates a new WhatsApp handler
func NewWhatsAppHandler(whatsappService *services.WhatsAppService, log logrus.FieldLogger) *WhatsAppHandler {
	return &WhatsAppHandler{
		whatsappService: whatsappService,
		log:             log,
	}
}

// TwilioWebhookPayload represents incoming WhatsApp message from Twilio
type TwilioWebhookPayload struct {
	MessageSid          string `form:"MessageSid"`
	AccountSid          string `form:"AccountSid"`
	MessagingServiceSid string `form:"MessagingServiceSid"`
	From                string `form:"From"` // WhatsApp number (whatsapp:+5511999990000)
	To                  string `form:"To"`   // Your Twilio number
	Body                string `form:"Body"` // Message text
	NumMedia            string `form:"NumMedia"`
	MediaUrl0           string `form:"MediaUrl0"`
	MediaContentType0   string `form:"MediaContentType0"`
	ProfileName         string `form:"ProfileName"`
}

// HandleWebhook processes incoming WhatsApp messages. Once the inbound
// message is stored the webhook is acknowledged with an empty 200, whatever
// happens to the automated reply.
func (h *WhatsAppHandler) HandleWebhook(c *fiber.Ctx) error {
	var payload TwilioWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		h.log.WithError(err).Warn("Error parsing webhook")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	requestID := payload.MessageSid
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := h.log.WithField("request_id", requestID)

	var mediaURL *string
	if media := strings.TrimSpace(payload.MediaUrl0); media != "" {
		mediaURL = &media
	}

	log.WithField("from", payload.From).Info("📱 WhatsApp message received")

	result, err := h.whatsappService.HandleInbound(c.UserContext(), services.InboundMessage{
		From:       payload.From,
		Body:       payload.Body,
		MediaURL:   mediaURL,
		MessageSID: payload.MessageSid,
	})
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			log.WithError(err).Warn("Webhook rejected")
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		log.WithError(err).Error("❌ Failed to store inbound message")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process message",
		})
	}

	log.WithFields(logrus.Fields{
		"conversation_id": result.ConversationID,
		"decision":        result.Decision.String(),
		"reply_sent":      result.ReplySent,
		"fallback":        result.UsedFallback,
	}).Debug("Webhook processed")

	c.Status(fiber.StatusOK)
	return nil
}
