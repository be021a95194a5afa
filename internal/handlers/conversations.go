package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/Ananth-NQI/whatsapp-relay/internal/models"
	"github.com/Ananth-NQI/whatsapp-relay/internal/services"
	"github.com/Ananth-NQI/whatsapp-relay/internal/storage"
)

// ConversationHandler serves the operator API
type ConversationHandler struct {
	store      storage.Store
	humanReply *services.HumanReplyService
	log        logrus.FieldLogger
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(store storage.Store, humanReply *services.HumanReplyService, log logrus.FieldLogger) *ConversationHandler {
	return &ConversationHandler{
		store:      store,
		humanReply: humanReply,
		log:        log,
	}
}

// ListConversations returns the most recently active conversations
func (h *ConversationHandler) ListConversations(c *fiber.Ctx) error {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a non-negative integer",
			})
		}
		limit = n
	}

	conversations, err := h.store.ListRecentConversations(c.UserContext(), limit)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"conversations": conversations,
		"count":         len(conversations),
	})
}

// GetConversation returns the client number and mode of one conversation
func (h *ConversationHandler) GetConversation(c *fiber.Ctx) error {
	id, err := conversationID(c)
	if err != nil {
		return h.fail(c, err)
	}

	info, err := h.store.GetConversationInfo(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"id":            id,
		"client_number": info.ClientNumber,
		"mode":          info.Mode,
	})
}

// GetMessages returns the full history of a conversation, oldest first
func (h *ConversationHandler) GetMessages(c *fiber.Ctx) error {
	id, err := conversationID(c)
	if err != nil {
		return h.fail(c, err)
	}

	messages, err := h.store.ListMessages(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"conversation_id": id,
		"messages":        messages,
		"count":           len(messages),
	})
}

// Reply sends an operator message to the client
func (h *ConversationHandler) Reply(c *fiber.Ctx) error {
	id, err := conversationID(c)
	if err != nil {
		return h.fail(c, err)
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result, err := h.humanReply.SendHumanReply(c.UserContext(), id, req.Text)
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// SetMode switches a conversation between bot and human handling
func (h *ConversationHandler) SetMode(c *fiber.Ctx) error {
	id, err := conversationID(c)
	if err != nil {
		return h.fail(c, err)
	}

	var req struct {
		Mode string `json:"mode"` // "bot" or "human"
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	mode, err := models.ParseMode(req.Mode)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Mode must be 'bot' or 'human'",
		})
	}

	if err := h.store.SetMode(c.UserContext(), id, mode); err != nil {
		return h.fail(c, err)
	}

	h.log.WithFields(logrus.Fields{
		"conversation_id": id,
		"mode":            mode.String(),
	}).Info("🔀 Conversation mode changed")

	return c.JSON(fiber.Map{
		"id":   id,
		"mode": mode,
	})
}

func conversationID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, &services.ValidationError{Field: "id", Message: "must be a positive integer"}
	}
	return uint(id), nil
}

// fail maps service and storage errors to a status code
func (h *ConversationHandler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, storage.ErrInvalidMode):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	default:
		h.log.WithError(err).WithField("path", c.Path()).Error("Operator request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
}
