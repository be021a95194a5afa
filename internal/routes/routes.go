package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/Ananth-NQI/whatsapp-relay/internal/handlers"
	"github.com/Ananth-NQI/whatsapp-relay/internal/middleware"
	"github.com/Ananth-NQI/whatsapp-relay/internal/services"
	"github.com/Ananth-NQI/whatsapp-relay/internal/storage"
)

// Dependencies is everything the route table needs
type Dependencies struct {
	Store        storage.Store
	WhatsApp     *services.WhatsAppService
	HumanReply   *services.HumanReplyService
	Signature    middleware.SignatureConfig
	OperatorAuth middleware.OperatorAuthConfig

	Version     string
	Environment string
	StorageType string

	Log logrus.FieldLogger
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, deps Dependencies) {
	log := deps.Log

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":     "WhatsApp Relay",
			"version":     deps.Version,
			"environment": deps.Environment,
			"endpoints": fiber.Map{
				"health":        "/health",
				"webhook":       "/webhook/whatsapp",
				"conversations": "/api/conversations",
			},
		})
	})

	healthHandler := handlers.NewHealthHandler(deps.Store, deps.Version, deps.StorageType, log)
	app.Get("/health", healthHandler.Check)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")
	whatsappHandler := handlers.NewWhatsAppHandler(deps.WhatsApp, log)
	if deps.Signature.Bypass {
		log.Warn("⚠️  WhatsApp webhook validation DISABLED for this environment")
	}
	webhooks.Post("/whatsapp", middleware.ValidateTwilioSignature(deps.Signature, log), whatsappHandler.HandleWebhook)

	// ========== OPERATOR API ==========
	api := app.Group("/api", middleware.RequireOperatorKey(deps.OperatorAuth, log))
	conversationHandler := handlers.NewConversationHandler(deps.Store, deps.HumanReply, log)

	conversations := api.Group("/conversations")
	conversations.Get("/", conversationHandler.ListConversations)
	conversations.Get("/:id", conversationHandler.GetConversation)
	conversations.Get("/:id/messages", conversationHandler.GetMessages)
	conversations.Post("/:id/reply", conversationHandler.Reply)
	conversations.Put("/:id/mode", conversationHandler.SetMode)
}
