package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Ananth-NQI/whatsapp-relay/database"
	"github.com/Ananth-NQI/whatsapp-relay/internal/config"
	"github.com/Ananth-NQI/whatsapp-relay/internal/logging"
	"github.com/Ananth-NQI/whatsapp-relay/internal/middleware"
	"github.com/Ananth-NQI/whatsapp-relay/internal/routes"
	"github.com/Ananth-NQI/whatsapp-relay/internal/services"
	"github.com/Ananth-NQI/whatsapp-relay/internal/storage"
)

const version = "1.0.0"

func main() {
	if err := Execute(version); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load .env file for local development
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if portOverride != "" {
		cfg.Port = portOverride
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	store, storageType, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("Failed to close store")
		}
	}()

	var ai services.AIResponder
	if cfg.OpenAI.APIKey != "" {
		responder, err := services.NewOpenAIResponder(cfg.OpenAI)
		if err != nil {
			return err
		}
		ai = responder
		log.WithField("model", cfg.OpenAI.Model).Info("✅ OpenAI responder initialized")
	} else {
		log.Warn("⚠️  OPENAI_API_KEY not set - every bot reply will be the fallback text")
	}

	var messenger services.OutboundMessenger
	if cfg.TwilioConfigured() {
		twilioService, err := services.NewTwilioService(cfg.Twilio, log)
		if err != nil {
			return err
		}
		messenger = twilioService
		log.Info("✅ Twilio service initialized")
	} else {
		if cfg.IsProduction() {
			return fmt.Errorf("twilio credentials are required in production")
		}
		log.Warn("⚠️  Twilio credentials not found - outbound messages will only be logged")
		messenger = services.NewLogMessenger(log)
	}

	whatsappService := services.NewWhatsAppService(store, ai, messenger, services.WhatsAppOptions{
		AITimeout:       cfg.AI.Timeout,
		OutboundTimeout: cfg.OutboundTimeout,
		HistoryLimit:    cfg.AI.HistoryLimit,
		FallbackReply:   cfg.AI.FallbackReply,
	}, log)
	humanReplyService := services.NewHumanReplyService(store, messenger, cfg.OutboundTimeout, log)

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName:               "WhatsApp Relay v" + version,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, OPTIONS",
	}))

	routes.SetupRoutes(app, routes.Dependencies{
		Store:      store,
		WhatsApp:   whatsappService,
		HumanReply: humanReplyService,
		Signature: middleware.SignatureConfig{
			AuthToken: cfg.Twilio.AuthToken,
			Bypass:    cfg.WebhookBypass(),
		},
		OperatorAuth: middleware.OperatorAuthConfig{
			APIKey:               cfg.OperatorAPIKey,
			AllowUnauthenticated: cfg.IsDevelopment(),
		},
		Version:     version,
		Environment: cfg.Environment,
		StorageType: storageType,
		Log:         log,
	})

	// Handle graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		log.Info("🛑 Gracefully shutting down...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Warn("Shutdown did not complete cleanly")
		}
	}()

	log.Info("========================================")
	log.Infof("🚀 WhatsApp Relay starting on port %s", cfg.Port)
	log.Infof("📊 Storage: %s", storageType)
	log.Infof("🌍 Environment: %s", cfg.Environment)
	log.Infof("📱 WhatsApp: %s", whatsappStatus(cfg))
	if cfg.PublicWebhookURL != "" {
		log.Infof("🔗 Webhook URL: %s", cfg.PublicWebhookURL)
	}
	log.Info("========================================")

	return app.Listen(":" + cfg.Port)
}

func openStore(cfg *config.Config, log logrus.FieldLogger) (storage.Store, string, error) {
	// Check if we should use memory store (for testing)
	if cfg.UseMemoryStore {
		log.Warn("⚠️  Using in-memory storage (not for production!)")
		return storage.NewMemoryStore(), "In-Memory (Testing)", nil
	}

	log.Info("📦 Connecting to database...")
	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		return nil, "", err
	}

	log.Info("🔄 Running database migrations...")
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, "", err
	}
	log.Info("✅ Database migrations completed!")

	if cfg.Database.Driver == "sqlite" {
		return storage.NewDatabaseStore(db), "SQLite Database", nil
	}
	return storage.NewDatabaseStore(db), "PostgreSQL Database", nil
}

func whatsappStatus(cfg *config.Config) string {
	if !cfg.TwilioConfigured() {
		return "Not configured"
	}
	if cfg.WebhookBypass() {
		return "Configured (signature validation bypassed)"
	}
	return "Configured"
}
