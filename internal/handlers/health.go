package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/Ananth-NQI/whatsapp-relay/internal/storage"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	Version     string
	StorageType string
	store       storage.Store
	log         logrus.FieldLogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store storage.Store, version, storageType string, log logrus.FieldLogger) *HealthHandler {
	return &HealthHandler{
		Version:     version,
		StorageType: storageType,
		store:       store,
		log:         log,
	}
}

// Check returns the health status of the service. The store is queried so a
// lost database shows up as 503.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	stats, err := h.store.Stats(c.UserContext())
	if err != nil {
		h.log.WithError(err).Error("Health check failed")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":  "unhealthy",
			"version": h.Version,
			"storage": h.StorageType,
		})
	}

	return c.JSON(fiber.Map{
		"status":  "healthy",
		"version": h.Version,
		"storage": h.StorageType,
		"database": fiber.Map{
			"conversations": stats.Conversations,
			"messages":      stats.Messages,
		},
	})
}
