package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/services"
)

type VaultHandler struct {
	vault instrumentVault
}

type instrumentVault interface {
	BeginInstrumentRegistration(ctx context.Context, userID int64) (*services.InstrumentRegistration, error)
	FinalizeInstrumentRegistration(ctx context.Context, userID int64, setupIntentID string) (*services.InstrumentSummary, error)
	RemoveDefaultInstrument(ctx context.Context, userID int64) error
}

func NewVaultHandler(vault *services.VaultService) *VaultHandler {
	return &VaultHandler{vault: vault}
}

// BeginRegistration issues the client-side material for collecting a card:
// the processor customer, an ephemeral key scoped to it, and a setup intent.
func (h *VaultHandler) BeginRegistration(c *fiber.Ctx) error {
	userID, _, err := actorFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	registration, err := h.vault.BeginInstrumentRegistration(c.Context(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(registration)
}

type finalizeRegistrationRequest struct {
	SetupIntentID string `json:"setup_intent_id"`
}

func (h *VaultHandler) FinalizeRegistration(c *fiber.Ctx) error {
	userID, _, err := actorFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req finalizeRegistrationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	req.SetupIntentID = strings.TrimSpace(req.SetupIntentID)

	summary, err := h.vault.FinalizeInstrumentRegistration(c.Context(), userID, req.SetupIntentID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"instrument": summary})
}

func (h *VaultHandler) RemoveInstrument(c *fiber.Ctx) error {
	userID, _, err := actorFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	if err := h.vault.RemoveDefaultInstrument(c.Context(), userID); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"removed": true})
}
