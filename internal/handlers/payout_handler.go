package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/models"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/processor"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/services"
)

type PayoutHandler struct {
	payouts payoutOnboarder
}

type payoutOnboarder interface {
	CreateOnboardingHandle(ctx context.Context, userID int64, returnURL, refreshURL string) (*processor.Link, error)
	RefreshAccountStatus(ctx context.Context, userID int64) (*models.CompanionPayoutProfile, error)
	CreateDashboardLoginHandle(ctx context.Context, userID int64) (*processor.Link, error)
}

func NewPayoutHandler(payouts *services.PayoutService) *PayoutHandler {
	return &PayoutHandler{payouts: payouts}
}

func (h *PayoutHandler) requireCompanion(c *fiber.Ctx) (int64, bool) {
	userID, role, err := actorFromContext(c)
	if err != nil {
		_ = c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		return 0, false
	}
	if role != models.RoleCompanion {
		_ = c.Status(fiber.StatusForbidden).
			JSON(fiber.Map{"error": "Only companions can manage payouts"})
		return 0, false
	}
	return userID, true
}

type onboardingRequest struct {
	ReturnURL  string `json:"return_url"`
	RefreshURL string `json:"refresh_url"`
}

// BeginOnboarding makes sure the companion has a payout account and returns
// a one-time hosted onboarding URL for it.
func (h *PayoutHandler) BeginOnboarding(c *fiber.Ctx) error {
	userID, ok := h.requireCompanion(c)
	if !ok {
		return nil
	}

	var req onboardingRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	link, err := h.payouts.CreateOnboardingHandle(
		c.Context(),
		userID,
		strings.TrimSpace(req.ReturnURL),
		strings.TrimSpace(req.RefreshURL),
	)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"onboarding": link})
}

// RefreshStatus re-reads the payout account from the processor and stores the
// readiness flags locally.
func (h *PayoutHandler) RefreshStatus(c *fiber.Ctx) error {
	userID, ok := h.requireCompanion(c)
	if !ok {
		return nil
	}

	profile, err := h.payouts.RefreshAccountStatus(c.Context(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"payout_profile": profile})
}

func (h *PayoutHandler) DashboardLogin(c *fiber.Ctx) error {
	userID, ok := h.requireCompanion(c)
	if !ok {
		return nil
	}

	link, err := h.payouts.CreateDashboardLoginHandle(c.Context(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"login": link})
}
