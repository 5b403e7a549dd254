package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/models"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/services"
)

type OfferHandler struct {
	offers offerApplicationService
	holds  holdAuthorizer
}

type offerApplicationService interface {
	CreateOffer(ctx context.Context, companionID int64, input services.CreateOfferInput) (*models.Offer, error)
	ListOpenOffers(ctx context.Context, limit int) ([]models.Offer, error)
	GetOffer(ctx context.Context, offerID int64) (*models.Offer, error)
	WithdrawOffer(ctx context.Context, companionID, offerID int64) (*models.Offer, error)
}

func NewOfferHandler(offers *services.OfferService, holds *services.HoldService) *OfferHandler {
	return &OfferHandler{offers: offers, holds: holds}
}

type createOfferRequest struct {
	AmountMinor        *int64 `json:"amount_minor"`
	RateMinorPerMinute *int64 `json:"rate_minor_per_minute"`
	DurationMinutes    int    `json:"duration_minutes"`
	Currency           string `json:"currency"`
}

func (h *OfferHandler) Create(c *fiber.Ctx) error {
	userID, role, err := actorFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if role != models.RoleCompanion {
		return c.Status(fiber.StatusForbidden).
			JSON(fiber.Map{"error": "Only companions can publish offers"})
	}

	var req createOfferRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	offer, err := h.offers.CreateOffer(c.Context(), userID, services.CreateOfferInput{
		AmountMinor:        req.AmountMinor,
		RateMinorPerMinute: req.RateMinorPerMinute,
		DurationMinutes:    req.DurationMinutes,
		Currency:           req.Currency,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"offer": offer})
}

func (h *OfferHandler) List(c *fiber.Ctx) error {
	if _, _, err := actorFromContext(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	limit := c.QueryInt("limit", 0)
	offers, err := h.offers.ListOpenOffers(c.Context(), limit)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"offers": offers})
}

func (h *OfferHandler) Get(c *fiber.Ctx) error {
	if _, _, err := actorFromContext(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	offerID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid offer id"})
	}

	offer, err := h.offers.GetOffer(c.Context(), offerID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"offer": offer})
}

// Accept puts a hold on the offer's committed amount for the calling speaker
// and materializes the booked session. The whole flow is safe to retry after
// a crash at any point between the two steps.
func (h *OfferHandler) Accept(c *fiber.Ctx) error {
	userID, role, err := actorFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if role != models.RoleSpeaker {
		return c.Status(fiber.StatusForbidden).
			JSON(fiber.Map{"error": "Only speakers can accept offers"})
	}
	offerID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid offer id"})
	}

	result, err := h.holds.AuthorizeOfferHold(c.Context(), userID, offerID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"hold": result})
}

func (h *OfferHandler) Withdraw(c *fiber.Ctx) error {
	userID, role, err := actorFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if role != models.RoleCompanion {
		return c.Status(fiber.StatusForbidden).
			JSON(fiber.Map{"error": "Only companions can withdraw offers"})
	}
	offerID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid offer id"})
	}

	offer, err := h.offers.WithdrawOffer(c.Context(), userID, offerID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"offer": offer})
}
