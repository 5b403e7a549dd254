package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/models"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/repository"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/services"
	callws "github.com/alejandrovsynergy-netizen/lissen-mvp/internal/websocket"
)

type SessionHandler struct {
	calls   callApplicationService
	holds   holdAuthorizer
	capture captureRunner
	hub     liveCallNotifier
}

type callApplicationService interface {
	BookSession(ctx context.Context, speakerID int64, input services.BookCallInput) (*models.CallSession, error)
	ListSessions(ctx context.Context, actorID int64, role string, filter repository.SessionListFilter) ([]models.CallSession, error)
	GetSession(ctx context.Context, actorID int64, sessionID int64) (*models.CallSession, error)
	StartSession(ctx context.Context, actorID, sessionID int64) (*models.CallSession, error)
	CompleteSession(ctx context.Context, actorID, sessionID int64) (*models.CallSession, error)
	CancelSession(ctx context.Context, actorID, sessionID int64) (*models.CallSession, error)
}

type holdAuthorizer interface {
	AuthorizeSessionHold(ctx context.Context, actorID, sessionID int64) (*services.HoldResult, error)
	AuthorizeOfferHold(ctx context.Context, actorID, offerID int64) (*services.HoldResult, error)
}

type captureRunner interface {
	CaptureSession(ctx context.Context, actorID, sessionID int64) (*services.CaptureResult, error)
}

type liveCallNotifier interface {
	WatchSession(session *models.CallSession)
	NotifyEnded(sessionID int64, reason models.EndedReason)
}

func NewSessionHandler(
	calls *services.CallService,
	holds *services.HoldService,
	capture *services.CaptureService,
	hub *callws.Hub,
) *SessionHandler {
	return &SessionHandler{calls: calls, holds: holds, capture: capture, hub: hub}
}

type createSessionRequest struct {
	CompanionID     int64  `json:"companion_id"`
	PriceMinor      int64  `json:"price_minor"`
	DurationMinutes int    `json:"duration_minutes"`
	Currency        string `json:"currency"`
}

func (h *SessionHandler) Create(c *fiber.Ctx) error {
	userID, role, err := actorFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if role != models.RoleSpeaker {
		return c.Status(fiber.StatusForbidden).
			JSON(fiber.Map{"error": "Only speakers can book sessions"})
	}

	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	session, err := h.calls.BookSession(c.Context(), userID, services.BookCallInput{
		CompanionID:     req.CompanionID,
		PriceMinor:      req.PriceMinor,
		DurationMinutes: req.DurationMinutes,
		Currency:        req.Currency,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) List(c *fiber.Ctx) error {
	userID, role, err := actorFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	filter := repository.SessionListFilter{}
	if status := c.Query("status"); status != "" {
		parsed, ok := models.ParseSessionStatus(status)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status filter"})
		}
		filter.Status = parsed
	}

	sessions, err := h.calls.ListSessions(c.Context(), userID, role, filter)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}

func (h *SessionHandler) Get(c *fiber.Ctx) error {
	userID, _, err := actorFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.calls.GetSession(c.Context(), userID, sessionID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"session": session})
}

// Hold authorizes the session's full committed price against the speaker's
// stored instrument. Safe to retry; an existing authorization is returned
// as-is.
func (h *SessionHandler) Hold(c *fiber.Ctx) error {
	userID, role, err := actorFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if role != models.RoleSpeaker {
		return c.Status(fiber.StatusForbidden).
			JSON(fiber.Map{"error": "Only speakers can authorize holds"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	result, err := h.holds.AuthorizeSessionHold(c.Context(), userID, sessionID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"hold": result})
}

func (h *SessionHandler) Start(c *fiber.Ctx) error {
	userID, _, err := actorFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.calls.StartSession(c.Context(), userID, sessionID)
	if err != nil {
		return respondServiceError(c, err)
	}

	// Arms the timeout watchdog so the call ends itself at the booked
	// duration even if both clients vanish.
	h.hub.WatchSession(session)

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) Complete(c *fiber.Ctx) error {
	userID, _, err := actorFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.calls.CompleteSession(c.Context(), userID, sessionID)
	if err != nil {
		return respondServiceError(c, err)
	}

	if session.EndedReason != nil {
		h.hub.NotifyEnded(session.ID, *session.EndedReason)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) Cancel(c *fiber.Ctx) error {
	userID, _, err := actorFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.calls.CancelSession(c.Context(), userID, sessionID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"session": session})
}

// Capture settles a completed session for the time actually used. Repeat
// calls return the recorded outcome without touching the processor again.
func (h *SessionHandler) Capture(c *fiber.Ctx) error {
	userID, _, err := actorFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	result, err := h.capture.CaptureSession(c.Context(), userID, sessionID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"capture": result})
}

func parseIDParam(c *fiber.Ctx, name string) (int64, error) {
	return strconv.ParseInt(c.Params(name), 10, 64)
}
