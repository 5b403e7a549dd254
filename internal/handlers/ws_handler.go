package handlers

import (
	"context"
	"strconv"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/models"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/services"
	callws "github.com/alejandrovsynergy-netizen/lissen-mvp/internal/websocket"
	"github.com/alejandrovsynergy-netizen/lissen-mvp/pkg/utils"
)

type WSHandler struct {
	calls     *services.CallService
	hub       *callws.Hub
	jwtSecret string
}

func NewWSHandler(calls *services.CallService, hub *callws.Hub, jwtSecret string) *WSHandler {
	return &WSHandler{calls: calls, hub: hub, jwtSecret: jwtSecret}
}

// Upgrade authenticates the websocket handshake. Browsers cannot set an
// Authorization header on the upgrade request, so the token rides in the
// query string.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := c.Query("token")
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token"})
	}
	claims, err := utils.ValidateToken(token, h.jwtSecret)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

// HandleSession joins the caller to the live channel of one of their
// sessions. An already-running session re-arms the timeout watchdog, so the
// clock survives a server restart as soon as either side reconnects.
func (h *WSHandler) HandleSession(conn *websocket.Conn) {
	defer conn.Close()

	userIDValue, _ := conn.Locals("user_id").(string)
	userID, err := strconv.ParseInt(userIDValue, 10, 64)
	if err != nil {
		return
	}
	sessionID, err := strconv.ParseInt(conn.Params("id"), 10, 64)
	if err != nil {
		return
	}

	session, err := h.calls.GetSession(context.Background(), userID, sessionID)
	if err != nil {
		_ = conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session unavailable"),
		)
		return
	}

	if session.Status == models.SessionActive && session.StartedAt != nil {
		h.hub.WatchSession(session)
	}

	client := callws.NewClient(h.hub, conn, sessionID, userID)
	h.hub.Register(client)

	go client.WritePump()
	client.ReadPump()
}
