// Package callws is the live-call channel: each participant of an active
// session connects and receives elapsed-minute ticks and the ended event.
// The hub also runs the timeout watchdog that completes a session with
// reason "timeout" once its committed duration runs out.
package callws

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	websocket "github.com/gofiber/contrib/websocket"

	"github.com/alejandrovsynergy-netizen/lissen-mvp/internal/models"
)

// sessionExpirer is what the watchdog calls when a session's clock runs out.
type sessionExpirer interface {
	ExpireSession(ctx context.Context, sessionID int64) (*models.CallSession, error)
}

type Hub struct {
	clients    map[int64]map[*Client]struct{}
	watching   map[int64]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Event
	watch      chan watchRequest
	unwatch    chan int64
	calls      sessionExpirer
}

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID int64
	userID    int64
	send      chan []byte
}

type Event struct {
	Type           string `json:"type"`
	SessionID      string `json:"session_id"`
	ElapsedMinutes int    `json:"elapsed_minutes,omitempty"`
	EndedReason    string `json:"ended_reason,omitempty"`
	Timestamp      string `json:"timestamp"`
}

type watchRequest struct {
	sessionID       int64
	startedAt       time.Time
	durationMinutes int
}

func NewHub(calls sessionExpirer) *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]struct{}),
		watching:   make(map[int64]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Event, 64),
		watch:      make(chan watchRequest, 16),
		unwatch:    make(chan int64, 16),
		calls:      calls,
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, sessionID, userID int64) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		sessionID: sessionID,
		userID:    userID,
		send:      make(chan []byte, 32),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			set, ok := h.clients[client.sessionID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.sessionID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.sessionID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				close(client.send)
			}
			if len(set) == 0 {
				delete(h.clients, client.sessionID)
			}
		case event := <-h.broadcast:
			h.deliver(event)
		case request := <-h.watch:
			// One clock per session, no matter how many times a client
			// reconnects and re-requests the watch.
			if _, armed := h.watching[request.sessionID]; armed {
				continue
			}
			h.watching[request.sessionID] = struct{}{}
			go h.runClock(request)
		case sessionID := <-h.unwatch:
			delete(h.watching, sessionID)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// WatchSession arms the per-minute tick and the timeout watchdog for a
// session that just went active.
func (h *Hub) WatchSession(session *models.CallSession) {
	if session == nil || session.StartedAt == nil {
		return
	}
	h.watch <- watchRequest{
		sessionID:       session.ID,
		startedAt:       *session.StartedAt,
		durationMinutes: session.DurationMinutes,
	}
}

// runClock ticks once a minute and expires the session when the committed
// duration is spent. Expiry is a no-op for sessions the participants
// already completed, so a stale clock can never re-terminate anything.
func (h *Hub) runClock(request watchRequest) {
	deadline := request.startedAt.Add(time.Duration(request.durationMinutes) * time.Minute)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	defer func() { h.unwatch <- request.sessionID }()

	for now := range ticker.C {
		if now.After(deadline) {
			session, err := h.calls.ExpireSession(context.Background(), request.sessionID)
			if err != nil {
				log.Printf("call hub expire session %d: %v", request.sessionID, err)
				return
			}
			reason := ""
			if session.EndedReason != nil {
				reason = string(*session.EndedReason)
			}
			h.broadcast <- &Event{
				Type:        "ended",
				SessionID:   strconv.FormatInt(request.sessionID, 10),
				EndedReason: reason,
				Timestamp:   now.UTC().Format(time.RFC3339),
			}
			return
		}

		elapsed := int(now.Sub(request.startedAt).Minutes())
		h.broadcast <- &Event{
			Type:           "tick",
			SessionID:      strconv.FormatInt(request.sessionID, 10),
			ElapsedMinutes: elapsed,
			Timestamp:      now.UTC().Format(time.RFC3339),
		}
	}
}

// NotifyEnded pushes the ended event for a session a participant completed
// over HTTP, so the other side's client drops the call screen promptly.
func (h *Hub) NotifyEnded(sessionID int64, reason models.EndedReason) {
	h.broadcast <- &Event{
		Type:        "ended",
		SessionID:   strconv.FormatInt(sessionID, 10),
		EndedReason: string(reason),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

func (h *Hub) deliver(event *Event) {
	sessionID, err := strconv.ParseInt(event.SessionID, 10, 64)
	if err != nil {
		return
	}

	encoded, err := json.Marshal(event)
	if err != nil {
		log.Printf("call hub encode event: %v", err)
		return
	}

	set, ok := h.clients[sessionID]
	if !ok {
		return
	}
	for client := range set {
		select {
		case client.send <- encoded:
		default:
			delete(set, client)
			close(client.send)
		}
	}
	if len(set) == 0 {
		delete(h.clients, sessionID)
	}
}

// ReadPump drains the connection; the channel is server-push only, so
// client frames are discarded until the peer closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
