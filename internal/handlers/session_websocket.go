package handlers

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"studyforge/internal/access"
	"studyforge/internal/models"
	"studyforge/internal/services"
)

// SessionServerMessage is a frame pushed on /ws/session
type SessionServerMessage struct {
	Type    string          `json:"type"`
	Session *models.Session `json:"session,omitempty"`
	Level   string          `json:"level,omitempty"`
	Data    interface{}     `json:"data,omitempty"`
}

// SessionClientMessage is a frame sent by the client
type SessionClientMessage struct {
	Type string `json:"type"`
}

// SessionWebSocketHandler streams session changes to a signed-in client so
// the access gate re-evaluates without polling
type SessionWebSocketHandler struct {
	bus *services.SessionEventBus
}

// NewSessionWebSocketHandler creates a new session stream handler
func NewSessionWebSocketHandler(bus *services.SessionEventBus) *SessionWebSocketHandler {
	return &SessionWebSocketHandler{bus: bus}
}

// Handle is the WebSocket handler for /ws/session. Anonymous connections get
// one "session" frame and are closed.
func (h *SessionWebSocketHandler) Handle(c *websocket.Conn) {
	session, _ := c.Locals("session").(*models.Session)
	if !session.Authenticated() {
		if err := c.WriteJSON(SessionServerMessage{Type: "session", Level: access.Anonymous.String()}); err != nil {
			log.Printf("[SESSION-WS] Write error for anonymous connection: %v", err)
		}
		return
	}
	userID := session.UserID
	connID := uuid.New().String()

	log.Printf("[SESSION-WS] Connection opened: %s (user: %s)", connID, userID)
	services.GetMetrics().RecordStreamOpen()

	writeChan := make(chan SessionServerMessage, 16)
	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() { closeOnce.Do(func() { close(done) }) }

	// Write mutex serializes JSON frames and protocol pings
	var writeMu sync.Mutex

	go func() {
		for {
			select {
			case <-done:
				return
			case msg := <-writeChan:
				writeMu.Lock()
				err := c.WriteJSON(msg)
				writeMu.Unlock()
				if err != nil {
					log.Printf("[SESSION-WS] Write error for %s: %v", connID, err)
					closeDone()
					return
				}
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				writeMu.Lock()
				err := c.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	eventCh := h.bus.Subscribe(userID, connID, 16)

	go func() {
		for {
			select {
			case <-done:
				return
			case event := <-eventCh:
				select {
				case <-done:
					return
				case writeChan <- SessionServerMessage{
					Type:    event.Type,
					Session: event.Session,
					Level:   access.Classify(event.Session).String(),
				}:
				}
			}
		}
	}()

	defer func() {
		closeDone()
		h.bus.Unsubscribe(userID, connID)
		services.GetMetrics().RecordStreamClose()
		log.Printf("[SESSION-WS] Connection closed: %s", connID)
	}()

	send := func(msg SessionServerMessage) {
		select {
		case writeChan <- msg:
		case <-done:
		}
	}

	send(SessionServerMessage{
		Type:    "session",
		Session: session,
		Level:   access.Classify(session).String(),
	})

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[SESSION-WS] Read error for %s: %v", connID, err)
			}
			return
		}

		var clientMsg SessionClientMessage
		if err := json.Unmarshal(msg, &clientMsg); err != nil {
			send(SessionServerMessage{Type: "error", Data: map[string]string{"message": "invalid message format"}})
			continue
		}

		switch clientMsg.Type {
		case "ping":
			send(SessionServerMessage{Type: "pong"})
		default:
			send(SessionServerMessage{Type: "error", Data: map[string]string{"message": "unknown message type: " + clientMsg.Type}})
		}
	}
}
