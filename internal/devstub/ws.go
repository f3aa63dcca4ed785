package devstub

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"shopsync/internal/domain/entity"
	"shopsync/internal/realtime"
	"shopsync/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// hub tracks which room each live connection belongs to.
type hub struct {
	mutex sync.Mutex
	conns map[*websocket.Conn]string
}

func newHub() *hub {
	return &hub{conns: make(map[*websocket.Conn]string)}
}

func (h *hub) register(conn *websocket.Conn, roomID string) {
	h.mutex.Lock()
	h.conns[conn] = roomID
	h.mutex.Unlock()
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mutex.Lock()
	delete(h.conns, conn)
	h.mutex.Unlock()
}

// broadcast sends the envelope to every connection in the room, the sender
// included; the client relies on the confirmed copy to replace its echo.
func (h *hub) broadcast(roomID string, env *realtime.Envelope) {
	h.mutex.Lock()
	var targets []*websocket.Conn
	for conn, room := range h.conns {
		if room == roomID {
			targets = append(targets, conn)
		}
	}
	h.mutex.Unlock()

	for _, conn := range targets {
		if err := conn.WriteJSON(env); err != nil {
			logger.Debug("Dropping dead stub connection: %v", err)
		}
	}
}

// relay sends the envelope to every connection in the room except from.
func (h *hub) relay(roomID string, from *websocket.Conn, env *realtime.Envelope) {
	h.mutex.Lock()
	var targets []*websocket.Conn
	for conn, room := range h.conns {
		if room == roomID && conn != from {
			targets = append(targets, conn)
		}
	}
	h.mutex.Unlock()

	for _, conn := range targets {
		conn.WriteJSON(env)
	}
}

func (s *Server) serveWS(c echo.Context) error {
	authHeader := c.Request().Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization format")
	}
	userID, err := s.userIDFromToken(parts[1])
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	room := s.roomForLocked(userID)
	user := s.userByIDLocked(userID)
	s.mutex.Unlock()

	s.hub.register(conn, room.ID)
	defer func() {
		s.hub.unregister(conn)
		conn.Close()
	}()

	for {
		var env realtime.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return nil
		}
		switch env.Type {
		case realtime.EventSendMessage:
			s.handleSend(room.ID, user, &env)
		case realtime.EventTyping:
			s.hub.relay(room.ID, conn, &env)
		default:
			logger.Debug("Stub ignoring event type %q", env.Type)
		}
	}
}

func (s *Server) userByIDLocked(userID string) entity.User {
	for _, user := range s.users {
		if user.ID == userID {
			return user
		}
	}
	return entity.User{ID: userID}
}

func (s *Server) handleSend(roomID string, sender entity.User, env *realtime.Envelope) {
	var payload realtime.SendMessagePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		logger.Warn("Stub received bad send_message payload: %v", err)
		return
	}

	msg := s.storeMessage(roomID, sender.ID, displayName(sender), payload.Content)
	s.broadcastMessage(roomID, msg)

	if s.AutoReply {
		go func() {
			time.Sleep(400 * time.Millisecond)
			reply := s.storeMessage(roomID, "0", "Support", "Thanks for your message! An agent will be with you shortly.")
			s.broadcastMessage(roomID, reply)
		}()
	}
}

func (s *Server) storeMessage(roomID, senderID, senderName, content string) entity.ChatMessage {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	msg := entity.ChatMessage{
		ID:         s.nextServerID("msg"),
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: senderName,
		Content:    content,
		CreatedAt:  time.Now(),
	}
	s.messages[roomID] = append(s.messages[roomID], msg)

	for _, room := range s.rooms {
		if room.ID == roomID {
			room.LastMessage = content
			room.LastMessageAt = msg.CreatedAt
		}
	}
	return msg
}

func (s *Server) broadcastMessage(roomID string, msg entity.ChatMessage) {
	env, err := realtime.NewEnvelope(realtime.EventChatMessage, msg.SenderID, msg)
	if err != nil {
		logger.Error("Stub failed to encode message: %v", err)
		return
	}
	s.hub.broadcast(roomID, env)
}

func displayName(user entity.User) string {
	if user.FullName != "" {
		return user.FullName
	}
	return user.Username
}
