package realtime

import (
	"encoding/json"
	"time"
)

// WebSocket event types
const (
	EventChatMessage  = "chat_message"
	EventNotification = "notification"
	EventTyping       = "typing"
	EventSendMessage  = "send_message"
)

// Envelope is the wire format for every event in both directions.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	SenderID  string          `json:"sender_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewEnvelope(eventType, senderID string, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Type:      eventType,
		Payload:   data,
		SenderID:  senderID,
		CreatedAt: time.Now(),
	}, nil
}

// SendMessagePayload is the client → server chat submission.
type SendMessagePayload struct {
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
	TempID  string `json:"temp_id"`
}
