package entity

import "time"

type ChatRoom struct {
	ID                 string    `json:"id"`
	CustomerID         string    `json:"customer_id"`
	CustomerName       string    `json:"customer_name,omitempty"`
	LastMessage        string    `json:"last_message,omitempty"`
	LastMessageAt      time.Time `json:"last_message_at"`
	UnreadCountForUser int       `json:"unread_count_for_user"`
	CreatedAt          time.Time `json:"created_at"`
}

type ChatMessage struct {
	ID         string    `json:"id"` // server-assigned; "temp-" prefix for local echoes
	RoomID     string    `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	OwnMessage bool      `json:"own_message"`
	Pending    bool      `json:"pending,omitempty"` // optimistic echo not yet confirmed
}

type TypingNotification struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Typing   bool   `json:"typing"`
}
