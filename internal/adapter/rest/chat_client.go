package rest

import (
	"context"
	"fmt"
	"strconv"

	"shopsync/internal/domain/entity"
)

type ChatClient struct {
	client *Client
}

func NewChatClient(client *Client) *ChatClient {
	return &ChatClient{client: client}
}

// GetRoom returns the caller's support chat room, creating it server-side on
// first use.
func (c *ChatClient) GetRoom(ctx context.Context) (*entity.ChatRoom, error) {
	var out entity.ChatRoom
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/chat/room")
	if err := check(resp, err, "chat room"); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMessages returns one page of room history, newest first.
func (c *ChatClient) GetMessages(ctx context.Context, roomID string, page, size int) ([]entity.ChatMessage, error) {
	var out []entity.ChatMessage
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("page", strconv.Itoa(page)).
		SetQueryParam("size", strconv.Itoa(size)).
		SetResult(&out).
		Get(fmt.Sprintf("/chat/room/%s/messages", roomID))
	if err := check(resp, err, "chat messages"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ChatClient) MarkRead(ctx context.Context, roomID string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		Post(fmt.Sprintf("/chat/room/%s/read", roomID))
	return check(resp, err, "chat mark read")
}
