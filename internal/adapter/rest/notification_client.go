package rest

import (
	"context"
	"fmt"

	"shopsync/internal/domain/entity"
)

type NotificationClient struct {
	client *Client
}

func NewNotificationClient(client *Client) *NotificationClient {
	return &NotificationClient{client: client}
}

func (n *NotificationClient) ListByUser(ctx context.Context, userID string) ([]entity.Notification, error) {
	var out []entity.Notification
	resp, err := n.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/notifications/user/%s", userID))
	if err := check(resp, err, "notifications"); err != nil {
		return nil, err
	}
	return out, nil
}

func (n *NotificationClient) UnreadCount(ctx context.Context, userID string) (int, error) {
	var out struct {
		Total int `json:"total"`
	}
	resp, err := n.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/notifications/user/%s/unread-count", userID))
	if err := check(resp, err, "notification unread count"); err != nil {
		return 0, err
	}
	return out.Total, nil
}

func (n *NotificationClient) MarkRead(ctx context.Context, notificationID, userID string) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"user_id": userID}).
		Patch(fmt.Sprintf("/notifications/%s/read", notificationID))
	return check(resp, err, "notification mark read")
}

func (n *NotificationClient) MarkAllRead(ctx context.Context, userID string) error {
	resp, err := n.client.R().
		SetContext(ctx).
		Patch(fmt.Sprintf("/notifications/user/%s/read", userID))
	return check(resp, err, "notification mark all read")
}
