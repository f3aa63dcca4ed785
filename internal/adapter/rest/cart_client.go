package rest

import (
	"context"
	"fmt"
	"strconv"

	"shopsync/internal/domain/entity"
)

type CartClient struct {
	client *Client
}

func NewCartClient(client *Client) *CartClient {
	return &CartClient{client: client}
}

func (c *CartClient) GetCart(ctx context.Context, userID string) (*entity.Cart, error) {
	var out entity.Cart
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/cart/%s", userID))
	if err := check(resp, err, "cart"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *CartClient) AddToCart(ctx context.Context, userID, productID string, quantity int) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("quantity", strconv.Itoa(quantity)).
		Post(fmt.Sprintf("/cart/%s/product/%s", userID, productID))
	return check(resp, err, "add to cart")
}
