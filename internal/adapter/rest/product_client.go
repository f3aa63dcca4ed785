package rest

import (
	"context"
	"fmt"

	"shopsync/internal/domain/entity"
)

type ProductClient struct {
	client *Client
}

func NewProductClient(client *Client) *ProductClient {
	return &ProductClient{client: client}
}

// GetProduct fetches product detail; the merge flow uses it as the live
// stock lookup.
func (p *ProductClient) GetProduct(ctx context.Context, productID string) (*entity.Product, error) {
	var out entity.Product
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/products/%s", productID))
	if err := check(resp, err, "product"); err != nil {
		return nil, err
	}
	return &out, nil
}
