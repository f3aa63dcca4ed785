package guestcart

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopsync/internal/domain/entity"
)

type fakeStock struct {
	stock map[string]int
	err   error
}

func (f *fakeStock) GetProduct(_ context.Context, productID string) (*entity.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &entity.Product{ID: productID, StockQuantity: f.stock[productID]}, nil
}

type addCall struct {
	userID    string
	productID string
	quantity  int
}

type fakeCartService struct {
	calls   []addCall
	failFor map[string]error
}

func (f *fakeCartService) AddToCart(_ context.Context, userID, productID string, quantity int) error {
	if err := f.failFor[productID]; err != nil {
		return err
	}
	f.calls = append(f.calls, addCall{userID: userID, productID: productID, quantity: quantity})
	return nil
}

func TestSyncClampsQuantityToLiveStock(t *testing.T) {
	cart := New(NewMemoryStorage(), nil)
	_, err := cart.Add(product("7", 3), 3)
	require.NoError(t, err)

	carts := &fakeCartService{}
	syncer := NewSyncer(cart, &fakeStock{stock: map[string]int{"7": 1}}, carts)

	results := syncer.Sync(context.Background(), "42")

	require.Len(t, carts.calls, 1)
	assert.Equal(t, addCall{userID: "42", productID: "7", quantity: 1}, carts.calls[0])

	require.Len(t, results, 1)
	assert.Equal(t, StatusAdjusted, results[0].Status)
	assert.Equal(t, 3, results[0].Requested)
	assert.Equal(t, 1, results[0].Merged)

	assert.Empty(t, cart.Lines())
}

func TestSyncSkipsOutOfStockLines(t *testing.T) {
	cart := New(NewMemoryStorage(), nil)
	cart.Add(product("a", 5), 1)
	cart.Add(product("b", 10), 2)

	carts := &fakeCartService{}
	syncer := NewSyncer(cart, &fakeStock{stock: map[string]int{"a": 0, "b": 10}}, carts)

	results := syncer.Sync(context.Background(), "42")

	// No add-to-cart call is issued for the exhausted product.
	require.Len(t, carts.calls, 1)
	assert.Equal(t, addCall{userID: "42", productID: "b", quantity: 2}, carts.calls[0])

	require.Len(t, results, 2)
	assert.Equal(t, StatusOutOfStock, results[0].Status)
	assert.Equal(t, StatusMerged, results[1].Status)

	assert.Empty(t, cart.Lines())
}

func TestSyncIsolatesPerLineFailures(t *testing.T) {
	cart := New(NewMemoryStorage(), nil)
	cart.Add(product("a", 5), 1)
	cart.Add(product("b", 5), 1)

	carts := &fakeCartService{failFor: map[string]error{"a": errors.New("boom")}}
	syncer := NewSyncer(cart, &fakeStock{stock: map[string]int{"a": 5, "b": 5}}, carts)

	results := syncer.Sync(context.Background(), "42")

	require.Len(t, results, 2)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Error(t, results[0].Err)
	assert.Equal(t, StatusMerged, results[1].Status)

	// The failure on line one does not block line two, and the cart is
	// cleared once the pass finishes.
	require.Len(t, carts.calls, 1)
	assert.Equal(t, "b", carts.calls[0].productID)
	assert.Empty(t, cart.Lines())
}

func TestSyncFallsBackToCachedStockOnLookupFailure(t *testing.T) {
	cart := New(NewMemoryStorage(), nil)
	cart.Add(product("7", 2), 4) // capped to 2, cached stock 2

	carts := &fakeCartService{}
	syncer := NewSyncer(cart, &fakeStock{err: errors.New("lookup down")}, carts)

	results := syncer.Sync(context.Background(), "42")

	require.Len(t, carts.calls, 1)
	assert.Equal(t, 2, carts.calls[0].quantity)
	require.Len(t, results, 1)
	assert.Equal(t, StatusMerged, results[0].Status)
}

func TestSyncEmptyCartIsNoOp(t *testing.T) {
	cart := New(NewMemoryStorage(), nil)
	carts := &fakeCartService{}
	syncer := NewSyncer(cart, &fakeStock{}, carts)

	results := syncer.Sync(context.Background(), "42")

	assert.Nil(t, results)
	assert.Empty(t, carts.calls)
}

func TestSyncProcessesLinesInInsertionOrder(t *testing.T) {
	cart := New(NewMemoryStorage(), nil)
	cart.Add(product("a", 5), 1)
	cart.Add(product("b", 5), 1)
	cart.Add(product("c", 5), 1)

	carts := &fakeCartService{}
	syncer := NewSyncer(cart, &fakeStock{stock: map[string]int{"a": 5, "b": 5, "c": 5}}, carts)
	syncer.Sync(context.Background(), "42")

	var order []string
	for _, call := range carts.calls {
		order = append(order, call.productID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, order)
}
