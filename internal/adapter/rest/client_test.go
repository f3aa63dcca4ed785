package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopsync/internal/domain/entity"
	"shopsync/pkg/errors"
)

func newTestClient(t *testing.T, handler http.Handler, token string) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(server.URL, 5*time.Second, func() string { return token })
	return client, server
}

func TestBearerTokenAttached(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(entity.Cart{UserID: "42"})
	}), "token-123")

	cart, err := NewCartClient(client).GetCart(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "42", cart.UserID)
	assert.Equal(t, "Bearer token-123", gotAuth)
}

func TestNoHeaderWhenLoggedOut(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(entity.Product{ID: "7", StockQuantity: 3})
	}), "")

	product, err := NewProductClient(client).GetProduct(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, 3, product.StockQuantity)
	assert.Empty(t, gotAuth)
}

func TestStatusMappedToAppError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), "")

	_, err := NewProductClient(client).GetProduct(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestAddToCartSendsQuantityParam(t *testing.T) {
	var gotPath, gotQuantity string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuantity = r.URL.Query().Get("quantity")
		w.WriteHeader(http.StatusOK)
	}), "t")

	err := NewCartClient(client).AddToCart(context.Background(), "42", "7", 2)
	require.NoError(t, err)
	assert.Equal(t, "/cart/42/product/7", gotPath)
	assert.Equal(t, "2", gotQuantity)
}

func TestUnreadCountParsesTotal(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]int{"total": 5})
	}), "t")

	count, err := NewNotificationClient(client).UnreadCount(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close() // force connection refused

	client := NewClient(server.URL, time.Second, nil)
	_, err := NewChatClient(client).GetRoom(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, "UNAVAILABLE"))
}
