package devstub

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopsync/internal/adapter/rest"
	"shopsync/internal/domain/entity"
	"shopsync/internal/guestcart"
	"shopsync/internal/realtime"
	"shopsync/internal/session"
	"shopsync/pkg/eventbus"
)

type restAuthAdapter struct {
	client *rest.AuthClient
}

func (a restAuthAdapter) Login(ctx context.Context, username, password string) (*session.LoginResult, error) {
	res, err := a.client.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return &session.LoginResult{
		User:         res.User,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	}, nil
}

// fixture wires the full client stack against an in-memory stub backend.
type fixture struct {
	stub    *Server
	manager *session.Manager
	cart    *guestcart.Cart
	client  *realtime.Client
	carts   *rest.CartClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	stub := NewServer("dev-secret")
	server := httptest.NewServer(stub.Handler())
	t.Cleanup(server.Close)

	var manager *session.Manager
	token := func() string {
		if manager == nil {
			return ""
		}
		return manager.Token()
	}

	api := rest.NewClient(server.URL+"/api", 5*time.Second, token)
	bus := eventbus.New()
	cart := guestcart.New(guestcart.NewMemoryStorage(), bus)
	syncer := guestcart.NewSyncer(cart, rest.NewProductClient(api), rest.NewCartClient(api))

	client := realtime.NewClient(realtime.Options{
		URL:           "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
		Token:         token,
		ReconnectBase: 20 * time.Millisecond,
		ReconnectMax:  100 * time.Millisecond,
		TypingQuiet:   50 * time.Millisecond,
	}, rest.NewChatClient(api), rest.NewNotificationClient(api), bus)
	t.Cleanup(client.Disconnect)

	manager = session.NewManager(restAuthAdapter{rest.NewAuthClient(api)}, syncer, client, bus)

	return &fixture{
		stub:    stub,
		manager: manager,
		cart:    cart,
		client:  client,
		carts:   rest.NewCartClient(api),
	}
}

func TestLoginMergesGuestCartWithClamping(t *testing.T) {
	f := newFixture(t)

	_, err := f.cart.Add(entity.Product{ID: "p1", Name: "Wireless Mouse", StockQuantity: 25}, 2)
	require.NoError(t, err)
	_, err = f.cart.Add(entity.Product{ID: "p2", Name: "Mechanical Keyboard", StockQuantity: 3}, 3)
	require.NoError(t, err)

	// Stock drops between browsing and login.
	f.stub.SetStock("p2", 1)

	report, err := f.manager.Login(context.Background(), "alice", "password")
	require.NoError(t, err)

	require.Len(t, report, 2)
	assert.Equal(t, guestcart.StatusMerged, report[0].Status)
	assert.Equal(t, 2, report[0].Merged)
	assert.Equal(t, guestcart.StatusAdjusted, report[1].Status)
	assert.Equal(t, 1, report[1].Merged)

	assert.Empty(t, f.cart.Lines())

	serverCart, err := f.carts.GetCart(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, serverCart.Items, 2)
	assert.Equal(t, 2, serverCart.Items[0].Quantity)
	assert.Equal(t, 1, serverCart.Items[1].Quantity)
}

func TestLoginSkipsExhaustedProducts(t *testing.T) {
	f := newFixture(t)

	f.stub.SetStock("p3", 4)
	_, err := f.cart.Add(entity.Product{ID: "p3", Name: "USB-C Hub", StockQuantity: 4}, 2)
	require.NoError(t, err)
	f.stub.SetStock("p3", 0)

	report, err := f.manager.Login(context.Background(), "alice", "password")
	require.NoError(t, err)

	require.Len(t, report, 1)
	assert.Equal(t, guestcart.StatusOutOfStock, report[0].Status)

	serverCart, err := f.carts.GetCart(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, serverCart.Items)
}

func TestChatRoundTripAssignsServerIDs(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Login(context.Background(), "alice", "password")
	require.NoError(t, err)
	require.Eventually(t, f.client.Connected, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return f.client.Room() != nil
	}, 2*time.Second, 5*time.Millisecond)

	require.True(t, f.client.SendMessage("hello there"))

	require.Eventually(t, func() bool {
		for _, msg := range f.client.Messages() {
			if strings.HasPrefix(msg.ID, "msg-") && msg.Content == "hello there" {
				return !msg.Pending
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	// The confirmed own message does not count as unread; only the seeded
	// welcome notification does.
	assert.Equal(t, 1, f.client.UnreadCount())
}

func TestMarkAllReadConfirmsWithServer(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Login(context.Background(), "alice", "password")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.client.UnreadCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	f.client.MarkAllRead()
	assert.Equal(t, 0, f.client.UnreadCount())

	// Server agrees once the best-effort confirmation lands.
	require.Eventually(t, func() bool {
		f.stub.mutex.Lock()
		defer f.stub.mutex.Unlock()
		for _, n := range f.stub.notifications["1"] {
			if !n.Read {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
}

func TestLogoutTearsDownConnection(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Login(context.Background(), "alice", "password")
	require.NoError(t, err)
	require.Eventually(t, f.client.Connected, 2*time.Second, 5*time.Millisecond)

	f.manager.Logout()
	assert.Equal(t, realtime.StateDisconnected, f.client.State())
	assert.Empty(t, f.manager.Token())
}
