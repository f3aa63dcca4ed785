package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopsync/internal/domain/entity"
	"shopsync/internal/guestcart"
	"shopsync/pkg/eventbus"
)

type fakeAuth struct {
	result *LoginResult
	err    error
}

func (f *fakeAuth) Login(context.Context, string, string) (*LoginResult, error) {
	return f.result, f.err
}

type fakeSyncer struct {
	calls  []string
	report []guestcart.LineResult
}

func (f *fakeSyncer) Sync(_ context.Context, userID string) []guestcart.LineResult {
	f.calls = append(f.calls, userID)
	return f.report
}

type fakeRealtime struct {
	events []string
}

func (f *fakeRealtime) Connect(user entity.User) {
	f.events = append(f.events, "connect:"+user.ID)
}

func (f *fakeRealtime) Disconnect() {
	f.events = append(f.events, "disconnect")
}

func signedToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("dev-secret"))
	require.NoError(t, err)
	return signed
}

func TestLoginStoresSessionAndRunsMergeBeforeConnect(t *testing.T) {
	auth := &fakeAuth{result: &LoginResult{
		User:        entity.User{ID: "42", Username: "alice"},
		AccessToken: signedToken(t, "42"),
	}}
	syncer := &fakeSyncer{report: []guestcart.LineResult{{ProductID: "7", Status: guestcart.StatusMerged}}}
	realtime := &fakeRealtime{}
	bus := eventbus.New()

	var published []*entity.User
	bus.Subscribe(eventbus.TopicUserUpdated, func(payload interface{}) {
		published = append(published, payload.(*entity.User))
	})

	manager := NewManager(auth, syncer, realtime, bus)
	report, err := manager.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)

	assert.Equal(t, []string{"42"}, syncer.calls)
	require.Len(t, report, 1)
	assert.Equal(t, guestcart.StatusMerged, report[0].Status)

	// Old identity torn down, merge done, then the new connection.
	assert.Equal(t, []string{"disconnect", "connect:42"}, realtime.events)

	assert.Equal(t, auth.result.AccessToken, manager.Token())
	require.NotNil(t, manager.CurrentUser())
	assert.Equal(t, "42", manager.CurrentUser().ID)

	require.Len(t, published, 1)
	assert.Equal(t, "alice", published[0].Username)
}

func TestLoginFillsUserIDFromTokenSubject(t *testing.T) {
	auth := &fakeAuth{result: &LoginResult{
		User:        entity.User{Username: "alice"},
		AccessToken: signedToken(t, "99"),
	}}
	manager := NewManager(auth, nil, nil, nil)

	_, err := manager.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "99", manager.CurrentUser().ID)
}

func TestLoginFailureLeavesSessionEmpty(t *testing.T) {
	manager := NewManager(&fakeAuth{err: errors.New("bad credentials")}, &fakeSyncer{}, &fakeRealtime{}, nil)

	_, err := manager.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.Empty(t, manager.Token())
	assert.Nil(t, manager.CurrentUser())
}

func TestLogoutClearsAndDisconnects(t *testing.T) {
	auth := &fakeAuth{result: &LoginResult{User: entity.User{ID: "42"}, AccessToken: signedToken(t, "42")}}
	realtime := &fakeRealtime{}
	bus := eventbus.New()

	var published []interface{}
	bus.Subscribe(eventbus.TopicUserUpdated, func(payload interface{}) {
		published = append(published, payload)
	})

	manager := NewManager(auth, nil, realtime, bus)
	_, err := manager.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)

	manager.Logout()
	assert.Empty(t, manager.Token())
	assert.Nil(t, manager.CurrentUser())
	assert.Equal(t, "disconnect", realtime.events[len(realtime.events)-1])
	assert.Len(t, published, 2)

	// Logging out again is harmless and publishes nothing new.
	manager.Logout()
	assert.Len(t, published, 2)
}
