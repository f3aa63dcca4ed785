package session

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"shopsync/internal/domain/entity"
	"shopsync/internal/guestcart"
	"shopsync/pkg/eventbus"
	"shopsync/pkg/logger"
)

// Authenticator is the auth REST collaborator.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
}

type LoginResult struct {
	User         entity.User
	AccessToken  string
	RefreshToken string
}

// CartSyncer merges the guest cart once after a successful login.
type CartSyncer interface {
	Sync(ctx context.Context, userID string) []guestcart.LineResult
}

// Realtime is the messaging client lifecycle driven by identity changes.
type Realtime interface {
	Connect(user entity.User)
	Disconnect()
}

// Manager owns the authenticated identity: it exposes the access token to
// the REST layer, merges the guest cart immediately after login, and tears
// the realtime connection down on logout. The connection is never shared
// across identities.
type Manager struct {
	auth     Authenticator
	syncer   CartSyncer
	realtime Realtime
	bus      *eventbus.Bus

	mutex        sync.RWMutex
	user         *entity.User
	accessToken  string
	refreshToken string
}

func NewManager(auth Authenticator, syncer CartSyncer, realtime Realtime, bus *eventbus.Bus) *Manager {
	return &Manager{auth: auth, syncer: syncer, realtime: realtime, bus: bus}
}

// Token implements rest.TokenProvider.
func (m *Manager) Token() string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.accessToken
}

func (m *Manager) CurrentUser() *entity.User {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.user == nil {
		return nil
	}
	user := *m.user
	return &user
}

// Login authenticates, stores the session, merges the guest cart and brings
// the realtime connection up. The merge report is returned so the caller can
// surface adjusted or skipped lines.
func (m *Manager) Login(ctx context.Context, username, password string) ([]guestcart.LineResult, error) {
	result, err := m.auth.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	user := result.User
	if claims := parseClaims(result.AccessToken); claims != nil {
		if user.ID == "" {
			user.ID = claims.Subject
		}
		if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
			logger.Warn("Access token for user %s is already expired", user.ID)
		}
	}

	// A previous identity's connection must be gone before the new one is
	// established.
	if m.realtime != nil {
		m.realtime.Disconnect()
	}

	m.mutex.Lock()
	m.user = &user
	m.accessToken = result.AccessToken
	m.refreshToken = result.RefreshToken
	m.mutex.Unlock()

	if m.bus != nil {
		m.bus.Publish(eventbus.TopicUserUpdated, &user)
	}

	var report []guestcart.LineResult
	if m.syncer != nil {
		report = m.syncer.Sync(ctx, user.ID)
	}
	if m.realtime != nil {
		m.realtime.Connect(user)
	}
	return report, nil
}

// Logout clears the session and tears down the realtime connection. Safe to
// call when not logged in.
func (m *Manager) Logout() {
	m.mutex.Lock()
	wasLoggedIn := m.user != nil
	m.user = nil
	m.accessToken = ""
	m.refreshToken = ""
	m.mutex.Unlock()

	if m.realtime != nil {
		m.realtime.Disconnect()
	}
	if wasLoggedIn && m.bus != nil {
		m.bus.Publish(eventbus.TopicUserUpdated, (*entity.User)(nil))
	}
}

// parseClaims reads the token's registered claims without verifying the
// signature; verification is the server's job, the client only needs the
// subject and expiry.
func parseClaims(token string) *jwt.RegisteredClaims {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		logger.Debug("Could not parse access token claims: %v", err)
		return nil
	}
	return claims
}
