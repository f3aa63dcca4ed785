package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"shopsync/internal/domain/entity"
	"shopsync/pkg/eventbus"
	"shopsync/pkg/logger"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// ChatHistory is the REST collaborator used to reconcile events missed while
// offline.
type ChatHistory interface {
	GetRoom(ctx context.Context) (*entity.ChatRoom, error)
	GetMessages(ctx context.Context, roomID string, page, size int) ([]entity.ChatMessage, error)
	MarkRead(ctx context.Context, roomID string) error
}

type NotificationHistory interface {
	ListByUser(ctx context.Context, userID string) ([]entity.Notification, error)
	MarkAllRead(ctx context.Context, userID string) error
}

type Options struct {
	URL             string
	Token           func() string
	ReconnectBase   time.Duration // first retry delay, doubled per attempt
	ReconnectMax    time.Duration // backoff ceiling
	TypingQuiet     time.Duration // quiet window before typing=false is emitted
	PeerTypingTTL   time.Duration // incoming typing indicator auto-clear
	HistoryPageSize int

	OnMessage      func(entity.ChatMessage)
	OnNotification func(entity.Notification)
	OnTyping       func(bool) // peer typing indicator changes
	OnStateChange  func(State)
}

func (o *Options) applyDefaults() {
	if o.ReconnectBase <= 0 {
		o.ReconnectBase = 5 * time.Second
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = 60 * time.Second
	}
	if o.TypingQuiet <= 0 {
		o.TypingQuiet = time.Second
	}
	if o.PeerTypingTTL <= 0 {
		o.PeerTypingTTL = 3 * time.Second
	}
	if o.HistoryPageSize <= 0 {
		o.HistoryPageSize = 50
	}
}

// Client owns exactly one live WebSocket connection for the current user and
// translates wire events into ordered, deduplicated state. All methods are
// safe for concurrent use and never panic across the boundary; failures
// surface through state and logs only.
type Client struct {
	opts          Options
	chat          ChatHistory
	notifications NotificationHistory
	bus           *eventbus.Bus

	mutex      sync.Mutex
	generation int
	state      State
	user       entity.User
	conn       *websocket.Conn
	cancel     context.CancelFunc

	room       *entity.ChatRoom
	messages   []entity.ChatMessage
	seen       map[string]bool
	notifs     []entity.Notification
	unread     int
	peerBusy   bool
	peerTimer  *time.Timer
	quietTimer *time.Timer

	writeMutex    sync.Mutex
	dispatchMutex sync.Mutex
}

func NewClient(opts Options, chat ChatHistory, notifications NotificationHistory, bus *eventbus.Bus) *Client {
	opts.applyDefaults()
	return &Client{
		opts:          opts,
		chat:          chat,
		notifications: notifications,
		bus:           bus,
		seen:          make(map[string]bool),
	}
}

// Connect establishes the connection for user. Calling again for the same
// user while connecting or connected is a no-op; a different user tears the
// previous connection down first. The socket is never shared across
// identities.
func (c *Client) Connect(user entity.User) {
	c.mutex.Lock()
	if c.state != StateDisconnected && c.user.ID == user.ID {
		c.mutex.Unlock()
		return
	}
	if c.state != StateDisconnected {
		c.teardownLocked()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.user = user
	c.state = StateConnecting
	c.generation++
	gen := c.generation
	c.mutex.Unlock()

	c.notifyState(gen, StateConnecting)
	go c.run(ctx, gen)
}

// Disconnect tears the connection down. It is safe to call repeatedly; no
// message or notification callback fires after it returns.
func (c *Client) Disconnect() {
	c.mutex.Lock()
	c.teardownLocked()
	c.mutex.Unlock()

	// Barrier: an in-flight dispatch holds this mutex, so returning after
	// acquiring it guarantees no further callbacks.
	c.dispatchMutex.Lock()
	c.dispatchMutex.Unlock() //nolint:staticcheck // empty critical section is the point
}

// teardownLocked invalidates the running connection goroutine. Callers hold
// c.mutex.
func (c *Client) teardownLocked() {
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.peerTimer != nil {
		c.peerTimer.Stop()
		c.peerTimer = nil
	}
	if c.quietTimer != nil {
		c.quietTimer.Stop()
		c.quietTimer = nil
	}
	c.state = StateDisconnected
	c.peerBusy = false
}

func (c *Client) run(ctx context.Context, gen int) {
	delay := c.opts.ReconnectBase

	for {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, c.header())
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("WebSocket dial failed, retrying in %s: %v", delay, err)
			c.setState(gen, StateReconnecting)
			if !sleep(ctx, delay) {
				return
			}
			delay = nextDelay(delay, c.opts.ReconnectMax)
			continue
		}
		delay = c.opts.ReconnectBase

		if !c.attach(gen, conn) {
			conn.Close()
			return
		}
		c.setState(gen, StateConnected)
		logger.Info("WebSocket connected for user %s", c.User().ID)

		// Reconcile anything missed while offline before streaming live
		// events. Failures leave prior state untouched.
		c.refreshHistory(ctx, gen)

		c.readLoop(ctx, gen, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		logger.Warn("WebSocket closed, reconnecting in %s", delay)
		c.setState(gen, StateReconnecting)
		if !sleep(ctx, delay) {
			return
		}
		delay = nextDelay(delay, c.opts.ReconnectMax)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextDelay(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		next = max
	}
	return next
}

func (c *Client) header() http.Header {
	header := http.Header{}
	if c.opts.Token != nil {
		if t := c.opts.Token(); t != "" {
			header.Set("Authorization", "Bearer "+t)
		}
	}
	return header
}

func (c *Client) attach(gen int, conn *websocket.Conn) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.generation != gen {
		return false
	}
	c.conn = conn
	return true
}

func (c *Client) setState(gen int, state State) {
	c.mutex.Lock()
	if c.generation != gen {
		c.mutex.Unlock()
		return
	}
	changed := c.state != state
	c.state = state
	c.mutex.Unlock()

	if changed {
		c.notifyState(gen, state)
	}
}

func (c *Client) notifyState(gen int, state State) {
	if c.opts.OnStateChange == nil {
		return
	}
	c.dispatchMutex.Lock()
	defer c.dispatchMutex.Unlock()
	if c.currentGeneration() == gen {
		c.opts.OnStateChange(state)
	}
}

func (c *Client) currentGeneration() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.generation
}

func (c *Client) readLoop(ctx context.Context, gen int, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket read error: %v", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Warn("Dropping malformed event: %v", err)
			continue
		}
		c.handleEvent(gen, &env)
	}
}

func (c *Client) handleEvent(gen int, env *Envelope) {
	switch env.Type {
	case EventChatMessage:
		var msg entity.ChatMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			logger.Warn("Bad chat_message payload: %v", err)
			return
		}
		c.handleChatMessage(gen, msg)

	case EventNotification:
		var notif entity.Notification
		if err := json.Unmarshal(env.Payload, &notif); err != nil {
			logger.Warn("Bad notification payload: %v", err)
			return
		}
		c.handleNotification(gen, notif)

	case EventTyping:
		var typing entity.TypingNotification
		if err := json.Unmarshal(env.Payload, &typing); err != nil {
			logger.Warn("Bad typing payload: %v", err)
			return
		}
		c.handleTyping(gen, typing)

	default:
		logger.Debug("Ignoring unknown event type %q", env.Type)
	}
}

func (c *Client) handleChatMessage(gen int, msg entity.ChatMessage) {
	c.mutex.Lock()
	if c.generation != gen {
		c.mutex.Unlock()
		return
	}

	// A confirmed message supersedes any optimistic local echo.
	kept := c.messages[:0]
	for _, m := range c.messages {
		if !m.Pending {
			kept = append(kept, m)
		}
	}
	c.messages = kept

	// Reconnect replays may deliver a message twice; append each id once.
	if msg.ID != "" && c.seen[msg.ID] {
		c.mutex.Unlock()
		return
	}
	msg.OwnMessage = msg.SenderID == c.user.ID
	if msg.ID != "" {
		c.seen[msg.ID] = true
	}
	c.messages = append(c.messages, msg)
	if !msg.OwnMessage {
		c.unread++
	}
	c.mutex.Unlock()

	if c.opts.OnMessage != nil {
		c.dispatchMutex.Lock()
		if c.currentGeneration() == gen {
			c.opts.OnMessage(msg)
		}
		c.dispatchMutex.Unlock()
	}
}

func (c *Client) handleNotification(gen int, notif entity.Notification) {
	c.mutex.Lock()
	if c.generation != gen {
		c.mutex.Unlock()
		return
	}
	if notif.ID != "" && c.seen[notif.ID] {
		c.mutex.Unlock()
		return
	}
	if notif.ID != "" {
		c.seen[notif.ID] = true
	}
	c.notifs = append(c.notifs, notif)
	if !notif.Read {
		c.unread++
	}
	c.mutex.Unlock()

	c.dispatchMutex.Lock()
	if c.currentGeneration() == gen {
		if c.bus != nil {
			c.bus.Publish(eventbus.TopicNotification, notif)
		}
		if c.opts.OnNotification != nil {
			c.opts.OnNotification(notif)
		}
	}
	c.dispatchMutex.Unlock()
}

func (c *Client) handleTyping(gen int, typing entity.TypingNotification) {
	c.mutex.Lock()
	if c.generation != gen || typing.UserID == c.user.ID {
		c.mutex.Unlock()
		return
	}
	changed := c.peerBusy != typing.Typing
	c.peerBusy = typing.Typing

	if c.peerTimer != nil {
		c.peerTimer.Stop()
		c.peerTimer = nil
	}
	if typing.Typing {
		// Auto-clear if the peer goes quiet without an explicit stop.
		c.peerTimer = time.AfterFunc(c.opts.PeerTypingTTL, func() {
			c.clearPeerTyping(gen)
		})
	}
	c.mutex.Unlock()

	if changed {
		c.notifyTyping(gen, typing.Typing)
	}
}

func (c *Client) clearPeerTyping(gen int) {
	c.mutex.Lock()
	if c.generation != gen || !c.peerBusy {
		c.mutex.Unlock()
		return
	}
	c.peerBusy = false
	c.peerTimer = nil
	c.mutex.Unlock()

	c.notifyTyping(gen, false)
}

func (c *Client) notifyTyping(gen int, typing bool) {
	if c.opts.OnTyping == nil {
		return
	}
	c.dispatchMutex.Lock()
	defer c.dispatchMutex.Unlock()
	if c.currentGeneration() == gen {
		c.opts.OnTyping(typing)
	}
}

// refreshHistory refetches the chat room, message history and notification
// list. History arrives newest first and is reversed for display order. An
// empty room is seeded with a welcome message.
func (c *Client) refreshHistory(ctx context.Context, gen int) {
	room, err := c.chat.GetRoom(ctx)
	if err != nil {
		logger.Error("Error loading chat room: %v", err)
		return
	}

	history, err := c.chat.GetMessages(ctx, room.ID, 0, c.opts.HistoryPageSize)
	if err != nil {
		logger.Error("Error loading chat messages: %v", err)
		return
	}
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}

	notifs, err := c.notifications.ListByUser(ctx, c.User().ID)
	if err != nil {
		// Notifications are secondary; keep whatever list we had.
		logger.Warn("Error loading notifications: %v", err)
		notifs = nil
	}

	c.mutex.Lock()
	if c.generation != gen {
		c.mutex.Unlock()
		return
	}

	c.room = room
	c.seen = make(map[string]bool)
	c.messages = c.messages[:0]
	for _, msg := range history {
		if msg.ID != "" && c.seen[msg.ID] {
			continue
		}
		msg.OwnMessage = msg.SenderID == c.user.ID
		if msg.ID != "" {
			c.seen[msg.ID] = true
		}
		c.messages = append(c.messages, msg)
	}
	if len(c.messages) == 0 {
		welcome := entity.ChatMessage{
			ID:         "welcome-msg",
			RoomID:     room.ID,
			SenderID:   "0",
			SenderName: "Support",
			Content:    "Hi! Welcome to the store. How can we help you today?",
			CreatedAt:  time.Now(),
		}
		c.seen[welcome.ID] = true
		c.messages = append(c.messages, welcome)
	}

	c.unread = room.UnreadCountForUser
	if notifs != nil {
		c.notifs = notifs
		for _, n := range notifs {
			if n.ID != "" {
				c.seen[n.ID] = true
			}
			if !n.Read {
				c.unread++
			}
		}
	}
	c.mutex.Unlock()
}

// SendMessage submits content to the room. It reports false without a
// network call when the content trims to empty or the client is not
// connected; callers are expected to check Connected first. An optimistic
// local echo is appended immediately and replaced by the server copy.
func (c *Client) SendMessage(content string) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}

	c.mutex.Lock()
	if c.state != StateConnected || c.conn == nil || c.room == nil {
		c.mutex.Unlock()
		logger.Debug("SendMessage ignored while not connected")
		return false
	}
	conn := c.conn
	roomID := c.room.ID
	user := c.user

	echo := entity.ChatMessage{
		ID:         "temp-" + uuid.New().String(),
		RoomID:     roomID,
		SenderID:   user.ID,
		SenderName: displayName(user),
		Content:    content,
		CreatedAt:  time.Now(),
		OwnMessage: true,
		Pending:    true,
	}
	c.messages = append(c.messages, echo)
	c.mutex.Unlock()

	env, err := NewEnvelope(EventSendMessage, user.ID, SendMessagePayload{
		RoomID:  roomID,
		Content: content,
		TempID:  echo.ID,
	})
	if err != nil {
		logger.Error("Failed to encode message: %v", err)
		return false
	}
	if err := c.writeJSON(conn, env); err != nil {
		logger.Error("Failed to send message: %v", err)
		return false
	}
	return true
}

// SendTyping signals the peer. A true signal (one per keystroke) reschedules
// a single quiet timer that emits exactly one false once the user stops
// typing; an explicit false cancels it.
func (c *Client) SendTyping(isTyping bool) {
	c.mutex.Lock()
	if c.state != StateConnected || c.conn == nil || c.room == nil {
		c.mutex.Unlock()
		return
	}
	conn := c.conn
	roomID := c.room.ID
	user := c.user
	gen := c.generation

	if c.quietTimer != nil {
		c.quietTimer.Stop()
		c.quietTimer = nil
	}
	if isTyping {
		c.quietTimer = time.AfterFunc(c.opts.TypingQuiet, func() {
			c.quietElapsed(gen)
		})
	}
	c.mutex.Unlock()

	c.writeTyping(conn, roomID, user, isTyping)
}

func (c *Client) quietElapsed(gen int) {
	c.mutex.Lock()
	if c.generation != gen || c.conn == nil || c.room == nil {
		c.mutex.Unlock()
		return
	}
	conn := c.conn
	roomID := c.room.ID
	user := c.user
	c.quietTimer = nil
	c.mutex.Unlock()

	c.writeTyping(conn, roomID, user, false)
}

func (c *Client) writeTyping(conn *websocket.Conn, roomID string, user entity.User, isTyping bool) {
	env, err := NewEnvelope(EventTyping, user.ID, entity.TypingNotification{
		RoomID:   roomID,
		UserID:   user.ID,
		UserName: displayName(user),
		Typing:   isTyping,
	})
	if err != nil {
		logger.Error("Failed to encode typing signal: %v", err)
		return
	}
	// Fire and forget
	if err := c.writeJSON(conn, env); err != nil {
		logger.Debug("Typing signal dropped: %v", err)
	}
}

func (c *Client) writeJSON(conn *websocket.Conn, v interface{}) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	return conn.WriteJSON(v)
}

// MarkAllRead flips every unread notification to read and zeroes the unread
// count in one local update, then best-effort confirms with the server. A
// failed confirmation is logged, never rolled back. Idempotent.
func (c *Client) MarkAllRead() {
	c.mutex.Lock()
	c.unread = 0
	for i := range c.notifs {
		c.notifs[i].Read = true
	}
	var roomID string
	if c.room != nil {
		roomID = c.room.ID
	}
	userID := c.user.ID
	c.mutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if roomID != "" {
		if err := c.chat.MarkRead(ctx, roomID); err != nil {
			logger.Warn("Error marking chat as read: %v", err)
		}
	}
	if userID != "" {
		if err := c.notifications.MarkAllRead(ctx, userID); err != nil {
			logger.Warn("Error marking notifications as read: %v", err)
		}
	}
}

func (c *Client) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

func (c *Client) User() entity.User {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.user
}

func (c *Client) Room() *entity.ChatRoom {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.room == nil {
		return nil
	}
	room := *c.room
	return &room
}

// Messages returns a snapshot of the ordered history.
func (c *Client) Messages() []entity.ChatMessage {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]entity.ChatMessage(nil), c.messages...)
}

func (c *Client) Notifications() []entity.Notification {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]entity.Notification(nil), c.notifs...)
}

func (c *Client) UnreadCount() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.unread
}

func (c *Client) PeerTyping() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.peerBusy
}

func displayName(user entity.User) string {
	if user.FullName != "" {
		return user.FullName
	}
	return user.Username
}
