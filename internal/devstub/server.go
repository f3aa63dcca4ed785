// Package devstub is an in-memory stand-in for the storefront backend: the
// REST collaborators and the realtime endpoint the sync layer talks to. It
// backs cmd/devstub for local development and the integration tests.
package devstub

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"shopsync/internal/domain/entity"
)

type Server struct {
	echo   *echo.Echo
	secret []byte

	mutex         sync.Mutex
	users         map[string]entity.User // by username
	passwords     map[string]string
	products      map[string]*entity.Product
	carts         map[string]*entity.Cart            // by user id
	notifications map[string][]entity.Notification   // by user id
	rooms         map[string]*entity.ChatRoom        // by customer id
	messages      map[string][]entity.ChatMessage    // by room id
	nextID        int

	hub *hub

	// AutoReply makes the stub answer customer messages with a canned
	// support response, so the chat CLI has a peer to talk to.
	AutoReply bool
}

func NewServer(secret string) *Server {
	s := &Server{
		secret:        []byte(secret),
		users:         make(map[string]entity.User),
		passwords:     make(map[string]string),
		products:      make(map[string]*entity.Product),
		carts:         make(map[string]*entity.Cart),
		notifications: make(map[string][]entity.Notification),
		rooms:         make(map[string]*entity.ChatRoom),
		messages:      make(map[string][]entity.ChatMessage),
	}
	s.hub = newHub()

	s.seed()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	api := e.Group("/api")
	api.POST("/auth/login", s.login)
	api.POST("/auth/register", s.register)

	authed := api.Group("", s.authenticate)
	authed.GET("/chat/room", s.getRoom)
	authed.GET("/chat/room/:id/messages", s.getMessages)
	authed.POST("/chat/room/:id/read", s.markRoomRead)
	authed.GET("/notifications/user/:id", s.listNotifications)
	authed.GET("/notifications/user/:id/unread-count", s.unreadCount)
	authed.PATCH("/notifications/:id/read", s.markNotificationRead)
	authed.PATCH("/notifications/user/:id/read", s.markAllNotificationsRead)
	authed.GET("/cart/:userId", s.getCart)
	authed.POST("/cart/:userId/product/:productId", s.addToCart)
	authed.GET("/products/:id", s.getProduct)

	e.GET("/ws", s.serveWS)

	s.echo = e
	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) seed() {
	s.addUser(entity.User{ID: "1", Username: "alice", Email: "alice@example.com", FullName: "Alice Nguyen", Role: "CUSTOMER"}, "password")
	s.addUser(entity.User{ID: "2", Username: "bob", Email: "bob@example.com", FullName: "Bob Tran", Role: "CUSTOMER"}, "password")

	s.products["p1"] = &entity.Product{ID: "p1", Name: "Wireless Mouse", Price: 19.9, StockQuantity: 25}
	s.products["p2"] = &entity.Product{ID: "p2", Name: "Mechanical Keyboard", Price: 89.0, StockQuantity: 3}
	s.products["p3"] = &entity.Product{ID: "p3", Name: "USB-C Hub", Price: 39.5, StockQuantity: 0}

	s.notifications["1"] = []entity.Notification{
		{ID: "n1", UserID: "1", Title: "Welcome", Message: "Thanks for joining the store", CreatedAt: time.Now()},
	}
}

func (s *Server) addUser(user entity.User, password string) {
	s.users[user.Username] = user
	s.passwords[user.Username] = password
}

func (s *Server) nextServerID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func (s *Server) issueToken(userID string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) userIDFromToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header is required")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization format")
		}

		userID, err := s.userIDFromToken(parts[1])
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}

		c.Set("uid", userID)
		return next(c)
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	s.mutex.Lock()
	user, ok := s.users[req.Username]
	password := s.passwords[req.Username]
	s.mutex.Unlock()

	if !ok || password != req.Password {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid username or password")
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to issue token")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"user":          user,
		"access_token":  token,
		"refresh_token": token,
	})
}

func (s *Server) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.Username == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Username and password are required")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, exists := s.users[req.Username]; exists {
		return echo.NewHTTPError(http.StatusConflict, "Username already taken")
	}
	user := entity.User{
		ID:       s.nextServerID("u"),
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Role:     "CUSTOMER",
	}
	s.users[req.Username] = user
	s.passwords[req.Username] = req.Password

	return c.JSON(http.StatusCreated, user)
}

// getRoom returns the caller's support room, creating it on first use.
func (s *Server) getRoom(c echo.Context) error {
	userID := c.Get("uid").(string)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	room := s.roomForLocked(userID)
	return c.JSON(http.StatusOK, room)
}

func (s *Server) roomForLocked(userID string) *entity.ChatRoom {
	if room, ok := s.rooms[userID]; ok {
		return room
	}
	room := &entity.ChatRoom{
		ID:         s.nextServerID("room"),
		CustomerID: userID,
		CreatedAt:  time.Now(),
	}
	s.rooms[userID] = room
	return room
}

func (s *Server) getMessages(c echo.Context) error {
	roomID := c.Param("id")

	s.mutex.Lock()
	history := append([]entity.ChatMessage(nil), s.messages[roomID]...)
	s.mutex.Unlock()

	// Newest first, matching the backend's paging order.
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return c.JSON(http.StatusOK, history)
}

func (s *Server) markRoomRead(c echo.Context) error {
	roomID := c.Param("id")

	s.mutex.Lock()
	for _, room := range s.rooms {
		if room.ID == roomID {
			room.UnreadCountForUser = 0
		}
	}
	s.mutex.Unlock()
	return c.NoContent(http.StatusOK)
}

func (s *Server) listNotifications(c echo.Context) error {
	userID := c.Param("id")

	s.mutex.Lock()
	list := append([]entity.Notification(nil), s.notifications[userID]...)
	s.mutex.Unlock()
	return c.JSON(http.StatusOK, list)
}

func (s *Server) unreadCount(c echo.Context) error {
	userID := c.Param("id")

	s.mutex.Lock()
	total := 0
	for _, n := range s.notifications[userID] {
		if !n.Read {
			total++
		}
	}
	s.mutex.Unlock()
	return c.JSON(http.StatusOK, map[string]int{"total": total})
}

func (s *Server) markNotificationRead(c echo.Context) error {
	notificationID := c.Param("id")

	s.mutex.Lock()
	defer s.mutex.Unlock()
	for userID, list := range s.notifications {
		for i := range list {
			if list[i].ID == notificationID {
				list[i].Read = true
				s.notifications[userID] = list
				return c.NoContent(http.StatusOK)
			}
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "Notification not found")
}

func (s *Server) markAllNotificationsRead(c echo.Context) error {
	userID := c.Param("id")

	s.mutex.Lock()
	list := s.notifications[userID]
	for i := range list {
		list[i].Read = true
	}
	s.notifications[userID] = list
	s.mutex.Unlock()
	return c.NoContent(http.StatusOK)
}

func (s *Server) getCart(c echo.Context) error {
	userID := c.Param("userId")

	s.mutex.Lock()
	defer s.mutex.Unlock()
	cart := s.cartForLocked(userID)
	return c.JSON(http.StatusOK, cart)
}

func (s *Server) cartForLocked(userID string) *entity.Cart {
	if cart, ok := s.carts[userID]; ok {
		return cart
	}
	cart := &entity.Cart{ID: s.nextServerID("cart"), UserID: userID}
	s.carts[userID] = cart
	return cart
}

func (s *Server) addToCart(c echo.Context) error {
	userID := c.Param("userId")
	productID := c.Param("productId")

	quantity := 1
	if q := c.QueryParam("quantity"); q != "" {
		if _, err := fmt.Sscanf(q, "%d", &quantity); err != nil || quantity < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid quantity")
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Product not found")
	}

	cart := s.cartForLocked(userID)
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity += quantity
			return c.JSON(http.StatusOK, cart)
		}
	}
	cart.Items = append(cart.Items, entity.CartItem{
		ID:        s.nextServerID("item"),
		ProductID: productID,
		Quantity:  quantity,
		Price:     product.Price,
	})
	return c.JSON(http.StatusOK, cart)
}

func (s *Server) getProduct(c echo.Context) error {
	productID := c.Param("id")

	s.mutex.Lock()
	product, ok := s.products[productID]
	s.mutex.Unlock()

	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Product not found")
	}
	return c.JSON(http.StatusOK, product)
}

// SetStock adjusts a seeded product's stock; used by tests.
func (s *Server) SetStock(productID string, stock int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if product, ok := s.products[productID]; ok {
		product.StockQuantity = stock
	}
}
