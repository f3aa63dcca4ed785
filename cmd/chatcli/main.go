package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"shopsync/internal/adapter/rest"
	"shopsync/internal/domain/entity"
	"shopsync/internal/guestcart"
	"shopsync/internal/realtime"
	"shopsync/internal/session"
	"shopsync/pkg/config"
	"shopsync/pkg/eventbus"
)

type restAuth struct {
	client *rest.AuthClient
}

func (a restAuth) Login(ctx context.Context, username, password string) (*session.LoginResult, error) {
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

func main() {
	username := flag.String("username", "alice", "store account username")
	password := flag.String("password", "password", "store account password")
	demoCart := flag.Bool("demo-cart", false, "seed a guest cart before login to show the merge report")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	bus := eventbus.New()
	bus.Subscribe(eventbus.TopicCartUpdated, func(payload interface{}) {
		fmt.Printf("[cart] %v item(s)\n", payload)
	})

	var manager *session.Manager
	token := func() string {
		if manager == nil {
			return ""
		}
		return manager.Token()
	}

	api := rest.NewClient(cfg.APIBaseURL, cfg.RequestTimeout, token)

	cart := guestcart.New(guestcart.NewFileStorage(cfg.GuestCartPath), bus)
	syncer := guestcart.NewSyncer(cart, rest.NewProductClient(api), rest.NewCartClient(api))

	client := realtime.NewClient(realtime.Options{
		URL:             cfg.WebSocketURL,
		Token:           token,
		ReconnectBase:   cfg.ReconnectBase,
		ReconnectMax:    cfg.ReconnectMax,
		TypingQuiet:     cfg.TypingQuiet,
		HistoryPageSize: cfg.HistoryPageSize,
		OnMessage: func(msg entity.ChatMessage) {
			if msg.OwnMessage {
				return
			}
			fmt.Printf("%s: %s\n", msg.SenderName, msg.Content)
		},
		OnNotification: func(notif entity.Notification) {
			fmt.Printf("[notification] %s: %s\n", notif.Title, notif.Message)
		},
		OnTyping: func(typing bool) {
			if typing {
				fmt.Println("[peer is typing...]")
			}
		},
		OnStateChange: func(state realtime.State) {
			fmt.Printf("[connection: %s]\n", state)
		},
	}, rest.NewChatClient(api), rest.NewNotificationClient(api), bus)
	defer client.Disconnect()

	manager = session.NewManager(restAuth{rest.NewAuthClient(api)}, syncer, client, bus)

	if *demoCart {
		cart.Add(entity.Product{ID: "p1", Name: "Wireless Mouse", Price: 19.9, StockQuantity: 25}, 2)
		cart.Add(entity.Product{ID: "p2", Name: "Mechanical Keyboard", Price: 89.0, StockQuantity: 3}, 3)
	}

	report, err := manager.Login(context.Background(), *username, *password)
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}
	fmt.Printf("Logged in as %s\n", *username)
	for _, line := range report {
		switch line.Status {
		case guestcart.StatusAdjusted:
			fmt.Printf("[cart] quantity for %s adjusted to %d by available stock\n", line.ProductName, line.Merged)
		case guestcart.StatusOutOfStock:
			fmt.Printf("[cart] %s is out of stock and was skipped\n", line.ProductName)
		case guestcart.StatusFailed:
			fmt.Printf("[cart] %s could not be merged\n", line.ProductName)
		default:
			fmt.Printf("[cart] %s x%d moved to your cart\n", line.ProductName, line.Merged)
		}
	}

	fmt.Println("Type a message and press enter. Commands: /read, /unread, /quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		switch {
		case text == "":
			continue
		case text == "/quit":
			manager.Logout()
			return
		case text == "/read":
			client.MarkAllRead()
			fmt.Println("[all notifications marked read]")
		case text == "/unread":
			fmt.Printf("[unread: %d]\n", client.UnreadCount())
		default:
			client.SendTyping(true)
			if !client.SendMessage(text) {
				fmt.Println("[not connected, message dropped]")
			}
		}
	}
	manager.Logout()
}
