package eventbus

import (
	"sort"
	"sync"
)

// Topics published by the sync layer. Subscribers get the raw payload and
// assert the type they expect.
const (
	TopicUserUpdated  = "user_updated"
	TopicCartUpdated  = "cart_updated"
	TopicNotification = "notification"
)

type Handler func(payload interface{})

type Subscription struct {
	topic string
	id    int
}

// Bus is a small in-process pub/sub channel used instead of ambient global
// events. Publish is synchronous and delivers in subscription order.
type Bus struct {
	mutex    sync.RWMutex
	nextID   int
	handlers map[string]map[int]Handler
}

func New() *Bus {
	return &Bus{
		handlers: make(map[string]map[int]Handler),
	}
}

func (b *Bus) Subscribe(topic string, handler Handler) Subscription {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.nextID++
	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[int]Handler)
	}
	b.handlers[topic][b.nextID] = handler

	return Subscription{topic: topic, id: b.nextID}
}

func (b *Bus) Unsubscribe(sub Subscription) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if handlers, ok := b.handlers[sub.topic]; ok {
		delete(handlers, sub.id)
	}
}

func (b *Bus) Publish(topic string, payload interface{}) {
	b.mutex.RLock()
	handlers := make([]Handler, 0, len(b.handlers[topic]))
	ids := make([]int, 0, len(b.handlers[topic]))
	for id := range b.handlers[topic] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		handlers = append(handlers, b.handlers[topic][id])
	}
	b.mutex.RUnlock()

	for _, handler := range handlers {
		handler(payload)
	}
}
