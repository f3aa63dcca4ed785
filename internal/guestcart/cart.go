package guestcart

import (
	"encoding/json"
	"sync"
	"time"

	"shopsync/internal/domain/entity"
	"shopsync/pkg/eventbus"
	"shopsync/pkg/logger"
)

type AddStatus int

const (
	AddOK AddStatus = iota
	AddCapped     // quantity reduced to the stock observed at add time
	AddOutOfStock // nothing added
)

// Cart owns the guest cart entry in local storage. Lines are unique by
// product id; re-adding sums quantities. Insertion order is preserved.
type Cart struct {
	storage Storage
	bus     *eventbus.Bus
	mutex   sync.Mutex
}

func New(storage Storage, bus *eventbus.Bus) *Cart {
	return &Cart{storage: storage, bus: bus}
}

func (c *Cart) load() []entity.GuestCartLine {
	data, err := c.storage.Get(storageKey)
	if err != nil {
		logger.Warn("Failed to read guest cart: %v", err)
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	var lines []entity.GuestCartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		logger.Warn("Corrupt guest cart entry, starting empty: %v", err)
		return nil
	}
	return lines
}

func (c *Cart) save(lines []entity.GuestCartLine) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	return c.storage.Set(storageKey, data)
}

// Add upserts a line for the product. The stock observed on the product caps
// the resulting quantity; a product reporting no stock is rejected outright.
func (c *Cart) Add(product entity.Product, quantity int) (AddStatus, error) {
	if quantity < 1 {
		quantity = 1
	}

	c.mutex.Lock()
	lines := c.load()
	maxStock := product.StockQuantity

	status := AddOK
	found := false
	for i := range lines {
		if lines[i].ProductID != product.ID {
			continue
		}
		found = true
		next := lines[i].Quantity + quantity
		if maxStock > 0 && next > maxStock {
			next = maxStock
			status = AddCapped
		}
		lines[i].Quantity = next
		lines[i].Stock = maxStock
		break
	}

	if !found {
		if maxStock <= 0 {
			c.mutex.Unlock()
			return AddOutOfStock, nil
		}
		initial := quantity
		if initial > maxStock {
			initial = maxStock
			status = AddCapped
		}
		lines = append(lines, entity.GuestCartLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Price:       product.Price,
			ImageURL:    product.ImageURL,
			Quantity:    initial,
			Stock:       maxStock,
			AddedAt:     time.Now(),
		})
	}

	err := c.save(lines)
	c.mutex.Unlock()
	if err != nil {
		return status, err
	}

	c.publishCount(lines)
	return status, nil
}

// Lines returns the cart in insertion order. Repeated calls without a
// mutation in between return the same sequence.
func (c *Cart) Lines() []entity.GuestCartLine {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.load()
}

func (c *Cart) Count() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	total := 0
	for _, line := range c.load() {
		total += line.Quantity
	}
	return total
}

func (c *Cart) Clear() error {
	c.mutex.Lock()
	err := c.storage.Remove(storageKey)
	c.mutex.Unlock()
	if err != nil {
		return err
	}

	c.publishCount(nil)
	return nil
}

func (c *Cart) publishCount(lines []entity.GuestCartLine) {
	if c.bus == nil {
		return
	}
	total := 0
	for _, line := range lines {
		total += line.Quantity
	}
	c.bus.Publish(eventbus.TopicCartUpdated, total)
}
