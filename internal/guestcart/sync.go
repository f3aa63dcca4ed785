package guestcart

import (
	"context"

	"shopsync/internal/domain/entity"
	"shopsync/pkg/logger"
)

// StockLookup resolves live stock for a product at merge time.
type StockLookup interface {
	GetProduct(ctx context.Context, productID string) (*entity.Product, error)
}

// CartService is the server-side cart the guest lines merge into.
type CartService interface {
	AddToCart(ctx context.Context, userID, productID string, quantity int) error
}

type LineStatus string

const (
	StatusMerged     LineStatus = "merged"
	StatusAdjusted   LineStatus = "adjusted" // quantity clamped to live stock
	StatusOutOfStock LineStatus = "out_of_stock"
	StatusFailed     LineStatus = "failed"
)

type LineResult struct {
	ProductID   string
	ProductName string
	Requested   int
	Merged      int
	Status      LineStatus
	Err         error
}

// Syncer performs the one-time transfer of guest cart lines into the
// authenticated user's server-side cart.
type Syncer struct {
	cart  *Cart
	stock StockLookup
	carts CartService
}

func NewSyncer(cart *Cart, stock StockLookup, carts CartService) *Syncer {
	return &Syncer{cart: cart, stock: stock, carts: carts}
}

// Sync merges every guest line into userID's cart, one line at a time and in
// insertion order. Server-side cart writes for the same user are not assumed
// to be serialized, so lines are never sent in parallel. A line's failure is
// logged and isolated; the guest cart is cleared once the pass finishes
// regardless of individual outcomes.
func (s *Syncer) Sync(ctx context.Context, userID string) []LineResult {
	lines := s.cart.Lines()
	if len(lines) == 0 {
		return nil
	}

	results := make([]LineResult, 0, len(lines))
	for _, line := range lines {
		result := LineResult{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Requested:   line.Quantity,
		}

		maxStock := line.Stock
		product, err := s.stock.GetProduct(ctx, line.ProductID)
		if err != nil {
			// Live lookup failed; fall back to the stock cached at add time.
			logger.Warn("Stock lookup failed for product %s, using cached stock %d: %v", line.ProductID, maxStock, err)
		} else {
			maxStock = product.StockQuantity
		}

		if maxStock <= 0 {
			logger.Info("Skipping out-of-stock product %s during cart merge", line.ProductID)
			result.Status = StatusOutOfStock
			results = append(results, result)
			continue
		}

		quantity := line.Quantity
		if quantity > maxStock {
			quantity = maxStock
			result.Status = StatusAdjusted
			logger.Warn("Quantity for product %s adjusted from %d to %d by available stock", line.ProductID, line.Quantity, quantity)
		} else {
			result.Status = StatusMerged
		}

		if err := s.carts.AddToCart(ctx, userID, line.ProductID, quantity); err != nil {
			logger.Error("Sync cart error for product %s: %v", line.ProductID, err)
			result.Status = StatusFailed
			result.Err = err
			results = append(results, result)
			continue
		}

		result.Merged = quantity
		results = append(results, result)
	}

	if err := s.cart.Clear(); err != nil {
		logger.Error("Failed to clear guest cart after merge: %v", err)
	}

	return results
}
