package entity

import "time"

type Product struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	ImageURL      string  `json:"image_url,omitempty"`
	StockQuantity int     `json:"stock_quantity"`
}

// GuestCartLine is a cart line held in local device storage for an
// unauthenticated visitor. Display fields are denormalized at add time.
type GuestCartLine struct {
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	Price       float64   `json:"price"`
	ImageURL    string    `json:"image_url,omitempty"`
	Quantity    int       `json:"quantity"`
	Stock       int       `json:"stock"` // stock observed when the line was added
	AddedAt     time.Time `json:"added_at"`
}

type CartItem struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type Cart struct {
	ID     string     `json:"id"`
	UserID string     `json:"user_id"`
	Items  []CartItem `json:"items"`
}
