package store

import "time"

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	Stock       int       `json:"stock"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type User struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name,omitempty"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Age       int       `json:"age,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Purchase struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	UserName     string         `json:"user,omitempty"`
	TotalCents   int64          `json:"total_cents"`
	Status       Status         `json:"status"`
	PurchaseDate time.Time      `json:"purchase_date"`
	Details      []PurchaseLine `json:"details"`
}

// PurchaseLine is a snapshot of one line at time of sale: PriceCents is the
// unit price as sold, not the product's current catalog price.
type PurchaseLine struct {
	ID            string `json:"id"`
	PurchaseID    string `json:"-"`
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product,omitempty"`
	Quantity      int    `json:"quantity"`
	PriceCents    int64  `json:"price_cents"`
	SubtotalCents int64  `json:"subtotal_cents"`
}

type LineItemInput struct {
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

// PurchasePatch enumerates the updatable header fields. Nil means "leave
// untouched"; a non-nil Items slice replaces the whole line-item set.
type PurchasePatch struct {
	UserID *string
	Status *Status
	Items  []LineItemInput
}
