package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Catalog is the single-row product CRUD surface. Stock is only ever
// mutated here through full updates; purchase-driven adjustments go through
// the Engine's reservation path.
type Catalog struct{ DB DB }

type ProductInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Stock       int    `json:"stock"`
	Image       string `json:"image"`
}

func (in ProductInput) validate() error {
	if in.Name == "" || in.Description == "" {
		return &ValidationError{Code: CodeMissingFields, Message: "name and description are required"}
	}
	if in.PriceCents < 0 {
		return &ValidationError{Code: CodeNegativePrice, Message: "price_cents cannot be negative"}
	}
	if in.Stock < 0 {
		return &ValidationError{Code: CodeNegativeStock, Message: "stock cannot be negative"}
	}
	return nil
}

func (c *Catalog) List(ctx context.Context) ([]Product, error) {
	rows, err := c.DB.Query(ctx, `
		SELECT id, name, description, price_cents, stock, image, created_at
		FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Stock, &p.Image, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *Catalog) Get(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := c.DB.QueryRow(ctx, `
		SELECT id, name, description, price_cents, stock, image, created_at
		FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Stock, &p.Image, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Kind: "product", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

func (c *Catalog) Create(ctx context.Context, in ProductInput) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p := &Product{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		PriceCents:  in.PriceCents,
		Stock:       in.Stock,
		Image:       in.Image,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := c.DB.Exec(ctx, `
		INSERT INTO products(id, name, description, price_cents, stock, image, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.Description, p.PriceCents, p.Stock, p.Image, p.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

func (c *Catalog) Update(ctx context.Context, id string, in ProductInput) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ct, err := c.DB.Exec(ctx, `
		UPDATE products SET name = $2, description = $3, price_cents = $4, stock = $5, image = $6
		WHERE id = $1`,
		id, in.Name, in.Description, in.PriceCents, in.Stock, in.Image)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, &NotFoundError{Kind: "product", ID: id}
	}
	return &Product{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		PriceCents:  in.PriceCents,
		Stock:       in.Stock,
		Image:       in.Image,
	}, nil
}

func (c *Catalog) Delete(ctx context.Context, id string) error {
	ct, err := c.DB.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return &NotFoundError{Kind: "product", ID: id}
	}
	return nil
}
