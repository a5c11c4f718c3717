package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Engine runs every multi-step purchase mutation inside a single
// transaction: either the full effect (header, lines, stock adjustments)
// commits, or none of it is observable.
type Engine struct{ DB DB }

// reserveStock claims qty units of a product's stock. The conditional
// decrement is also the availability check, so two transactions can never
// claim the same units. The follow-up read only runs on the failure path,
// to tell a missing product from a short one.
func reserveStock(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	ct, err := tx.Exec(ctx,
		`UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`,
		productID, qty)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	var available int
	err = tx.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{Kind: "product", ID: productID}
	}
	if err != nil {
		return fmt.Errorf("read stock: %w", err)
	}
	return errInsufficientStock(productID, available, qty)
}

// restoreStock releases a prior reservation.
func restoreStock(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	if _, err := tx.Exec(ctx,
		`UPDATE products SET stock = stock + $2 WHERE id = $1`, productID, qty); err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	return nil
}

// CreatePurchase validates items, then atomically reserves stock and writes
// the header plus one line per item. Validation and the total ceiling are
// checked before the transaction opens, so a rejected purchase never touches
// stock.
func (e *Engine) CreatePurchase(ctx context.Context, userID string, status Status, items []LineItemInput) (*Purchase, error) {
	if userID == "" {
		return nil, &ValidationError{Code: CodeMissingFields, Message: "user_id is required"}
	}
	if status == "" {
		status = StatusPending
	}
	if err := ValidateLineItems(items); err != nil {
		return nil, err
	}
	total, err := ComputeTotal(items)
	if err != nil {
		return nil, err
	}

	tx, err := e.DB.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, it := range items {
		if err := reserveStock(ctx, tx, it.ProductID, it.Quantity); err != nil {
			return nil, err
		}
	}

	p := &Purchase{
		ID:           uuid.NewString(),
		UserID:       userID,
		TotalCents:   total,
		Status:       status,
		PurchaseDate: time.Now().UTC(),
		Details:      make([]PurchaseLine, 0, len(items)),
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO purchases(id, user_id, total_cents, status, purchase_date)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.UserID, p.TotalCents, string(p.Status), p.PurchaseDate); err != nil {
		if isForeignKeyViolation(err) {
			return nil, &NotFoundError{Kind: "user", ID: userID}
		}
		return nil, fmt.Errorf("insert purchase: %w", err)
	}
	for _, it := range items {
		line := PurchaseLine{
			ID:            uuid.NewString(),
			PurchaseID:    p.ID,
			ProductID:     it.ProductID,
			Quantity:      it.Quantity,
			PriceCents:    it.PriceCents,
			SubtotalCents: int64(it.Quantity) * it.PriceCents,
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO purchase_details(id, purchase_id, product_id, quantity, price_cents, subtotal_cents)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			line.ID, line.PurchaseID, line.ProductID, line.Quantity, line.PriceCents, line.SubtotalCents); err != nil {
			return nil, fmt.Errorf("insert purchase detail: %w", err)
		}
		p.Details = append(p.Details, line)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

const purchaseJoinSQL = `
	SELECT p.id, p.user_id,
	       COALESCE(u.first_name || ' ' || u.last_name, '') AS user_name,
	       p.total_cents, p.status, p.purchase_date,
	       pd.id, pd.product_id, pr.name,
	       pd.quantity, pd.price_cents, pd.subtotal_cents
	FROM purchases p
	LEFT JOIN users u ON p.user_id = u.id
	LEFT JOIN purchase_details pd ON p.id = pd.purchase_id
	LEFT JOIN products pr ON pd.product_id = pr.id`

func scanPurchaseRows(rows pgx.Rows) ([]purchaseRow, error) {
	defer rows.Close()
	var out []purchaseRow
	for rows.Next() {
		var r purchaseRow
		var status string
		if err := rows.Scan(&r.ID, &r.UserID, &r.UserName, &r.TotalCents, &status, &r.PurchaseDate,
			&r.DetailID, &r.ProductID, &r.ProductName, &r.Quantity, &r.PriceCents, &r.SubtotalCents); err != nil {
			return nil, err
		}
		r.Status = Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetPurchase returns one purchase with its nested line items.
func (e *Engine) GetPurchase(ctx context.Context, id string) (*Purchase, error) {
	rows, err := e.DB.Query(ctx, purchaseJoinSQL+` WHERE p.id = $1 ORDER BY pd.id`, id)
	if err != nil {
		return nil, fmt.Errorf("query purchase: %w", err)
	}
	flat, err := scanPurchaseRows(rows)
	if err != nil {
		return nil, fmt.Errorf("scan purchase: %w", err)
	}
	if len(flat) == 0 {
		return nil, &NotFoundError{Kind: "purchase", ID: id}
	}
	ps := assemblePurchases(flat)
	return &ps[0], nil
}

// ListPurchases returns all purchases, newest first, each with its nested
// line items. An empty ledger yields an empty, non-nil slice.
func (e *Engine) ListPurchases(ctx context.Context) ([]Purchase, error) {
	rows, err := e.DB.Query(ctx, purchaseJoinSQL+` ORDER BY p.purchase_date DESC, pd.id`)
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	flat, err := scanPurchaseRows(rows)
	if err != nil {
		return nil, fmt.Errorf("scan purchases: %w", err)
	}
	return assemblePurchases(flat), nil
}

// UpdatePurchase applies a patch to a non-terminal purchase. A non-nil
// Items slice replaces the whole line-item set: old reservations are
// released before new ones are checked, so replacing a product with the
// same or smaller quantity always passes the stock check. Everything runs
// in one transaction; any failure also rolls back the released stock.
func (e *Engine) UpdatePurchase(ctx context.Context, id string, patch PurchasePatch) error {
	if patch.Items != nil {
		if err := ValidateLineItems(patch.Items); err != nil {
			return err
		}
	}

	tx, err := e.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := lockPurchaseStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if cur.Terminal() {
		return errImmutable()
	}

	if patch.Items != nil {
		total, err := ComputeTotal(patch.Items)
		if err != nil {
			return err
		}

		old, err := readLineQuantities(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, o := range old {
			if err := restoreStock(ctx, tx, o.ProductID, o.Quantity); err != nil {
				return err
			}
		}
		for _, it := range patch.Items {
			if err := reserveStock(ctx, tx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM purchase_details WHERE purchase_id = $1`, id); err != nil {
			return fmt.Errorf("delete purchase details: %w", err)
		}
		for _, it := range patch.Items {
			if _, err := tx.Exec(ctx, `
				INSERT INTO purchase_details(id, purchase_id, product_id, quantity, price_cents, subtotal_cents)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				uuid.NewString(), id, it.ProductID, it.Quantity, it.PriceCents,
				int64(it.Quantity)*it.PriceCents); err != nil {
				return fmt.Errorf("insert purchase detail: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, `UPDATE purchases SET total_cents = $2 WHERE id = $1`, id, total); err != nil {
			return fmt.Errorf("update purchase total: %w", err)
		}
	}

	// Header fields come from an enumerated patch struct, never from a
	// caller-built assignment list.
	set := make([]string, 0, 2)
	args := []any{id}
	if patch.UserID != nil {
		args = append(args, *patch.UserID)
		set = append(set, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if patch.Status != nil {
		args = append(args, string(*patch.Status))
		set = append(set, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(set) > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE purchases SET `+strings.Join(set, ", ")+` WHERE id = $1`, args...); err != nil {
			if patch.UserID != nil && isForeignKeyViolation(err) {
				return &NotFoundError{Kind: "user", ID: *patch.UserID}
			}
			return fmt.Errorf("update purchase: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CancelPurchase restores every line's quantity to its product's stock and
// removes the purchase, atomically. Completed purchases cannot be cancelled.
func (e *Engine) CancelPurchase(ctx context.Context, id string) error {
	tx, err := e.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := lockPurchaseStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if cur.Terminal() {
		return errImmutable()
	}

	old, err := readLineQuantities(ctx, tx, id)
	if err != nil {
		return err
	}
	for _, o := range old {
		if err := restoreStock(ctx, tx, o.ProductID, o.Quantity); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM purchase_details WHERE purchase_id = $1`, id); err != nil {
		return fmt.Errorf("delete purchase details: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM purchases WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete purchase: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// lockPurchaseStatus reads the header status under a row lock so a
// concurrent update or cancel of the same purchase serializes here.
func lockPurchaseStatus(ctx context.Context, tx pgx.Tx, id string) (Status, error) {
	var s string
	err := tx.QueryRow(ctx, `SELECT status FROM purchases WHERE id = $1 FOR UPDATE`, id).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", &NotFoundError{Kind: "purchase", ID: id}
	}
	if err != nil {
		return "", fmt.Errorf("read purchase status: %w", err)
	}
	return Status(s), nil
}

type lineQty struct {
	ProductID string
	Quantity  int
}

func readLineQuantities(ctx context.Context, tx pgx.Tx, purchaseID string) ([]lineQty, error) {
	rows, err := tx.Query(ctx,
		`SELECT product_id, quantity FROM purchase_details WHERE purchase_id = $1`, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("read purchase details: %w", err)
	}
	defer rows.Close()
	var out []lineQty
	for rows.Next() {
		var l lineQty
		if err := rows.Scan(&l.ProductID, &l.Quantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
