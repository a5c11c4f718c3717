package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) (*Engine, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &Engine{DB: mock}, mock
}

var joinCols = []string{
	"id", "user_id", "user_name", "total_cents", "status", "purchase_date",
	"detail_id", "product_id", "product_name", "quantity", "price_cents", "subtotal_cents",
}

func TestCreatePurchase(t *testing.T) {
	ctx := context.Background()

	t.Run("reserves stock and writes header plus lines atomically", func(t *testing.T) {
		e, mock := newEngine(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE products SET stock = stock -`).
			WithArgs("prod-1", 2).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`UPDATE products SET stock = stock -`).
			WithArgs("prod-2", 1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`INSERT INTO purchases`).
			WithArgs(pgxmock.AnyArg(), "user-1", int64(2900), "PENDING", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`INSERT INTO purchase_details`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "prod-1", 2, int64(1200), int64(2400)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`INSERT INTO purchase_details`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "prod-2", 1, int64(500), int64(500)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		p, err := e.CreatePurchase(ctx, "user-1", StatusPending, []LineItemInput{
			item("prod-1", 2, 1200),
			item("prod-2", 1, 500),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2900), p.TotalCents)
		require.Len(t, p.Details, 2)

		var sum int64
		for _, d := range p.Details {
			assert.Equal(t, int64(d.Quantity)*d.PriceCents, d.SubtotalCents)
			sum += d.SubtotalCents
		}
		assert.Equal(t, p.TotalCents, sum)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("six items fail before any transaction opens", func(t *testing.T) {
		e, mock := newEngine(t)

		items := make([]LineItemInput, 6)
		for i := range items {
			items[i] = item("prod-1", 1, 100)
		}
		_, err := e.CreatePurchase(ctx, "user-1", StatusPending, items)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, CodeTooManyItems, ve.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("total over the ceiling fails before any transaction opens", func(t *testing.T) {
		e, mock := newEngine(t)

		_, err := e.CreatePurchase(ctx, "user-1", StatusPending,
			[]LineItemInput{item("prod-1", 1, 350001)})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, CodeTotalExceeded, ve.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("total exactly at the ceiling succeeds", func(t *testing.T) {
		e, mock := newEngine(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE products SET stock = stock -`).
			WithArgs("prod-1", 1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`INSERT INTO purchases`).
			WithArgs(pgxmock.AnyArg(), "user-1", int64(350000), "PENDING", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`INSERT INTO purchase_details`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "prod-1", 1, int64(350000), int64(350000)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		p, err := e.CreatePurchase(ctx, "user-1", StatusPending,
			[]LineItemInput{item("prod-1", 1, 350000)})
		require.NoError(t, err)
		assert.Equal(t, int64(350000), p.TotalCents)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient stock rolls back with the shortfall", func(t *testing.T) {
		e, mock := newEngine(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE products SET stock = stock -`).
			WithArgs("prod-1", 4).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT stock FROM products`).
			WithArgs("prod-1").
			WillReturnRows(pgxmock.NewRows([]string{"stock"}).AddRow(3))
		mock.ExpectRollback()

		_, err := e.CreatePurchase(ctx, "user-1", StatusPending,
			[]LineItemInput{item("prod-1", 4, 100)})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, CodeInsufficientStock, ve.Code)
		assert.Equal(t, "prod-1", ve.ProductID)
		assert.Equal(t, 3, ve.Available)
		assert.Equal(t, 4, ve.Requested)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown product rolls back with not found", func(t *testing.T) {
		e, mock := newEngine(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE products SET stock = stock -`).
			WithArgs("ghost", 1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT stock FROM products`).
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		_, err := e.CreatePurchase(ctx, "user-1", StatusPending,
			[]LineItemInput{item("ghost", 1, 100)})
		var nfe *NotFoundError
		require.ErrorAs(t, err, &nfe)
		assert.Equal(t, "product", nfe.Kind)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second item failing aborts the whole purchase", func(t *testing.T) {
		e, mock := newEngine(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE products SET stock = stock -`).
			WithArgs("prod-1", 1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`UPDATE products SET stock = stock -`).
			WithArgs("prod-2", 9).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT stock FROM products`).
			WithArgs("prod-2").
			WillReturnRows(pgxmock.NewRows([]string{"stock"}).AddRow(1))
		mock.ExpectRollback()

		_, err := e.CreatePurchase(ctx, "user-1", StatusPending, []LineItemInput{
			item("prod-1", 1, 100),
			item("prod-2", 9, 100),
		})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, CodeInsufficientStock, ve.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetPurchase(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("assembles nested purchase", func(t *testing.T) {
		e, mock := newEngine(t)

		mock.ExpectQuery(`SELECT p.id, p.user_id`).
			WithArgs("pur-1").
			WillReturnRows(pgxmock.NewRows(joinCols).
				AddRow("pur-1", "user-1", "Ana Gomez", int64(2400), "PENDING", now,
					sp("d1"), sp("prod-1"), sp("Lamp"), ip(2), i64p(1200), i64p(2400)))

		p, err := e.GetPurchase(ctx, "pur-1")
		require.NoError(t, err)
		assert.Equal(t, "Ana Gomez", p.UserName)
		require.Len(t, p.Details, 1)
		assert.Equal(t, "Lamp", p.Details[0].ProductName)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("header without lines yields empty details", func(t *testing.T) {
		e, mock := newEngine(t)

		mock.ExpectQuery(`SELECT p.id, p.user_id`).
			WithArgs("pur-2").
			WillReturnRows(pgxmock.NewRows(joinCols).
				AddRow("pur-2", "user-1", "Ana Gomez", int64(0), "PENDING", now,
					nil, nil, nil, nil, nil, nil))

		p, err := e.GetPurchase(ctx, "pur-2")
		require.NoError(t, err)
		assert.NotNil(t, p.Details)
		assert.Empty(t, p.Details)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing id is not found", func(t *testing.T) {
		e, mock := newEngine(t)

		mock.ExpectQuery(`SELECT p.id, p.user_id`).
			WithArgs("ghost").
			WillReturnRows(pgxmock.NewRows(joinCols))

		_, err := e.GetPurchase(ctx, "ghost")
		var nfe *NotFoundError
		require.ErrorAs(t, err, &nfe)
		assert.Equal(t, "purchase", nfe.Kind)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListPurchases(t *testing.T) {
	ctx := context.Background()

	t.Run("empty ledger yields empty slice", func(t *testing.T) {
		e, mock := newEngine(t)

		mock.ExpectQuery(`SELECT p.id, p.user_id`).
			WillReturnRows(pgxmock.NewRows(joinCols))

		ps, err := e.ListPurchases(ctx)
		require.NoError(t, err)
		assert.NotNil(t, ps)
		assert.Empty(t, ps)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdatePurchase(t *testing.T) {
	ctx := context.Background()

	t.Run("completed purchases are immutable", func(t *testing.T) {
		e, mock := newEngine(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM purchases`).
			WithArgs("pur-1").
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("COMPLETED"))
		mock.ExpectRollback()

		st := StatusCancelled
		err := e.UpdatePurchase(ctx, "pur-1", PurchasePatch{Status: &st})
		var ce *ConflictError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, ConflictImmutable, ce.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing purchase is not found", func(t *testing.T) {
		e, mock := newEngine(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM purchases`).
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		st := StatusCompleted
		err := e.UpdatePurchase(ctx, "ghost", PurchasePatch{Status: &st})
		var nfe *NotFoundError
		require.ErrorAs(t, err, &nfe)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replacing items releases old stock before reserving new", func(t *testing.T) {
		e, mock := newEngine(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM purchases`).
			WithArgs("pur-1").
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("PENDING"))
		mock.ExpectQuery(`SELECT product_id, quantity FROM purchase_details`).
			WithArgs("pur-1").
			WillReturnRows(pgxmock.NewRows([]string{"product_id", "quantity"}).
				AddRow("prod-1", 2))
		// release first: same product, same quantity nets to zero
		mock.ExpectExec(`UPDATE products SET stock = stock \+`).
			WithArgs("prod-1", 2).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`UPDATE products SET stock = stock -`).
			WithArgs("prod-1", 2).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`DELETE FROM purchase_details`).
			WithArgs("pur-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec(`INSERT INTO purchase_details`).
			WithArgs(pgxmock.AnyArg(), "pur-1", "prod-1", 2, int64(1000), int64(2000)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`UPDATE purchases SET total_cents`).
			WithArgs("pur-1", int64(2000)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		err := e.UpdatePurchase(ctx, "pur-1", PurchasePatch{
			Items: []LineItemInput{item("prod-1", 2, 1000)},
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed reservation rolls back the released stock too", func(t *testing.T) {
		e, mock := newEngine(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM purchases`).
			WithArgs("pur-1").
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("PENDING"))
		mock.ExpectQuery(`SELECT product_id, quantity FROM purchase_details`).
			WithArgs("pur-1").
			WillReturnRows(pgxmock.NewRows([]string{"product_id", "quantity"}).
				AddRow("prod-1", 1))
		mock.ExpectExec(`UPDATE products SET stock = stock \+`).
			WithArgs("prod-1", 1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`UPDATE products SET stock = stock -`).
			WithArgs("prod-2", 10).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT stock FROM products`).
			WithArgs("prod-2").
			WillReturnRows(pgxmock.NewRows([]string{"stock"}).AddRow(4))
		mock.ExpectRollback()

		err := e.UpdatePurchase(ctx, "pur-1", PurchasePatch{
			Items: []LineItemInput{item("prod-2", 10, 100)},
		})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, CodeInsufficientStock, ve.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("header-only patch updates just the supplied fields", func(t *testing.T) {
		e, mock := newEngine(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM purchases`).
			WithArgs("pur-1").
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("PENDING"))
		mock.ExpectExec(`UPDATE purchases SET status =`).
			WithArgs("pur-1", "COMPLETED").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		st := StatusCompleted
		err := e.UpdatePurchase(ctx, "pur-1", PurchasePatch{Status: &st})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid replacement items fail before any transaction opens", func(t *testing.T) {
		e, mock := newEngine(t)

		err := e.UpdatePurchase(ctx, "pur-1", PurchasePatch{Items: []LineItemInput{}})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, CodeEmptyItems, ve.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCancelPurchase(t *testing.T) {
	ctx := context.Background()

	t.Run("restores stock and removes the purchase", func(t *testing.T) {
		e, mock := newEngine(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM purchases`).
			WithArgs("pur-1").
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("PENDING"))
		mock.ExpectQuery(`SELECT product_id, quantity FROM purchase_details`).
			WithArgs("pur-1").
			WillReturnRows(pgxmock.NewRows([]string{"product_id", "quantity"}).
				AddRow("prod-1", 2).
				AddRow("prod-2", 1))
		mock.ExpectExec(`UPDATE products SET stock = stock \+`).
			WithArgs("prod-1", 2).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`UPDATE products SET stock = stock \+`).
			WithArgs("prod-2", 1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`DELETE FROM purchase_details`).
			WithArgs("pur-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
		mock.ExpectExec(`DELETE FROM purchases`).
			WithArgs("pur-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectCommit()

		require.NoError(t, e.CancelPurchase(ctx, "pur-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("completed purchases cannot be cancelled", func(t *testing.T) {
		e, mock := newEngine(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM purchases`).
			WithArgs("pur-1").
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("COMPLETED"))
		mock.ExpectRollback()

		err := e.CancelPurchase(ctx, "pur-1")
		var ce *ConflictError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, ConflictImmutable, ce.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cancelling twice yields not found the second time", func(t *testing.T) {
		e, mock := newEngine(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM purchases`).
			WithArgs("gone").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		err := e.CancelPurchase(ctx, "gone")
		var nfe *NotFoundError
		require.ErrorAs(t, err, &nfe)
		assert.Equal(t, "purchase", nfe.Kind)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
