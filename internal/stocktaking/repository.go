package stocktaking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/mrp/internal/platform/db"
	"github.com/odyssey-erp/mrp/internal/platform/numeric"
)

// Repository persists stocktaking data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const stocktakingColumns = `id, name, status, created_at, completed_at, COALESCE(completed_by, 0)`

const itemColumns = `id, stocktaking_id, product_name, COALESCE(batch_id, ''),
COALESCE(system_quantity::text, ''), counted_quantity::text, unit_price::text, accepted`

// GetStocktaking loads a stocktaking header.
func (r *Repository) GetStocktaking(ctx context.Context, id string) (Stocktaking, error) {
	return getStocktaking(ctx, r.pool, `SELECT `+stocktakingColumns+` FROM stocktakings WHERE id = $1`, id)
}

// GetItem loads one item.
func (r *Repository) GetItem(ctx context.Context, id string) (Item, error) {
	return getItem(ctx, r.pool, `SELECT `+itemColumns+` FROM stocktaking_items WHERE id = $1`, id)
}

// ListItems returns the items of a stocktaking ordered by product.
func (r *Repository) ListItems(ctx context.Context, stocktakingID string) ([]Item, error) {
	return listItems(ctx, r.pool, stocktakingID, false)
}

func (t *txRepo) GetStocktakingForUpdate(ctx context.Context, id string) (Stocktaking, error) {
	return getStocktaking(ctx, t.tx, `SELECT `+stocktakingColumns+` FROM stocktakings WHERE id = $1 FOR UPDATE`, id)
}

func (t *txRepo) GetItemForUpdate(ctx context.Context, id string) (Item, error) {
	return getItem(ctx, t.tx, `SELECT `+itemColumns+` FROM stocktaking_items WHERE id = $1 FOR UPDATE`, id)
}

func (t *txRepo) ListItems(ctx context.Context, stocktakingID string) ([]Item, error) {
	return listItems(ctx, t.tx, stocktakingID, true)
}

func (t *txRepo) UpdateItem(ctx context.Context, item Item) error {
	tag, err := t.tx.Exec(ctx, `UPDATE stocktaking_items
SET counted_quantity = $2::numeric, accepted = $3, updated_at = NOW()
WHERE id = $1`, item.ID, numeric.NullText(item.CountedQuantity), item.Accepted)
	if err != nil {
		return fmt.Errorf("stocktaking: update item %s: %w", item.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// ApplyCount makes the counted quantity the new system quantity of the item
// and, for lot-tracked items, of the batch.
func (t *txRepo) ApplyCount(ctx context.Context, item Item) error {
	counted := numeric.NullText(item.CountedQuantity)
	if counted == nil {
		return ErrNotCounted
	}
	if item.BatchID != "" {
		tag, err := t.tx.Exec(ctx, `UPDATE batches SET quantity = $2::numeric, updated_at = NOW() WHERE id = $1`, item.BatchID, *counted)
		if err != nil {
			return fmt.Errorf("stocktaking: apply batch %s: %w", item.BatchID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("stocktaking: batch %s not found", item.BatchID)
		}
	}
	_, err := t.tx.Exec(ctx, `UPDATE stocktaking_items SET system_quantity = $2::numeric, updated_at = NOW() WHERE id = $1`, item.ID, *counted)
	if err != nil {
		return fmt.Errorf("stocktaking: apply item %s: %w", item.ID, err)
	}
	return nil
}

func (t *txRepo) MarkCompleted(ctx context.Context, id string, at time.Time, actorID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE stocktakings SET status = $2, completed_at = $3, completed_by = NULLIF($4::bigint, 0) WHERE id = $1`,
		id, string(StatusCompleted), at, actorID)
	return err
}

func getStocktaking(ctx context.Context, q queryer, sql, id string) (Stocktaking, error) {
	var (
		st     Stocktaking
		status string
	)
	err := q.QueryRow(ctx, sql, id).Scan(&st.ID, &st.Name, &status, &st.CreatedAt, &st.CompletedAt, &st.CompletedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stocktaking{}, ErrStocktakingNotFound
		}
		return Stocktaking{}, err
	}
	st.Status = Status(status)
	return st, nil
}

func getItem(ctx context.Context, q queryer, sql, id string) (Item, error) {
	item, err := scanItem(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func listItems(ctx context.Context, q queryer, stocktakingID string, lock bool) ([]Item, error) {
	sql := `SELECT ` + itemColumns + ` FROM stocktaking_items WHERE stocktaking_id = $1 ORDER BY product_name, id`
	if lock {
		sql += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, sql, stocktakingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(row pgx.Row) (Item, error) {
	var (
		item           Item
		system         string
		counted, price *string
	)
	if err := row.Scan(&item.ID, &item.StocktakingID, &item.ProductName, &item.BatchID, &system, &counted, &price, &item.Accepted); err != nil {
		return Item{}, err
	}
	item.SystemQuantity = numeric.OrZero(system)
	item.CountedQuantity = numeric.NullFrom(counted)
	item.UnitPrice = numeric.NullFrom(price)
	return item, nil
}

// ReservationRepository reads and cancels reservations in PostgreSQL.
type ReservationRepository struct {
	pool *pgxpool.Pool
}

// NewReservationRepository constructs ReservationRepository.
func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

// ListActiveByBatch returns the active reservations of a batch.
func (r *ReservationRepository) ListActiveByBatch(ctx context.Context, batchID string) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, batch_id, COALESCE(quantity::text, ''), COALESCE(task_or_order_ref, ''), COALESCE(display_name, '')
FROM reservations WHERE batch_id = $1 AND status = 'active' ORDER BY created_at, id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		var (
			res Reservation
			qty string
		)
		if err := rows.Scan(&res.ID, &res.BatchID, &qty, &res.TaskOrOrderRef, &res.DisplayName); err != nil {
			return nil, err
		}
		res.Quantity = numeric.OrZero(qty)
		out = append(out, res)
	}
	return out, rows.Err()
}

// Cancel marks the reservations cancelled.
func (r *ReservationRepository) Cancel(ctx context.Context, ids []string, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `UPDATE reservations SET status = 'cancelled', cancelled_at = NOW(), cancel_reason = $2
WHERE id = ANY($1) AND status = 'active'`, ids, reason)
	return err
}
