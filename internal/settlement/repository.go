package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/mrp/internal/platform/numeric"
)

// Repository reads invoices from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const invoiceColumns = `id, number, COALESCE(total::text, ''), COALESCE(total_paid::text, ''),
COALESCE(settled_advance_payments::text, ''), COALESCE(required_advance_payment_percentage::text, ''),
due_date, is_proforma`

// GetInvoice loads one invoice with its proforma allocations.
func (r *Repository) GetInvoice(ctx context.Context, id string) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	allocs, err := r.allocations(ctx, []string{inv.ID})
	if err != nil {
		return Invoice{}, err
	}
	inv.ProformAllocation = allocs[inv.ID]
	return inv, nil
}

// ListOpenInvoices returns invoices not yet closed in the store.
func (r *Repository) ListOpenInvoices(ctx context.Context) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE status NOT IN ('paid','cancelled') ORDER BY due_date NULLS LAST, id`)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

// ListInvoicesByProforma returns invoices carrying an allocation from the proforma.
func (r *Repository) ListInvoicesByProforma(ctx context.Context, proformaID string) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE id IN (SELECT invoice_id FROM invoice_proforma_allocations WHERE proforma_id = $1) ORDER BY id`, proformaID)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

func (r *Repository) collect(ctx context.Context, rows pgx.Rows) ([]Invoice, error) {
	defer rows.Close()
	var invoices []Invoice
	var ids []string
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
		ids = append(ids, inv.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return invoices, nil
	}
	allocs, err := r.allocations(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range invoices {
		invoices[i].ProformAllocation = allocs[invoices[i].ID]
	}
	return invoices, nil
}

func (r *Repository) allocations(ctx context.Context, invoiceIDs []string) (map[string][]ProformaAllocation, error) {
	rows, err := r.pool.Query(ctx, `SELECT invoice_id, proforma_id, COALESCE(amount::text, '')
FROM invoice_proforma_allocations WHERE invoice_id = ANY($1) ORDER BY invoice_id, proforma_id`, invoiceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]ProformaAllocation, len(invoiceIDs))
	for rows.Next() {
		var invoiceID, proformaID, amount string
		if err := rows.Scan(&invoiceID, &proformaID, &amount); err != nil {
			return nil, err
		}
		out[invoiceID] = append(out[invoiceID], ProformaAllocation{ProformaID: proformaID, Amount: numeric.OrZero(amount)})
	}
	return out, rows.Err()
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv                                  Invoice
		total, paid, advance, requiredAdvPct string
		due                                  *time.Time
	)
	if err := row.Scan(&inv.ID, &inv.Number, &total, &paid, &advance, &requiredAdvPct, &due, &inv.IsProforma); err != nil {
		return Invoice{}, err
	}
	inv.Total = numeric.OrZero(total)
	inv.TotalPaid = numeric.OrZero(paid)
	inv.SettledAdvancePayments = numeric.OrZero(advance)
	inv.RequiredAdvancePaymentPercentage = numeric.OrZero(requiredAdvPct)
	inv.DueDate = due
	return inv, nil
}
