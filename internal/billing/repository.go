package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/printhouse/textile-erp/internal/platform/db"
	"github.com/printhouse/textile-erp/internal/pricing"
	"github.com/printhouse/textile-erp/internal/production"
)

// Repository defines invoice persistence and the run claims billing owns.
type Repository interface {
	// ListBillableRuns returns APPROVED, unclaimed runs created within [from, to].
	ListBillableRuns(ctx context.Context, customerEntityID int64, from, to time.Time) ([]production.Run, error)
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error)
	SumTotals(ctx context.Context, status Status) (pricing.Money, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional write operations.
type TxRepository interface {
	NextBillNumber(ctx context.Context, customerEntityID int64) (int64, error)
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	InsertLine(ctx context.Context, invoiceID int64, line Line) error
	// ClaimRuns flips APPROVED unclaimed runs to BILLED and returns how many matched.
	ClaimRuns(ctx context.Context, invoiceID int64, runIDs []int64) (int, error)
	// ReleaseRuns returns the runs of an invoice to APPROVED.
	ReleaseRuns(ctx context.Context, invoiceID int64) (int, error)
	UpdateStatus(ctx context.Context, id int64, from, to Status) error
	DeleteInvoice(ctx context.Context, id int64, status Status) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL backed invoice repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) ListBillableRuns(ctx context.Context, customerEntityID int64, from, to time.Time) ([]production.Run, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+production.RunColumns+`
		FROM production_runs
		WHERE customer_entity_id = $1 AND status = $2 AND invoice_id IS NULL
			AND created_at BETWEEN $3 AND $4
		ORDER BY created_at, id`, customerEntityID, production.StatusApproved, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []production.Run
	for rows.Next() {
		run, err := production.ScanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

const invoiceColumns = `id, customer_entity_id, customer_name, bill_number, period_start, period_end,
	subtotal, discount_pct, discount_amount, after_discount, vat_pct, vat_amount, total,
	status, notes, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.CustomerEntityID, &inv.CustomerName, &inv.BillNumber, &inv.PeriodStart, &inv.PeriodEnd,
		&inv.Subtotal, &inv.DiscountPct, &inv.DiscountAmount, &inv.AfterDiscount, &inv.VatPct, &inv.VatAmount, &inv.Total,
		&inv.Status, &inv.Notes, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	lines, err := r.lines(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return inv, nil
}

func (r *repository) lines(ctx context.Context, invoiceID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, invoice_id, run_id, order_id, design_ref, fabric, total_meters, price_per_meter, line_total
		FROM invoice_lines WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.RunID, &l.OrderID, &l.DesignRef, &l.Fabric,
			&l.TotalMeters, &l.PricePerMeter, &l.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ListInvoices returns headers only; use GetInvoice for lines.
func (r *repository) ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	var where []string
	var args []any
	if filter.CustomerEntityID > 0 {
		args = append(args, filter.CustomerEntityID)
		where = append(where, fmt.Sprintf("customer_entity_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (r *repository) SumTotals(ctx context.Context, status Status) (pricing.Money, error) {
	var sum pricing.Money
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(total), 0)::bigint FROM invoices WHERE status = $1`, status).Scan(&sum)
	return sum, err
}

// NextBillNumber increments the per-customer counter; the row lock serialises
// concurrent invoices for the same customer.
func (t *txRepository) NextBillNumber(ctx context.Context, customerEntityID int64) (int64, error) {
	var next int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO customer_bill_counters (customer_entity_id, last_number)
		VALUES ($1, 1)
		ON CONFLICT (customer_entity_id)
		DO UPDATE SET last_number = customer_bill_counters.last_number + 1
		RETURNING last_number`, customerEntityID).Scan(&next)
	return next, err
}

func (t *txRepository) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO invoices (
			customer_entity_id, customer_name, bill_number, period_start, period_end,
			subtotal, discount_pct, discount_amount, after_discount, vat_pct, vat_amount, total,
			status, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		inv.CustomerEntityID, inv.CustomerName, inv.BillNumber, inv.PeriodStart, inv.PeriodEnd,
		inv.Subtotal, inv.DiscountPct, inv.DiscountAmount, inv.AfterDiscount, inv.VatPct, inv.VatAmount, inv.Total,
		inv.Status, inv.Notes,
	).Scan(&id)
	return id, err
}

func (t *txRepository) InsertLine(ctx context.Context, invoiceID int64, l Line) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO invoice_lines (
			invoice_id, run_id, order_id, design_ref, fabric, total_meters, price_per_meter, line_total
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		invoiceID, l.RunID, l.OrderID, l.DesignRef, l.Fabric, l.TotalMeters, l.PricePerMeter, l.LineTotal,
	)
	return err
}

func (t *txRepository) ClaimRuns(ctx context.Context, invoiceID int64, runIDs []int64) (int, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE production_runs SET status = $1, invoice_id = $2, updated_at = NOW()
		WHERE id = ANY($3) AND status = $4 AND invoice_id IS NULL`,
		production.StatusBilled, invoiceID, runIDs, production.StatusApproved)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (t *txRepository) ReleaseRuns(ctx context.Context, invoiceID int64) (int, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE production_runs SET status = $1, invoice_id = NULL, updated_at = NOW()
		WHERE invoice_id = $2`, production.StatusApproved, invoiceID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (t *txRepository) UpdateStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE invoices SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceChanged
	}
	return nil
}

// DeleteInvoice removes the invoice only while it still has status; lines cascade.
func (t *txRepository) DeleteInvoice(ctx context.Context, id int64, status Status) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM invoices WHERE id = $1 AND status = $2`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceChanged
	}
	return nil
}
