package production

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines production run persistence. Setting BILLED is not
// exposed here; billing claims runs inside its own transaction.
type Repository interface {
	// InsertRun stores a run unless one with the same source key exists.
	InsertRun(ctx context.Context, run Run) (bool, error)
	GetRun(ctx context.Context, id int64) (*Run, error)
	ListRuns(ctx context.Context, filter ListFilter) ([]Run, error)
	// UpdateStatus flips status only while it still equals from.
	UpdateStatus(ctx context.Context, id int64, from, to Status) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL backed run repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// RunColumns is the canonical select list, shared with billing queries.
const RunColumns = `id, order_id, order_line_id, source_key, customer_entity_id, design_ref,
	fabric, total_meters, price_per_meter, status, invoice_id, created_at, updated_at`

// ScanRun scans a row selected with RunColumns.
func ScanRun(row pgx.Row) (*Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.OrderID, &r.OrderLineID, &r.SourceKey, &r.CustomerEntityID, &r.DesignRef,
		&r.Fabric, &r.TotalMeters, &r.PricePerMeter, &r.Status, &r.InvoiceID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *repository) InsertRun(ctx context.Context, run Run) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO production_runs (
			order_id, order_line_id, source_key, customer_entity_id, design_ref,
			fabric, total_meters, price_per_meter, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (source_key) DO NOTHING`,
		run.OrderID, run.OrderLineID, run.SourceKey, run.CustomerEntityID, run.DesignRef,
		run.Fabric, run.TotalMeters, run.PricePerMeter, run.Status,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) GetRun(ctx context.Context, id int64) (*Run, error) {
	run, err := ScanRun(r.pool.QueryRow(ctx, `SELECT `+RunColumns+` FROM production_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

func (r *repository) ListRuns(ctx context.Context, filter ListFilter) ([]Run, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CustomerEntityID > 0 {
		args = append(args, filter.CustomerEntityID)
		where = append(where, fmt.Sprintf("customer_entity_id = $%d", len(args)))
	}
	if filter.OrderID > 0 {
		args = append(args, filter.OrderID)
		where = append(where, fmt.Sprintf("order_id = $%d", len(args)))
	}
	query := `SELECT ` + RunColumns + ` FROM production_runs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := ScanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE production_runs SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunChanged
	}
	return nil
}
