package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/printhouse/textile-erp/internal/platform/db"
	"github.com/printhouse/textile-erp/internal/pricing"
)

// Repository defines order persistence.
type Repository interface {
	// Read operations
	GetByID(ctx context.Context, id int64) (*Order, error)
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, error)

	// UpdateStatus flips status only while it still equals from.
	UpdateStatus(ctx context.Context, id int64, from, to Status) error
	SetInvoiceRef(ctx context.Context, orderIDs []int64, ref string) error
	ClearInvoiceRef(ctx context.Context, ref string) error

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional write operations.
type TxRepository interface {
	InsertOrder(ctx context.Context, o Order) (int64, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	UpdateLine(ctx context.Context, line Line) error
	// ConvertQuotation turns an open quotation into a firm order.
	ConvertQuotation(ctx context.Context, id int64, method PaymentMethod) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL backed order repository.
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

const orderColumns = `id, user_id, customer_type, kind, status, payment_method,
	payment_proof_ref, invoice_ref, notes, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.CustomerType, &o.Kind, &o.Status, &o.PaymentMethod,
		&o.PaymentProofRef, &o.InvoiceRef, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	orders := []Order{*o}
	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *repository) ListByUser(ctx context.Context, userID int64) ([]Order, error) {
	return r.List(ctx, ListFilter{UserID: userID})
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	var where []string
	var args []any
	if filter.UserID > 0 {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
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

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachLines(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) attachLines(ctx context.Context, orders []Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, line_no, design, fabric, quantity, unit_price, total_price, notes
		FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY order_id, line_no`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			line      Line
			rawDesign []byte
			rawFabric []byte
		)
		if err := rows.Scan(&line.ID, &line.OrderID, &line.LineNo, &rawDesign, &rawFabric,
			&line.Quantity, &line.UnitPrice, &line.TotalPrice, &line.Notes); err != nil {
			return err
		}
		if rawDesign != nil {
			if line.Design, err = pricing.UnmarshalDesign(rawDesign); err != nil {
				return fmt.Errorf("orders: line %d: %w", line.ID, err)
			}
		}
		if line.Fabric, err = pricing.UnmarshalFabric(rawFabric); err != nil {
			return fmt.Errorf("orders: line %d: %w", line.ID, err)
		}
		i := index[line.OrderID]
		orders[i].Lines = append(orders[i].Lines, line)
	}
	return rows.Err()
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *repository) SetInvoiceRef(ctx context.Context, orderIDs []int64, ref string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE orders SET invoice_ref = $1, updated_at = NOW()
		WHERE id = ANY($2)`, ref, orderIDs)
	return err
}

func (r *repository) ClearInvoiceRef(ctx context.Context, ref string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE orders SET invoice_ref = NULL, updated_at = NOW()
		WHERE invoice_ref = $1`, ref)
	return err
}

func (t *txRepository) InsertOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders (
			user_id, customer_type, kind, status, payment_method, payment_proof_ref, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		o.UserID, o.CustomerType, o.Kind, o.Status, o.PaymentMethod, o.PaymentProofRef, o.Notes,
	).Scan(&id)
	return id, err
}

func (t *txRepository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var rawDesign []byte
	if line.Design != nil {
		var err error
		if rawDesign, err = pricing.MarshalDesign(line.Design); err != nil {
			return 0, err
		}
	}
	rawFabric, err := pricing.MarshalFabric(line.Fabric)
	if err != nil {
		return 0, err
	}
	var id int64
	err = t.tx.QueryRow(ctx, `
		INSERT INTO order_lines (
			order_id, line_no, design, fabric, quantity, unit_price, total_price, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		line.OrderID, line.LineNo, rawDesign, rawFabric,
		line.Quantity, line.UnitPrice, line.TotalPrice, line.Notes,
	).Scan(&id)
	return id, err
}

func (t *txRepository) UpdateLine(ctx context.Context, line Line) error {
	var rawDesign []byte
	if line.Design != nil {
		var err error
		if rawDesign, err = pricing.MarshalDesign(line.Design); err != nil {
			return err
		}
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE order_lines
		SET design = $1, quantity = $2, unit_price = $3, total_price = $4
		WHERE id = $5 AND order_id = $6`,
		rawDesign, line.Quantity, line.UnitPrice, line.TotalPrice, line.ID, line.OrderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidQuotePrice
	}
	return nil
}

func (t *txRepository) ConvertQuotation(ctx context.Context, id int64, method PaymentMethod) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE orders SET kind = $1, payment_method = $2, updated_at = NOW()
		WHERE id = $3 AND kind = $4 AND status = $5`,
		KindOrder, method, id, KindQuotation, StatusSubmitted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusChanged
	}
	return nil
}
