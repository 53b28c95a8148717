// Package customers resolves storefront users to billable customer entities.
package customers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/printhouse/textile-erp/internal/shared"
)

// ErrCustomerNotFound indicates an unknown customer entity.
var ErrCustomerNotFound = fmt.Errorf("customer %w", shared.ErrNotFound)

// Customer is the billable entity behind one storefront user.
type Customer struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	CustomerType string    `json:"customer_type"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
}

// DisplayName falls back to a generated label when no name was captured.
func (c Customer) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return "Customer #" + strconv.FormatInt(c.ID, 10)
}

// Directory is a PostgreSQL backed customer directory.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory constructs a directory.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// ResolveOrCreate returns the customer entity for userID, creating it on first use.
// The upsert keeps concurrent first orders from the same user on one entity.
func (d *Directory) ResolveOrCreate(ctx context.Context, userID int64, customerType string) (int64, error) {
	if userID <= 0 {
		return 0, fmt.Errorf("%w: user id required", shared.ErrValidation)
	}
	var id int64
	err := d.pool.QueryRow(ctx, `
		INSERT INTO customers (user_id, customer_type)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET customer_type = customers.customer_type
		RETURNING id`,
		userID, customerType,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("customers: resolve user %d: %w", userID, err)
	}
	return id, nil
}

// Get loads a customer entity.
func (d *Directory) Get(ctx context.Context, id int64) (*Customer, error) {
	var c Customer
	err := d.pool.QueryRow(ctx, `
		SELECT id, user_id, customer_type, COALESCE(name, ''), created_at
		FROM customers WHERE id = $1`, id,
	).Scan(&c.ID, &c.UserID, &c.CustomerType, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CustomerName returns the invoice display name of a customer entity.
func (d *Directory) CustomerName(ctx context.Context, id int64) (string, error) {
	c, err := d.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return c.DisplayName(), nil
}

// Rename sets the display name used on invoices.
func (d *Directory) Rename(ctx context.Context, id int64, name string) error {
	tag, err := d.pool.Exec(ctx, `UPDATE customers SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}
