package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines catalog persistence.
type Repository interface {
	ListPresetDesigns(ctx context.Context) ([]PresetDesign, error)
	GetPresetDesign(ctx context.Context, id int64) (*PresetDesign, error)
	InsertPresetDesign(ctx context.Context, p PresetDesign) (int64, error)
	UpdatePresetDesign(ctx context.Context, p PresetDesign) error
	DeletePresetDesign(ctx context.Context, id int64) error

	ListFactoryFabrics(ctx context.Context) ([]FactoryFabric, error)
	GetFactoryFabric(ctx context.Context, id int64) (*FactoryFabric, error)
	InsertFactoryFabric(ctx context.Context, f FactoryFabric) (int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL backed catalog repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const presetColumns = `id, name, description, base_price_per_unit, image_url,
	sole_property_client_id, sole_property_client_name, created_at, updated_at`

func scanPreset(row pgx.Row) (*PresetDesign, error) {
	var p PresetDesign
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.BasePricePerUnit, &p.ImageURL,
		&p.SolePropertyClientID, &p.SolePropertyClientName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) ListPresetDesigns(ctx context.Context) ([]PresetDesign, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+presetColumns+` FROM preset_designs ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PresetDesign
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *repository) GetPresetDesign(ctx context.Context, id int64) (*PresetDesign, error) {
	p, err := scanPreset(r.pool.QueryRow(ctx, `SELECT `+presetColumns+` FROM preset_designs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPresetNotFound
	}
	return p, err
}

func (r *repository) InsertPresetDesign(ctx context.Context, p PresetDesign) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO preset_designs (
			name, description, base_price_per_unit, image_url,
			sole_property_client_id, sole_property_client_name
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		p.Name, p.Description, p.BasePricePerUnit, p.ImageURL,
		p.SolePropertyClientID, p.SolePropertyClientName,
	).Scan(&id)
	return id, err
}

func (r *repository) UpdatePresetDesign(ctx context.Context, p PresetDesign) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE preset_designs
		SET name = $1, description = $2, base_price_per_unit = $3, image_url = $4,
			sole_property_client_id = $5, sole_property_client_name = $6, updated_at = NOW()
		WHERE id = $7`,
		p.Name, p.Description, p.BasePricePerUnit, p.ImageURL,
		p.SolePropertyClientID, p.SolePropertyClientName, p.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPresetNotFound
	}
	return nil
}

func (r *repository) DeletePresetDesign(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM preset_designs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPresetNotFound
	}
	return nil
}

func (r *repository) ListFactoryFabrics(ctx context.Context) ([]FactoryFabric, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, type, price_per_meter, minimum_quantity, created_at
		FROM factory_fabrics ORDER BY type, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FactoryFabric
	for rows.Next() {
		var f FactoryFabric
		if err := rows.Scan(&f.ID, &f.Name, &f.Type, &f.PricePerMeter, &f.MinimumQuantity, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *repository) GetFactoryFabric(ctx context.Context, id int64) (*FactoryFabric, error) {
	var f FactoryFabric
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, type, price_per_meter, minimum_quantity, created_at
		FROM factory_fabrics WHERE id = $1`, id,
	).Scan(&f.ID, &f.Name, &f.Type, &f.PricePerMeter, &f.MinimumQuantity, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFabricNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *repository) InsertFactoryFabric(ctx context.Context, f FactoryFabric) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO factory_fabrics (name, type, price_per_meter, minimum_quantity)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		f.Name, f.Type, f.PricePerMeter, f.MinimumQuantity,
	).Scan(&id)
	return id, err
}
