package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Service manages preset designs and factory fabrics.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a catalog service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ListPresetDesigns returns every preset design.
//
// Sole-property designs are returned to all callers; exclusivity is recorded
// but not filtered until the business rule is confirmed.
func (s *Service) ListPresetDesigns(ctx context.Context) ([]PresetDesign, error) {
	return s.repo.ListPresetDesigns(ctx)
}

// GetPresetDesign loads a preset design by id.
func (s *Service) GetPresetDesign(ctx context.Context, id int64) (*PresetDesign, error) {
	return s.repo.GetPresetDesign(ctx, id)
}

// AddPresetDesign creates a preset design.
func (s *Service) AddPresetDesign(ctx context.Context, input PresetDesignInput) (*PresetDesign, error) {
	p, err := presetFromInput(input)
	if err != nil {
		return nil, err
	}
	id, err := s.repo.InsertPresetDesign(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("catalog: insert preset design: %w", err)
	}
	s.logger.Info("preset design added", slog.Int64("preset_id", id), slog.String("name", p.Name))
	return s.repo.GetPresetDesign(ctx, id)
}

// UpdatePresetDesign replaces the editable fields of a preset design.
func (s *Service) UpdatePresetDesign(ctx context.Context, id int64, input PresetDesignInput) (*PresetDesign, error) {
	p, err := presetFromInput(input)
	if err != nil {
		return nil, err
	}
	p.ID = id
	if err := s.repo.UpdatePresetDesign(ctx, p); err != nil {
		return nil, err
	}
	return s.repo.GetPresetDesign(ctx, id)
}

// DeletePresetDesign removes a preset design. Existing orders keep their
// recorded design reference and price.
func (s *Service) DeletePresetDesign(ctx context.Context, id int64) error {
	if err := s.repo.DeletePresetDesign(ctx, id); err != nil {
		return err
	}
	s.logger.Info("preset design deleted", slog.Int64("preset_id", id))
	return nil
}

// ListFactoryFabrics returns the factory fabric price list.
func (s *Service) ListFactoryFabrics(ctx context.Context) ([]FactoryFabric, error) {
	return s.repo.ListFactoryFabrics(ctx)
}

// GetFactoryFabric loads a factory fabric by id.
func (s *Service) GetFactoryFabric(ctx context.Context, id int64) (*FactoryFabric, error) {
	return s.repo.GetFactoryFabric(ctx, id)
}

// AddFactoryFabric registers a new factory fabric.
func (s *Service) AddFactoryFabric(ctx context.Context, input FactoryFabricInput) (*FactoryFabric, error) {
	if input.PricePerMeter.IsNegative() {
		return nil, ErrNegativePrice
	}
	f := FactoryFabric{
		Name:            strings.TrimSpace(input.Name),
		Type:            input.Type,
		PricePerMeter:   input.PricePerMeter,
		MinimumQuantity: input.MinimumQuantity,
	}
	id, err := s.repo.InsertFactoryFabric(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("catalog: insert factory fabric: %w", err)
	}
	return s.repo.GetFactoryFabric(ctx, id)
}

func presetFromInput(input PresetDesignInput) (PresetDesign, error) {
	if input.BasePricePerUnit.IsNegative() {
		return PresetDesign{}, ErrNegativePrice
	}
	p := PresetDesign{
		Name:             strings.TrimSpace(input.Name),
		Description:      strings.TrimSpace(input.Description),
		BasePricePerUnit: input.BasePricePerUnit,
		ImageURL:         input.ImageURL,
	}
	if input.SolePropertyClientID != nil {
		p.SolePropertyClientID = input.SolePropertyClientID
		p.SolePropertyClientName = input.SolePropertyClientName
	}
	return p, nil
}
