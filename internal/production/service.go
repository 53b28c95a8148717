package production

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/printhouse/textile-erp/internal/observability"
	"github.com/printhouse/textile-erp/internal/orders"
	"github.com/printhouse/textile-erp/internal/shared"
)

// CustomerDirectory maps storefront users to billable customer entities.
type CustomerDirectory interface {
	ResolveOrCreate(ctx context.Context, userID int64, customerType string) (int64, error)
}

// ServiceConfig carries optional collaborators.
type ServiceConfig struct {
	Logger  *slog.Logger
	Metrics *observability.Pipeline
	Audit   shared.AuditRecorder
}

// Service generates production runs and records approval decisions.
type Service struct {
	repo      Repository
	customers CustomerDirectory
	logger    *slog.Logger
	metrics   *observability.Pipeline
	audit     shared.AuditRecorder
}

// NewService constructs the production service.
func NewService(repo Repository, customers CustomerDirectory, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, customers: customers, logger: logger, metrics: cfg.Metrics, audit: cfg.Audit}
}

// AddRunsFromOrder creates one PENDING run per order line. Lines that already
// have a run are skipped, so calling it again for the same order is harmless.
// It returns the number of runs created by this call.
func (s *Service) AddRunsFromOrder(ctx context.Context, order orders.Order) (int, error) {
	if order.Kind != orders.KindOrder || order.Status == orders.StatusCancelled {
		return 0, ErrNotProducible
	}
	customerID, err := s.customers.ResolveOrCreate(ctx, order.UserID, order.CustomerType)
	if err != nil {
		return 0, fmt.Errorf("production: resolve customer: %w", err)
	}

	created := 0
	for _, line := range order.Lines {
		run := Run{
			OrderID:          order.ID,
			OrderLineID:      line.ID,
			SourceKey:        RunSourceKey(order.ID, line.ID),
			CustomerEntityID: customerID,
			Fabric:           line.Fabric.Descriptor(),
			TotalMeters:      decimal.NewFromInt(int64(line.Quantity)),
			PricePerMeter:    line.UnitPrice,
			Status:           StatusPending,
		}
		if line.Design != nil {
			run.DesignRef = line.Design.Ref()
		}
		ok, err := s.repo.InsertRun(ctx, run)
		if err != nil {
			return created, fmt.Errorf("production: insert run for line %d: %w", line.ID, err)
		}
		if ok {
			created++
		}
	}

	s.metrics.RunsGenerated(created)
	s.logger.Info("production runs generated",
		slog.Int64("order_id", order.ID),
		slog.Int64("customer_entity_id", customerID),
		slog.Int("created", created),
		slog.Int("lines", len(order.Lines)),
	)
	return created, nil
}

// GetRunsByStatus lists runs in one status, oldest first.
func (s *Service) GetRunsByStatus(ctx context.Context, status Status) ([]Run, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w %q", ErrUnknownStatus, status)
	}
	return s.repo.ListRuns(ctx, ListFilter{Status: status})
}

// ListRuns lists runs matching filter.
func (s *Service) ListRuns(ctx context.Context, filter ListFilter) ([]Run, error) {
	return s.repo.ListRuns(ctx, filter)
}

// GetRun loads a run.
func (s *Service) GetRun(ctx context.Context, id int64) (*Run, error) {
	return s.repo.GetRun(ctx, id)
}

// ApproveRun makes a pending run billable.
func (s *Service) ApproveRun(ctx context.Context, id int64) (*Run, error) {
	return s.decide(ctx, id, StatusApproved)
}

// RejectRun closes a pending run without billing it.
func (s *Service) RejectRun(ctx context.Context, id int64) (*Run, error) {
	return s.decide(ctx, id, StatusRejected)
}

func (s *Service) decide(ctx context.Context, id int64, to Status) (*Run, error) {
	run, err := s.repo.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if !run.Status.CanDecide() {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, run.Status, to)
	}
	if err := s.repo.UpdateStatus(ctx, id, run.Status, to); err != nil {
		return nil, err
	}
	s.metrics.RunDecided(string(to))
	s.logger.Info("production run decided", slog.Int64("run_id", id), slog.String("status", string(to)))
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			Action:   "production_run." + strings.ToLower(string(to)),
			Entity:   "production_run",
			EntityID: id,
			Meta:     map[string]any{"order_id": run.OrderID, "from": run.Status},
		})
		if err != nil {
			s.logger.Warn("audit production run decision", slog.Int64("run_id", id), slog.Any("error", err))
		}
	}
	return s.repo.GetRun(ctx, id)
}
