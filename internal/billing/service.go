package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/printhouse/textile-erp/internal/observability"
	"github.com/printhouse/textile-erp/internal/platform/cache"
	"github.com/printhouse/textile-erp/internal/platform/db"
	"github.com/printhouse/textile-erp/internal/platform/lock"
	"github.com/printhouse/textile-erp/internal/pricing"
	"github.com/printhouse/textile-erp/internal/shared"
)

// billingTxAttempts bounds how often CreateInvoice reruns its transaction
// after losing the bill counter to a concurrent invoice.
const billingTxAttempts = 2

// CustomerLookup resolves the display name printed on invoices.
type CustomerLookup interface {
	CustomerName(ctx context.Context, customerEntityID int64) (string, error)
}

// OrderLinker stamps invoice references on the orders an invoice bills.
type OrderLinker interface {
	LinkInvoice(ctx context.Context, orderIDs []int64, ref string) error
	UnlinkInvoice(ctx context.Context, ref string) error
}

// ServiceConfig carries optional collaborators. Nil values disable the feature.
type ServiceConfig struct {
	Locker        *lock.Locker
	Cache         *cache.Versioned
	Logger        *slog.Logger
	Metrics       *observability.Pipeline
	Audit         shared.AuditRecorder
	DefaultVATPct decimal.Decimal
}

// Service builds, issues and settles invoices.
type Service struct {
	repo       Repository
	customers  CustomerLookup
	orders     OrderLinker
	locker     *lock.Locker
	cache      *cache.Versioned
	logger     *slog.Logger
	metrics    *observability.Pipeline
	audit      shared.AuditRecorder
	defaultVAT decimal.Decimal
}

// NewService constructs the billing service.
func NewService(repo Repository, customers CustomerLookup, orders OrderLinker, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		customers:  customers,
		orders:     orders,
		locker:     cfg.Locker,
		cache:      cfg.Cache,
		logger:     logger,
		metrics:    cfg.Metrics,
		audit:      cfg.Audit,
		defaultVAT: cfg.DefaultVATPct,
	}
}

// DefaultVATPct is applied when a caller does not specify a rate.
func (s *Service) DefaultVATPct() decimal.Decimal {
	return s.defaultVAT
}

// BuildDraft computes an unsaved invoice from the customer's approved, unbilled
// runs in the period. It writes nothing; an empty draft is valid.
func (s *Service) BuildDraft(ctx context.Context, params DraftParams) (*Invoice, error) {
	if !validPercent(params.DiscountPct) || !validPercent(params.VatPct) {
		return nil, ErrInvalidPercent
	}
	if params.PeriodEnd.Before(params.PeriodStart) {
		return nil, ErrInvalidPeriod
	}
	name, err := s.customers.CustomerName(ctx, params.CustomerEntityID)
	if err != nil {
		return nil, err
	}
	runs, err := s.repo.ListBillableRuns(ctx, params.CustomerEntityID, params.PeriodStart, params.PeriodEnd)
	if err != nil {
		return nil, err
	}

	lines := make([]Line, 0, len(runs))
	for _, run := range runs {
		lines = append(lines, LineFromRun(run))
	}
	return &Invoice{
		CustomerEntityID: params.CustomerEntityID,
		CustomerName:     name,
		PeriodStart:      params.PeriodStart,
		PeriodEnd:        params.PeriodEnd,
		Lines:            lines,
		Totals:           ComputeTotals(lines, params.DiscountPct, params.VatPct),
		Status:           StatusDraft,
	}, nil
}

// CreateInvoice persists the draft for params and claims its runs atomically.
// A run claimed by a concurrent invoice aborts the whole operation with
// ErrRunsClaimed; callers retry with a fresh draft. Losing the customer's bill
// counter to a concurrent invoice over other runs is retried once, then
// reported as ErrInvoiceChanged.
func (s *Service) CreateInvoice(ctx context.Context, params CreateParams) (*Invoice, error) {
	var inv *Invoice
	err := s.locker.WithLock(ctx, shared.BillingLockKey(params.CustomerEntityID), func(ctx context.Context) error {
		draft, err := s.BuildDraft(ctx, params.DraftParams)
		if err != nil {
			return err
		}
		if len(draft.Lines) == 0 {
			return ErrNothingToBill
		}
		draft.Notes = params.Notes
		draft.Status = StatusIssued
		if params.AsDraft {
			draft.Status = StatusDraft
		}

		for attempt := 1; attempt <= billingTxAttempts; attempt++ {
			var claiming bool
			err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				return s.persistDraft(ctx, tx, draft, &claiming)
			})
			if !db.IsSerializationFailure(err) {
				break
			}
			if claiming {
				err = ErrRunsClaimed
				break
			}
			// Lost the bill counter to a concurrent invoice; a fresh snapshot can retry.
			err = fmt.Errorf("allocate bill number: %w", ErrInvoiceChanged)
		}
		if errors.Is(err, ErrRunsClaimed) {
			s.metrics.ClaimConflict()
		}
		if err != nil {
			return err
		}
		inv = draft
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterChange(ctx, inv.Status)
	s.record(ctx, "invoice.created", inv.ID, map[string]any{"ref": inv.Ref(), "total": inv.Total, "runs": len(inv.Lines)})
	if err := s.orders.LinkInvoice(ctx, inv.OrderIDs(), inv.Ref()); err != nil {
		s.logger.Error("link invoice to orders", slog.String("invoice_ref", inv.Ref()), slog.Any("error", err))
	}
	s.logger.Info("invoice created",
		slog.Int64("invoice_id", inv.ID),
		slog.String("invoice_ref", inv.Ref()),
		slog.Int("lines", len(inv.Lines)),
		slog.Int64("total", int64(inv.Total)),
	)
	return s.repo.GetInvoice(ctx, inv.ID)
}

// persistDraft numbers and stores draft, then claims its runs. claiming is set
// once the claim starts so callers can tell a lost claim from a lost counter.
func (s *Service) persistDraft(ctx context.Context, tx TxRepository, draft *Invoice, claiming *bool) error {
	billNo, err := tx.NextBillNumber(ctx, draft.CustomerEntityID)
	if err != nil {
		return fmt.Errorf("allocate bill number: %w", err)
	}
	draft.BillNumber = billNo

	id, err := tx.InsertInvoice(ctx, *draft)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	draft.ID = id
	for _, line := range draft.Lines {
		if err := tx.InsertLine(ctx, id, line); err != nil {
			return fmt.Errorf("insert invoice line: %w", err)
		}
	}

	*claiming = true
	claimed, err := tx.ClaimRuns(ctx, id, draft.RunIDs())
	if err != nil {
		return fmt.Errorf("claim runs: %w", err)
	}
	if claimed != len(draft.Lines) {
		return ErrRunsClaimed
	}
	return nil
}

// UpdateInvoiceStatus moves an invoice along DRAFT -> ISSUED -> PAID, or
// cancels an issued invoice, which returns its runs to APPROVED.
func (s *Service) UpdateInvoiceStatus(ctx context.Context, id int64, to Status) (*Invoice, error) {
	if !to.IsValid() {
		return nil, fmt.Errorf("%w %q", ErrUnknownStatus, to)
	}
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inv.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, inv.Status, to)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateStatus(ctx, id, inv.Status, to); err != nil {
			return err
		}
		if to == StatusCancelled {
			if _, err := tx.ReleaseRuns(ctx, id); err != nil {
				return fmt.Errorf("release runs: %w", err)
			}
		}
		return nil
	})
	if db.IsSerializationFailure(err) {
		err = ErrInvoiceChanged
	}
	if err != nil {
		return nil, err
	}

	s.afterChange(ctx, to)
	s.record(ctx, "invoice.status", id, map[string]any{"from": inv.Status, "to": to})
	if to == StatusCancelled {
		s.unlink(ctx, inv.Ref())
	}
	return s.repo.GetInvoice(ctx, id)
}

// DeleteInvoice removes an unpaid invoice and releases its runs.
func (s *Service) DeleteInvoice(ctx context.Context, id int64) error {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return err
	}
	if inv.Status == StatusPaid {
		return ErrInvoicePaid
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.ReleaseRuns(ctx, id); err != nil {
			return fmt.Errorf("release runs: %w", err)
		}
		return tx.DeleteInvoice(ctx, id, inv.Status)
	})
	if db.IsSerializationFailure(err) {
		err = ErrInvoiceChanged
	}
	if err != nil {
		return err
	}

	s.afterChange(ctx, "DELETED")
	s.record(ctx, "invoice.deleted", id, map[string]any{"ref": inv.Ref(), "status": inv.Status})
	if inv.Status != StatusCancelled {
		s.unlink(ctx, inv.Ref())
	}
	return nil
}

// GetInvoice loads an invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// ListInvoices lists invoice headers.
func (s *Service) ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w %q", ErrUnknownStatus, filter.Status)
	}
	return s.repo.ListInvoices(ctx, filter)
}

// TotalReceivables sums totals of issued, unpaid invoices.
func (s *Service) TotalReceivables(ctx context.Context) (pricing.Money, error) {
	return s.cachedSum(ctx, StatusIssued)
}

// TotalCollected sums totals of paid invoices.
func (s *Service) TotalCollected(ctx context.Context) (pricing.Money, error) {
	return s.cachedSum(ctx, StatusPaid)
}

// Summary returns both dashboard figures, loaded concurrently.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	var sum Summary
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.TotalReceivables(ctx)
		sum.Receivables = v
		return err
	})
	g.Go(func() error {
		v, err := s.TotalCollected(ctx)
		sum.Collected = v
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

func (s *Service) cachedSum(ctx context.Context, status Status) (pricing.Money, error) {
	key, err := s.cache.Key(ctx, "sum", string(status))
	if err != nil {
		s.logger.Warn("billing cache unavailable", slog.Any("error", err))
		return s.repo.SumTotals(ctx, status)
	}
	var sum pricing.Money
	err = s.cache.FetchJSON(ctx, key, &sum, func(ctx context.Context) (any, error) {
		return s.repo.SumTotals(ctx, status)
	})
	return sum, err
}

func (s *Service) afterChange(ctx context.Context, status Status) {
	s.metrics.InvoiceTransition(string(status))
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump billing cache", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action string, invoiceID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "invoice", EntityID: invoiceID, Meta: meta})
	if err != nil {
		s.logger.Warn("audit invoice", slog.String("action", action), slog.Int64("invoice_id", invoiceID), slog.Any("error", err))
	}
}

func (s *Service) unlink(ctx context.Context, ref string) {
	if err := s.orders.UnlinkInvoice(ctx, ref); err != nil {
		s.logger.Error("unlink invoice from orders", slog.String("invoice_ref", ref), slog.Any("error", err))
	}
}
