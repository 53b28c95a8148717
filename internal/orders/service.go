package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/printhouse/textile-erp/internal/catalog"
	"github.com/printhouse/textile-erp/internal/observability"
	"github.com/printhouse/textile-erp/internal/pricing"
	"github.com/printhouse/textile-erp/internal/shared"
)

// Catalog resolves the catalog rows a line is priced from.
type Catalog interface {
	GetPresetDesign(ctx context.Context, id int64) (*catalog.PresetDesign, error)
	GetFactoryFabric(ctx context.Context, id int64) (*catalog.FactoryFabric, error)
}

// Notifier is told about every accepted order or quotation request.
type Notifier interface {
	NotifyOrderCreated(ctx context.Context, order Order) error
}

// RunGenerator turns a firm order into production runs. It must be idempotent.
type RunGenerator interface {
	AddRunsFromOrder(ctx context.Context, order Order) (int, error)
}

// IdempotencyStore remembers client request keys.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// ServiceConfig carries optional collaborators.
type ServiceConfig struct {
	Calculator  pricing.Calculator
	Logger      *slog.Logger
	Metrics     *observability.Pipeline
	Idempotency IdempotencyStore
}

// Service provides business logic for orders and quotation requests.
type Service struct {
	repo     Repository
	catalog  Catalog
	notifier Notifier
	runs     RunGenerator
	calc     pricing.Calculator
	logger   *slog.Logger
	metrics  *observability.Pipeline
	idem     IdempotencyStore
}

// NewService wires the order service. notifier and runs may be nil.
func NewService(repo Repository, cat Catalog, notifier Notifier, runs RunGenerator, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		catalog:  cat,
		notifier: notifier,
		runs:     runs,
		calc:     cfg.Calculator,
		logger:   logger,
		metrics:  cfg.Metrics,
		idem:     cfg.Idempotency,
	}
}

// CreateOrder validates, prices and stores a firm order. Client prices are
// never read; every line is priced from the current catalog.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	if len(input.Lines) == 0 {
		return nil, ErrNoLines
	}
	if !input.PaymentMethod.IsValid() {
		return nil, ErrInvalidPayment
	}
	order := Order{
		UserID:        input.UserID,
		CustomerType:  strings.TrimSpace(input.CustomerType),
		Kind:          KindOrder,
		Status:        StatusSubmitted,
		PaymentMethod: input.PaymentMethod,
		Notes:         strings.TrimSpace(input.Notes),
	}
	if proof := strings.TrimSpace(input.PaymentProofRef); proof != "" {
		order.PaymentProofRef = &proof
	} else if input.PaymentMethod.RequiresProof() {
		return nil, ErrPaymentProofRequired
	}

	for i, in := range input.Lines {
		fabric, err := in.Fabric.Choice()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if fabric.PriceDeferred() {
			return nil, fmt.Errorf("line %d: %w", i+1, ErrQuotationRequired)
		}
		if in.Design == nil {
			return nil, fmt.Errorf("line %d: %w", i+1, ErrDesignRequired)
		}
		design, err := in.Design.Choice()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		line := Line{LineNo: i + 1, Design: design, Fabric: fabric, Quantity: in.Quantity, Notes: strings.TrimSpace(in.Notes)}
		if err := s.priceLine(ctx, input.UserID, &line); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		order.Lines = append(order.Lines, line)
	}

	created, err := s.insertOnce(ctx, order, input.IdempotencyKey, "orders.create")
	if err != nil {
		return nil, err
	}
	s.afterCreate(ctx, *created)
	return created, nil
}

// CreateQuotationRequest stores an unpriced inquiry for customer supplied or
// undecided fabric. Quantities default to 1 and nothing is sent to production.
func (s *Service) CreateQuotationRequest(ctx context.Context, input QuotationInput) (*Order, error) {
	if len(input.Lines) == 0 {
		return nil, ErrNoLines
	}
	order := Order{
		UserID:       input.UserID,
		CustomerType: strings.TrimSpace(input.CustomerType),
		Kind:         KindQuotation,
		Status:       StatusSubmitted,
		Notes:        strings.TrimSpace(input.Notes),
	}
	for i, in := range input.Lines {
		fabric, err := in.Fabric.Choice()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if !fabric.PriceDeferred() {
			return nil, fmt.Errorf("line %d: %w", i+1, ErrFactoryNotQuotable)
		}
		line := Line{LineNo: i + 1, Fabric: fabric, Quantity: in.Quantity, Notes: strings.TrimSpace(in.Notes)}
		if in.Design != nil {
			if line.Design, err = in.Design.Choice(); err != nil {
				return nil, fmt.Errorf("line %d: %w", i+1, err)
			}
		}
		if line.Quantity <= 0 {
			line.Quantity = 1
		}
		line.SetPrice(0)
		order.Lines = append(order.Lines, line)
	}

	created, err := s.insertOnce(ctx, order, input.IdempotencyKey, "orders.quotation")
	if err != nil {
		return nil, err
	}
	s.afterCreate(ctx, *created)
	return created, nil
}

// FinalizeQuotation records the manual price of every line of an open
// quotation and converts it into a firm order.
func (s *Service) FinalizeQuotation(ctx context.Context, orderID int64, req FinalizeQuotationRequest) (*Order, error) {
	if !req.PaymentMethod.IsValid() {
		return nil, ErrInvalidPayment
	}
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Kind != KindQuotation || order.Status != StatusSubmitted {
		return nil, ErrNotOpenQuotation
	}

	quoted := make(map[int64]QuotedLine, len(req.Lines))
	for _, q := range req.Lines {
		if q.UnitPrice < 0 {
			return nil, ErrInvalidQuotePrice
		}
		quoted[q.LineID] = q
	}
	if len(quoted) != len(order.Lines) {
		return nil, ErrInvalidQuotePrice
	}
	lines := make([]Line, len(order.Lines))
	for i, line := range order.Lines {
		q, ok := quoted[line.ID]
		if !ok {
			return nil, fmt.Errorf("line %d: %w", line.LineNo, ErrInvalidQuotePrice)
		}
		if q.Design != nil {
			if line.Design, err = q.Design.Choice(); err != nil {
				return nil, fmt.Errorf("line %d: %w", line.LineNo, err)
			}
		}
		if line.Design == nil {
			return nil, fmt.Errorf("line %d: %w", line.LineNo, ErrDesignRequired)
		}
		if q.Quantity != nil {
			line.Quantity = *q.Quantity
		}
		line.SetPrice(q.UnitPrice)
		lines[i] = line
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range lines {
			if err := tx.UpdateLine(ctx, line); err != nil {
				return err
			}
		}
		return tx.ConvertQuotation(ctx, orderID, req.PaymentMethod)
	})
	if err != nil {
		return nil, fmt.Errorf("orders: finalize quotation %d: %w", orderID, err)
	}

	finalized, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("quotation finalized", slog.Int64("order_id", orderID), slog.Int64("total", int64(finalized.Total())))
	s.generateRuns(ctx, *finalized)
	return finalized, nil
}

// RepeatOrder places a new order with the selections of one of the caller's
// earlier orders. Prices are recomputed from current rates. Uploaded artwork
// is referenced through the source order. The payment method is kept but a
// repeat never carries payment proof, instapay included: a proof belongs to
// one transfer and is collected again in the PAYMENT_PENDING stage.
func (s *Service) RepeatOrder(ctx context.Context, sourceOrderID, userID int64, customerType string) (*Order, error) {
	src, err := s.repo.GetByID(ctx, sourceOrderID)
	if err != nil {
		return nil, err
	}
	if src.UserID != userID {
		return nil, ErrNotOwner
	}

	order := Order{
		UserID:        userID,
		CustomerType:  strings.TrimSpace(customerType),
		Kind:          KindOrder,
		Status:        StatusSubmitted,
		PaymentMethod: src.PaymentMethod,
		Notes:         fmt.Sprintf("Repeat of order #%d", src.ID),
	}
	if order.CustomerType == "" {
		order.CustomerType = src.CustomerType
	}
	// Lines on customer or undecided fabric need a fresh manual quote.
	for _, prev := range src.Lines {
		if prev.Fabric.PriceDeferred() || prev.Design == nil {
			order.Kind = KindQuotation
			order.PaymentMethod = ""
			break
		}
	}
	for i, prev := range src.Lines {
		line := Line{LineNo: i + 1, Design: prev.Design, Fabric: prev.Fabric, Quantity: prev.Quantity, Notes: prev.Notes}
		if _, ok := line.Design.(pricing.UploadedDesign); ok {
			line.Design = pricing.RepeatDesign{SourceOrderID: src.ID}
		}
		if order.Kind == KindQuotation {
			line.SetPrice(0)
		} else if err := s.priceLine(ctx, userID, &line); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		order.Lines = append(order.Lines, line)
	}

	created, err := s.insert(ctx, order)
	if err != nil {
		return nil, err
	}
	s.logger.Info("order repeated", slog.Int64("source_order_id", src.ID), slog.Int64("order_id", created.ID))
	s.afterCreate(ctx, *created)
	return created, nil
}

// QuotePrice prices a line that may still be incomplete, for live previews.
func (s *Service) QuotePrice(ctx context.Context, userID int64, in LineInput) (PriceQuote, error) {
	quote := PriceQuote{MinimumQuantity: 1}
	fabric, err := in.Fabric.Choice()
	if err != nil {
		if errors.Is(err, pricing.ErrIncompleteSelection) {
			return quote, nil
		}
		return quote, err
	}
	sel := pricing.Selection{Fabric: fabric}
	if in.Design != nil {
		design, err := in.Design.Choice()
		if err != nil && !errors.Is(err, pricing.ErrIncompleteSelection) {
			return quote, err
		}
		sel.Design = design
	}
	if err := s.resolve(ctx, userID, &sel); err != nil {
		return quote, err
	}
	quantity := in.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	quote.Deferred = fabric.PriceDeferred()
	quote.Complete = sel.Design != nil
	quote.MinimumQuantity = pricing.MinimumQuantity(fabric, sel.FactoryFabric)
	quote.UnitPrice, quote.TotalPrice = s.calc.LinePrice(sel, quantity)
	return quote, nil
}

// GetOrderByID loads an order. Ownership is checked by the caller.
func (s *Service) GetOrderByID(ctx context.Context, id int64) (*Order, error) {
	return s.repo.GetByID(ctx, id)
}

// GetOrdersByUserID lists a customer's orders, newest first.
func (s *Service) GetOrdersByUserID(ctx context.Context, userID int64) ([]Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ListOrders lists orders for the back office.
func (s *Service) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}

// UpdateStatus moves an order one step forward or cancels it.
func (s *Service) UpdateStatus(ctx context.Context, id int64, to Status) (*Order, error) {
	if !to.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, to)
	}
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, to)
	}
	if err := s.repo.UpdateStatus(ctx, id, order.Status, to); err != nil {
		return nil, err
	}
	s.logger.Info("order status changed",
		slog.Int64("order_id", id), slog.String("from", string(order.Status)), slog.String("to", string(to)))
	return s.repo.GetByID(ctx, id)
}

// ReprocessOrder regenerates missing production runs of a firm order.
func (s *Service) ReprocessOrder(ctx context.Context, id int64) (int, error) {
	if s.runs == nil {
		return 0, errors.New("orders: run generator not configured")
	}
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return s.runs.AddRunsFromOrder(ctx, *order)
}

// LinkInvoice records the invoice reference on the orders it bills.
func (s *Service) LinkInvoice(ctx context.Context, orderIDs []int64, ref string) error {
	if len(orderIDs) == 0 {
		return nil
	}
	return s.repo.SetInvoiceRef(ctx, orderIDs, ref)
}

// UnlinkInvoice clears an invoice reference after the invoice is cancelled or deleted.
func (s *Service) UnlinkInvoice(ctx context.Context, ref string) error {
	return s.repo.ClearInvoiceRef(ctx, ref)
}

// priceLine resolves the catalog, enforces the minimum quantity and sets the price.
func (s *Service) priceLine(ctx context.Context, userID int64, line *Line) error {
	sel := pricing.Selection{Design: line.Design, Fabric: line.Fabric}
	if err := s.resolve(ctx, userID, &sel); err != nil {
		return err
	}
	if minQty := pricing.MinimumQuantity(line.Fabric, sel.FactoryFabric); line.Quantity < minQty {
		return fmt.Errorf("%w: %d < %d", ErrBelowMinimum, line.Quantity, minQty)
	}
	line.SetPrice(s.calc.UnitPrice(sel))
	return nil
}

// resolve loads the catalog rows referenced by sel and checks repeat ownership.
func (s *Service) resolve(ctx context.Context, userID int64, sel *pricing.Selection) error {
	switch d := sel.Design.(type) {
	case pricing.ExistingDesign:
		preset, err := s.catalog.GetPresetDesign(ctx, d.PresetID)
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w %d", ErrUnknownPreset, d.PresetID)
		}
		if err != nil {
			return err
		}
		sel.Preset = preset
	case pricing.RepeatDesign:
		src, err := s.repo.GetByID(ctx, d.SourceOrderID)
		if err != nil {
			return err
		}
		if src.UserID != userID {
			return ErrNotOwner
		}
	}
	if src, ok := sel.Fabric.Source.(pricing.FactorySource); ok {
		fabric, err := s.catalog.GetFactoryFabric(ctx, src.FabricID)
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w %d", ErrUnknownFabric, src.FabricID)
		}
		if err != nil {
			return err
		}
		sel.FactoryFabric = fabric
	}
	return nil
}

// insertOnce stores order unless key was already used for module. The key is
// released again when the insert fails so the client may retry.
func (s *Service) insertOnce(ctx context.Context, order Order, key, module string) (*Order, error) {
	key = strings.TrimSpace(key)
	if key == "" || s.idem == nil {
		return s.insert(ctx, order)
	}
	if err := s.idem.CheckAndInsert(ctx, key, module); err != nil {
		return nil, err
	}
	created, err := s.insert(ctx, order)
	if err != nil {
		if derr := s.idem.Delete(ctx, key, module); derr != nil {
			s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", derr))
		}
		return nil, err
	}
	return created, nil
}

func (s *Service) insert(ctx context.Context, order Order) (*Order, error) {
	var orderID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		orderID = id
		for _, line := range order.Lines {
			line.OrderID = id
			if _, err := tx.InsertLine(ctx, line); err != nil {
				return fmt.Errorf("insert line %d: %w", line.LineNo, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}
	return s.repo.GetByID(ctx, orderID)
}

// afterCreate fans out a committed order. Failures are logged and never undo the order.
func (s *Service) afterCreate(ctx context.Context, order Order) {
	s.metrics.OrderCreated(string(order.Kind))
	s.logger.Info("order created",
		slog.Int64("order_id", order.ID),
		slog.Int64("user_id", order.UserID),
		slog.String("kind", string(order.Kind)),
		slog.Int64("total", int64(order.Total())),
	)
	if s.notifier != nil {
		if err := s.notifier.NotifyOrderCreated(ctx, order); err != nil {
			s.logger.Error("notify order created", slog.Int64("order_id", order.ID), slog.Any("error", err))
		}
	}
	if order.Kind == KindOrder {
		s.generateRuns(ctx, order)
	}
}

func (s *Service) generateRuns(ctx context.Context, order Order) {
	if s.runs == nil {
		return
	}
	if _, err := s.runs.AddRunsFromOrder(ctx, order); err != nil {
		s.logger.Error("generate production runs", slog.Int64("order_id", order.ID), slog.Any("error", err))
	}
}
