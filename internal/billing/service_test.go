package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printhouse/textile-erp/internal/observability"
	"github.com/printhouse/textile-erp/internal/platform/cache"
	"github.com/printhouse/textile-erp/internal/platform/lock"
	"github.com/printhouse/textile-erp/internal/pricing"
	"github.com/printhouse/textile-erp/internal/production"
	"github.com/printhouse/textile-erp/internal/shared"
)

type memoryBillingRepo struct {
	mu          sync.Mutex
	runs        map[int64]production.Run
	invoices    map[int64]Invoice
	counters    map[int64]int64
	nextRun     int64
	nextInvoice int64
	afterList   func()

	// Pending serialization failures, as Postgres raises them under
	// RepeatableRead when a concurrent transaction wins the row.
	counterRaces int
	claimRaces   int
}

func serializationFailure() error {
	return &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
}

func newMemoryBillingRepo() *memoryBillingRepo {
	return &memoryBillingRepo{
		runs:     map[int64]production.Run{},
		invoices: map[int64]Invoice{},
		counters: map[int64]int64{},
	}
}

func (m *memoryBillingRepo) addRun(customer int64, status production.Status, meters int64, price pricing.Money, at time.Time) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRun++
	m.runs[m.nextRun] = production.Run{
		ID:               m.nextRun,
		OrderID:          m.nextRun * 10,
		OrderLineID:      m.nextRun*10 + 1,
		CustomerEntityID: customer,
		DesignRef:        "preset:1",
		Fabric:           "sublimation/order/factory#7",
		TotalMeters:      decimal.NewFromInt(meters),
		PricePerMeter:    price,
		Status:           status,
		CreatedAt:        at,
	}
	if status == production.StatusBilled {
		claimedBy := int64(999)
		run := m.runs[m.nextRun]
		run.InvoiceID = &claimedBy
		m.runs[m.nextRun] = run
	}
	return m.nextRun
}

func (m *memoryBillingRepo) run(id int64) production.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

func (m *memoryBillingRepo) invoiceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.invoices)
}

func (m *memoryBillingRepo) ListBillableRuns(ctx context.Context, customer int64, from, to time.Time) ([]production.Run, error) {
	m.mu.Lock()
	var out []production.Run
	for _, run := range m.runs {
		if run.CustomerEntityID != customer || run.Status != production.StatusApproved || run.InvoiceID != nil {
			continue
		}
		if run.CreatedAt.Before(from) || run.CreatedAt.After(to) {
			continue
		}
		out = append(out, run)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if m.afterList != nil {
		m.afterList()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *memoryBillingRepo) GetInvoice(_ context.Context, id int64) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	inv.Lines = append([]Line(nil), inv.Lines...)
	return &inv, nil
}

func (m *memoryBillingRepo) ListInvoices(_ context.Context, filter ListFilter) ([]Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Invoice
	for _, inv := range m.invoices {
		if filter.CustomerEntityID > 0 && inv.CustomerEntityID != filter.CustomerEntityID {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memoryBillingRepo) SumTotals(_ context.Context, status Status) (pricing.Money, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum pricing.Money
	for _, inv := range m.invoices {
		if inv.Status == status {
			sum += inv.Total
		}
	}
	return sum, nil
}

func (m *memoryBillingRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := make(map[int64]production.Run, len(m.runs))
	for id, r := range m.runs {
		runs[id] = r
	}
	invoices := make(map[int64]Invoice, len(m.invoices))
	for id, inv := range m.invoices {
		invoices[id] = inv
	}
	counters := make(map[int64]int64, len(m.counters))
	for id, n := range m.counters {
		counters[id] = n
	}
	nextInvoice := m.nextInvoice
	err := fn(ctx, &memoryBillingTx{repo: m})
	if err == nil {
		err = m.checkRuns()
	}
	if err != nil {
		m.runs, m.invoices, m.counters, m.nextInvoice = runs, invoices, counters, nextInvoice
		return err
	}
	return nil
}

// checkRuns enforces CHECK ((status = 'BILLED') = (invoice_id IS NOT NULL)).
func (m *memoryBillingRepo) checkRuns() error {
	for _, run := range m.runs {
		if (run.Status == production.StatusBilled) != (run.InvoiceID != nil) {
			return fmt.Errorf("run %d: %w", run.ID, errConstraint)
		}
	}
	return nil
}

type memoryBillingTx struct {
	repo *memoryBillingRepo
}

func (t *memoryBillingTx) NextBillNumber(_ context.Context, customer int64) (int64, error) {
	if t.repo.counterRaces > 0 {
		t.repo.counterRaces--
		return 0, serializationFailure()
	}
	t.repo.counters[customer]++
	return t.repo.counters[customer], nil
}

// errConstraint mirrors the table constraints in migrations/0001_pipeline.up.sql.
var errConstraint = errors.New("constraint violated")

func (t *memoryBillingTx) InsertInvoice(_ context.Context, inv Invoice) (int64, error) {
	for _, other := range t.repo.invoices {
		if other.CustomerEntityID == inv.CustomerEntityID && other.BillNumber == inv.BillNumber {
			return 0, errConstraint
		}
	}
	if !inv.Status.IsValid() {
		return 0, errConstraint
	}
	t.repo.nextInvoice++
	inv.ID = t.repo.nextInvoice
	inv.Lines = nil
	inv.CreatedAt = time.Now()
	t.repo.invoices[inv.ID] = inv
	return inv.ID, nil
}

func (t *memoryBillingTx) InsertLine(_ context.Context, invoiceID int64, line Line) error {
	inv, ok := t.repo.invoices[invoiceID]
	if !ok {
		return errConstraint
	}
	if _, ok := t.repo.runs[line.RunID]; !ok {
		return errConstraint
	}
	line.InvoiceID = invoiceID
	inv.Lines = append(inv.Lines, line)
	t.repo.invoices[invoiceID] = inv
	return nil
}

func (t *memoryBillingTx) ClaimRuns(_ context.Context, invoiceID int64, runIDs []int64) (int, error) {
	if t.repo.claimRaces > 0 {
		t.repo.claimRaces--
		return 0, serializationFailure()
	}
	claimed := 0
	for _, id := range runIDs {
		run, ok := t.repo.runs[id]
		if !ok || run.Status != production.StatusApproved || run.InvoiceID != nil {
			continue
		}
		inv := invoiceID
		run.Status = production.StatusBilled
		run.InvoiceID = &inv
		t.repo.runs[id] = run
		claimed++
	}
	return claimed, nil
}

func (t *memoryBillingTx) ReleaseRuns(_ context.Context, invoiceID int64) (int, error) {
	released := 0
	for id, run := range t.repo.runs {
		if run.InvoiceID != nil && *run.InvoiceID == invoiceID {
			run.Status = production.StatusApproved
			run.InvoiceID = nil
			t.repo.runs[id] = run
			released++
		}
	}
	return released, nil
}

func (t *memoryBillingTx) UpdateStatus(_ context.Context, id int64, from, to Status) error {
	inv, ok := t.repo.invoices[id]
	if !ok || inv.Status != from {
		return ErrInvoiceChanged
	}
	inv.Status = to
	t.repo.invoices[id] = inv
	return nil
}

func (t *memoryBillingTx) DeleteInvoice(_ context.Context, id int64, status Status) error {
	inv, ok := t.repo.invoices[id]
	if !ok || inv.Status != status {
		return ErrInvoiceChanged
	}
	// invoice_id is ON DELETE SET NULL, which the BILLED check then rejects.
	for _, run := range t.repo.runs {
		if run.InvoiceID != nil && *run.InvoiceID == id {
			return errConstraint
		}
	}
	delete(t.repo.invoices, id)
	return nil
}

type stubCustomers struct{}

func (stubCustomers) CustomerName(_ context.Context, id int64) (string, error) {
	if id == 404 {
		return "", fmt.Errorf("customer %w", shared.ErrNotFound)
	}
	return fmt.Sprintf("Customer #%d", id), nil
}

type recordingLinker struct {
	mu       sync.Mutex
	linked   map[string][]int64
	unlinked []string
}

func (l *recordingLinker) LinkInvoice(_ context.Context, orderIDs []int64, ref string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.linked == nil {
		l.linked = map[string][]int64{}
	}
	l.linked[ref] = orderIDs
	return nil
}

func (l *recordingLinker) UnlinkInvoice(_ context.Context, ref string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlinked = append(l.unlinked, ref)
	return nil
}

const customerID = int64(100)

var (
	periodStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)
	inPeriod    = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
)

func pct(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func draftParams(discount, vat int64) DraftParams {
	return DraftParams{
		CustomerEntityID: customerID,
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		DiscountPct:      pct(discount),
		VatPct:           pct(vat),
	}
}

func newTestService(repo *memoryBillingRepo, cfg ServiceConfig) (*Service, *recordingLinker) {
	linker := &recordingLinker{}
	return NewService(repo, stubCustomers{}, linker, cfg), linker
}

func TestComputeTotalsDiscountThenVat(t *testing.T) {
	lines := []Line{{LineTotal: 6000}, {LineTotal: 4000}}
	totals := ComputeTotals(lines, pct(3), pct(14))

	assert.Equal(t, pricing.Money(10000), totals.Subtotal)
	assert.Equal(t, pricing.Money(300), totals.DiscountAmount)
	assert.Equal(t, pricing.Money(9700), totals.AfterDiscount)
	assert.Equal(t, pricing.Money(1358), totals.VatAmount)
	assert.Equal(t, pricing.Money(11058), totals.Total)
}

func TestComputeTotalsInvariants(t *testing.T) {
	lines := []Line{{LineTotal: 1333}, {LineTotal: 77}, {LineTotal: 5}}
	for d := int64(0); d <= 100; d += 7 {
		for v := int64(0); v <= 100; v += 11 {
			totals := ComputeTotals(lines, pct(d), pct(v))
			assert.Equal(t, pricing.Money(1415), totals.Subtotal)
			assert.Equal(t, totals.Subtotal-totals.DiscountAmount, totals.AfterDiscount)
			assert.Equal(t, totals.AfterDiscount+totals.VatAmount, totals.Total)
			assert.Equal(t, pricing.Percent(totals.Subtotal, pct(d)), totals.DiscountAmount)
			assert.Equal(t, pricing.Percent(totals.AfterDiscount, pct(v)), totals.VatAmount)
		}
	}
}

func TestBuildDraftSelectsApprovedUnclaimedRunsInPeriod(t *testing.T) {
	repo := newMemoryBillingRepo()
	a := repo.addRun(customerID, production.StatusApproved, 10, 150, inPeriod)
	b := repo.addRun(customerID, production.StatusApproved, 3, 95, periodEnd)
	repo.addRun(customerID, production.StatusPending, 10, 150, inPeriod)
	repo.addRun(customerID, production.StatusRejected, 10, 150, inPeriod)
	repo.addRun(customerID, production.StatusBilled, 10, 150, inPeriod)
	repo.addRun(customerID, production.StatusApproved, 10, 150, periodStart.Add(-time.Second))
	repo.addRun(customerID+1, production.StatusApproved, 10, 150, inPeriod)
	svc, _ := newTestService(repo, ServiceConfig{})

	draft, err := svc.BuildDraft(context.Background(), draftParams(0, 14))
	require.NoError(t, err)
	require.Len(t, draft.Lines, 2)
	assert.Equal(t, []int64{a, b}, draft.RunIDs())
	assert.Equal(t, "Customer #100", draft.CustomerName)
	assert.Equal(t, StatusDraft, draft.Status)
	assert.Equal(t, pricing.Money(1500+285), draft.Subtotal)

	again, err := svc.BuildDraft(context.Background(), draftParams(0, 14))
	require.NoError(t, err)
	assert.Equal(t, draft, again)
	assert.Zero(t, repo.invoiceCount())
	assert.Equal(t, production.StatusApproved, repo.run(a).Status)
}

func TestBuildDraftEmptyAndInvalidInput(t *testing.T) {
	svc, _ := newTestService(newMemoryBillingRepo(), ServiceConfig{})
	ctx := context.Background()

	draft, err := svc.BuildDraft(ctx, draftParams(0, 0))
	require.NoError(t, err)
	assert.Empty(t, draft.Lines)
	assert.Zero(t, draft.Total)

	for _, params := range []DraftParams{draftParams(-1, 14), draftParams(0, 101)} {
		_, err := svc.BuildDraft(ctx, params)
		require.ErrorIs(t, err, ErrInvalidPercent)
	}
	reversed := draftParams(0, 14)
	reversed.PeriodStart, reversed.PeriodEnd = periodEnd, periodStart
	_, err = svc.BuildDraft(ctx, reversed)
	require.ErrorIs(t, err, shared.ErrValidation)

	unknown := draftParams(0, 14)
	unknown.CustomerEntityID = 404
	_, err = svc.BuildDraft(ctx, unknown)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateInvoiceClaimsRunsAndNumbersBills(t *testing.T) {
	repo := newMemoryBillingRepo()
	a := repo.addRun(customerID, production.StatusApproved, 10, 1000, inPeriod)
	svc, linker := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateParams{DraftParams: draftParams(3, 14), Notes: "March"})
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, inv.Status)
	assert.Equal(t, int64(1), inv.BillNumber)
	assert.Equal(t, pricing.Money(11058), inv.Total)
	assert.Equal(t, "INV-100-0001", inv.Ref())
	assert.Equal(t, []int64{10}, linker.linked["INV-100-0001"])

	run := repo.run(a)
	assert.Equal(t, production.StatusBilled, run.Status)
	require.NotNil(t, run.InvoiceID)
	assert.Equal(t, inv.ID, *run.InvoiceID)

	_, err = svc.CreateInvoice(ctx, CreateParams{DraftParams: draftParams(3, 14)})
	require.ErrorIs(t, err, ErrNothingToBill)

	repo.addRun(customerID, production.StatusApproved, 2, 50, inPeriod)
	second, err := svc.CreateInvoice(ctx, CreateParams{DraftParams: draftParams(0, 0), AsDraft: true})
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, second.Status)
	assert.Equal(t, int64(2), second.BillNumber)
	assert.Equal(t, pricing.Money(100), second.Total)
}

func TestCreateInvoiceClaimConflictRollsBack(t *testing.T) {
	repo := newMemoryBillingRepo()
	a := repo.addRun(customerID, production.StatusApproved, 10, 150, inPeriod)
	repo.addRun(customerID, production.StatusApproved, 5, 150, inPeriod)
	svc, linker := newTestService(repo, ServiceConfig{})

	// Another invoice bills run a between drafting and claiming.
	repo.afterList = func() {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		run := repo.runs[a]
		other := int64(999)
		run.Status = production.StatusBilled
		run.InvoiceID = &other
		repo.runs[a] = run
	}

	_, err := svc.CreateInvoice(context.Background(), CreateParams{DraftParams: draftParams(0, 14)})
	require.ErrorIs(t, err, ErrRunsClaimed)
	require.ErrorIs(t, err, shared.ErrConcurrentModification)
	assert.Zero(t, repo.invoiceCount())
	assert.Empty(t, repo.counters)
	assert.Equal(t, production.StatusApproved, repo.run(2).Status)
	assert.Empty(t, linker.linked)
}

func TestCreateInvoiceRetriesLostBillCounter(t *testing.T) {
	repo := newMemoryBillingRepo()
	a := repo.addRun(customerID, production.StatusApproved, 10, 1000, inPeriod)
	repo.counterRaces = 1
	svc, _ := newTestService(repo, ServiceConfig{})

	inv, err := svc.CreateInvoice(context.Background(), CreateParams{DraftParams: draftParams(0, 0)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inv.BillNumber)
	assert.Equal(t, 1, repo.invoiceCount())
	assert.Equal(t, production.StatusBilled, repo.run(a).Status)
}

func TestCreateInvoiceCounterContentionIsNotAClaimConflict(t *testing.T) {
	repo := newMemoryBillingRepo()
	a := repo.addRun(customerID, production.StatusApproved, 10, 1000, inPeriod)
	repo.counterRaces = billingTxAttempts
	reg := prometheus.NewRegistry()
	pipeline := observability.NewPipeline(reg)
	svc, linker := newTestService(repo, ServiceConfig{Metrics: pipeline})

	_, err := svc.CreateInvoice(context.Background(), CreateParams{DraftParams: draftParams(0, 14)})
	require.ErrorIs(t, err, ErrInvoiceChanged)
	require.ErrorIs(t, err, shared.ErrConcurrentModification)
	assert.NotErrorIs(t, err, ErrRunsClaimed)
	assert.Zero(t, repo.invoiceCount())
	assert.Empty(t, repo.counters)
	assert.Equal(t, production.StatusApproved, repo.run(a).Status)
	assert.Empty(t, linker.linked)

	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP textile_invoice_claim_conflicts_total Invoice creations aborted because a run was claimed concurrently.
# TYPE textile_invoice_claim_conflicts_total counter
textile_invoice_claim_conflicts_total 0
`), "textile_invoice_claim_conflicts_total"))
}

func TestCreateInvoiceSerializationDuringClaim(t *testing.T) {
	repo := newMemoryBillingRepo()
	a := repo.addRun(customerID, production.StatusApproved, 10, 1000, inPeriod)
	repo.claimRaces = 1
	reg := prometheus.NewRegistry()
	svc, _ := newTestService(repo, ServiceConfig{Metrics: observability.NewPipeline(reg)})

	_, err := svc.CreateInvoice(context.Background(), CreateParams{DraftParams: draftParams(0, 0)})
	require.ErrorIs(t, err, ErrRunsClaimed)
	assert.Zero(t, repo.invoiceCount())
	assert.Equal(t, production.StatusApproved, repo.run(a).Status)
	assert.Equal(t, 0, repo.claimRaces, "a lost claim is not retried")
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP textile_invoice_claim_conflicts_total Invoice creations aborted because a run was claimed concurrently.
# TYPE textile_invoice_claim_conflicts_total counter
textile_invoice_claim_conflicts_total 1
`), "textile_invoice_claim_conflicts_total"))
}

func TestConcurrentCreateInvoiceBillsRunsOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	for name, locker := range map[string]*lock.Locker{
		"unlocked": nil,
		"locked":   lock.New(client, 5*time.Second, nil),
	} {
		t.Run(name, func(t *testing.T) {
			repo := newMemoryBillingRepo()
			for i := 0; i < 5; i++ {
				repo.addRun(customerID, production.StatusApproved, 10, 150, inPeriod)
			}
			svc, _ := newTestService(repo, ServiceConfig{Locker: locker})

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = svc.CreateInvoice(context.Background(), CreateParams{DraftParams: draftParams(0, 14)})
				}(i)
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				assert.True(t, errors.Is(err, shared.ErrConcurrentModification) || errors.Is(err, ErrNothingToBill), err)
			}
			assert.Equal(t, 1, succeeded)
			assert.Equal(t, 1, repo.invoiceCount())

			billed := map[int64]int{}
			for _, run := range repo.runs {
				require.Equal(t, production.StatusBilled, run.Status)
				billed[*run.InvoiceID]++
			}
			assert.Len(t, billed, 1)
		})
	}
}

func TestDeleteIssuedInvoiceReleasesRuns(t *testing.T) {
	repo := newMemoryBillingRepo()
	repo.addRun(customerID, production.StatusApproved, 10, 150, inPeriod)
	repo.addRun(customerID, production.StatusApproved, 4, 150, inPeriod)
	svc, linker := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateParams{DraftParams: draftParams(0, 14)})
	require.NoError(t, err)
	draft, err := svc.BuildDraft(ctx, draftParams(0, 14))
	require.NoError(t, err)
	assert.Empty(t, draft.Lines)

	require.NoError(t, svc.DeleteInvoice(ctx, inv.ID))
	_, err = svc.GetInvoice(ctx, inv.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, []string{inv.Ref()}, linker.unlinked)

	draft, err = svc.BuildDraft(ctx, draftParams(0, 14))
	require.NoError(t, err)
	assert.Equal(t, inv.RunIDs(), draft.RunIDs())
	for _, id := range draft.RunIDs() {
		assert.Equal(t, production.StatusApproved, repo.run(id).Status)
		assert.Nil(t, repo.run(id).InvoiceID)
	}
}

func TestDeletePaidInvoiceIsRejected(t *testing.T) {
	repo := newMemoryBillingRepo()
	repo.addRun(customerID, production.StatusApproved, 10, 150, inPeriod)
	svc, _ := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateParams{DraftParams: draftParams(0, 14)})
	require.NoError(t, err)
	_, err = svc.UpdateInvoiceStatus(ctx, inv.ID, StatusPaid)
	require.NoError(t, err)

	err = svc.DeleteInvoice(ctx, inv.ID)
	require.ErrorIs(t, err, ErrInvoicePaid)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	assert.Equal(t, 1, repo.invoiceCount())
	assert.Equal(t, production.StatusBilled, repo.run(1).Status)
}

func TestInvoiceStatusTransitions(t *testing.T) {
	repo := newMemoryBillingRepo()
	repo.addRun(customerID, production.StatusApproved, 10, 150, inPeriod)
	svc, linker := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateParams{DraftParams: draftParams(0, 14), AsDraft: true})
	require.NoError(t, err)

	_, err = svc.UpdateInvoiceStatus(ctx, inv.ID, StatusPaid)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.UpdateInvoiceStatus(ctx, inv.ID, Status("VOID"))
	require.ErrorIs(t, err, shared.ErrValidation)

	issued, err := svc.UpdateInvoiceStatus(ctx, inv.ID, StatusIssued)
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, issued.Status)

	cancelled, err := svc.UpdateInvoiceStatus(ctx, inv.ID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, production.StatusApproved, repo.run(1).Status)
	assert.Equal(t, []string{inv.Ref()}, linker.unlinked)

	_, err = svc.UpdateInvoiceStatus(ctx, inv.ID, StatusPaid)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestReceivablesAndCollectedFollowStatus(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemoryBillingRepo()
	repo.addRun(customerID, production.StatusApproved, 10, 1000, inPeriod)
	svc, _ := newTestService(repo, ServiceConfig{Cache: cache.NewVersioned(client, "billing", time.Minute)})
	ctx := context.Background()

	sum, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, sum)

	inv, err := svc.CreateInvoice(ctx, CreateParams{DraftParams: draftParams(3, 14)})
	require.NoError(t, err)
	receivables, err := svc.TotalReceivables(ctx)
	require.NoError(t, err)
	assert.Equal(t, pricing.Money(11058), receivables)

	_, err = svc.UpdateInvoiceStatus(ctx, inv.ID, StatusPaid)
	require.NoError(t, err)
	sum, err = svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Receivables: 0, Collected: 11058}, sum)
}

func TestHandlerDraftAndCreate(t *testing.T) {
	repo := newMemoryBillingRepo()
	repo.addRun(customerID, production.StatusApproved, 10, 1000, inPeriod)
	svc, _ := newTestService(repo, ServiceConfig{DefaultVATPct: pct(14)})

	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/draft?customer_id=100&from=2026-03-01&to=2026-03-31&discount_pct=3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":11058`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/draft?customer_id=100&from=2026-03-01&to=2026-03-31&vat_pct=120", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	body := `{"customer_entity_id":100,"period_start":"2026-03-01","period_end":"2026-03-31","discount_pct":3}`
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoices", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"bill_number":1`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoices", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"receivables":11058`)
}

func TestDraftPreviewSurvivesFirstCallerLeaving(t *testing.T) {
	repo := newMemoryBillingRepo()
	repo.addRun(customerID, production.StatusApproved, 10, 1000, inPeriod)
	svc, _ := newTestService(repo, ServiceConfig{DefaultVATPct: pct(14)})

	entered := make(chan struct{})
	release := make(chan struct{})
	var lists int32
	repo.afterList = func() {
		if atomic.AddInt32(&lists, 1) == 1 {
			close(entered)
			<-release
		}
	}

	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)
	const url = "/draft?customer_id=100&from=2026-03-01&to=2026-03-31"

	firstCtx, leave := context.WithCancel(context.Background())
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, url, nil).WithContext(firstCtx))
	}()
	<-entered

	second := httptest.NewRecorder()
	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, url, nil))
	}()
	time.Sleep(20 * time.Millisecond)

	leave()
	<-firstDone
	close(release)
	<-secondDone

	require.Equal(t, http.StatusOK, second.Code, second.Body.String())
	assert.Contains(t, second.Body.String(), `"total":11400`)
}

func TestParsePeriodCoversWholeDays(t *testing.T) {
	start, end, err := ParsePeriod("2026-03-01", "2026-03-31")
	require.NoError(t, err)
	assert.Equal(t, periodStart, start)
	assert.True(t, end.After(periodEnd))
	assert.True(t, end.Before(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))

	_, _, err = ParsePeriod("March", "2026-03-31")
	require.ErrorIs(t, err, shared.ErrValidation)
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, log.Action)
	return nil
}

func TestInvoiceLifecycleIsAudited(t *testing.T) {
	repo := newMemoryBillingRepo()
	repo.addRun(customerID, production.StatusApproved, 10, 150, inPeriod)
	audit := &recordingAudit{}
	svc, _ := newTestService(repo, ServiceConfig{Audit: audit})
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, CreateParams{DraftParams: draftParams(0, 14)})
	require.NoError(t, err)
	_, err = svc.UpdateInvoiceStatus(ctx, inv.ID, StatusCancelled)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteInvoice(ctx, inv.ID))

	assert.Equal(t, []string{"invoice.created", "invoice.status", "invoice.deleted"}, audit.actions)
}
