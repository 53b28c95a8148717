package observability

import "github.com/prometheus/client_golang/prometheus"

// Pipeline counts order, production and billing events. A nil *Pipeline is a no-op.
type Pipeline struct {
	orders         *prometheus.CounterVec
	runs           prometheus.Counter
	runDecisions   *prometheus.CounterVec
	invoices       *prometheus.CounterVec
	claimConflicts prometheus.Counter
}

// NewPipeline registers the pipeline counters.
func NewPipeline(registerer prometheus.Registerer) *Pipeline {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	p := &Pipeline{
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "textile_orders_created_total",
			Help: "Orders and quotation requests accepted.",
		}, []string{"kind"}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "textile_production_runs_generated_total",
			Help: "Production runs created from order lines.",
		}),
		runDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "textile_production_run_decisions_total",
			Help: "Production run approvals and rejections.",
		}, []string{"status"}),
		invoices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "textile_invoice_transitions_total",
			Help: "Invoices created or moved to a new status.",
		}, []string{"status"}),
		claimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "textile_invoice_claim_conflicts_total",
			Help: "Invoice creations aborted because a run was claimed concurrently.",
		}),
	}
	registerer.MustRegister(p.orders, p.runs, p.runDecisions, p.invoices, p.claimConflicts)
	return p
}

// OrderCreated counts an accepted order of the given kind.
func (p *Pipeline) OrderCreated(kind string) {
	if p == nil {
		return
	}
	p.orders.WithLabelValues(kind).Inc()
}

// RunsGenerated counts newly created production runs.
func (p *Pipeline) RunsGenerated(n int) {
	if p == nil || n <= 0 {
		return
	}
	p.runs.Add(float64(n))
}

// RunDecided counts a run approval or rejection.
func (p *Pipeline) RunDecided(status string) {
	if p == nil {
		return
	}
	p.runDecisions.WithLabelValues(status).Inc()
}

// InvoiceTransition counts an invoice entering status.
func (p *Pipeline) InvoiceTransition(status string) {
	if p == nil {
		return
	}
	p.invoices.WithLabelValues(status).Inc()
}

// ClaimConflict counts an aborted compare-and-claim.
func (p *Pipeline) ClaimConflict() {
	if p == nil {
		return
	}
	p.claimConflicts.Inc()
}
