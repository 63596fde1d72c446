package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rendergw_renders_total",
			Help: "Render jobs by kind and outcome",
		},
		[]string{"kind", "status"}, // png|jpeg|pdf|html , ok|failed
	)

	AdmissionDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rendergw_admission_denied_total",
			Help: "Denied job requests by reason",
		},
		[]string{"reason"},
	)

	InvoicesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rendergw_invoices_total",
			Help: "Invoice lifecycle counter by status",
		},
		[]string{"status"}, // pending|paid|expired
	)

	SettlementFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rendergw_settlement_failures_total",
			Help: "Settlements that failed after a successful render",
		},
	)

	ActiveRenders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rendergw_active_renders",
			Help: "Render jobs currently holding a concurrency slot",
		},
	)
)

var registerOnce sync.Once

// MustRegister registers all collectors once; later calls are no-ops so
// server construction stays safe to repeat.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() { register(r) })
}

func register(r prometheus.Registerer) {
	r.MustRegister(
		RendersTotal,
		AdmissionDeniedTotal,
		InvoicesTotal,
		SettlementFailuresTotal,
		ActiveRenders,
	)
}
