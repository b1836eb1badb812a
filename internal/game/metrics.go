package game

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Action log ─────────────────────────────────────────────────────────────

var actionsLogged = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cafe",
	Subsystem: "actions",
	Name:      "logged_total",
	Help:      "Action records appended to the log, by action type.",
}, []string{"action_type"})

// ─── Ledger ─────────────────────────────────────────────────────────────────

var ledgerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cafe",
	Subsystem: "ledger",
	Name:      "rejections_total",
	Help:      "Ledger operations rejected before mutation, by reason.",
}, []string{"reason"})

var ledgerMoney = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "cafe",
	Subsystem: "ledger",
	Name:      "money_gold",
	Help:      "Current gold balance.",
})

var ledgerDebt = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "cafe",
	Subsystem: "ledger",
	Name:      "debt_gold",
	Help:      "Outstanding debt per lender.",
}, []string{"lender"})

// ─── Lending ────────────────────────────────────────────────────────────────

var decisionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "cafe",
	Subsystem: "lending",
	Name:      "decision_duration_seconds",
	Help:      "Latency of decision provider calls, including fallbacks.",
	Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
})

var decisionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cafe",
	Subsystem: "lending",
	Name:      "decisions_total",
	Help:      "Decision provider outcomes (approved, denied, fallback).",
}, []string{"outcome"})

// ─── Accrual ────────────────────────────────────────────────────────────────

var accrualPasses = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "cafe",
	Subsystem: "accrual",
	Name:      "passes_total",
	Help:      "Completed accrual passes.",
})

func observeBalances(money float64, debts map[LenderID]float64) {
	ledgerMoney.Set(money)
	for id, v := range debts {
		ledgerDebt.WithLabelValues(string(id)).Set(v)
	}
}
