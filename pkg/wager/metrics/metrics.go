// Package metrics provides Prometheus metrics for the wagering engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// WagerMetrics collects and exposes ledger and settlement metrics.
type WagerMetrics struct {
	registry *prometheus.Registry

	// Ledger metrics
	WagersCreated prometheus.Counter
	ActiveWagers  prometheus.Gauge
	StakesPlaced  *prometheus.CounterVec
	StakeVolume   *prometheus.CounterVec
	OffersCreated prometheus.Counter
	OfferMatches  prometheus.Counter

	// Settlement metrics
	SweepRuns      *prometheus.CounterVec
	SweepDuration  prometheus.Histogram
	WagersSettled  *prometheus.CounterVec
	ResolverErrors prometheus.Counter

	// Payout metrics
	ClaimsPaid          *prometheus.CounterVec
	PayoutVolume        prometheus.Counter
	CommissionCollected prometheus.Counter
}

// NewWagerMetrics creates a metrics collector with its own registry.
func NewWagerMetrics() *WagerMetrics {
	registry := prometheus.NewRegistry()

	m := &WagerMetrics{
		registry: registry,

		WagersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wagerd_wagers_created_total",
			Help: "Total number of wagers opened",
		}),
		ActiveWagers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wagerd_wagers_active",
			Help: "Current number of open or in-progress wagers",
		}),
		StakesPlaced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wagerd_stakes_total",
				Help: "Total accepted stakes by mode and side",
			},
			[]string{"mode", "side"},
		),
		StakeVolume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wagerd_stake_volume",
				Help: "Total staked volume by mode",
			},
			[]string{"mode"},
		),
		OffersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wagerd_offers_created_total",
			Help: "Total number of order-book offers posted",
		}),
		OfferMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wagerd_offer_matches_total",
			Help: "Total number of offer acceptances, partial fills included",
		}),

		SweepRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wagerd_sweep_runs_total",
				Help: "Settlement sweep attempts by outcome",
			},
			[]string{"outcome"}, // completed | skipped | failed
		),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wagerd_sweep_duration_seconds",
			Help:    "Wall time of a full settlement sweep",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
		WagersSettled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wagerd_wagers_settled_total",
				Help: "Wagers reaching a terminal state by outcome",
			},
			[]string{"outcome"}, // side1 | side2 | void | cancelled
		),
		ResolverErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wagerd_resolver_errors_total",
			Help: "Transient match resolver failures, retried next sweep",
		}),

		ClaimsPaid: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wagerd_claims_paid_total",
				Help: "Successful claim payouts by mode",
			},
			[]string{"mode"},
		),
		PayoutVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wagerd_payout_volume",
			Help: "Total net amount credited to users by claims",
		}),
		CommissionCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wagerd_commission_collected",
			Help: "Total commission withheld for the house",
		}),
	}

	registry.MustRegister(
		m.WagersCreated,
		m.ActiveWagers,
		m.StakesPlaced,
		m.StakeVolume,
		m.OffersCreated,
		m.OfferMatches,
		m.SweepRuns,
		m.SweepDuration,
		m.WagersSettled,
		m.ResolverErrors,
		m.ClaimsPaid,
		m.PayoutVolume,
		m.CommissionCollected,
	)

	return m
}

// Registry returns the underlying registry for the /metrics handler.
func (m *WagerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePayout records a claim payout in one call.
func (m *WagerMetrics) ObservePayout(mode string, net decimal.Decimal) {
	m.ClaimsPaid.WithLabelValues(mode).Inc()
	m.PayoutVolume.Add(net.InexactFloat64())
}
