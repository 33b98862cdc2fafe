// Package metrics provides Prometheus metrics collection for quotagate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the quota engine.
type Collector struct {
	// Admission metrics
	Admitted   *prometheus.CounterVec
	Denied     *prometheus.CounterVec
	OpDuration *prometheus.HistogramVec
	OpFailures *prometheus.CounterVec

	// Counter integrity metrics
	RaceLost  prometheus.Counter
	Rollovers prometheus.Counter

	// Infrastructure metrics
	StoreFailures              *prometheus.CounterVec
	FailOpenAdmissions         prometheus.Counter
	SubscriptionLookupFailures prometheus.Counter
	SubscriptionCacheHits      prometheus.Counter
}

// New creates a collector registered against the given registerer. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry
// so parallel tests do not collide on metric names.
func New(reg prometheus.Registerer) *Collector {
	factory := func(opts prometheus.CounterOpts) prometheus.Counter {
		c := prometheus.NewCounter(opts)
		reg.MustRegister(c)
		return c
	}

	c := &Collector{
		Admitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quotagate",
				Name:      "admitted_total",
				Help:      "Metered operations admitted by the gate",
			},
			[]string{"feature", "standing"},
		),
		Denied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quotagate",
				Name:      "denied_total",
				Help:      "Metered operations denied by the gate",
			},
			[]string{"feature"},
		),
		OpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "quotagate",
				Name:      "operation_duration_seconds",
				Help:      "Duration of admitted protected operations",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"feature", "outcome"},
		),
		OpFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quotagate",
				Name:      "operation_failures_total",
				Help:      "Protected operations that ran and failed (no quota consumed)",
			},
			[]string{"feature"},
		),
		RaceLost: factory(prometheus.CounterOpts{
			Namespace: "quotagate",
			Name:      "race_lost_total",
			Help:      "Increments that lost the race to the limit after the operation already ran",
		}),
		Rollovers: factory(prometheus.CounterOpts{
			Namespace: "quotagate",
			Name:      "period_rollovers_total",
			Help:      "Usage periods rolled over",
		}),
		StoreFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quotagate",
				Name:      "store_failures_total",
				Help:      "Usage record store failures by operation",
			},
			[]string{"op"},
		),
		FailOpenAdmissions: factory(prometheus.CounterOpts{
			Namespace: "quotagate",
			Name:      "fail_open_admissions_total",
			Help:      "Admissions granted because the store was unavailable and the deployment fails open",
		}),
		SubscriptionLookupFailures: factory(prometheus.CounterOpts{
			Namespace: "quotagate",
			Name:      "subscription_lookup_failures_total",
			Help:      "Subscription lookups that failed and were treated as not subscribed",
		}),
		SubscriptionCacheHits: factory(prometheus.CounterOpts{
			Namespace: "quotagate",
			Name:      "subscription_cache_hits_total",
			Help:      "Subscription views served from the short-lived cache",
		}),
	}

	reg.MustRegister(c.Admitted, c.Denied, c.OpDuration, c.OpFailures, c.StoreFailures)
	return c
}
