package kg

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts snapshot hash, sign, and verify activity.
type Metrics struct {
	HashTotal            prometheus.Counter
	HashDurationMsSum    prometheus.Counter
	SignTotal            prometheus.Counter
	SignDurationMsSum    prometheus.Counter
	SignCachedTotal      prometheus.Counter
	SignRegeneratedTotal prometheus.Counter
	VerifyTotal          prometheus.Counter
	VerifyInvalidTotal   prometheus.Counter
}

// NewMetrics registers the KG metric set on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		HashTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kg_snapshot_hash_total",
			Help: "Snapshot payload hash computations.",
		}),
		HashDurationMsSum: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kg_snapshot_hash_duration_ms_sum",
			Help: "Cumulative snapshot hash duration in milliseconds.",
		}),
		SignTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kg_snapshot_sign_total",
			Help: "Snapshot signing attempts.",
		}),
		SignDurationMsSum: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kg_snapshot_sign_duration_ms_sum",
			Help: "Cumulative snapshot signing duration in milliseconds.",
		}),
		SignCachedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kg_snapshot_sign_cached_total",
			Help: "Deferred sign requests answered from the stored signature.",
		}),
		SignRegeneratedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kg_snapshot_sign_regenerated_total",
			Help: "Deferred sign requests that regenerated the signature.",
		}),
		VerifyTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kg_snapshot_verify_total",
			Help: "Snapshot verification attempts.",
		}),
		VerifyInvalidTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kg_snapshot_verify_invalid_total",
			Help: "Snapshot verifications that returned invalid.",
		}),
	}
}
