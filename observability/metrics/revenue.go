package metrics

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RevenueMetrics tracks the ledger's operations and its headline balances.
type RevenueMetrics struct {
	operations     *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	currentPeriod  prometheus.Gauge
	accrued        prometheus.Gauge
	closedRevenue  prometheus.Gauge
	held           prometheus.Gauge
	totalSupply    prometheus.Gauge
	unexercised    prometheus.Gauge
	supplyCap      prometheus.Gauge
	rollovers      prometheus.Counter
	withdrawnValue prometheus.Counter
	bulkItems      *prometheus.CounterVec
	sinkFailures   prometheus.Counter
	sinkBacklog    prometheus.Gauge
	sinkDropped    prometheus.Counter
}

// Snapshot is the set of balances published after every commit.
type Snapshot struct {
	PeriodID      uint64
	Accrued       *big.Int
	ClosedRevenue *big.Int
	Held          *big.Int
	TotalSupply   *big.Int
	Unexercised   *big.Int
	SupplyCap     *big.Int
}

var (
	revenueOnce     sync.Once
	revenueRegistry *RevenueMetrics
)

func Revenue() *RevenueMetrics {
	revenueOnce.Do(func() {
		revenueRegistry = &RevenueMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "revchain",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "revchain",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Time spent holding the ledger write lock per operation.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			currentPeriod: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "revchain",
				Subsystem: "ledger",
				Name:      "current_period",
				Help:      "Identifier of the accruing period.",
			}),
			accrued: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "revchain",
				Subsystem: "ledger",
				Name:      "accrued_revenue",
				Help:      "Revenue accrued in the current period, carry-forward included.",
			}),
			closedRevenue: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "revchain",
				Subsystem: "ledger",
				Name:      "closed_revenue",
				Help:      "Revenue snapshot of the last closed period.",
			}),
			held: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "revchain",
				Subsystem: "ledger",
				Name:      "held_value",
				Help:      "Value currently held in custody.",
			}),
			totalSupply: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "revchain",
				Subsystem: "ledger",
				Name:      "unit_supply",
				Help:      "Total tradeable units in circulation.",
			}),
			unexercised: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "revchain",
				Subsystem: "ledger",
				Name:      "unexercised_supply",
				Help:      "Units promised by grants that have not been redeemed.",
			}),
			supplyCap: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "revchain",
				Subsystem: "ledger",
				Name:      "supply_cap",
				Help:      "Configured ceiling on minted plus pending units.",
			}),
			rollovers: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "revchain",
				Subsystem: "ledger",
				Name:      "rollovers_total",
				Help:      "Number of periods closed.",
			}),
			withdrawnValue: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "revchain",
				Subsystem: "ledger",
				Name:      "withdrawn_value_total",
				Help:      "Cumulative value paid out to holders.",
			}),
			bulkItems: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "revchain",
				Subsystem: "ledger",
				Name:      "bulk_items_total",
				Help:      "Delegated bulk entries segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			sinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "revchain",
				Subsystem: "ledger",
				Name:      "sink_failures_total",
				Help:      "Failed deliveries of committed events to archive sinks.",
			}),
			sinkBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "revchain",
				Subsystem: "ledger",
				Name:      "sink_backlog_events",
				Help:      "Committed events queued for redelivery to sinks.",
			}),
			sinkDropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "revchain",
				Subsystem: "ledger",
				Name:      "sink_dropped_events_total",
				Help:      "Committed events discarded after the sink backlog overflowed.",
			}),
		}
		prometheus.MustRegister(
			revenueRegistry.operations,
			revenueRegistry.latency,
			revenueRegistry.currentPeriod,
			revenueRegistry.accrued,
			revenueRegistry.closedRevenue,
			revenueRegistry.held,
			revenueRegistry.totalSupply,
			revenueRegistry.unexercised,
			revenueRegistry.supplyCap,
			revenueRegistry.rollovers,
			revenueRegistry.withdrawnValue,
			revenueRegistry.bulkItems,
			revenueRegistry.sinkFailures,
			revenueRegistry.sinkBacklog,
			revenueRegistry.sinkDropped,
		)
	})
	return revenueRegistry
}

// ObserveOperation records the outcome and lock hold time of one operation.
func (m *RevenueMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	if operation = strings.TrimSpace(operation); operation == "" {
		operation = "unknown"
	}
	m.operations.WithLabelValues(operation, outcomeFor(err)).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBulkItem counts a single entry of a bulk call.
func (m *RevenueMetrics) RecordBulkItem(operation string, err error) {
	if m == nil {
		return
	}
	m.bulkItems.WithLabelValues(operation, outcomeFor(err)).Inc()
}

func (m *RevenueMetrics) RecordRollover() {
	if m == nil {
		return
	}
	m.rollovers.Inc()
}

func (m *RevenueMetrics) RecordWithdrawn(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.withdrawnValue.Add(bigToFloat(amount))
}

// RecordSinkFailure counts a failed sink delivery and the events it had to
// discard, if any.
func (m *RevenueMetrics) RecordSinkFailure(dropped int) {
	if m == nil {
		return
	}
	m.sinkFailures.Inc()
	if dropped > 0 {
		m.sinkDropped.Add(float64(dropped))
	}
}

func (m *RevenueMetrics) SetSinkBacklog(events int) {
	if m == nil {
		return
	}
	m.sinkBacklog.Set(float64(events))
}

// SetSnapshot publishes the committed balances.
func (m *RevenueMetrics) SetSnapshot(s Snapshot) {
	if m == nil {
		return
	}
	m.currentPeriod.Set(float64(s.PeriodID))
	m.accrued.Set(bigToFloat(s.Accrued))
	m.closedRevenue.Set(bigToFloat(s.ClosedRevenue))
	m.held.Set(bigToFloat(s.Held))
	m.totalSupply.Set(bigToFloat(s.TotalSupply))
	m.unexercised.Set(bigToFloat(s.Unexercised))
	m.supplyCap.Set(bigToFloat(s.SupplyCap))
}

func outcomeFor(err error) string {
	if err == nil {
		return "success"
	}
	return "error"
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
