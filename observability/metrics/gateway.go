package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type GatewayMetrics struct {
	admissions  *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	settlements *prometheus.CounterVec
	fundsAdded  prometheus.Counter
	slotUsage   prometheus.Gauge
	adminOps    *prometheus.CounterVec
}

var (
	gatewayOnce     sync.Once
	gatewayRegistry *GatewayMetrics
)

func Gateway() *GatewayMetrics {
	gatewayOnce.Do(func() {
		gatewayRegistry = &GatewayMetrics{
			admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "gateway_admissions_total",
				Help: "Count of admitted transactions by classified kind.",
			}, []string{"kind"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "gateway_rejections_total",
				Help: "Count of rejected transactions by rejection reason.",
			}, []string{"reason"}),
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "gateway_settlements_total",
				Help: "Count of applied settlements by operation.",
			}, []string{"op"}),
			fundsAdded: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "gateway_funds_added_total",
				Help: "Count of legacy native top-ups.",
			}),
			slotUsage: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "gateway_slot_usd_usage",
				Help: "Cumulative 1e18-scaled USD admitted in the current slot.",
			}),
			adminOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "gateway_admin_operations_total",
				Help: "Count of configuration mutations by operation.",
			}, []string{"op"}),
		}
		prometheus.MustRegister(
			gatewayRegistry.admissions,
			gatewayRegistry.rejections,
			gatewayRegistry.settlements,
			gatewayRegistry.fundsAdded,
			gatewayRegistry.slotUsage,
			gatewayRegistry.adminOps,
		)
	})
	return gatewayRegistry
}

func (m *GatewayMetrics) ObserveAdmission(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.admissions.WithLabelValues(kind).Inc()
}

func (m *GatewayMetrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *GatewayMetrics) ObserveSettlement(op string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.settlements.WithLabelValues(op).Inc()
}

func (m *GatewayMetrics) ObserveFundsAdded() {
	if m == nil {
		return
	}
	m.fundsAdded.Inc()
}

func (m *GatewayMetrics) SetSlotUsage(usage float64) {
	if m == nil {
		return
	}
	m.slotUsage.Set(usage)
}

func (m *GatewayMetrics) ObserveAdminOp(op string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.adminOps.WithLabelValues(op).Inc()
}
