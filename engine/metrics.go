package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hostprotocols/ncpd/wire"
)

// Metrics is the engine's observability surface: table occupancy plus
// message counters by type, code and leader kind. It is an ambient
// concern, not a protocol feature — the spec's flow-control non-goal
// still applies; these counters only tally messages the dispatcher
// already parses. Modeled on runZeroInc's pkg/exporter, which wraps a
// handful of prometheus metrics behind a small struct updated from a
// single goroutine.
type Metrics struct {
	connTableOccupancy   prometheus.Gauge
	listenTableOccupancy prometheus.Gauge
	ncpMessagesTotal     *prometheus.CounterVec
	ncpErrorsTotal       *prometheus.CounterVec
	leaderMessagesTotal  *prometheus.CounterVec
}

// NewMetrics creates and registers the engine's metrics with reg. Passing
// a nil reg is valid for tests that don't care about scrape output; the
// metrics are still updated, just not exported.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connTableOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ncp_connection_table_occupancy",
			Help: "Number of allocated connection table slots.",
		}),
		listenTableOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ncp_listen_table_occupancy",
			Help: "Number of allocated listening table slots.",
		}),
		ncpMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ncp_messages_total",
			Help: "NCP control messages dispatched by type.",
		}, []string{"type"}),
		ncpErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ncp_errors_total",
			Help: "ERR messages sent, by code.",
		}, []string{"code"}),
		leaderMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ncp_leader_messages_total",
			Help: "IMP leader messages received, by type.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.connTableOccupancy, m.listenTableOccupancy,
			m.ncpMessagesTotal, m.ncpErrorsTotal, m.leaderMessagesTotal)
	}
	return m
}

func (m *Metrics) observeNCP(t wire.Type) {
	if m == nil {
		return
	}
	m.ncpMessagesTotal.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) observeErr(c wire.ErrCode) {
	if m == nil {
		return
	}
	m.ncpErrorsTotal.WithLabelValues(c.String()).Inc()
}

func (m *Metrics) observeLeader(t wire.LeaderType) {
	if m == nil {
		return
	}
	m.leaderMessagesTotal.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) setOccupancy(conns, listens int) {
	if m == nil {
		return
	}
	m.connTableOccupancy.Set(float64(conns))
	m.listenTableOccupancy.Set(float64(listens))
}
