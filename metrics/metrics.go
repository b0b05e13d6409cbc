package metrics

import (
	"sync"

	"ip-setkeeper/reconcile"
	"ip-setkeeper/registry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once   sync.Once
	global *Metrics
)

// Metrics holds the set keeper collectors. It implements reconcile.Recorder.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Backend commands
	CommandTotal  *prometheus.CounterVec
	CommandErrors *prometheus.CounterVec

	// Passes
	PassTotal     *prometheus.CounterVec
	PassFailures  *prometheus.CounterVec
	PassSets      *prometheus.GaugeVec
	PassTimestamp *prometheus.GaugeVec

	// Registry
	SetCount   prometheus.Gauge
	SetMembers *prometheus.GaugeVec
	SetRefs    *prometheus.GaugeVec
}

// Get returns the process wide metrics registered on the default registerer.
func Get() *Metrics {
	once.Do(func() {
		global = New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	})
	return global
}

func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{gatherer: gatherer}

	m.CommandTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "ipsetkeeper_backend_commands_total",
		Help: "Total backend commands issued",
	}, []string{"op"})
	m.CommandErrors = f.NewCounterVec(prometheus.CounterOpts{
		Name: "ipsetkeeper_backend_command_errors_total",
		Help: "Total failed backend commands",
	}, []string{"op"})

	m.PassTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "ipsetkeeper_passes_total",
		Help: "Total reconciliation passes",
	}, []string{"kind"})
	m.PassFailures = f.NewCounterVec(prometheus.CounterOpts{
		Name: "ipsetkeeper_pass_failures_total",
		Help: "Total failures collected by reconciliation passes",
	}, []string{"kind"})
	m.PassSets = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ipsetkeeper_pass_sets",
		Help: "Sets handled by the last pass",
	}, []string{"kind"})
	m.PassTimestamp = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ipsetkeeper_pass_last_timestamp_seconds",
		Help: "Unix time of the last pass",
	}, []string{"kind"})

	m.SetCount = f.NewGauge(prometheus.GaugeOpts{
		Name: "ipsetkeeper_sets",
		Help: "Number of sets in the registry",
	})
	m.SetMembers = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ipsetkeeper_set_members",
		Help: "Number of members per set",
	}, []string{"set"})
	m.SetRefs = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ipsetkeeper_set_references",
		Help: "Reference count per set",
	}, []string{"set"})
	return m
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

func (m *Metrics) ObserveCommand(op reconcile.Op, err error) {
	m.CommandTotal.WithLabelValues(string(op)).Inc()
	if err != nil {
		m.CommandErrors.WithLabelValues(string(op)).Inc()
	}
}

func (m *Metrics) ObservePass(kind string, sets int, failures int) {
	m.PassTotal.WithLabelValues(kind).Inc()
	m.PassFailures.WithLabelValues(kind).Add(float64(failures))
	m.PassSets.WithLabelValues(kind).Set(float64(sets))
	m.PassTimestamp.WithLabelValues(kind).SetToCurrentTime()
}

// UpdateSets resets the per set gauges from the current registry content.
func (m *Metrics) UpdateSets(reg *registry.Registry) error {
	return reg.Shared(func(sets []registry.SetInfo) error {
		m.SetMembers.Reset()
		m.SetRefs.Reset()
		m.SetCount.Set(float64(len(sets)))
		for _, s := range sets {
			m.SetMembers.WithLabelValues(s.Name).Set(float64(len(s.Members)))
			m.SetRefs.WithLabelValues(s.Name).Set(float64(s.RefCount))
		}
		return nil
	})
}
