package report

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/newtron-network/newtrace/pkg/newtrace/trace"
)

// metrics holds the collectors exported for one trace.
type metrics struct {
	counter *prometheus.GaugeVec
	queue   *prometheus.GaugeVec
	hops    *prometheus.GaugeVec
	info    *prometheus.GaugeVec
}

func newMetrics() metrics {
	return metrics{
		counter: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "newtrace_interface_counter",
				Help: "Interface error counter read along the traced path.",
			},
			[]string{"hop", "device", "interface", "group", "counter"},
		),
		queue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "newtrace_queue_drops",
				Help: "Total dropped packets per egress queue along the traced path.",
			},
			[]string{"hop", "device", "interface", "class"},
		),
		hops: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "newtrace_trace_hops",
				Help: "Number of hops recorded for the target.",
			},
			[]string{"target"},
		),
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "newtrace_trace_info",
				Help: "Always 1; labels describe how the trace ended.",
			},
			[]string{"target", "start", "reason"},
		),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.counter, m.queue, m.hops, m.info}
}

// set records tr. Unknown and non-numeric counters are not exported.
func (m *metrics) set(tr *trace.Trace) {
	m.hops.WithLabelValues(tr.Target).Set(float64(len(tr.Hops)))
	m.info.WithLabelValues(tr.Target, tr.Start, string(tr.Reason)).Set(1)

	for i := range tr.Hops {
		for _, side := range tr.Hops[i].Sides() {
			hop := strconv.Itoa(side.Index)
			dev := side.Device.Name
			if side.Aggregate != nil {
				m.setSnapshot(hop, dev, side.Aggregate)
			}
			for j := range side.Counters {
				m.setSnapshot(hop, dev, &side.Counters[j])
			}
		}
	}
}

type counterGroup struct {
	name     string
	counters []trace.Counter
}

func (m *metrics) setSnapshot(hop, dev string, s *trace.CounterSnapshot) {
	groups := []counterGroup{
		{"input", s.Input},
		{"output", s.Output},
	}
	if s.Physical != nil {
		groups = append(groups,
			counterGroup{"pcs", s.Physical.PCS},
			counterGroup{"fec", s.Physical.FEC},
			counterGroup{"mac", s.Physical.MAC},
		)
	}
	for _, g := range groups {
		for _, c := range g.counters {
			if v, ok := numeric(c); ok {
				m.counter.WithLabelValues(hop, dev, s.Interface, g.name, c.Name).Set(v)
			}
		}
	}
	for _, q := range s.Queues {
		if v, ok := numeric(q.Drops); ok {
			m.queue.WithLabelValues(hop, dev, s.Interface, q.ForwardingClass).Set(v)
		}
	}
}

func numeric(c trace.Counter) (float64, bool) {
	if !c.Known {
		return 0, false
	}
	v, err := strconv.ParseFloat(c.Raw, 64)
	return v, err == nil
}

// Registry returns a registry holding the metrics of tr.
func Registry(tr *trace.Trace) (*prometheus.Registry, error) {
	m := newMetrics()
	registry := prometheus.NewRegistry()
	for _, c := range m.collectors() {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	m.set(tr)
	return registry, nil
}

// WriteMetrics writes the metrics of tr in the node_exporter textfile format.
func WriteMetrics(path string, tr *trace.Trace) error {
	registry, err := Registry(tr)
	if err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, registry)
}
