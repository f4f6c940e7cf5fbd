package tcpna

import "github.com/prometheus/client_golang/prometheus"

// metricsCollector exposes tcpna's runtime counters to Prometheus,
// following sockstats' pattern of a small struct of metric objects behind
// prometheus.Collector's Describe/Collect pair rather than relying on the
// package-level default registry.
type metricsCollector struct {
	peersConnected prometheus.Counter
	rmaPuts        prometheus.Counter
	rmaGets        prometheus.Counter
	rmaBytes       prometheus.Counter
}

func newMetricsCollector() *metricsCollector {
	return &metricsCollector{
		peersConnected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "na",
			Subsystem: "tcpna",
			Name:      "peers_connected_total",
			Help:      "Number of paired (primary, side) connections established.",
		}),
		rmaPuts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "na",
			Subsystem: "tcpna",
			Name:      "rma_puts_total",
			Help:      "Number of PUT operations serviced.",
		}),
		rmaGets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "na",
			Subsystem: "tcpna",
			Name:      "rma_gets_total",
			Help:      "Number of GET operations serviced.",
		}),
		rmaBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "na",
			Subsystem: "tcpna",
			Name:      "rma_bytes_total",
			Help:      "Bytes transferred by the RMA service, both directions.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.peersConnected.Describe(ch)
	c.rmaPuts.Describe(ch)
	c.rmaGets.Describe(ch)
	c.rmaBytes.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *metricsCollector) Collect(ch chan<- prometheus.Metric) {
	c.peersConnected.Collect(ch)
	c.rmaPuts.Collect(ch)
	c.rmaGets.Collect(ch)
	c.rmaBytes.Collect(ch)
}
