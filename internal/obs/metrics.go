package obs

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters and histograms lsmkv-server exposes
// over its chi admin mux.
type Metrics struct {
	WritesTotal      *prometheus.CounterVec
	ReadsTotal       *prometheus.CounterVec
	ReadLatency      prometheus.Histogram
	FlushesTotal     prometheus.Counter
	CompactionsTotal *prometheus.CounterVec
	MemtableBytes    prometheus.Gauge
	SSTablesPerLevel *prometheus.GaugeVec
}

// NewMetrics constructs and registers every lsmkv metric against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lsmkv",
			Name:      "writes_total",
			Help:      "Completed writes by kind (put, delete) and outcome (ok, error).",
		}, []string{"kind", "outcome"}),
		ReadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lsmkv",
			Name:      "reads_total",
			Help:      "Completed reads by outcome (hit, miss, error).",
		}, []string{"outcome"}),
		ReadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lsmkv",
			Name:      "read_latency_seconds",
			Help:      "Get() latency, cache hits included.",
			Buckets:   prometheus.DefBuckets,
		}),
		FlushesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lsmkv",
			Name:      "flushes_total",
			Help:      "Memtable-to-SSTable flushes completed.",
		}),
		CompactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lsmkv",
			Name:      "compactions_total",
			Help:      "Compaction rounds completed, by source level.",
		}, []string{"source_level"}),
		MemtableBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lsmkv",
			Name:      "memtable_bytes",
			Help:      "Approximate size of the active memtable.",
		}),
		SSTablesPerLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lsmkv",
			Name:      "sstables_per_level",
			Help:      "Number of live SSTables per level.",
		}, []string{"level"}),
	}

	reg.MustRegister(
		m.WritesTotal, m.ReadsTotal, m.ReadLatency, m.FlushesTotal,
		m.CompactionsTotal, m.MemtableBytes, m.SSTablesPerLevel,
	)
	return m
}
