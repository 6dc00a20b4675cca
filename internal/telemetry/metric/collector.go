package metric

import "github.com/prometheus/client_golang/prometheus"

// Sample is a point-in-time view of the engine, taken on every scrape.
type Sample struct {
	Entries       int
	Backups       int
	LSMBytes      int64
	ValueLogBytes int64
}

// Collector reports engine statistics lazily through a sampling function.
type Collector struct {
	sample func() (Sample, error)

	entries  *prometheus.Desc
	backups  *prometheus.Desc
	diskSize *prometheus.Desc
}

// NewCollector creates a collector that calls sample on every Collect.
func NewCollector(sample func() (Sample, error)) *Collector {
	return &Collector{
		sample: sample,
		entries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "storage", "entries"),
			"Number of user entries in the primary box.",
			nil, nil,
		),
		backups: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "storage", "backup_entries"),
			"Number of entries in the backup box.",
			nil, nil,
		),
		diskSize: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "storage", "disk_bytes"),
			"On-disk size by component.",
			[]string{"component"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.backups
	ch <- c.diskSize
}

// Collect implements prometheus.Collector. A failing sample emits nothing.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s, err := c.sample()
	if err != nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Entries))
	ch <- prometheus.MustNewConstMetric(c.backups, prometheus.GaugeValue, float64(s.Backups))
	ch <- prometheus.MustNewConstMetric(c.diskSize, prometheus.GaugeValue, float64(s.LSMBytes), "lsm")
	ch <- prometheus.MustNewConstMetric(c.diskSize, prometheus.GaugeValue, float64(s.ValueLogBytes), "vlog")
}
