package pebble

import "github.com/prometheus/client_golang/prometheus"

// Collector exports the store's Pebble compaction, memtable and WAL
// metrics to Prometheus.
type Collector struct {
	store *Store

	compactions     *prometheus.Desc
	compactionDebt  *prometheus.Desc
	memtableSize    *prometheus.Desc
	memtableCount   *prometheus.Desc
	walFiles        *prometheus.Desc
	walSize         *prometheus.Desc
	walBytesIn      *prometheus.Desc
	walBytesWritten *prometheus.Desc
}

// NewCollector returns a collector reading store's metrics on scrape.
func NewCollector(store *Store) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("memimg_pebble_"+name, help, nil, nil)
	}
	return &Collector{
		store:           store,
		compactions:     desc("compactions_total", "Total number of compactions performed"),
		compactionDebt:  desc("compaction_estimated_debt_bytes", "Estimated bytes left to compact"),
		memtableSize:    desc("memtable_size_bytes", "Current memtable size"),
		memtableCount:   desc("memtable_count", "Current number of memtables"),
		walFiles:        desc("wal_files", "Number of live WAL files"),
		walSize:         desc("wal_size_bytes", "Size of live WAL data"),
		walBytesIn:      desc("wal_bytes_in_total", "Logical bytes written to the WAL"),
		walBytesWritten: desc("wal_bytes_written_total", "Physical bytes written to the WAL"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.compactions
	ch <- c.compactionDebt
	ch <- c.memtableSize
	ch <- c.memtableCount
	ch <- c.walFiles
	ch <- c.walSize
	ch <- c.walBytesIn
	ch <- c.walBytesWritten
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.store.Metrics()
	if m == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.compactions, prometheus.CounterValue, float64(m.Compact.Count))
	ch <- prometheus.MustNewConstMetric(c.compactionDebt, prometheus.GaugeValue, float64(m.Compact.EstimatedDebt))
	ch <- prometheus.MustNewConstMetric(c.memtableSize, prometheus.GaugeValue, float64(m.MemTable.Size))
	ch <- prometheus.MustNewConstMetric(c.memtableCount, prometheus.GaugeValue, float64(m.MemTable.Count))
	ch <- prometheus.MustNewConstMetric(c.walFiles, prometheus.GaugeValue, float64(m.WAL.Files))
	ch <- prometheus.MustNewConstMetric(c.walSize, prometheus.GaugeValue, float64(m.WAL.Size))
	ch <- prometheus.MustNewConstMetric(c.walBytesIn, prometheus.CounterValue, float64(m.WAL.BytesIn))
	ch <- prometheus.MustNewConstMetric(c.walBytesWritten, prometheus.CounterValue, float64(m.WAL.BytesWritten))
}
