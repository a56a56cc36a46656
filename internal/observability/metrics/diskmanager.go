package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DiskManagerMetrics contains Prometheus metrics for the output filesystem.
type DiskManagerMetrics struct {
	diskUsageBytes            prometheus.Gauge
	diskTotalBytes            prometheus.Gauge
	diskFreeBytes             prometheus.Gauge
	diskUtilizationPercentage prometheus.Gauge
	lowSpaceEvents            prometheus.Counter
}

// NewDiskManagerMetrics creates and registers disk metrics
func NewDiskManagerMetrics(registry *prometheus.Registry) (*DiskManagerMetrics, error) {
	m := &DiskManagerMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register disk metrics: %w", err)
	}
	return m, nil
}

func (m *DiskManagerMetrics) initMetrics() {
	m.diskUsageBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "diskmanager_disk_usage_bytes",
		Help: "Used bytes on the filesystem holding the output directory",
	})
	m.diskTotalBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "diskmanager_disk_total_bytes",
		Help: "Size of the filesystem holding the output directory",
	})
	m.diskFreeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "diskmanager_disk_free_bytes",
		Help: "Free bytes on the filesystem holding the output directory",
	})
	m.diskUtilizationPercentage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "diskmanager_disk_utilization_percentage",
		Help: "Used space as a percentage of the filesystem size",
	})
	m.lowSpaceEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "diskmanager_low_space_events_total",
		Help: "Times free space dropped below the configured minimum",
	})
}

// Describe implements the Collector interface
func (m *DiskManagerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.diskUsageBytes.Describe(ch)
	m.diskTotalBytes.Describe(ch)
	m.diskFreeBytes.Describe(ch)
	m.diskUtilizationPercentage.Describe(ch)
	m.lowSpaceEvents.Describe(ch)
}

// Collect implements the Collector interface
func (m *DiskManagerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.diskUsageBytes.Collect(ch)
	m.diskTotalBytes.Collect(ch)
	m.diskFreeBytes.Collect(ch)
	m.diskUtilizationPercentage.Collect(ch)
	m.lowSpaceEvents.Collect(ch)
}

// UpdateDiskUsage updates disk usage metrics
func (m *DiskManagerMetrics) UpdateDiskUsage(usedBytes, freeBytes, totalBytes uint64) {
	m.diskUsageBytes.Set(float64(usedBytes))
	m.diskFreeBytes.Set(float64(freeBytes))
	m.diskTotalBytes.Set(float64(totalBytes))

	var utilizationPercentage float64
	if totalBytes > 0 {
		utilizationPercentage = float64(usedBytes) / float64(totalBytes) * PercentageFactor
	}
	m.diskUtilizationPercentage.Set(utilizationPercentage)
}

// RecordLowSpace records a drop below the free space minimum.
func (m *DiskManagerMetrics) RecordLowSpace() {
	m.lowSpaceEvents.Inc()
}
