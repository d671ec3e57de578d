// Package metrics exports modem statistics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"i4.energy/across/cellat/ipc"
	"i4.energy/across/cellat/modem"
)

const namespace = "cellat"

// Source is anything that reports modem statistics.
type Source interface {
	Stats() modem.Stats
}

// Exporter is a prometheus.Collector reading a snapshot of every source on
// each scrape.
type Exporter struct {
	sources []Source

	requests      *prometheus.Desc
	completed     *prometheus.Desc
	failed        *prometheus.Desc
	timeouts      *prometheus.Desc
	aborted       *prometheus.Desc
	urcs          *prometheus.Desc
	urcsDropped   *prometheus.Desc
	urcsIgnored   *prometheus.Desc
	ignored       *prometheus.Desc
	framingResets *prometheus.Desc
	rxBytes       *prometheus.Desc
	txBytes       *prometheus.Desc
	droppedBytes  *prometheus.Desc
	dataMode      *prometheus.Desc

	ringCapacity  *prometheus.Desc
	ringUsed      *prometheus.Desc
	ringUnread    *prometheus.Desc
	ringPaused    *prometheus.Desc
	ringFramed    *prometheus.Desc
	ringPauses    *prometheus.Desc
	ringOverflows *prometheus.Desc
	ringFraming   *prometheus.Desc
}

var _ prometheus.Collector = (*Exporter)(nil)

func newDesc(subsystem, name, help string) *prometheus.Desc {
	return prometheus.NewDesc(
		prometheus.BuildFQName(namespace, subsystem, name),
		help,
		[]string{"device", "variant"},
		nil,
	)
}

// NewExporter returns a collector over sources.
func NewExporter(sources ...Source) *Exporter {
	return &Exporter{
		sources: sources,

		requests:      newDesc("engine", "requests_total", "Service requests received"),
		completed:     newDesc("engine", "completed_total", "Service requests that succeeded"),
		failed:        newDesc("engine", "failed_total", "Service requests that failed"),
		timeouts:      newDesc("engine", "timeouts_total", "Steps that got no mandatory answer in time"),
		aborted:       newDesc("engine", "aborted_total", "Transactions aborted by the caller or the loop"),
		urcs:          newDesc("engine", "urcs_total", "Unsolicited results forwarded"),
		urcsDropped:   newDesc("engine", "urcs_dropped_total", "Unsolicited results dropped on a full channel"),
		urcsIgnored:   newDesc("engine", "urcs_ignored_total", "Unsolicited results the variant filters out"),
		ignored:       newDesc("engine", "ignored_lines_total", "Lines that were neither a response nor a URC"),
		framingResets: newDesc("engine", "framing_resets_total", "Receive channel resets after a framing error"),
		rxBytes:       newDesc("uart", "rx_bytes_total", "Bytes received from the modem"),
		txBytes:       newDesc("uart", "tx_bytes_total", "Bytes written to the modem"),
		droppedBytes:  newDesc("uart", "dropped_bytes_total", "Bytes received while no channel was open"),
		dataMode:      newDesc("engine", "data_mode", "Whether the modem left command mode (1=data, 0=command)"),

		ringCapacity:  newDesc("ring", "capacity_bytes", "Receive ring capacity"),
		ringUsed:      newDesc("ring", "used_bytes", "Bytes held by the receive ring"),
		ringUnread:    newDesc("ring", "unread_messages", "Complete messages waiting to be read"),
		ringPaused:    newDesc("ring", "paused", "Whether the producer holds the line (1=paused, 0=active)"),
		ringFramed:    newDesc("ring", "framed_total", "Messages framed by the producer"),
		ringPauses:    newDesc("ring", "pauses_total", "Times the producer paused the line"),
		ringOverflows: newDesc("ring", "overflow_bytes_total", "Bytes dropped because the ring was full"),
		ringFraming:   newDesc("ring", "framing_errors_total", "Corrupted message headers seen by the consumer"),
	}
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.requests
	ch <- e.completed
	ch <- e.failed
	ch <- e.timeouts
	ch <- e.aborted
	ch <- e.urcs
	ch <- e.urcsDropped
	ch <- e.urcsIgnored
	ch <- e.ignored
	ch <- e.framingResets
	ch <- e.rxBytes
	ch <- e.txBytes
	ch <- e.droppedBytes
	ch <- e.dataMode
	ch <- e.ringCapacity
	ch <- e.ringUsed
	ch <- e.ringUnread
	ch <- e.ringPaused
	ch <- e.ringFramed
	ch <- e.ringPauses
	ch <- e.ringOverflows
	ch <- e.ringFraming
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	for _, src := range e.sources {
		s := src.Stats()
		labels := []string{s.Device, s.Variant}

		counter := func(d *prometheus.Desc, v uint64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
		}
		gauge := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
		}

		counter(e.requests, s.Requests)
		counter(e.completed, s.Completed)
		counter(e.failed, s.Failed)
		counter(e.timeouts, s.Timeouts)
		counter(e.aborted, s.Aborted)
		counter(e.urcs, s.URCs)
		counter(e.urcsDropped, s.URCsDropped)
		counter(e.urcsIgnored, s.URCsIgnored)
		counter(e.ignored, s.Ignored)
		counter(e.framingResets, s.FramingResets)
		counter(e.rxBytes, s.RxBytes)
		counter(e.txBytes, s.TxBytes)
		counter(e.droppedBytes, s.DroppedBytes)
		gauge(e.dataMode, boolValue(s.DataMode))

		c := s.Channel
		gauge(e.ringCapacity, float64(c.Capacity))
		gauge(e.ringUsed, float64(c.Used))
		gauge(e.ringUnread, float64(c.Unread))
		gauge(e.ringPaused, boolValue(c.State == ipc.StatePaused))
		counter(e.ringFramed, c.Framed)
		counter(e.ringPauses, c.Pauses)
		counter(e.ringOverflows, c.Overflows)
		counter(e.ringFraming, c.FramingErrors)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
