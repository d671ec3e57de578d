package modem

import "i4.energy/across/cellat/ipc"

// Stats is a snapshot of the modem counters.
type Stats struct {
	Device  string
	Variant string

	Requests  uint64
	Completed uint64
	Failed    uint64
	Timeouts  uint64
	Aborted   uint64

	URCs        uint64
	URCsDropped uint64
	URCsIgnored uint64
	// Ignored counts lines that were neither a response nor a URC.
	Ignored uint64
	// FramingResets counts receive channel resets after a framing error.
	FramingResets uint64

	RxBytes uint64
	TxBytes uint64
	// DroppedBytes counts bytes received while no channel was open.
	DroppedBytes uint64

	DataMode bool
	Channel  ipc.Stats
}

// Stats returns the current counters. It is safe to call from any
// goroutine.
func (m *Modem) Stats() Stats {
	rx, tx := m.port.Counters()
	return Stats{
		Device:        m.config.DeviceID,
		Variant:       m.cap.Name(),
		Requests:      m.stats.requests.Load(),
		Completed:     m.stats.completed.Load(),
		Failed:        m.stats.failed.Load(),
		Timeouts:      m.stats.timeouts.Load(),
		Aborted:       m.stats.aborted.Load(),
		URCs:          m.stats.urcs.Load(),
		URCsDropped:   m.stats.urcsDropped.Load(),
		URCsIgnored:   m.stats.urcsIgnored.Load(),
		Ignored:       m.stats.ignored.Load(),
		FramingResets: m.stats.framingResets.Load(),
		RxBytes:       rx,
		TxBytes:       tx,
		DroppedBytes:  m.dev.Dropped(),
		DataMode:      m.dataMode.Load(),
		Channel:       m.ch.Stats(),
	}
}
