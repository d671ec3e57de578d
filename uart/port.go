package uart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ErrTxBusy is returned by Transmit when the transmitter stayed busy for
// the whole retry budget.
var ErrTxBusy = errors.New("uart: transmitter busy")

// PortConfig tunes a Port.
type PortConfig struct {
	// ReadSize is the largest chunk read from the transport at once.
	ReadSize int
	// TxRetries is the number of extra attempts Transmit makes while the
	// transmitter is busy.
	TxRetries int
	// TxRetryDelay is the wait between two attempts.
	TxRetryDelay time.Duration
	Logger       *zap.Logger
}

func (c *PortConfig) setDefaults() {
	if c.ReadSize <= 0 {
		c.ReadSize = 256
	}
	if c.TxRetries <= 0 {
		c.TxRetries = 3
	}
	if c.TxRetryDelay <= 0 {
		c.TxRetryDelay = 10 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Port is the byte source and sink in front of a Transport.
//
// Receive hands bytes one at a time to a sink, the way a receive interrupt
// delivers them, and stops between two bytes while the port is paused.
// Bytes already read from the transport wait in the port until Resume,
// like a hardware FIFO.
type Port struct {
	t   Transport
	cfg PortConfig
	log *zap.Logger

	busy   atomic.Bool
	paused atomic.Bool
	resume chan struct{}

	rx atomic.Uint64
	tx atomic.Uint64
}

// NewPort wraps t.
func NewPort(t Transport, cfg PortConfig) *Port {
	cfg.setDefaults()
	return &Port{
		t:      t,
		cfg:    cfg,
		log:    cfg.Logger,
		resume: make(chan struct{}, 1),
	}
}

// Receive reads the transport until it fails and feeds every byte to sink.
// It is the only reader of the transport. sink runs on the receiving
// goroutine and must not block.
func (p *Port) Receive(ctx context.Context, sink func(b byte)) error {
	buf := make([]byte, p.cfg.ReadSize)
	for {
		n, err := p.t.Read(buf)
		for _, b := range buf[:n] {
			for p.paused.Load() {
				select {
				case <-p.resume:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			sink(b)
		}
		p.rx.Add(uint64(n))
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Pause stops byte delivery after the current byte.
func (p *Port) Pause() {
	p.paused.Store(true)
}

// Resume re-arms byte delivery.
func (p *Port) Resume() {
	p.paused.Store(false)
	select {
	case p.resume <- struct{}{}:
	default:
	}
}

// Paused reports whether delivery is stopped.
func (p *Port) Paused() bool { return p.paused.Load() }

// Busy reports whether a transmission is in progress.
func (p *Port) Busy() bool { return p.busy.Load() }

// Transmit writes b entirely. When another transmission holds the line it
// waits and retries up to the configured budget.
func (p *Port) Transmit(ctx context.Context, b []byte) error {
	for attempt := 0; ; attempt++ {
		if p.busy.CompareAndSwap(false, true) {
			break
		}
		if attempt >= p.cfg.TxRetries {
			return fmt.Errorf("%w after %d attempts", ErrTxBusy, attempt+1)
		}
		timer := time.NewTimer(p.cfg.TxRetryDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	defer p.busy.Store(false)

	for len(b) > 0 {
		n, err := p.t.Write(b)
		p.tx.Add(uint64(n))
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("uart: short write with %d bytes left", len(b))
		}
		b = b[n:]
	}
	return nil
}

// Counters returns the number of bytes received and transmitted.
func (p *Port) Counters() (rx, tx uint64) {
	return p.rx.Load(), p.tx.Load()
}

// Close closes the transport, which ends Receive.
func (p *Port) Close() error {
	p.log.Debug("closing port")
	return p.t.Close()
}
