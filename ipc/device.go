package ipc

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

// MaxChannels is the number of logical channels a device multiplexes.
const MaxChannels = 2

// FlowControl is the backpressure signal towards the byte source.
type FlowControl interface {
	// Pause asks the source to stop delivering bytes.
	Pause()
	// Resume re-arms the source.
	Resume()
}

// Device maps one physical byte source onto up to two channels. Exactly one
// of them is current and receives every byte; the other, if any, is kept
// intact so traffic can be switched back without loss.
//
// The device mask plays the role of disabling interrupts: Receive holds it
// for the duration of one byte, so swapping the current channel or a ready
// callback never interleaves with a byte being framed.
type Device struct {
	id   string
	flow FlowControl

	mask    sync.Mutex
	slots   [MaxChannels]*Channel
	current atomic.Pointer[Channel]

	dropped atomic.Uint64
}

// NewDevice returns a device with no open channel. flow may be nil when the
// byte source cannot be paused.
func NewDevice(id string, flow FlowControl) *Device {
	return &Device{id: id, flow: flow}
}

// ID returns the physical identity of the device.
func (d *Device) ID() string { return d.id }

// Current returns the channel currently receiving bytes, or nil.
func (d *Device) Current() *Channel { return d.current.Load() }

// Inactive returns the open channel that is not current, or nil.
func (d *Device) Inactive() *Channel {
	d.mask.Lock()
	defer d.mask.Unlock()

	cur := d.current.Load()
	for _, ch := range d.slots {
		if ch != nil && ch != cur {
			return ch
		}
	}
	return nil
}

// Dropped returns the number of bytes received while no channel was open.
func (d *Device) Dropped() uint64 { return d.dropped.Load() }

// Open creates a channel on a free slot. The first open channel becomes
// current; a second one stays inactive until selected.
func (d *Device) Open(cfg Config) (*Channel, error) {
	d.mask.Lock()
	defer d.mask.Unlock()

	slot := -1
	for i, ch := range d.slots {
		if ch == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFreeChannel, d.id)
	}

	userPause, userResume := cfg.OnPause, cfg.OnResume
	cfg.OnPause = func(ch *Channel) {
		if d.flow != nil && d.current.Load() == ch {
			d.flow.Pause()
		}
		if userPause != nil {
			userPause(ch)
		}
	}
	cfg.OnResume = func(ch *Channel) {
		if d.flow != nil && d.current.Load() == ch {
			d.flow.Resume()
		}
		if userResume != nil {
			userResume(ch)
		}
	}

	ch, err := newChannel(slot, cfg, &d.mask)
	if err != nil {
		return nil, err
	}
	d.slots[slot] = ch

	if d.current.Load() == nil {
		d.makeCurrent(ch)
	}
	return ch, nil
}

// Select makes ch the current channel.
func (d *Device) Select(ch *Channel) error {
	d.mask.Lock()
	defer d.mask.Unlock()

	if !d.owns(ch) {
		return ErrUnknownChannel
	}
	d.makeCurrent(ch)
	return nil
}

// Close releases ch. When ch was current the other open channel, if any,
// takes over.
func (d *Device) Close(ch *Channel) error {
	d.mask.Lock()
	defer d.mask.Unlock()

	if !d.owns(ch) {
		return ErrUnknownChannel
	}
	d.slots[ch.id] = nil
	ch.close()

	if d.current.Load() == ch {
		d.current.Store(nil)
		for _, other := range d.slots {
			if other != nil {
				d.makeCurrent(other)
				break
			}
		}
	}
	return nil
}

// Receive delivers one byte from the source to the current channel. It is
// the producer entry point and never blocks on the consumer.
func (d *Device) Receive(b byte) {
	d.mask.Lock()
	ch := d.current.Load()
	if ch == nil {
		d.dropped.Inc()
	} else {
		// overflows are counted by the channel
		_ = ch.WriteByte(b)
	}
	d.mask.Unlock()
}

// makeCurrent must be called with the mask held.
func (d *Device) makeCurrent(ch *Channel) {
	ch.activate()
	d.current.Store(ch)
	if d.flow == nil {
		return
	}
	if ch.State() == StatePaused {
		d.flow.Pause()
	} else {
		d.flow.Resume()
	}
}

func (d *Device) owns(ch *Channel) bool {
	return ch != nil && ch.id >= 0 && ch.id < MaxChannels && d.slots[ch.id] == ch
}
