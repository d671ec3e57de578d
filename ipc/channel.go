// Package ipc implements the framed byte transport between the UART
// receive path and the AT engine.
//
// Each Channel is a single-producer/single-consumer ring. The producer
// (the byte receive path, the equivalent of an interrupt handler) appends
// bytes with WriteByte; whenever the end-of-message predicate fires the
// message header is finalized and the ready callback is invoked
// synchronously. The consumer (the engine task) polls ReadMessage.
//
// Messages are framed inline: every message is preceded by a two byte
// header whose bit 15 marks it complete and whose low 15 bits hold the
// payload size, big-endian. The header of the message being received is
// reserved as soon as the previous one completes and is only written once
// all of its payload is in the ring.
package ipc

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

const (
	// HeaderSize is the size of the inline message header.
	HeaderSize = 2
	// MaxMessageSize is the largest payload a header can describe.
	MaxMessageSize = 0x7fff

	// DefaultCapacity is the ring size used when Config.Capacity is zero.
	DefaultCapacity = 1600
	// DefaultPauseThreshold is the free byte count at or below which a
	// channel pauses its byte source.
	DefaultPauseThreshold = 32

	completeFlag = 0x80
)

// State is the lifecycle state of a channel.
type State int32

const (
	StateNotInitialized State = iota
	StateInitialized
	StateActive
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateNotInitialized:
		return "NotInitialized"
	case StateInitialized:
		return "Initialized"
	case StateActive:
		return "Active"
	case StatePaused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// ReadyFunc is called from producer context each time a message has been
// framed. It must return in constant time; anything heavier belongs to the
// consumer.
type ReadyFunc func(ch *Channel)

// Config describes a channel.
type Config struct {
	// Capacity is the ring size in bytes, headers included.
	Capacity int
	// PauseThreshold is the free byte count at or below which the channel
	// enters StatePaused.
	PauseThreshold int
	// EndOfMessage is consulted for every byte written. It runs in
	// producer context.
	EndOfMessage func(b byte) bool
	// OnReady is the initial message-ready callback.
	OnReady ReadyFunc
	// OnPause and OnResume are called on Active/Paused transitions.
	// OnPause runs in producer context, OnResume in consumer context.
	OnPause  func(ch *Channel)
	OnResume func(ch *Channel)
	// OnReset runs under the channel mask once Reset emptied the ring, so
	// producer side state such as a line framer restarts with it.
	OnReset func(ch *Channel)
}

func (c *Config) setDefaults() {
	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.PauseThreshold == 0 {
		c.PauseThreshold = DefaultPauseThreshold
	}
}

func (c *Config) validate() error {
	if c.EndOfMessage == nil {
		return fmt.Errorf("%w: end of message predicate required", ErrInvalidConfig)
	}
	if c.Capacity < 4*HeaderSize || c.Capacity > 1<<30 {
		return fmt.Errorf("%w: capacity %d", ErrInvalidConfig, c.Capacity)
	}
	if c.PauseThreshold < 0 || c.PauseThreshold >= c.Capacity-HeaderSize {
		return fmt.Errorf("%w: pause threshold %d for capacity %d", ErrInvalidConfig, c.PauseThreshold, c.Capacity)
	}
	return nil
}

type readyHolder struct {
	fn ReadyFunc
}

// Message is one framed message as returned by ReadMessage.
type Message struct {
	// Size is the payload size recorded in the header. It is kept even
	// when Payload was truncated to the destination buffer.
	Size int
	// Payload aliases the destination buffer passed to ReadMessage.
	Payload []byte
	// Pending is the number of complete messages still unread.
	Pending int
}

// Truncated reports whether the destination buffer was too small for the
// whole payload.
func (m Message) Truncated() bool {
	return len(m.Payload) < m.Size
}

// Stats is a snapshot of channel counters.
type Stats struct {
	State          State
	Capacity       int
	PauseThreshold int
	Free           int
	Used           int
	Unread         int
	Framed         uint64
	Read           uint64
	Pauses         uint64
	Resumes        uint64
	Overflows      uint64
	FramingErrors  uint64
}

// Channel is one logical framed byte stream.
//
// WriteByte must only be called from a single producer goroutine and
// ReadMessage from a single consumer goroutine. Indices are published with
// atomics so the two never need a common lock.
type Channel struct {
	id        int
	buf       []byte
	capacity  int
	threshold int
	eom       func(b byte) bool
	onPause   func(ch *Channel)
	onResume  func(ch *Channel)
	onReset   func(ch *Channel)

	// mask serializes the producer against Reset and callback swaps. On a
	// device it is the device mask.
	mask *sync.Mutex

	rd     atomic.Int32
	wr     atomic.Int32
	unread atomic.Int32
	state  atomic.Int32
	ready  atomic.Pointer[readyHolder]

	// producer only
	msgStart   int
	inProgress int

	framed        atomic.Uint64
	read          atomic.Uint64
	pauses        atomic.Uint64
	resumes       atomic.Uint64
	overflows     atomic.Uint64
	framingErrors atomic.Uint64
}

// NewChannel creates a standalone, active channel.
func NewChannel(cfg Config) (*Channel, error) {
	ch, err := newChannel(0, cfg, &sync.Mutex{})
	if err != nil {
		return nil, err
	}
	ch.activate()
	return ch, nil
}

func newChannel(id int, cfg Config, mask *sync.Mutex) (*Channel, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Channel{
		id:        id,
		buf:       make([]byte, cfg.Capacity),
		capacity:  cfg.Capacity,
		threshold: cfg.PauseThreshold,
		eom:       cfg.EndOfMessage,
		onPause:   cfg.OnPause,
		onResume:  cfg.OnResume,
		onReset:   cfg.OnReset,
		mask:      mask,
	}
	c.ready.Store(&readyHolder{fn: cfg.OnReady})
	c.rewind()
	c.state.Store(int32(StateInitialized))
	return c, nil
}

// ID returns the channel slot on its device.
func (c *Channel) ID() int { return c.id }

// Capacity returns the ring size in bytes.
func (c *Channel) Capacity() int { return c.capacity }

// State returns the current lifecycle state.
func (c *Channel) State() State { return State(c.state.Load()) }

// Unread returns the number of complete messages not read yet.
func (c *Channel) Unread() int { return int(c.unread.Load()) }

// FreeBytes returns the number of bytes not holding headers or payload.
func (c *Channel) FreeBytes() int {
	return c.free(int(c.rd.Load()), int(c.wr.Load()))
}

// UsedBytes returns Capacity() - FreeBytes().
func (c *Channel) UsedBytes() int {
	return c.capacity - c.FreeBytes()
}

func (c *Channel) free(rd, wr int) int {
	if wr >= rd {
		return c.capacity - (wr - rd)
	}
	return rd - wr
}

func (c *Channel) next(idx, n int) int {
	idx += n
	if idx >= c.capacity {
		idx -= c.capacity
	}
	return idx
}

// rewind empties the ring and reserves the first header. The caller owns
// both ends of the ring.
func (c *Channel) rewind() {
	c.buf[0], c.buf[1] = 0, 0
	c.msgStart = 0
	c.inProgress = 0
	c.rd.Store(0)
	c.wr.Store(HeaderSize)
	c.unread.Store(0)
}

func (c *Channel) activate() {
	c.state.CompareAndSwap(int32(StateInitialized), int32(StateActive))
}

func (c *Channel) putHeader(at, size int) {
	c.buf[at] = byte(size>>8)&^completeFlag | completeFlag
	c.buf[c.next(at, 1)] = byte(size)
}

// WriteByte appends b to the message being received. It is the producer
// side of the ring and never blocks.
func (c *Channel) WriteByte(b byte) error {
	st := State(c.state.Load())
	if st != StateActive && st != StatePaused {
		return ErrClosed
	}

	wr := int(c.wr.Load())
	// keep one free slot so that rd == wr always means empty, and room for
	// the next header should b end the message
	if c.free(int(c.rd.Load()), wr) < HeaderSize+2 || c.inProgress >= MaxMessageSize {
		c.overflows.Inc()
		if c.unread.Load() == 0 {
			// the partial message alone fills the ring and can never be read
			c.discardPartial()
		}
		return ErrOverflow
	}

	c.buf[wr] = b
	wr = c.next(wr, 1)
	c.inProgress++

	if c.eom(b) {
		c.putHeader(c.msgStart, c.inProgress)
		c.msgStart = wr
		c.buf[wr], c.buf[c.next(wr, 1)] = 0, 0
		wr = c.next(wr, HeaderSize)
		c.inProgress = 0
		c.wr.Store(int32(wr))
		c.unread.Inc()
		c.framed.Inc()
		if h := c.ready.Load(); h != nil && h.fn != nil {
			h.fn(c)
		}
	} else {
		c.wr.Store(int32(wr))
	}

	c.checkPause()
	return nil
}

func (c *Channel) discardPartial() {
	c.inProgress = 0
	c.wr.Store(int32(c.next(c.msgStart, HeaderSize)))
	if State(c.state.Load()) == StatePaused && c.FreeBytes() > c.threshold {
		c.resume()
	}
}

// drained reports whether the consumer can free nothing more: either the
// free space is above the threshold or no complete message is left.
func (c *Channel) drained() bool {
	return c.FreeBytes() > c.threshold || c.unread.Load() == 0
}

// checkPause pauses the source once the free space reaches the threshold.
// A partial message alone never pauses the channel: nothing could be read
// to resume it, so bytes keep flowing until the overflow rule drops it.
func (c *Channel) checkPause() {
	if c.drained() {
		return
	}
	if !c.state.CompareAndSwap(int32(StateActive), int32(StatePaused)) {
		return
	}
	c.pauses.Inc()
	if c.onPause != nil {
		c.onPause(c)
	}
	// the consumer may have drained the ring between the free byte check
	// and the transition, and would not have seen the Paused state
	if c.drained() {
		c.resume()
	}
}

func (c *Channel) resume() {
	if !c.state.CompareAndSwap(int32(StatePaused), int32(StateActive)) {
		return
	}
	c.resumes.Inc()
	if c.onResume != nil {
		c.onResume(c)
	}
}

// ReadMessage copies the oldest complete message into dst. When dst is
// shorter than the payload only len(dst) bytes are copied; Message.Size
// still reports the framed size and the whole message is consumed.
//
// ReadMessage returns ErrNoMessage, without touching any index, when the
// message at the read index is not complete.
func (c *Channel) ReadMessage(dst []byte) (Message, error) {
	st := State(c.state.Load())
	if st != StateActive && st != StatePaused {
		return Message{}, ErrClosed
	}
	if c.unread.Load() == 0 {
		return Message{}, ErrNoMessage
	}

	rd := int(c.rd.Load())
	hi, lo := c.buf[rd], c.buf[c.next(rd, 1)]
	if hi&completeFlag == 0 {
		c.framingErrors.Inc()
		return Message{}, fmt.Errorf("%w: incomplete header at %d with %d unread", ErrFraming, rd, c.unread.Load())
	}

	size := int(hi&^completeFlag)<<8 | int(lo)
	if size > c.UsedBytes()-HeaderSize {
		c.framingErrors.Inc()
		return Message{}, fmt.Errorf("%w: declared size %d exceeds %d used bytes", ErrFraming, size, c.UsedBytes())
	}

	start := c.next(rd, HeaderSize)
	n := min(size, len(dst))
	first := min(n, c.capacity-start)
	copy(dst, c.buf[start:start+first])
	copy(dst[first:n], c.buf[:n-first])

	c.rd.Store(int32(c.next(start, size)))
	pending := c.unread.Dec()
	c.read.Inc()

	if State(c.state.Load()) == StatePaused && c.drained() {
		c.resume()
	}

	return Message{Size: size, Payload: dst[:n], Pending: int(pending)}, nil
}

// SwapReadyCallback installs fn as the message-ready callback and returns
// the previous one. The swap is done under the channel mask so no message
// is being framed while it happens.
func (c *Channel) SwapReadyCallback(fn ReadyFunc) ReadyFunc {
	c.mask.Lock()
	defer c.mask.Unlock()

	prev := c.ready.Swap(&readyHolder{fn: fn})
	if prev == nil {
		return nil
	}
	return prev.fn
}

// Reset drops every buffered byte and message and leaves the channel
// active. It is used after a desynchronization.
func (c *Channel) Reset() error {
	c.mask.Lock()
	defer c.mask.Unlock()

	st := State(c.state.Load())
	if st != StateActive && st != StatePaused {
		return ErrClosed
	}
	c.rewind()
	if c.onReset != nil {
		c.onReset(c)
	}
	if st == StatePaused {
		c.resume()
	}
	return nil
}

func (c *Channel) close() {
	c.state.Store(int32(StateNotInitialized))
	c.rewind()
}

// Stats returns a snapshot of the channel counters.
func (c *Channel) Stats() Stats {
	free := c.FreeBytes()
	return Stats{
		State:          c.State(),
		Capacity:       c.capacity,
		PauseThreshold: c.threshold,
		Free:           free,
		Used:           c.capacity - free,
		Unread:         c.Unread(),
		Framed:         c.framed.Load(),
		Read:           c.read.Load(),
		Pauses:         c.pauses.Load(),
		Resumes:        c.resumes.Load(),
		Overflows:      c.overflows.Load(),
		FramingErrors:  c.framingErrors.Load(),
	}
}
