package ipc

import "errors"

var (
	// ErrNoMessage is returned by ReadMessage when the header at the read
	// index is not complete yet. It is the normal outcome of polling an
	// idle channel, not a failure.
	ErrNoMessage = errors.New("ipc: no complete message")

	// ErrFraming is returned when the header at the read index declares a
	// payload that cannot be in the ring. The channel has desynchronized
	// and must be reset.
	ErrFraming = errors.New("ipc: framing error")

	// ErrOverflow is returned when a byte is dropped because the ring has
	// no room left for it. A partial message that fills the ring on its own
	// is dropped with it.
	ErrOverflow = errors.New("ipc: ring buffer overflow")

	// ErrClosed is returned when operating on a channel that is not open.
	ErrClosed = errors.New("ipc: channel not open")

	// ErrNoFreeChannel is returned when a device already holds its two
	// channels.
	ErrNoFreeChannel = errors.New("ipc: no free channel on device")

	// ErrUnknownChannel is returned when a channel does not belong to the
	// device it is used with.
	ErrUnknownChannel = errors.New("ipc: channel not attached to device")

	// ErrInvalidConfig is returned when a channel configuration cannot
	// hold a single framed message.
	ErrInvalidConfig = errors.New("ipc: invalid channel configuration")
)
