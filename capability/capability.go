// Package capability defines the contract between the AT transaction
// engine and a modem variant.
//
// The engine is written once against Capability. A variant builds the
// command of every step of a service request, splits and classifies the
// lines the modem sends back, and assembles the typed response. All of its
// per-channel state lives in the Context the engine threads through every
// call, so several modems of the same variant can be open at once.
package capability

import (
	"time"

	"i4.energy/across/cellat/at"
)

// NoTimeout, used as a step timeout, waits for a terminal answer with no
// deadline other than the caller's context.
const NoTimeout time.Duration = -1

// HWEvent is a modem hardware line change reported by the board.
type HWEvent uint8

const (
	// HWRingIndicator is an edge on the ring indicator line.
	HWRingIndicator HWEvent = iota + 1
	// HWStatusHigh reports the modem status line going high (awake).
	HWStatusHigh
	// HWStatusLow reports the modem status line going low (asleep).
	HWStatusLow
)

func (e HWEvent) String() string {
	switch e {
	case HWRingIndicator:
		return "ring-indicator"
	case HWStatusHigh:
		return "status-high"
	case HWStatusLow:
		return "status-low"
	default:
		return "unknown"
	}
}

// Capability is the set of variant specific operations the engine drives.
type Capability interface {
	// Name identifies the variant in the registry.
	Name() string

	// Init prepares the per-channel state. It is called once when the
	// channel is opened, before any byte is received.
	Init(c *Context) error

	// EndOfMessage runs in the byte receive path for every byte and
	// reports whether b terminates a message. It must be constant time
	// and may only touch state no other method uses.
	EndOfMessage(c *Context, b byte) bool

	// NextCommand fills c.Tx.Cmd and c.Tx.Timeout for step c.Tx.Step of
	// service request c.Tx.SID and tells the engine how to wait for it.
	NextCommand(c *Context) at.SendAction

	// ExtractElement advances e to the next element of line. The first
	// element (rank 0) is the command part of the line.
	ExtractElement(c *Context, line []byte, e *at.Element) bool

	// AnalyzeCommand classifies a line from its command part. Returning
	// ActionNoAction asks the engine to feed the parameters to
	// AnalyzeParam.
	AnalyzeCommand(c *Context, line []byte, e *at.Element) at.Action

	// AnalyzeParam consumes one parameter. ActionNoAction means keep going.
	AnalyzeParam(c *Context, line []byte, e *at.Element) at.Action

	// TerminateCommand is called once per terminal classification of an
	// open transaction. It flushes per-step buffers and may change the
	// outcome, for instance to ActionError when a mandatory line is
	// missing.
	TerminateCommand(c *Context, a at.Action) at.Action

	// Response returns the result assembled for the closed transaction.
	Response(c *Context) any

	// URC pops the oldest pending unsolicited result.
	URC(c *Context) (URC, bool)

	// Error returns the error reported by the modem for the closed
	// transaction, if any.
	Error(c *Context) error

	// HardwareEvent reacts to a hardware line change. It returns an action
	// classified like a received message.
	HardwareEvent(c *Context, ev HWEvent) at.Action
}

// PowerManager is implemented by variants that put the modem to sleep.
// The engine refuses to write a command while ModemAsleep is true.
type PowerManager interface {
	ModemAsleep(c *Context) bool
}

// Base provides the parts of Capability most variants share. Variants
// embed it and override what they need.
type Base struct{}

// EndOfMessage ends messages on LF and on a data prompt.
func (Base) EndOfMessage(c *Context, b byte) bool {
	return c.framer.EndOfMessage(b)
}

// ExtractElement uses the generic AT line grammar.
func (Base) ExtractElement(_ *Context, line []byte, e *at.Element) bool {
	return at.ExtractElement(line, e)
}

// AnalyzeParam ignores parameters.
func (Base) AnalyzeParam(*Context, []byte, *at.Element) at.Action {
	return at.ActionNoAction
}

// TerminateCommand keeps the classification.
func (Base) TerminateCommand(_ *Context, a at.Action) at.Action {
	return a
}

// Response returns what the variant stored with SetResponse.
func (Base) Response(c *Context) any {
	return c.TakeResponse()
}

// URC pops the context URC queue.
func (Base) URC(c *Context) (URC, bool) {
	return c.PopURC()
}

// Error returns what the variant stored with SetError.
func (Base) Error(c *Context) error {
	return c.TakeError()
}

// HardwareEvent ignores hardware events.
func (Base) HardwareEvent(*Context, HWEvent) at.Action {
	return at.ActionIgnored
}
