package capability

import (
	"time"

	"go.uber.org/zap"

	"i4.energy/across/cellat/at"
)

// Answer is the kind of answer a step waits for.
type Answer uint8

const (
	AnswerNone Answer = iota
	AnswerMandatory
	AnswerOptional
)

// Transaction is the state of the open service request.
type Transaction struct {
	SID  SID
	Step int
	// Payload is the request argument given by the caller.
	Payload any

	Cmd     at.Command
	Answer  Answer
	Final   bool
	Timeout time.Duration
	// Term is appended to every non raw command. Empty means CR.
	Term string
}

// Open reports whether a service request is in progress.
func (t *Transaction) Open() bool {
	return t.SID != SIDNone
}

func (t *Transaction) reset() {
	t.SID = SIDNone
	t.Step = 0
	t.Payload = nil
	t.Cmd.Reset()
	t.Answer = AnswerNone
	t.Final = false
	t.Timeout = 0
	t.Term = ""
}

// Context is the per-channel state threaded through every Capability call.
type Context struct {
	Tx Transaction
	// State holds the variant's own per-channel state, set by Init.
	State any
	Log   *zap.Logger

	framer   at.LineFramer
	response any
	err      error
	urcs     []URC
}

// NewContext returns an empty context. A nil logger disables logging.
func NewContext(log *zap.Logger) *Context {
	if log == nil {
		log = zap.NewNop()
	}
	return &Context{Log: log}
}

// Begin opens a transaction for sid. Results of the previous one are
// dropped; pending URCs are kept.
func (c *Context) Begin(sid SID, payload any) {
	c.Tx.reset()
	c.Tx.SID = sid
	c.Tx.Payload = payload
	c.response = nil
	c.err = nil
}

// End closes the transaction. The response and error stay available until
// taken or until the next Begin.
func (c *Context) End() {
	c.Tx.reset()
}

// SetResponse stores the result of the open transaction.
func (c *Context) SetResponse(v any) { c.response = v }

// Response returns the stored result without taking it.
func (c *Context) Response() any { return c.response }

// TakeResponse returns and clears the stored result.
func (c *Context) TakeResponse() any {
	v := c.response
	c.response = nil
	return v
}

// SetError records the modem error of the open transaction. The first
// error is kept.
func (c *Context) SetError(err error) {
	if c.err == nil {
		c.err = err
	}
}

// TakeError returns and clears the recorded error.
func (c *Context) TakeError() error {
	err := c.err
	c.err = nil
	return err
}

// ResetFramer forgets any partially framed line. It must run where the
// byte receive path cannot feed the framer concurrently.
func (c *Context) ResetFramer() { c.framer.Reset() }

// PushURC queues an unsolicited result for the engine.
func (c *Context) PushURC(u URC) {
	c.urcs = append(c.urcs, u)
}

// PopURC dequeues the oldest unsolicited result.
func (c *Context) PopURC() (URC, bool) {
	if len(c.urcs) == 0 {
		return URC{}, false
	}
	u := c.urcs[0]
	c.urcs[0] = URC{}
	c.urcs = c.urcs[1:]
	return u, true
}

// PendingURCs returns the number of queued unsolicited results.
func (c *Context) PendingURCs() int { return len(c.urcs) }
