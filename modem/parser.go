package modem

import (
	"bytes"
	"fmt"

	"go.uber.org/zap"

	"i4.energy/across/cellat/at"
	"i4.energy/across/cellat/capability"
)

// Parser is the transaction engine of one channel. It owns at most one
// open transaction and drives the variant step by step: it asks for the
// next command, serializes it, classifies every received line and decides
// when a step, and the whole transaction, is over.
//
// Parser does no I/O and is not safe for concurrent use; Modem calls it
// from its loop only.
type Parser struct {
	cap capability.Capability
	ctx *capability.Context
	log *zap.Logger

	wire     []byte
	dataMode bool
}

// NewParser returns a parser driving c with the per-channel context cctx.
func NewParser(c capability.Capability, cctx *capability.Context, log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{
		cap:  c,
		ctx:  cctx,
		log:  log,
		wire: make([]byte, 0, at.MaxBufferSize),
	}
}

// Context returns the per-channel context.
func (p *Parser) Context() *capability.Context { return p.ctx }

// Open reports whether a transaction is in progress.
func (p *Parser) Open() bool { return p.ctx.Tx.Open() }

// SID returns the service of the open transaction.
func (p *Parser) SID() capability.SID { return p.ctx.Tx.SID }

// Step returns the step counter of the open transaction.
func (p *Parser) Step() int { return p.ctx.Tx.Step }

// Tx returns the open transaction.
func (p *Parser) Tx() *capability.Transaction { return &p.ctx.Tx }

// DataMode reports whether the modem switched to data mode.
func (p *Parser) DataMode() bool { return p.dataMode }

// ProcessRequest opens a transaction for sid. payload is handed to the
// variant untouched.
func (p *Parser) ProcessRequest(sid capability.SID, payload any) error {
	if p.ctx.Tx.Open() {
		return fmt.Errorf("%w: %s in progress", ErrBusy, p.ctx.Tx.SID)
	}
	if sid == capability.SIDNone {
		return fmt.Errorf("%w: no service", ErrInvalidRequest)
	}
	p.ctx.Begin(sid, payload)
	p.log.Debug("request", zap.Stringer("sid", sid))
	return nil
}

// NextCommand has the variant build the command of the current step and
// serializes it. The returned bytes, empty for a step that sends nothing,
// stay valid until the next call.
//
// NextCommand panics with ErrSendWhileAsleep when the variant builds a
// command while its modem is asleep: the wakeup handshake must complete
// before anything is written.
func (p *Parser) NextCommand() (at.SendAction, []byte, error) {
	if !p.ctx.Tx.Open() {
		return at.SendError, nil, ErrNoTransaction
	}

	tx := &p.ctx.Tx
	tx.Cmd.Reset()
	tx.Timeout = 0
	tx.Term = ""

	act := p.cap.NextCommand(p.ctx)
	if act&at.SendError != 0 {
		err := p.cap.Error(p.ctx)
		if err == nil {
			err = fmt.Errorf("%w: %s step %d", ErrCommandBuild, tx.SID, tx.Step)
		}
		return act, nil, err
	}

	tx.Final = act.Last()
	switch {
	case act&at.SendWaitMandatoryRsp != 0:
		tx.Answer = capability.AnswerMandatory
	case act&at.SendTempo != 0:
		tx.Answer = capability.AnswerOptional
	default:
		tx.Answer = capability.AnswerNone
	}

	p.wire = p.wire[:0]
	if tx.Cmd.Type == at.CmdNone {
		return act, p.wire, nil
	}

	if pm, ok := p.cap.(capability.PowerManager); ok && pm.ModemAsleep(p.ctx) {
		panic(fmt.Errorf("%w: %s while %s step %d", ErrSendWhileAsleep, tx.Cmd.String(), tx.SID, tx.Step))
	}

	term := tx.Term
	if term == "" {
		term = at.CR
	}
	wire, err := tx.Cmd.AppendTo(p.wire, term)
	if err != nil {
		return at.SendError, nil, fmt.Errorf("%s step %d: %w", tx.SID, tx.Step, err)
	}
	p.wire = wire

	p.log.Debug("command",
		zap.Stringer("sid", tx.SID),
		zap.Int("step", tx.Step),
		zap.Stringer("cmd", &tx.Cmd),
		zap.Stringer("action", act),
	)
	return act, p.wire, nil
}

// ParseResponse classifies one framed message.
//
// Terminal classifications of the open transaction go through the
// variant's TerminateCommand; FrcEnd on a step that is not the last one
// becomes FrcContinue and the step counter advances. A terminal line with
// no transaction open, or an empty line, is Ignored.
func (p *Parser) ParseResponse(msg []byte) at.Action {
	line := bytes.Trim(msg, "\r\n")
	if len(bytes.TrimSpace(line)) == 0 {
		return at.ActionIgnored
	}

	var el at.Element
	if !p.cap.ExtractElement(p.ctx, line, &el) {
		return at.ActionIgnored
	}

	act := p.cap.AnalyzeCommand(p.ctx, line, &el)
	if act == at.ActionNoAction {
		act = at.ActionIntermediate
		for p.cap.ExtractElement(p.ctx, line, &el) {
			if a := p.cap.AnalyzeParam(p.ctx, line, &el); a != at.ActionNoAction {
				act = a
				break
			}
		}
	}

	p.log.Debug("response", zap.ByteString("line", line), zap.Stringer("action", act))
	return p.resolve(act)
}

// HardwareEvent passes ev to the variant and classifies its answer like a
// received message.
func (p *Parser) HardwareEvent(ev capability.HWEvent) at.Action {
	act := p.cap.HardwareEvent(p.ctx, ev)
	p.log.Debug("hardware event", zap.Stringer("event", ev), zap.Stringer("action", act))
	return p.resolve(act)
}

func (p *Parser) resolve(act at.Action) at.Action {
	switch {
	case act.URC():
		return act
	case act.Terminal():
		if !p.ctx.Tx.Open() {
			return at.ActionIgnored
		}
		return p.terminate(act)
	case act.Kind() == at.ActionIntermediate && !p.ctx.Tx.Open():
		return at.ActionIgnored
	}
	return act
}

// StepDone closes a step that got no terminal answer but needs none: a
// step that expects nothing, or a tempo step whose wait elapsed.
func (p *Parser) StepDone() at.Action {
	if !p.ctx.Tx.Open() {
		return at.ActionIgnored
	}
	return p.terminate(at.ActionFrcEnd)
}

func (p *Parser) terminate(act at.Action) at.Action {
	dataMode := act.DataMode()
	act = p.cap.TerminateCommand(p.ctx, act)
	dataMode = dataMode || act.DataMode()

	kind := act.Kind()
	switch {
	case kind == at.ActionFrcEnd && !p.ctx.Tx.Final:
		kind = at.ActionFrcContinue
	case kind == at.ActionFrcContinue && p.ctx.Tx.Final:
		kind = at.ActionFrcEnd
	}
	if kind == at.ActionFrcContinue {
		p.ctx.Tx.Step++
	}
	if dataMode {
		p.dataMode = true
		kind |= at.ActionDataMode
	}
	return kind
}

// NextURC pops the oldest unsolicited result queued by the variant.
func (p *Parser) NextURC() (capability.URC, bool) {
	return p.cap.URC(p.ctx)
}

// Finish closes a transaction that ended with FrcEnd or Error and returns
// what the variant assembled.
func (p *Parser) Finish() (any, error) {
	resp := p.cap.Response(p.ctx)
	err := p.cap.Error(p.ctx)
	p.ctx.End()
	return resp, err
}

// Abort ends the open transaction without consulting the variant and
// leaves data mode. Partial results are dropped.
func (p *Parser) Abort() {
	if p.ctx.Tx.Open() {
		p.log.Debug("abort", zap.Stringer("sid", p.ctx.Tx.SID), zap.Int("step", p.ctx.Tx.Step))
	}
	p.ctx.End()
	p.ctx.TakeResponse()
	p.ctx.TakeError()
	p.dataMode = false
}
