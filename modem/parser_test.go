package modem_test

import (
	"errors"
	"strings"
	"testing"

	"i4.energy/across/cellat/at"
	"i4.energy/across/cellat/capability"
	"i4.energy/across/cellat/modem"
)

// scripted is a minimal variant: each step sends one command named in
// names, "OK" ends it, "NEXT" asks for the next step, "ERROR" fails and
// "+EV" lines are unsolicited.
type scripted struct {
	capability.Base
	names    []string
	asleep   bool
	refuse   bool
	response string
}

func (*scripted) Name() string                  { return "scripted" }
func (*scripted) Init(*capability.Context) error { return nil }

func (s *scripted) ModemAsleep(*capability.Context) bool { return s.asleep }

func (s *scripted) NextCommand(c *capability.Context) at.SendAction {
	if s.refuse || c.Tx.Step >= len(s.names) {
		return at.SendError
	}
	c.Tx.Cmd.Set(at.CmdExec, 0, s.names[c.Tx.Step], "")
	act := at.SendWaitMandatoryRsp
	if c.Tx.Step == len(s.names)-1 {
		act |= at.SendLastCmd
	}
	return act
}

func (*scripted) AnalyzeCommand(c *capability.Context, line []byte, e *at.Element) at.Action {
	text := string(line)
	switch {
	case text == "OK":
		return at.ActionFrcEnd
	case text == "NEXT":
		return at.ActionFrcContinue
	case text == "ERROR":
		c.SetError(at.ErrModemError)
		return at.ActionError
	case strings.HasPrefix(text, "+EV"):
		c.PushURC(capability.URC{Name: e.String(line), Line: text})
		return at.ActionUrcForwarded
	}
	return at.ActionIntermediate
}

func (s *scripted) TerminateCommand(c *capability.Context, a at.Action) at.Action {
	if a.Kind() == at.ActionFrcEnd && c.Tx.Final {
		c.SetResponse(s.response)
	}
	return a
}

func newScriptedParser(names ...string) (*modem.Parser, *scripted) {
	s := &scripted{names: names, response: "done"}
	return modem.NewParser(s, capability.NewContext(nil), nil), s
}

func parse(p *modem.Parser, line string) at.Action {
	return p.ParseResponse([]byte(line + "\r\n"))
}

func TestParserSteps(t *testing.T) {
	p, _ := newScriptedParser("+A", "+B")
	if err := p.ProcessRequest(capability.SIDAttach, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	act, wire, err := p.NextCommand()
	if err != nil || act != at.SendWaitMandatoryRsp || string(wire) != "AT+A\r" {
		t.Fatalf("unexpected first command %v %q %v", act, wire, err)
	}
	if got := parse(p, "OK"); got != at.ActionFrcContinue {
		t.Errorf("OK on a step that is not the last should continue, got %v", got)
	}
	if p.Step() != 1 {
		t.Errorf("expected step 1, got %d", p.Step())
	}

	act, wire, _ = p.NextCommand()
	if act != at.SendWaitMandatoryRsp|at.SendLastCmd || string(wire) != "AT+B\r" {
		t.Fatalf("unexpected second command %v %q", act, wire)
	}
	if got := parse(p, "NEXT"); got != at.ActionFrcEnd {
		t.Errorf("continue on the last step should end, got %v", got)
	}

	resp, err := p.Finish()
	if err != nil || resp != "done" {
		t.Errorf("unexpected outcome %v %v", resp, err)
	}
	if p.Open() {
		t.Error("transaction should be closed")
	}
}

func TestParserErrorShortCircuits(t *testing.T) {
	p, _ := newScriptedParser("+A", "+B")
	p.ProcessRequest(capability.SIDAttach, nil)
	p.NextCommand()

	if got := parse(p, "ERROR"); got != at.ActionError {
		t.Errorf("expected Error, got %v", got)
	}
	if p.Step() != 0 {
		t.Errorf("an error must not advance the step, got %d", p.Step())
	}
	if _, err := p.Finish(); !errors.Is(err, at.ErrModemError) {
		t.Errorf("expected the modem error, got %v", err)
	}
}

func TestParserURCKeepsStep(t *testing.T) {
	p, _ := newScriptedParser("+A", "+B")
	p.ProcessRequest(capability.SIDAttach, nil)
	p.NextCommand()

	if got := parse(p, "+EV: 1"); got != at.ActionUrcForwarded {
		t.Errorf("expected UrcForwarded, got %v", got)
	}
	if p.Step() != 0 || !p.Open() {
		t.Error("a URC must not touch the transaction")
	}
	u, ok := p.NextURC()
	if !ok || u.Name != "+EV" {
		t.Errorf("unexpected URC %+v", u)
	}
	if _, ok := p.NextURC(); ok {
		t.Error("URC queue should be empty")
	}
}

func TestParserWithoutTransaction(t *testing.T) {
	p, _ := newScriptedParser("+A")

	for _, line := range []string{"OK", "ERROR", "NEXT", "text"} {
		if got := parse(p, line); got != at.ActionIgnored {
			t.Errorf("%q without a transaction: expected Ignored, got %v", line, got)
		}
	}
	if got := parse(p, ""); got != at.ActionIgnored {
		t.Errorf("empty line: expected Ignored, got %v", got)
	}
	if got := p.StepDone(); got != at.ActionIgnored {
		t.Errorf("StepDone without a transaction: expected Ignored, got %v", got)
	}
	if _, _, err := p.NextCommand(); !errors.Is(err, modem.ErrNoTransaction) {
		t.Errorf("expected ErrNoTransaction, got %v", err)
	}
}

func TestParserBusy(t *testing.T) {
	p, _ := newScriptedParser("+A")
	if err := p.ProcessRequest(capability.SIDAttach, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.ProcessRequest(capability.SIDDetach, nil); !errors.Is(err, modem.ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	if p.SID() != capability.SIDAttach {
		t.Errorf("the open transaction must be kept, got %v", p.SID())
	}

	p.Abort()
	if err := p.ProcessRequest(capability.SIDDetach, nil); err != nil {
		t.Errorf("unexpected error after Abort: %v", err)
	}
}

func TestParserCommandBuildError(t *testing.T) {
	p, s := newScriptedParser("+A")
	s.refuse = true
	p.ProcessRequest(capability.SIDAttach, nil)

	act, _, err := p.NextCommand()
	if act != at.SendError || !errors.Is(err, modem.ErrCommandBuild) {
		t.Errorf("expected ErrCommandBuild, got %v %v", act, err)
	}
}

func TestParserRefusesToWriteWhileAsleep(t *testing.T) {
	p, s := newScriptedParser("+A")
	s.asleep = true
	p.ProcessRequest(capability.SIDAttach, nil)

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, modem.ErrSendWhileAsleep) {
			t.Errorf("expected a ErrSendWhileAsleep panic, got %v", r)
		}
	}()
	p.NextCommand()
	t.Error("NextCommand should have panicked")
}
