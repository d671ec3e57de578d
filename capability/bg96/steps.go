package bg96

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"i4.energy/across/cellat/at"
	"i4.energy/across/cellat/capability"
	"i4.energy/across/cellat/lowpower"
)

// Timeouts from the BG96 AT command manual.
const (
	csqTimeout    = 300 * time.Millisecond
	cpinTimeout   = 5 * time.Second
	cgattTimeout  = 140 * time.Second
	cmgsTimeout   = 120 * time.Second
	promptTimeout = 5 * time.Second
	qengTimeout   = 300 * time.Millisecond
	wakeupTimeout = 2 * time.Second
)

// MaxSMSLength is the longest text sent in one message.
const MaxSMSLength = 160

var (
	errStillAsleep = fmt.Errorf("%w: modem did not wake up", capability.ErrPowerState)
	errPowerFailed = fmt.Errorf("%w: low power failure, reset required", capability.ErrPowerState)
	errNoPrompt    = errors.New("bg96: modem answered without the data prompt")
)

type step struct {
	typ     at.CmdType
	id      uint32
	params  string
	query   string
	collect bool
	timeout time.Duration
}

// sequences lists the services that are a fixed command sequence.
var sequences = map[capability.SID][]step{
	capability.SIDCheckConnection: {
		{typ: at.CmdExec, id: capability.CmdAT},
	},
	capability.SIDInit: {
		{typ: at.CmdExec, id: capability.CmdEchoOff},
		{typ: at.CmdWrite, id: capability.CmdCMEE, params: "1"},
		{typ: at.CmdWrite, id: capability.CmdCREG, params: "2"},
		{typ: at.CmdWrite, id: capability.CmdCGREG, params: "2"},
		{typ: at.CmdWrite, id: capability.CmdCEREG, params: "2"},
	},
	capability.SIDDeviceInfo: {
		{typ: at.CmdExec, id: capability.CmdCGMI, collect: true},
		{typ: at.CmdExec, id: capability.CmdCGMM, collect: true},
		{typ: at.CmdExec, id: capability.CmdCGMR, collect: true},
		{typ: at.CmdExec, id: capability.CmdCGSN, collect: true},
	},
	capability.SIDSignalQuality: {
		{typ: at.CmdExec, id: capability.CmdCSQ, query: "+CSQ", timeout: csqTimeout},
	},
	capability.SIDRegistration: {
		{typ: at.CmdRead, id: capability.CmdCREG, query: "+CREG"},
		{typ: at.CmdRead, id: capability.CmdCGREG, query: "+CGREG"},
		{typ: at.CmdRead, id: capability.CmdCEREG, query: "+CEREG"},
	},
	capability.SIDAttach: {
		{typ: at.CmdWrite, id: capability.CmdCGATT, params: "1", timeout: cgattTimeout},
		{typ: at.CmdRead, id: capability.CmdCGATT, query: "+CGATT"},
	},
	capability.SIDDetach: {
		{typ: at.CmdWrite, id: capability.CmdCGATT, params: "0", timeout: cgattTimeout},
		{typ: at.CmdRead, id: capability.CmdCGATT, query: "+CGATT"},
	},
	capability.SIDSIMStatus: {
		{typ: at.CmdRead, id: capability.CmdCPIN, query: "+CPIN", timeout: cpinTimeout},
	},
	capability.SIDEngineeringMode: {
		{typ: at.CmdWrite, id: CmdQENG, params: `"servingcell"`, query: "+QENG", timeout: qengTimeout},
	},
}

func lowPowerSID(sid capability.SID) bool {
	switch sid {
	case capability.SIDWakeup, capability.SIDSleepComplete, capability.SIDSleepCancel:
		return true
	}
	return false
}

func fail(c *capability.Context, err error) at.SendAction {
	c.SetError(err)
	return at.SendError
}

// NextCommand builds the command of step c.Tx.Step.
func (*Variant) NextCommand(c *capability.Context) at.SendAction {
	s := stateOf(c)
	tx := &c.Tx
	if tx.Step == 0 {
		s.begin()
	}
	if s.power.Failed() {
		return fail(c, errPowerFailed)
	}
	if s.power.ModemAsleep() && !lowPowerSID(tx.SID) {
		return fail(c, fmt.Errorf("%w: %s while the modem sleeps", capability.ErrPowerState, tx.SID))
	}

	if seq, ok := sequences[tx.SID]; ok {
		return s.sequence(c, seq)
	}

	switch tx.SID {
	case capability.SIDEnterPIN:
		pin, ok := tx.Payload.(string)
		if !ok || pin == "" {
			return fail(c, fmt.Errorf("%w: PIN must be a non empty string", capability.ErrBadPayload))
		}
		if !quotable(pin) {
			return fail(c, fmt.Errorf("%w: PIN contains a quote or control character", capability.ErrBadPayload))
		}
		if err := commands.Fill(&tx.Cmd, at.CmdWrite, capability.CmdCPIN, `"`+pin+`"`); err != nil {
			return fail(c, err)
		}
		tx.Timeout = cpinTimeout
		return at.SendWaitMandatoryRsp | at.SendLastCmd

	case capability.SIDSendSMS:
		return s.sendSMS(c)

	case capability.SIDDirectCommand:
		return s.direct(c)

	case capability.SIDSleepRequest:
		if !s.power.Can(lowpower.SleepRequest) {
			return fail(c, fmt.Errorf("%w: sleep request in %s", capability.ErrPowerState, s.power))
		}
		s.fire(c, lowpower.SleepRequest)
		if err := commands.Fill(&tx.Cmd, at.CmdWrite, CmdQSCLK, "1"); err != nil {
			return fail(c, err)
		}
		return at.SendWaitMandatoryRsp | at.SendLastCmd

	case capability.SIDSleepComplete:
		if !s.power.Can(lowpower.SleepComplete) {
			return fail(c, fmt.Errorf("%w: sleep complete in %s", capability.ErrPowerState, s.power))
		}
		s.fire(c, lowpower.SleepComplete)
		return at.SendNoAction | at.SendLastCmd

	case capability.SIDSleepCancel:
		if !s.power.Can(lowpower.SleepCancel) {
			return fail(c, fmt.Errorf("%w: sleep cancel in %s", capability.ErrPowerState, s.power))
		}
		if err := commands.Fill(&tx.Cmd, at.CmdWrite, CmdQSCLK, "0"); err != nil {
			return fail(c, err)
		}
		return at.SendWaitMandatoryRsp | at.SendLastCmd

	case capability.SIDWakeup:
		if !s.power.ModemAsleep() {
			return at.SendNoAction | at.SendLastCmd
		}
		if s.power.Can(lowpower.HostWakeupRequest) {
			s.fire(c, lowpower.HostWakeupRequest)
		}
		// the board pulses the wakeup line; the status line ends the wait
		tx.Timeout = wakeupTimeout
		return at.SendTempo | at.SendLastCmd
	}

	return fail(c, fmt.Errorf("%w: %s", capability.ErrUnsupported, tx.SID))
}

func (s *state) sequence(c *capability.Context, seq []step) at.SendAction {
	tx := &c.Tx
	if tx.Step >= len(seq) {
		return fail(c, fmt.Errorf("%s has no step %d", tx.SID, tx.Step))
	}
	st := seq[tx.Step]
	if err := commands.Fill(&tx.Cmd, st.typ, st.id, st.params); err != nil {
		return fail(c, err)
	}
	s.query = st.query
	s.collect = st.collect
	tx.Timeout = st.timeout

	act := at.SendWaitMandatoryRsp
	if tx.Step == len(seq)-1 {
		act |= at.SendLastCmd
	}
	return act
}

// sendSMS selects text mode, opens the message with +CMGS, waits for the
// prompt and writes the body terminated by Ctrl-Z.
func (s *state) sendSMS(c *capability.Context) at.SendAction {
	tx := &c.Tx
	req, ok := tx.Payload.(capability.SMSRequest)
	switch {
	case !ok:
		return fail(c, fmt.Errorf("%w: want SMSRequest, got %T", capability.ErrBadPayload, tx.Payload))
	case req.To == "":
		return fail(c, fmt.Errorf("%w: no recipient", capability.ErrBadPayload))
	case !quotable(req.To):
		return fail(c, fmt.Errorf("%w: recipient %q", capability.ErrBadPayload, req.To))
	case len(req.Text) > MaxSMSLength:
		return fail(c, fmt.Errorf("%w: text of %d characters exceeds %d", capability.ErrBadPayload, len(req.Text), MaxSMSLength))
	case strings.ContainsAny(req.Text, at.CtrlZ+at.Escape):
		return fail(c, fmt.Errorf("%w: text contains a control character", capability.ErrBadPayload))
	}

	switch tx.Step {
	case 0:
		if err := commands.Fill(&tx.Cmd, at.CmdWrite, capability.CmdCMGF, "1"); err != nil {
			return fail(c, err)
		}
		return at.SendWaitMandatoryRsp
	case 1:
		if err := commands.Fill(&tx.Cmd, at.CmdWrite, capability.CmdCMGS, `"`+req.To+`"`); err != nil {
			return fail(c, err)
		}
		s.awaitPrompt = true
		tx.Timeout = promptTimeout
		return at.SendWaitMandatoryRsp
	case 2:
		tx.Cmd.SetRaw(capability.CmdRaw, []byte(req.Text+at.CtrlZ))
		s.query = "+CMGS"
		tx.Timeout = cmgsTimeout
		return at.SendWaitMandatoryRsp | at.SendLastCmd
	}
	return fail(c, fmt.Errorf("%s has no step %d", tx.SID, tx.Step))
}

// quotable reports whether v can go inside a quoted string parameter
// without ending it or the command line.
func quotable(v string) bool {
	for i := 0; i < len(v); i++ {
		if b := v[i]; b == '"' || b < 0x20 || b == 0x7f {
			return false
		}
	}
	return true
}

// direct passes a command line through and keeps every answer line.
func (s *state) direct(c *capability.Context) at.SendAction {
	tx := &c.Tx
	req, ok := tx.Payload.(capability.DirectRequest)
	if !ok {
		return fail(c, fmt.Errorf("%w: want DirectRequest, got %T", capability.ErrBadPayload, tx.Payload))
	}
	cmd := strings.TrimSpace(req.Command)
	if len(cmd) < 2 || !strings.EqualFold(cmd[:2], "AT") {
		return fail(c, fmt.Errorf("%w: %q is not an AT command", capability.ErrBadPayload, req.Command))
	}
	if strings.ContainsAny(cmd, at.CR+at.LF) {
		return fail(c, fmt.Errorf("%w: %q holds more than one command line", capability.ErrBadPayload, req.Command))
	}
	if len(cmd)+len(at.CR) > at.MaxRawSize {
		return fail(c, fmt.Errorf("%w: %d bytes", at.ErrRawSize, len(cmd)))
	}

	tx.Cmd.SetRaw(capability.CmdRaw, []byte(cmd+at.CR))
	tx.Timeout = req.Timeout
	s.query = queryOf(cmd)
	s.collect = true
	return at.SendWaitMandatoryRsp | at.SendLastCmd
}

// queryOf returns the information line prefix of an AT command line,
// "+CSQ" for "AT+CSQ", or "" for a basic command.
func queryOf(cmd string) string {
	rest := cmd[2:]
	if i := strings.IndexAny(rest, "=?"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" || !strings.ContainsRune("+^#$%*", rune(rest[0])) {
		return ""
	}
	return strings.ToUpper(rest)
}
