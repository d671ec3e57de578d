// Package bg96 is the capability of Quectel BG96 class modems.
//
// Importing the package registers the variant as "bg96".
package bg96

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"i4.energy/across/cellat/at"
	"i4.energy/across/cellat/capability"
	"i4.energy/across/cellat/lowpower"
)

// Name is the registry name of the variant.
const Name = "bg96"

func init() {
	capability.Register(Name, func() capability.Capability { return New() })
}

// Variant specific command ids.
const (
	CmdQSCLK = capability.CmdVariantBase + iota
	CmdQENG
	CmdQPOWD
)

var commands = capability.Generic.Extend(capability.CommandTable{
	CmdQSCLK: "+QSCLK",
	CmdQENG:  "+QENG",
	CmdQPOWD: "+QPOWD",
})

// Variant implements capability.Capability and capability.PowerManager.
// It keeps no state of its own: everything lives in the channel context.
type Variant struct {
	capability.Base
}

var (
	_ capability.Capability   = (*Variant)(nil)
	_ capability.PowerManager = (*Variant)(nil)
)

func New() *Variant {
	return &Variant{}
}

func (*Variant) Name() string { return Name }

// Init installs a fresh channel state with both sleep sides idle.
func (*Variant) Init(c *capability.Context) error {
	c.State = newState()
	return nil
}

// ModemAsleep reports whether the modem status says it sleeps.
func (*Variant) ModemAsleep(c *capability.Context) bool {
	return stateOf(c).power.ModemAsleep()
}

// Power returns the low power machine of the channel.
func (*Variant) Power(c *capability.Context) *lowpower.Machine {
	return stateOf(c).power
}

// state is the per-channel state of the variant.
type state struct {
	power *lowpower.Machine

	// query is the prefix of the information lines answering the step
	query string
	// collect keeps unprefixed information lines
	collect     bool
	awaitPrompt bool

	lines  []string
	info   capability.DeviceInfo
	csq    capability.SignalQuality
	reg    capability.RegistrationStatus
	attach capability.AttachState
	sim    capability.SIMStatus
	cell   capability.ServingCell
	smsRef int
}

func newState() *state {
	return &state{power: lowpower.New(Name)}
}

func stateOf(c *capability.Context) *state {
	s, _ := c.State.(*state)
	if s == nil {
		s = newState()
		c.State = s
	}
	return s
}

// begin clears what the previous transaction left.
func (s *state) begin() {
	s.query = ""
	s.collect = false
	s.awaitPrompt = false
	s.lines = s.lines[:0]
	s.info = capability.DeviceInfo{}
	s.csq = capability.SignalQuality{RSSI: 99, BER: 99}
	s.reg = capability.RegistrationStatus{}
	s.attach = capability.AttachState{}
	s.sim = ""
	s.cell = capability.ServingCell{}
	s.smsRef = 0
}

func (s *state) fire(c *capability.Context, ev lowpower.Event) {
	if err := s.power.Fire(context.Background(), ev); err != nil {
		c.Log.Debug("low power event refused", zap.String("event", string(ev)), zap.Error(err))
	}
}

func (s *state) result(sid capability.SID) any {
	switch sid {
	case capability.SIDDeviceInfo:
		return s.info
	case capability.SIDSignalQuality:
		return s.csq
	case capability.SIDRegistration:
		return s.reg
	case capability.SIDAttach, capability.SIDDetach:
		return s.attach
	case capability.SIDSIMStatus:
		return s.sim
	case capability.SIDEngineeringMode:
		return s.cell
	case capability.SIDSendSMS:
		return capability.SMSResult{Reference: s.smsRef}
	case capability.SIDDirectCommand:
		return capability.DirectResponse{Lines: slices.Clone(s.lines)}
	}
	return nil
}

// TerminateCommand settles the low power side effects of a step and
// publishes the response of the last one.
func (*Variant) TerminateCommand(c *capability.Context, a at.Action) at.Action {
	s := stateOf(c)
	switch c.Tx.SID {
	case capability.SIDSleepRequest:
		if a.Kind() == at.ActionError {
			s.fire(c, lowpower.SleepCancel)
		}
	case capability.SIDSleepCancel:
		if a.Kind() == at.ActionFrcEnd {
			s.fire(c, lowpower.SleepCancel)
		}
	case capability.SIDWakeup:
		if a.Kind() == at.ActionFrcEnd && s.power.ModemAsleep() {
			s.power.Fail(context.Background(), errStillAsleep)
			c.SetError(errStillAsleep)
			a = at.ActionError
		}
	case capability.SIDSendSMS:
		if a.Kind() == at.ActionFrcEnd && s.awaitPrompt {
			c.SetError(errNoPrompt)
			a = at.ActionError
		}
	}

	if a.Kind() == at.ActionFrcEnd && c.Tx.Final {
		c.SetResponse(s.result(c.Tx.SID))
	}
	return a
}

// HardwareEvent maps the status line and the ring indicator onto the low
// power machine. The status line going high ends a pending wakeup.
func (*Variant) HardwareEvent(c *capability.Context, ev capability.HWEvent) at.Action {
	s := stateOf(c)
	switch ev {
	case capability.HWStatusLow:
		if s.power.Can(lowpower.ModemEnterSleep) {
			s.fire(c, lowpower.ModemEnterSleep)
		}
		return at.ActionIgnored

	case capability.HWStatusHigh:
		if s.power.Can(lowpower.ModemLeaveSleep) {
			s.fire(c, lowpower.ModemLeaveSleep)
		}
		if c.Tx.SID == capability.SIDWakeup {
			return at.ActionFrcEnd
		}
		return at.ActionIgnored

	case capability.HWRingIndicator:
		if s.power.Can(lowpower.ModemWakeupRequest) {
			s.fire(c, lowpower.ModemWakeupRequest)
		}
		c.PushURC(capability.URC{Name: "RI", Line: "RING INDICATOR", Value: ev})
		return at.ActionUrcForwarded
	}
	return at.ActionIgnored
}
