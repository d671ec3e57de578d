package capability

import (
	"fmt"
	"maps"

	"i4.energy/across/cellat/at"
)

// SID identifies a service request. One SID may expand into several AT
// commands, one per step.
type SID uint16

const (
	SIDNone SID = iota
	SIDCheckConnection
	SIDInit
	SIDDeviceInfo
	SIDSignalQuality
	SIDRegistration
	SIDAttach
	SIDDetach
	SIDSIMStatus
	SIDSendSMS
	SIDDirectCommand
	SIDEngineeringMode
	SIDSleepRequest
	SIDSleepComplete
	SIDSleepCancel
	SIDWakeup
	SIDEnterPIN

	// SIDVariantBase is the first SID a variant may define for itself.
	SIDVariantBase SID = 0x100
)

var sidNames = map[SID]string{
	SIDNone:            "none",
	SIDCheckConnection: "check-connection",
	SIDInit:            "init",
	SIDDeviceInfo:      "device-info",
	SIDSignalQuality:   "signal-quality",
	SIDRegistration:    "registration",
	SIDAttach:          "attach",
	SIDDetach:          "detach",
	SIDSIMStatus:       "sim-status",
	SIDSendSMS:         "send-sms",
	SIDDirectCommand:   "direct-command",
	SIDEngineeringMode: "engineering-mode",
	SIDSleepRequest:    "sleep-request",
	SIDSleepComplete:   "sleep-complete",
	SIDSleepCancel:     "sleep-cancel",
	SIDWakeup:          "wakeup",
	SIDEnterPIN:        "enter-pin",
}

func (s SID) String() string {
	if n, ok := sidNames[s]; ok {
		return n
	}
	if s >= SIDVariantBase {
		return fmt.Sprintf("variant-%d", s-SIDVariantBase)
	}
	return fmt.Sprintf("sid-%d", uint16(s))
}

// Generic command ids. Variants number their own commands from
// CmdVariantBase.
const (
	CmdNone uint32 = iota
	CmdAT
	CmdEchoOff
	CmdCMEE
	CmdCREG
	CmdCGREG
	CmdCEREG
	CmdCGMI
	CmdCGMM
	CmdCGMR
	CmdCGSN
	CmdCSQ
	CmdCGATT
	CmdCPIN
	CmdCMGF
	CmdCMGS
	CmdCOPS
	CmdRaw

	CmdVariantBase uint32 = 0x1000
)

// CommandTable maps command ids to command names.
type CommandTable map[uint32]string

// Generic is the command table every variant starts from.
var Generic = CommandTable{
	CmdAT:      "",
	CmdEchoOff: "E0",
	CmdCMEE:    "+CMEE",
	CmdCREG:    "+CREG",
	CmdCGREG:   "+CGREG",
	CmdCEREG:   "+CEREG",
	CmdCGMI:    "+CGMI",
	CmdCGMM:    "+CGMM",
	CmdCGMR:    "+CGMR",
	CmdCGSN:    "+CGSN",
	CmdCSQ:     "+CSQ",
	CmdCGATT:   "+CGATT",
	CmdCPIN:    "+CPIN",
	CmdCMGF:    "+CMGF",
	CmdCMGS:    "+CMGS",
	CmdCOPS:    "+COPS",
}

// Extend returns a copy of t with the entries of ext added. ext ids must
// lie in the variant range.
func (t CommandTable) Extend(ext CommandTable) CommandTable {
	out := maps.Clone(t)
	for id, name := range ext {
		if id < CmdVariantBase {
			panic(fmt.Sprintf("capability: variant command %q uses generic id %d", name, id))
		}
		out[id] = name
	}
	return out
}

// Fill sets cmd to command id of the table.
func (t CommandTable) Fill(cmd *at.Command, typ at.CmdType, id uint32, params string) error {
	name, ok := t[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownCommand, id)
	}
	cmd.Set(typ, id, name, params)
	return nil
}

// ID returns the id of the command called name.
func (t CommandTable) ID(name string) (uint32, bool) {
	for id, n := range t {
		if n == name {
			return id, true
		}
	}
	return CmdNone, false
}
