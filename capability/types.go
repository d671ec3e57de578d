package capability

import (
	"fmt"
	"time"
)

// URC is an unsolicited result the engine forwards to the application.
type URC struct {
	// Name is the command part of the line, "+CREG" or "RDY".
	Name string
	// Line is the whole line as received.
	Line string
	// Value holds a decoded form when the variant knows one, for instance
	// a Registration.
	Value any
}

func (u URC) String() string { return u.Line }

// DeviceInfo answers SIDDeviceInfo.
type DeviceInfo struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Revision     string `json:"revision"`
	IMEI         string `json:"imei"`
}

// SignalQuality answers SIDSignalQuality.
type SignalQuality struct {
	// RSSI is the raw +CSQ value, 0..31 or 99 when unknown.
	RSSI int `json:"rssi"`
	// BER is the raw bit error rate, 0..7 or 99 when unknown.
	BER int `json:"ber"`
}

// Known reports whether the modem could measure the signal.
func (s SignalQuality) Known() bool {
	return s.RSSI >= 0 && s.RSSI <= 31
}

// DBm converts RSSI to dBm. It returns 0 when the signal is unknown.
func (s SignalQuality) DBm() int {
	if !s.Known() {
		return 0
	}
	return -113 + 2*s.RSSI
}

// RegStat is the registration state reported by +CREG, +CGREG and +CEREG.
type RegStat int

const (
	RegNotRegistered RegStat = 0
	RegHome          RegStat = 1
	RegSearching     RegStat = 2
	RegDenied        RegStat = 3
	RegUnknown       RegStat = 4
	RegRoaming       RegStat = 5
)

func (s RegStat) String() string {
	switch s {
	case RegNotRegistered:
		return "not-registered"
	case RegHome:
		return "home"
	case RegSearching:
		return "searching"
	case RegDenied:
		return "denied"
	case RegUnknown:
		return "unknown"
	case RegRoaming:
		return "roaming"
	default:
		return fmt.Sprintf("stat-%d", int(s))
	}
}

// Registered reports home or roaming registration.
func (s RegStat) Registered() bool {
	return s == RegHome || s == RegRoaming
}

// Registration is one registration report.
type Registration struct {
	// Domain is the reporting command: "+CREG", "+CGREG" or "+CEREG".
	Domain string  `json:"domain"`
	Stat   RegStat `json:"stat"`
	LAC    string  `json:"lac,omitempty"`
	CI     string  `json:"ci,omitempty"`
	AcT    int     `json:"act"`
}

// RegistrationStatus answers SIDRegistration.
type RegistrationStatus struct {
	CS  Registration `json:"cs"`
	PS  Registration `json:"ps"`
	EPS Registration `json:"eps"`
}

// Registered reports whether any domain is registered.
func (r RegistrationStatus) Registered() bool {
	return r.CS.Stat.Registered() || r.PS.Stat.Registered() || r.EPS.Stat.Registered()
}

// AttachState answers SIDAttach and SIDDetach.
type AttachState struct {
	Attached bool `json:"attached"`
}

// SIMStatus answers SIDSIMStatus with the +CPIN code, "READY" when the
// SIM is usable.
type SIMStatus string

// Ready reports whether the SIM needs no PIN or PUK.
func (s SIMStatus) Ready() bool { return s == "READY" }

// ServingCell answers SIDEngineeringMode.
type ServingCell struct {
	State  string   `json:"state"`
	RAT    string   `json:"rat,omitempty"`
	Fields []string `json:"fields"`
}

// SMSRequest is the payload of SIDSendSMS.
type SMSRequest struct {
	To   string
	Text string
}

// SMSResult answers SIDSendSMS.
type SMSResult struct {
	Reference int `json:"reference"`
}

// DirectRequest is the payload of SIDDirectCommand. Command is sent as is,
// followed by CR; Timeout overrides the default step timeout when set.
type DirectRequest struct {
	Command string
	Timeout time.Duration
}

// DirectResponse answers SIDDirectCommand with every information line
// received before the final result.
type DirectResponse struct {
	Lines []string `json:"lines"`
}
