// Package at holds the wire vocabulary shared by the transaction engine and
// the modem variants: result codes, command descriptors, action flags and the
// line level helpers used to split and classify what a modem sends back.
package at

const (
	// Terminal Control
	CR     = "\r"
	LF     = "\n"
	CRLF   = "\r\n"
	Prompt = "> "
	CtrlZ  = "\x1a"
	Escape = "\x1b"

	// Response Codes
	OK         = "OK"
	ERROR      = "ERROR"
	Connect    = "CONNECT"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	// URCs (Unsolicited Result Codes)
	UrcNewMsg        = "+CMTI:"
	UrcMessageReport = "+CDSI:"
	UrcCall          = "RING"
)

// Sizing limits. Exceeding any of them is an error, never a silent truncation.
const (
	// MaxCmdNameSize bounds the command name (e.g. "+CGATT").
	MaxCmdNameSize = 32
	// MaxCmdParamsSize bounds the parameter part of a write command.
	MaxCmdParamsSize = 128
	// MaxCmdSize bounds a serialized command line, prefix and terminator included.
	MaxCmdSize = 2 + MaxCmdNameSize + 2 + MaxCmdParamsSize + 2
	// MaxRawSize bounds the payload of a raw command.
	MaxRawSize = 1500
	// MaxBufferSize bounds the shared request/response buffer and a single
	// received message.
	MaxBufferSize = 1600
)

type ResponseType int

const (
	TypeFinal  ResponseType = iota // OK, ERROR
	TypeURC                        // Asynchronous notifications
	TypeData                       // Intermediate command output (+CSQ: ...)
	TypePrompt                     // SMS input prompt
	TypeError                      // ERROR, +CME ERROR, +CMS ERROR, NO CARRIER...
	TypeEmpty                      // Blank line
)

func (t ResponseType) String() string {
	switch t {
	case TypeFinal:
		return "final"
	case TypeURC:
		return "urc"
	case TypeData:
		return "data"
	case TypePrompt:
		return "prompt"
	case TypeError:
		return "error"
	case TypeEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Status is the outcome of a blocking send.
type Status int

const (
	StatusOK Status = iota
	StatusError
	StatusTimeout
	// StatusOKPendingURC reports success while unsolicited codes were
	// forwarded during the transaction.
	StatusOKPendingURC
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "Error"
	case StatusTimeout:
		return "Timeout"
	case StatusOKPendingURC:
		return "OKPendingURC"
	default:
		return "Unknown"
	}
}

// SendAction tells the engine what to do after a command has been built.
// SendLastCmd may be combined with SendWaitMandatoryRsp or SendTempo.
type SendAction uint8

const (
	SendNoAction         SendAction = 0
	SendWaitMandatoryRsp SendAction = 1 << iota
	SendTempo
	SendError
	SendLastCmd
)

// Last reports whether the step is the final one of its transaction.
func (a SendAction) Last() bool { return a&SendLastCmd != 0 }

// Waits reports whether the step expects an answer, mandatory or optional.
func (a SendAction) Waits() bool { return a&(SendWaitMandatoryRsp|SendTempo) != 0 }

func (a SendAction) String() string {
	var s string
	switch {
	case a&SendError != 0:
		s = "Error"
	case a&SendWaitMandatoryRsp != 0:
		s = "WaitMandatoryRsp"
	case a&SendTempo != 0:
		s = "Tempo"
	default:
		s = "NoAction"
	}
	if a.Last() {
		s += "|LastCmd"
	}
	return s
}

// Action is the classification of one received message. ActionDataMode is a
// flag that can be combined with any of the other values.
type Action uint16

const (
	ActionNoAction Action = iota
	ActionFrcEnd
	ActionFrcContinue
	ActionError
	ActionIntermediate
	ActionIgnored
	ActionUrcIgnored
	ActionUrcForwarded

	ActionDataMode Action = 0x100
)

// Kind strips the data mode flag.
func (a Action) Kind() Action { return a &^ ActionDataMode }

// DataMode reports whether the modem switched to data mode with this message.
func (a Action) DataMode() bool { return a&ActionDataMode != 0 }

// Terminal reports whether the action closes the current step.
func (a Action) Terminal() bool {
	switch a.Kind() {
	case ActionFrcEnd, ActionFrcContinue, ActionError:
		return true
	}
	return false
}

// URC reports whether the message was unsolicited.
func (a Action) URC() bool {
	k := a.Kind()
	return k == ActionUrcIgnored || k == ActionUrcForwarded
}

func (a Action) String() string {
	var s string
	switch a.Kind() {
	case ActionNoAction:
		s = "NoAction"
	case ActionFrcEnd:
		s = "FrcEnd"
	case ActionFrcContinue:
		s = "FrcContinue"
	case ActionError:
		s = "Error"
	case ActionIntermediate:
		s = "Intermediate"
	case ActionIgnored:
		s = "Ignored"
	case ActionUrcIgnored:
		s = "UrcIgnored"
	case ActionUrcForwarded:
		s = "UrcForwarded"
	default:
		s = "Unknown"
	}
	if a.DataMode() {
		s += "|DataMode"
	}
	return s
}
