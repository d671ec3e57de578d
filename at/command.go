package at

import (
	"errors"
	"fmt"
)

var (
	// ErrNameTooLong is returned when a command name exceeds MaxCmdNameSize.
	ErrNameTooLong = errors.New("at: command name too long")

	// ErrParamsTooLong is returned when command parameters exceed
	// MaxCmdParamsSize.
	ErrParamsTooLong = errors.New("at: command parameters too long")

	// ErrCmdTooLong is returned when the serialized command would exceed
	// MaxCmdSize.
	ErrCmdTooLong = errors.New("at: command too long")

	// ErrRawSize is returned when a raw command declares a size that is
	// larger than its payload or than MaxRawSize.
	ErrRawSize = errors.New("at: invalid raw command size")

	// ErrNoCommand is returned when serializing a descriptor of type CmdNone.
	ErrNoCommand = errors.New("at: no command to serialize")
)

// CmdType selects how a command descriptor is serialized.
type CmdType int

const (
	CmdNone CmdType = iota
	CmdTest                // AT<name>=?
	CmdRead                // AT<name>?
	CmdWrite               // AT<name>=<params>
	CmdExec                // AT<name>
	CmdRaw                 // params sent verbatim
)

func (t CmdType) String() string {
	switch t {
	case CmdNone:
		return "none"
	case CmdTest:
		return "test"
	case CmdRead:
		return "read"
	case CmdWrite:
		return "write"
	case CmdExec:
		return "exec"
	case CmdRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Command describes one AT command to be sent to the modem.
type Command struct {
	Type   CmdType
	ID     uint32
	Name   string
	Params []byte
	// RawSize is the number of Params bytes sent by a CmdRaw command.
	RawSize int
}

// Reset clears the descriptor so it can be filled for the next step.
func (c *Command) Reset() {
	c.Type = CmdNone
	c.ID = 0
	c.Name = ""
	c.Params = c.Params[:0]
	c.RawSize = 0
}

// Set fills the descriptor in one call.
func (c *Command) Set(typ CmdType, id uint32, name string, params string) {
	c.Type = typ
	c.ID = id
	c.Name = name
	c.Params = append(c.Params[:0], params...)
	c.RawSize = 0
}

// SetRaw fills the descriptor with a raw payload.
func (c *Command) SetRaw(id uint32, payload []byte) {
	c.Type = CmdRaw
	c.ID = id
	c.Name = ""
	c.Params = append(c.Params[:0], payload...)
	c.RawSize = len(payload)
}

// AppendTo serializes the command after dst and returns the extended
// buffer. term is appended after every non raw command.
func (c *Command) AppendTo(dst []byte, term string) ([]byte, error) {
	if c.Type == CmdNone {
		return dst, ErrNoCommand
	}

	if c.Type == CmdRaw {
		if c.RawSize < 0 || c.RawSize > len(c.Params) || c.RawSize > MaxRawSize {
			return dst, fmt.Errorf("%w: %d", ErrRawSize, c.RawSize)
		}
		return append(dst, c.Params[:c.RawSize]...), nil
	}

	if len(c.Name) > MaxCmdNameSize {
		return dst, fmt.Errorf("%w: %q", ErrNameTooLong, c.Name)
	}
	if len(c.Params) > MaxCmdParamsSize {
		return dst, fmt.Errorf("%w: %d bytes", ErrParamsTooLong, len(c.Params))
	}

	size := 2 + len(c.Name) + len(term)
	switch c.Type {
	case CmdTest:
		size += 2
	case CmdRead:
		size++
	case CmdWrite:
		size += 1 + len(c.Params)
	}
	if size > MaxCmdSize {
		return dst, fmt.Errorf("%w: %d bytes", ErrCmdTooLong, size)
	}

	dst = append(dst, "AT"...)
	dst = append(dst, c.Name...)
	switch c.Type {
	case CmdTest:
		dst = append(dst, "=?"...)
	case CmdRead:
		dst = append(dst, '?')
	case CmdWrite:
		dst = append(dst, '=')
		dst = append(dst, c.Params...)
	}
	return append(dst, term...), nil
}

// String renders the command without terminator, for logs.
func (c *Command) String() string {
	if c.Type == CmdRaw {
		return fmt.Sprintf("<raw %d bytes>", c.RawSize)
	}
	b, err := c.AppendTo(nil, "")
	if err != nil {
		return fmt.Sprintf("<invalid %s command %q>", c.Type, c.Name)
	}
	return string(b)
}
